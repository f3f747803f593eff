package metrics

import (
	"net/http"
	"strconv"
	"time"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"
	"quiltqc/contexts/quilt-review/consensus-engine/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quiltqc"

// Registry owns every collector exported by one process.
type Registry struct {
	registry *prometheus.Registry

	checks        *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	checkErrors   *prometheus.CounterVec
	votes         *prometheus.CounterVec

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Registry{
		registry: reg,
		checks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "checks_total",
			Help:      "Consensus evaluations by outcome.",
		}, []string{"outcome"}),
		checkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "check_duration_seconds",
			Help:      "Consensus evaluation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"outcome"}),
		checkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "check_errors_total",
			Help:      "Consensus evaluations that failed, by error kind.",
		}, []string{"kind"}),
		votes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "votes",
			Name:      "submitted_total",
			Help:      "Accepted vote submissions by raised flag.",
		}, []string{"not_8_panel", "needs_recrop"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (r *Registry) ObserveCheck(outcome entities.Outcome, duration time.Duration) {
	r.checks.WithLabelValues(string(outcome)).Inc()
	r.checkDuration.WithLabelValues(string(outcome)).Observe(duration.Seconds())
}

func (r *Registry) ObserveCheckError(kind string) {
	r.checkErrors.WithLabelValues(kind).Inc()
}

func (r *Registry) ObserveVote(nonStandard bool, needsRecrop bool) {
	r.votes.WithLabelValues(strconv.FormatBool(nonStandard), strconv.FormatBool(needsRecrop)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Middleware records request count and latency keyed by the matched mux
// pattern, so path parameters do not explode label cardinality.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, req)

		route := req.Pattern
		if route == "" {
			route = "unmatched"
		}
		r.requests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		r.requestDuration.WithLabelValues(route).Observe(time.Since(started).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

var _ ports.ConsensusMetrics = (*Registry)(nil)

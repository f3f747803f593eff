package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quiltqc/contexts/quilt-review/consensus-engine/domain/entities"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegistryCountsConsensusOutcomes(t *testing.T) {
	reg := NewRegistry()
	reg.ObserveCheck(entities.OutcomeConsensusReached, 3*time.Millisecond)
	reg.ObserveCheck(entities.OutcomeConsensusReached, time.Millisecond)
	reg.ObserveCheck(entities.OutcomeInsufficient, time.Millisecond)
	reg.ObserveCheckError("storage_read")
	reg.ObserveVote(true, false)

	require.Equal(t, 2.0, testutil.ToFloat64(reg.checks.WithLabelValues("consensus_reached")))
	require.Equal(t, 1.0, testutil.ToFloat64(reg.checks.WithLabelValues("insufficient")))
	require.Equal(t, 1.0, testutil.ToFloat64(reg.checkErrors.WithLabelValues("storage_read")))
	require.Equal(t, 1.0, testutil.ToFloat64(reg.votes.WithLabelValues("true", "false")))
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	reg := NewRegistry()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/blocks/{block_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.Handle("GET /metrics", reg.Handler())
	server := httptest.NewServer(reg.Middleware(mux))
	defer server.Close()

	for _, id := range []string{"1", "2"} {
		resp, err := http.Get(server.URL + "/api/blocks/" + id)
		require.NoError(t, err)
		resp.Body.Close()
	}
	require.Equal(t, 2.0, testutil.ToFloat64(reg.requests.WithLabelValues("GET /api/blocks/{block_id}", "404")))

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "quiltqc_http_requests_total")
}

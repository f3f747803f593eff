package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	consensusengine "quiltqc/contexts/quilt-review/consensus-engine"
	domainerrors "quiltqc/contexts/quilt-review/consensus-engine/domain/errors"
	httptransport "quiltqc/contexts/quilt-review/consensus-engine/transport/http"
	"quiltqc/internal/platform/metrics"

	"github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger"
	"gopkg.in/go-playground/validator.v9"
	_ "quiltqc/internal/platform/httpserver/docs"
)

const maxBodyBytes = 64 << 10

type Server struct {
	mux       *http.ServeMux
	handler   http.Handler
	http      *http.Server
	logger    *slog.Logger
	addr      string
	consensus consensusengine.Module
	metrics   *metrics.Registry
	validator *httptransport.Validator
}

type Options struct {
	Addr           string
	AllowedOrigins []string
	Metrics        *metrics.Registry
	Logger         *slog.Logger
}

func New(consensus consensusengine.Module, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := opts.Addr
	if addr == "" {
		addr = ":8080"
	}
	reg := opts.Metrics
	if reg == nil {
		reg = metrics.NewRegistry()
	}

	s := &Server{
		mux:       http.NewServeMux(),
		logger:    logger,
		addr:      addr,
		consensus: consensus,
		metrics:   reg,
		validator: httptransport.NewValidator(),
	}
	s.registerRoutes()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Forwarded-For"},
		MaxAge:         600,
	})
	s.handler = corsHandler.Handler(reg.Middleware(s.mux))
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the full middleware chain, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/orientation/submit", s.handleSubmitVote)

	s.mux.HandleFunc("POST /api/blocks/{block_id}/consensus", s.handleCheckConsensus)
	s.mux.HandleFunc("DELETE /api/blocks/{block_id}/consensus", s.handleResetConsensus)
	s.mux.HandleFunc("GET /api/blocks/incomplete/next", s.handleNextIncompleteBlock)
	s.mux.HandleFunc("GET /api/blocks/recrop", s.handleRecropBlocks)
	s.mux.HandleFunc("GET /api/blocks/nonstandard", s.handleNonStandardBlocks)
	s.mux.HandleFunc("GET /api/blocks/nonstandard/pending", s.handlePendingNonStandardBlocks)
	s.mux.HandleFunc("GET /api/blocks/{block_id}", s.handleGetBlock)
	s.mux.HandleFunc("PATCH /api/blocks/{block_id}/recrop", s.handleSetRecropFlag)
	s.mux.HandleFunc("PATCH /api/blocks/{block_id}/nonstandard", s.handleSetNonStandardFlag)
	s.mux.HandleFunc("GET /api/block/recrop/next", s.handleNextRecropBlock)

	s.mux.HandleFunc("POST /api/recrop/preview", s.handlePreviewRecrop)
	s.mux.HandleFunc("POST /api/recrop/accept", s.handleAcceptRecrop)

	s.mux.HandleFunc("GET /api/recrop/stats", s.handleRecropStats)
	s.mux.HandleFunc("GET /api/nonstandard/stats", s.handleNonStandardStats)
	s.mux.HandleFunc("GET /api/stats/total", s.handleTotalStats)
	s.mux.HandleFunc("GET /api/stats/completed", s.handleCompletedStats)
	s.mux.HandleFunc("GET /api/stats/voting", s.handleVotingStats)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmitVote(w http.ResponseWriter, r *http.Request) {
	var req httptransport.SubmitVoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.consensus.Handler.SubmitVoteHandler(r.Context(), resolveClientIP(r), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheckConsensus(w http.ResponseWriter, r *http.Request) {
	blockID, ok := pathBlockID(w, r)
	if !ok {
		return
	}
	resp, err := s.consensus.Handler.CheckConsensusHandler(r.Context(), blockID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResetConsensus(w http.ResponseWriter, r *http.Request) {
	blockID, ok := pathBlockID(w, r)
	if !ok {
		return
	}
	if err := s.consensus.Handler.ResetConsensusHandler(r.Context(), blockID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	blockID, ok := pathBlockID(w, r)
	if !ok {
		return
	}
	resp, err := s.consensus.Handler.GetBlockHandler(r.Context(), blockID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNextIncompleteBlock(w http.ResponseWriter, r *http.Request) {
	resp, err := s.consensus.Handler.NextIncompleteBlockHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNextRecropBlock(w http.ResponseWriter, r *http.Request) {
	resp, err := s.consensus.Handler.NextRecropBlockHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecropBlocks(w http.ResponseWriter, r *http.Request) {
	resp, err := s.consensus.Handler.RecropBlocksHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNonStandardBlocks(w http.ResponseWriter, r *http.Request) {
	resp, err := s.consensus.Handler.NonStandardBlocksHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePendingNonStandardBlocks(w http.ResponseWriter, r *http.Request) {
	resp, err := s.consensus.Handler.PendingNonStandardBlocksHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetRecropFlag(w http.ResponseWriter, r *http.Request) {
	blockID, ok := pathBlockID(w, r)
	if !ok {
		return
	}
	var req httptransport.RecropFlagRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.consensus.Handler.SetRecropFlagHandler(r.Context(), blockID, resolveClientIP(r), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetNonStandardFlag(w http.ResponseWriter, r *http.Request) {
	blockID, ok := pathBlockID(w, r)
	if !ok {
		return
	}
	var req httptransport.NonStandardFlagRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.consensus.Handler.SetNonStandardFlagHandler(r.Context(), blockID, resolveClientIP(r), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreviewRecrop(w http.ResponseWriter, r *http.Request) {
	var req httptransport.RecropRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.consensus.Handler.PreviewRecropHandler(req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAcceptRecrop(w http.ResponseWriter, r *http.Request) {
	var req httptransport.RecropRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.consensus.Handler.AcceptRecropHandler(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecropStats(w http.ResponseWriter, r *http.Request) {
	resp, err := s.consensus.Handler.RecropStatsHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNonStandardStats(w http.ResponseWriter, r *http.Request) {
	resp, err := s.consensus.Handler.NonStandardStatsHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTotalStats(w http.ResponseWriter, r *http.Request) {
	resp, err := s.consensus.Handler.TotalStatsHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCompletedStats(w http.ResponseWriter, r *http.Request) {
	resp, err := s.consensus.Handler.CompletedStatsHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVotingStats(w http.ResponseWriter, r *http.Request) {
	resp, err := s.consensus.Handler.VotingStatsHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decode reads a JSON body into dst and runs the struct validator. It writes
// the 400 response itself and reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return false
	}
	if err := s.validator.Validate(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return false
	}
	return true
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domainerrors.ErrInvalidBlockID):
		writeError(w, http.StatusBadRequest, "invalid_block_id", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidVoteInput):
		writeError(w, http.StatusBadRequest, "invalid_vote", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidFlagUpdate):
		writeError(w, http.StatusBadRequest, "invalid_flag_update", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidCorners),
		errors.Is(err, domainerrors.ErrInvalidImageSize):
		writeError(w, http.StatusUnprocessableEntity, "invalid_recrop", err.Error())
	case errors.Is(err, domainerrors.ErrBlockNotFound):
		writeError(w, http.StatusNotFound, "block_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domainerrors.ErrStorageRead),
		errors.Is(err, domainerrors.ErrStorageWrite):
		s.logRequestError(r, err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable")
	default:
		s.logRequestError(r, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func (s *Server) logRequestError(r *http.Request, err error) {
	s.logger.Error("request failed",
		"event", "http_request_failed",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err.Error(),
	)
}

func pathBlockID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	blockID, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("block_id")), 10, 64)
	if err != nil || blockID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_block_id", domainerrors.ErrInvalidBlockID.Error())
		return 0, false
	}
	return blockID, true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		parts = append(parts, fieldErr.Namespace()+" failed "+fieldErr.Tag())
	}
	return strings.Join(parts, "; ")
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, httptransport.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func resolveClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

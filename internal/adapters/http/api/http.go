// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/rally/internal/adapters/repository"
	service "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/rating"
	"github.com/okian/rally/pkg/logger"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	CreateMatch(ctx context.Context, req service.MatchRequest) (model.Match, service.DispatchResult, error)
	GetMatch(ctx context.Context, id string) (service.MatchView, error)
	ReportResult(ctx context.Context, matchID string, w model.Winner) ([]rating.Change, error)
	RemoveParticipant(ctx context.Context, matchID, playerID string) (model.Match, service.DispatchResult, error)
	CancelMatch(ctx context.Context, matchID string) (model.Match, error)
	HandleReply(ctx context.Context, r model.Reply) (service.ReplyOutcome, error)

	// Sweeps are normally cron driven; the routes let operators force a run.
	RunRefillSweep(ctx context.Context) (service.SweepReport, error)
	RunCatchupSweep(ctx context.Context) (service.SweepReport, error)
	RecomputeBehavior(ctx context.Context) (int, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	matchHandler  *MatchHandler
	replyHandler  *ReplyHandler
	sweepHandler  *SweepHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		matchHandler:  NewMatchHandler(deps),
		replyHandler:  NewReplyHandler(deps),
		sweepHandler:  NewSweepHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))

	mux.HandleFunc("POST /matches", MetricsMiddleware(s.matchHandler.HandleCreate, "matches_create"))
	mux.HandleFunc("GET /matches/{id}", MetricsMiddleware(s.matchHandler.HandleGet, "matches_get"))
	mux.HandleFunc("POST /matches/{id}/result", MetricsMiddleware(s.matchHandler.HandleResult, "matches_result"))
	mux.HandleFunc("POST /matches/{id}/participants/{player}/remove",
		MetricsMiddleware(s.matchHandler.HandleRemove, "matches_remove"))
	mux.HandleFunc("POST /matches/{id}/cancel", MetricsMiddleware(s.matchHandler.HandleCancel, "matches_cancel"))

	mux.HandleFunc("POST /replies", MetricsMiddleware(s.replyHandler.HandleReply, "replies"))

	mux.HandleFunc("POST /sweeps/refill", MetricsMiddleware(s.sweepHandler.HandleRefill, "sweeps_refill"))
	mux.HandleFunc("POST /sweeps/catchup", MetricsMiddleware(s.sweepHandler.HandleCatchup, "sweeps_catchup"))
	mux.HandleFunc("POST /sweeps/behavior", MetricsMiddleware(s.sweepHandler.HandleBehavior, "sweeps_behavior"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeJSON reads a single JSON document into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrBadRequest, err)
	}
	return nil
}

// writeServiceError translates upstream errors into HTTP statuses.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, repository.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrUnsupportedReply),
		errors.Is(err, rating.ErrInvalidWinner):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrUnknownSender):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrConflict),
		errors.Is(err, service.ErrMatchNotScorable),
		errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, rating.ErrMalformedTeams):
		writeError(w, http.StatusConflict, "conflict", err)
	default:
		logger.Get().Error(ctx, "request failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", nil)
	}
}

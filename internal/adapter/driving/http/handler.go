package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/ericfisherdev/gitactivity/internal/application"
	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler is the HTTP driving adapter that serves the activity feed API.
type Handler struct {
	activity   *application.ActivityService
	caches     *application.CacheService
	automation *application.AutomationService
	mentions   *application.MentionService
	db         Pinger
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	activity *application.ActivityService,
	caches *application.CacheService,
	automation *application.AutomationService,
	mentions *application.MentionService,
	db Pinger,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		activity:   activity,
		caches:     caches,
		automation: automation,
		mentions:   mentions,
		db:         db,
		logger:     logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request ID, logging and recovery middleware.
func NewServeMux(h *Handler, node *snowflake.Node, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/activity", h.ListActivity)
	mux.HandleFunc("GET /api/v1/activity/summary", h.GetSummary)
	mux.HandleFunc("GET /api/v1/activity/items/{id}", h.GetItem)
	mux.HandleFunc("GET /api/v1/activity/filters", h.GetFilterOptions)
	mux.HandleFunc("POST /api/v1/activity/automation", h.RunAutomation)
	mux.HandleFunc("POST /api/v1/activity/caches/refresh", h.RefreshCaches)
	mux.HandleFunc("PUT /api/v1/activity/mentions/{commentID}/{userID}", h.RecordMentionDecision)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(node, wrapped)

	return wrapped
}

// ListActivity returns one page of the feed plus prefetched pages and a token
// for the matching summary call.
func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := parseFilter(q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	p, err := parsePagination(q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	page, err := h.activity.ListActivityItems(r.Context(), f, p)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityPageResponse(page))
}

// GetSummary returns totals and the jump index. The request must repeat the
// filter parameters of the list call that issued the token.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, codeInvalidToken, "token is required")
		return
	}
	f, err := parseFilter(q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	page, err := intParam(q, "page")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	summary, err := h.activity.GetSummary(r.Context(), token, f, page)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(summary))
}

// GetItem returns a single item with comments, links and attention details.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	detail, err := h.activity.GetItemDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDetailResponse(detail))
}

// GetFilterOptions returns every selectable filter value.
func (h *Handler) GetFilterOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.activity.GetFilterOptions(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFilterOptionsResponse(opts))
}

// RunAutomation runs the status automation job. force=true reruns it even when
// the sync watermark has not moved.
func (h *Handler) RunAutomation(w http.ResponseWriter, r *http.Request) {
	force, err := boolParam(r.URL.Query(), "force")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	res, err := h.automation.Ensure(r.Context(), application.TriggerManual, force)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := AutomationResponse{
		Processed:          res.Processed,
		RunID:              res.RunID,
		InsertedInProgress: res.InsertedInProgress,
		InsertedDone:       res.InsertedDone,
	}
	if resp.State, err = h.automation.State(r.Context()); err != nil {
		h.logger.Warn("failed to read automation state", "error", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// RefreshCaches rebuilds stale derived caches, or all of them with force=true.
func (h *Handler) RefreshCaches(w http.ResponseWriter, r *http.Request) {
	force, err := boolParam(r.URL.Query(), "force")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	res, err := h.caches.Ensure(r.Context(), force)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := CacheRefreshResponse{
		SyncRunID:  res.SyncRunID,
		Refreshed:  nonNil(res.Refreshed),
		ItemCounts: res.ItemCounts,
	}
	if resp.ItemCounts == nil {
		resp.ItemCounts = map[string]int{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// RecordMentionDecision stores a manual suppress, force or clear decision for
// one mention.
func (h *Handler) RecordMentionDecision(w http.ResponseWriter, r *http.Request) {
	var req MentionDecisionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidFilter, "invalid request body")
		return
	}
	if req.DecidedBy == "" {
		req.DecidedBy = "api"
	}

	o, err := h.mentions.RecordDecision(r.Context(),
		r.PathValue("commentID"), r.PathValue("userID"),
		model.MentionDecision(req.Decision), req.DecidedBy)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMentionDecisionResponse(o))
}

// Health reports service and database liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:   "ok",
		Database: "ok",
		Time:     time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("database ping failed", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps application sentinel errors to status codes and
// error codes. Anything unrecognized is logged and reported as a 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, application.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.Is(err, application.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, codeInvalidFilter, err.Error())
	case errors.Is(err, application.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, codeInvalidToken, err.Error())
	case errors.Is(err, application.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, application.ErrFingerprintMismatch):
		writeError(w, http.StatusConflict, codeFingerprintMismatch, err.Error())
	case errors.Is(err, application.ErrTokenExpired):
		writeError(w, http.StatusGone, codeTokenExpired, err.Error())
	default:
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

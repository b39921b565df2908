// Package handler exposes drafts, dialogs and the audit log of a UI session
// over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"moflow/internal/modal"
	"moflow/internal/platform/metrics"
	"moflow/internal/platform/middleware"
	"moflow/internal/session"
	"moflow/internal/workflow/models"
	id "moflow/pkg/domain"
	dErrors "moflow/pkg/domain-errors"
	audit "moflow/pkg/platform/audit"
	"moflow/pkg/platform/httputil"
	"moflow/pkg/requestcontext"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 1000
	maxContentBytes = 1 << 20
)

// Sessions resolves the session a request belongs to.
type Sessions interface {
	Get(ctx context.Context, sid id.SessionID) (*session.Session, error)
}

// Handler handles the session API.
type Handler struct {
	logger   *slog.Logger
	sessions Sessions
	metrics  *metrics.Metrics
	timeout  time.Duration
}

// New creates a new Handler. A zero timeout means 60 seconds.
func New(sessions Sessions, logger *slog.Logger, metrics *metrics.Metrics, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Handler{
		logger:   logger,
		sessions: sessions,
		metrics:  metrics,
		timeout:  timeout,
	}
}

// Register registers the session API under /api/v1.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(middleware.Recovery(h.logger))
	api.Use(middleware.RequestID)
	api.Use(middleware.RequestTime)
	api.Use(middleware.Tracing)
	api.Use(middleware.Logger(h.logger))
	api.Use(middleware.Timeout(h.timeout))
	api.Use(middleware.ContentTypeJSON)
	api.Use(middleware.LatencyMiddleware(h.metrics))
	api.Use(middleware.Language)
	api.Use(middleware.RequireSession(h.logger))

	api.Route("/drafts/{entity}", func(r chi.Router) {
		r.Get("/", h.handleGetDraft)
		r.Delete("/", h.handleResetDraft)
		r.Put("/identity", h.handleSetIdentity)
		r.Put("/details/{kind}", h.handleReplaceDetails)
		r.Post("/details/{kind}", h.handleStageDetail)
	})
	api.Route("/dialogs/{dialog}", func(r chi.Router) {
		r.Get("/", h.handleGetDialog)
		r.Post("/open", h.handleOpenDialog)
		r.Post("/close", h.handleCloseDialog)
		r.Put("/content", h.handleSetContent)
		r.Post("/submit", h.handleSubmitDialog)
	})
	api.Get("/log", h.handleGetLog)
	api.Get("/events", h.handleGetEvents)

	r.Mount("/api/v1", api)
}

// session looks up the caller's session, writing the error response itself
// when it fails.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	ctx := r.Context()
	sess, err := h.sessions.Get(ctx, requestcontext.SessionID(ctx))
	if err != nil {
		h.writeError(ctx, w, "failed to resolve session", err)
		return nil, false
	}
	return sess, true
}

// writeError logs client errors at warn and everything else at error.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{"request_id", middleware.GetRequestID(ctx), "error", err.Error()}
	if httputil.StatusOf(err) < http.StatusInternalServerError {
		h.logger.WarnContext(ctx, msg, attrs...)
	} else {
		h.logger.ErrorContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

// Drafts

type draftView struct {
	Entity   string                             `json:"entity"`
	Identity models.Identity                    `json:"identity"`
	Details  map[models.DetailKind][]recordView `json:"details"`
}

// recordView is a staged record as the UI sees it, key included.
type recordView map[string]any

func newDraftView(d models.Draft) draftView {
	v := draftView{
		Entity:   d.Entity.String(),
		Identity: d.Identity,
		Details:  make(map[models.DetailKind][]recordView, len(d.Details)),
	}
	for kind, recs := range d.Details {
		out := make([]recordView, len(recs))
		for i, rec := range recs {
			rv := recordView{}
			for k, val := range rec.Fields {
				rv[k] = val
			}
			rv["key"] = rec.Key
			rv["type"] = rec.Type
			if rec.UUID != "" {
				rv["uuid"] = rec.UUID
			}
			if rec.Validity != nil {
				rv["validity"] = rec.Validity
			}
			out[i] = rv
		}
		v.Details[kind] = out
	}
	return v
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request) (storeAPI, bool) {
	ctx := r.Context()
	kind, err := models.ParseEntityKind(chi.URLParam(r, "entity"))
	if err != nil {
		h.writeError(ctx, w, "invalid entity", err)
		return nil, false
	}
	sess, ok := h.session(w, r)
	if !ok {
		return nil, false
	}
	switch r.URL.Query().Get("draft") {
	case "", "create":
		return sess.Workflow.Store(kind), true
	case "edit":
		return sess.Workflow.EditStore(kind), true
	}
	h.writeError(ctx, w, "invalid draft", dErrors.New(dErrors.CodeBadRequest, "draft must be create or edit"))
	return nil, false
}

// storeAPI is the part of workflow.Store the draft endpoints use.
type storeAPI interface {
	Stage(kind models.DetailKind, rec models.DetailRecord)
	StageAll(kind models.DetailKind, recs []models.DetailRecord)
	SetIdentity(identity models.Identity)
	ResetFields()
	Snapshot() models.Draft
}

func (h *Handler) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	st, ok := h.store(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newDraftView(st.Snapshot()))
}

func (h *Handler) handleResetDraft(w http.ResponseWriter, r *http.Request) {
	st, ok := h.store(w, r)
	if !ok {
		return
	}
	st.ResetFields()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, ok := h.store(w, r)
	if !ok {
		return
	}
	var identity models.Identity
	if err := httputil.DecodeJSON(r, &identity); err != nil {
		h.writeError(ctx, w, "invalid identity", err)
		return
	}
	st.SetIdentity(identity)
	httputil.WriteJSON(w, http.StatusOK, newDraftView(st.Snapshot()))
}

func (h *Handler) handleReplaceDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, ok := h.store(w, r)
	if !ok {
		return
	}
	kind, err := models.ParseDetailKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(ctx, w, "invalid detail kind", err)
		return
	}
	var recs []models.DetailRecord
	if err := httputil.DecodeJSON(r, &recs); err != nil {
		h.writeError(ctx, w, "invalid detail records", err)
		return
	}
	for i := range recs {
		if recs[i].Key == "" {
			recs[i].Key = uuid.NewString()
		}
	}
	st.StageAll(kind, recs)
	httputil.WriteJSON(w, http.StatusOK, newDraftView(st.Snapshot()))
}

func (h *Handler) handleStageDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, ok := h.store(w, r)
	if !ok {
		return
	}
	kind, err := models.ParseDetailKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(ctx, w, "invalid detail kind", err)
		return
	}
	var rec models.DetailRecord
	if err := httputil.DecodeJSON(r, &rec); err != nil {
		h.writeError(ctx, w, "invalid detail record", err)
		return
	}
	if rec.Key == "" {
		rec.Key = uuid.NewString()
	}
	st.Stage(kind, rec)
	httputil.WriteJSON(w, http.StatusOK, newDraftView(st.Snapshot()))
}

// Dialogs

func (h *Handler) dialog(w http.ResponseWriter, r *http.Request) (*modal.Dialog, *session.Session, bool) {
	sess, ok := h.session(w, r)
	if !ok {
		return nil, nil, false
	}
	d, err := sess.Dialog(chi.URLParam(r, "dialog"))
	if err != nil {
		h.writeError(r.Context(), w, "unknown dialog", err)
		return nil, nil, false
	}
	return d, sess, true
}

func (h *Handler) handleGetDialog(w http.ResponseWriter, r *http.Request) {
	d, _, ok := h.dialog(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d.View())
}

func (h *Handler) handleOpenDialog(w http.ResponseWriter, r *http.Request) {
	d, _, ok := h.dialog(w, r)
	if !ok {
		return
	}
	d.Open(r.Context())
	httputil.WriteJSON(w, http.StatusOK, d.View())
}

func (h *Handler) handleCloseDialog(w http.ResponseWriter, r *http.Request) {
	d, _, ok := h.dialog(w, r)
	if !ok {
		return
	}
	d.Close(r.Context())
	httputil.WriteJSON(w, http.StatusOK, d.View())
}

func (h *Handler) handleSetContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, _, ok := h.dialog(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxContentBytes))
	if err != nil {
		h.writeError(ctx, w, "failed to read dialog content", dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if !json.Valid(raw) {
		h.writeError(ctx, w, "invalid dialog content", dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := d.SetContent(ctx, raw); err != nil {
		h.writeError(ctx, w, "failed to set dialog content", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d.View())
}

// handleSubmitDialog answers 422 for local validation failures. Remote
// failures are part of the dialog state and answer 200.
func (h *Handler) handleSubmitDialog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, _, ok := h.dialog(w, r)
	if !ok {
		return
	}
	res, err := d.Submit(ctx)
	if err != nil {
		h.writeError(ctx, w, "failed to submit dialog", err)
		return
	}
	status := http.StatusOK
	if len(res.ValidationErrors) > 0 {
		status = http.StatusUnprocessableEntity
	}
	if res.Outcome != nil && !res.Outcome.OK() {
		h.logger.WarnContext(ctx, "submission failed",
			"request_id", middleware.GetRequestID(ctx),
			"dialog", res.Dialog,
			"error_key", res.Outcome.Failure.ErrorKey,
			"transport", res.Outcome.Failure.Transport,
		)
	}
	httputil.WriteJSON(w, status, res)
}

// Log and events

type logResponse struct {
	Entries []audit.Entry `json:"entries"`
}

func (h *Handler) handleGetLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(ctx, w, "invalid log limit", dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxLogLimit)
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	entries, err := sess.Audit.Recent(ctx, limit)
	if err != nil {
		h.writeError(ctx, w, "failed to read audit log", err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, logResponse{Entries: entries})
}

type eventsResponse struct {
	Events []modal.Event `json:"events"`
}

func (h *Handler) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	events := sess.Events()
	if events == nil {
		events = []modal.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, eventsResponse{Events: events})
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pavelanni/veripop/internal/handler/views"
	"github.com/pavelanni/veripop/internal/model"
	"github.com/pavelanni/veripop/internal/tutor"
)

const (
	maxFormBytes  = 1 << 20
	healthTimeout = 2 * time.Second
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	registry  *tutor.Registry
	cfg       model.TutorConfig
	modelName string
	checks    map[string]HealthCheck
}

// Option configures a Handler.
type Option func(*Handler)

// WithHealthCheck adds a named dependency check to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) { h.checks[name] = check }
}

// New creates a new Handler. modelName is shown in the sidebar footer.
func New(reg *tutor.Registry, cfg model.TutorConfig, modelName string, opts ...Option) *Handler {
	h := &Handler{registry: reg, cfg: cfg, modelName: modelName, checks: make(map[string]HealthCheck)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestSize(maxFormBytes))
		r.Use(h.workspaceMiddleware)
		r.Use(h.csrfMiddleware)

		r.Get("/", h.handleIndex)
		r.Get("/session", h.handleSession)
		r.Get("/session/ws", h.handleSessionWS)

		r.Get("/lessons/{lessonID}", h.handleLesson)
		r.Post("/lessons/{lessonID}/code", h.handleEditCode)
		r.Post("/lessons/{lessonID}/check", h.handleCheck)
		r.Post("/lessons/{lessonID}/explain", h.handleExplain)
		r.Post("/lessons/{lessonID}/reveal", h.handleReveal)
	})
}

// BasePathMiddleware makes the configured base path available to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.cfg.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.cfg.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.cfg.BasePath != "" {
		return h.cfg.BasePath + "/"
	}
	return "/"
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := map[string]any{"status": "ok", "workspaces": h.registry.Len()}
	status := http.StatusOK
	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			slog.Warn("health check failed", "check", name, "error", err)
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		resp["status"] = "degraded"
		resp["failed"] = failed
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := controllerFrom(r.Context()).Snapshot()
	http.Redirect(w, r, h.path("/lessons/"+snap.LessonID), http.StatusSeeOther)
}

func (h *Handler) handleLesson(w http.ResponseWriter, r *http.Request) {
	ctrl := controllerFrom(r.Context())
	lessonID := chi.URLParam(r, "lessonID")

	reset, err := h.registry.Activate(ctrl, lessonID)
	if errors.Is(err, tutor.ErrUnknownLesson) {
		http.Error(w, "lesson not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if reset {
		slog.Debug("lesson selected", "lesson", lessonID, "workspace", model.WorkspaceIDFromContext(r.Context()))
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, ctrl.Snapshot())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := views.LessonPage(h.lessonView(ctrl.Snapshot())).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) lessonView(snap tutor.Snapshot) views.LessonView {
	cat := h.registry.Catalog()
	v := views.LessonView{
		Session: snap,
		Groups:  cat.Groups(),
		Total:   cat.Len(),
		Model:   h.modelName,
	}
	for i, l := range cat.Lessons() {
		if l.ID == snap.LessonID {
			v.Position = i + 1
			break
		}
	}
	if prev, ok := cat.Prev(snap.LessonID); ok {
		v.Prev = &prev
	}
	if next, ok := cat.Next(snap.LessonID); ok {
		v.Next = &next
	}
	return v
}

// mutate runs op, a command scoped to the lessonID in the URL. op reports
// whether the controller accepted the command, or tutor.ErrLessonInactive when
// another lesson has been selected since the page was rendered.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op func(c *tutor.Controller, lessonID string) (bool, error)) {
	ctrl := controllerFrom(r.Context())
	lessonID := chi.URLParam(r, "lessonID")

	if !h.registry.Catalog().Contains(lessonID) {
		http.Error(w, "lesson not found", http.StatusNotFound)
		return
	}

	accepted, err := op(ctrl, lessonID)
	if errors.Is(err, tutor.ErrLessonInactive) {
		slog.Info("rejected command for inactive lesson",
			"lesson", lessonID, "active", ctrl.Snapshot().LessonID, "path", r.URL.Path)
		http.Error(w, "lesson is no longer active", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if wantsJSON(r) {
		status := http.StatusOK
		if !accepted {
			status = http.StatusConflict
		}
		writeJSON(w, status, ctrl.Snapshot())
		return
	}
	http.Redirect(w, r, h.path("/lessons/"+lessonID), http.StatusSeeOther)
}

// formCode returns the submitted code with browser line endings normalized.
// ok is false when the request carried no code field at all.
func formCode(r *http.Request) (code string, ok bool) {
	if _, present := r.PostForm["code"]; !present {
		return "", false
	}
	return strings.ReplaceAll(r.PostFormValue("code"), "\r\n", "\n"), true
}

func parseForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) handleEditCode(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	code, ok := formCode(r)
	if !ok {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}
	h.mutate(w, r, func(c *tutor.Controller, lessonID string) (bool, error) {
		return true, c.EditLessonCode(lessonID, code)
	})
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	var submitted *string
	if code, ok := formCode(r); ok {
		submitted = &code
	}
	h.mutate(w, r, func(c *tutor.Controller, lessonID string) (bool, error) {
		return c.CheckLesson(lessonID, submitted)
	})
}

func (h *Handler) handleExplain(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(c *tutor.Controller, lessonID string) (bool, error) {
		_, err := c.ExplainLesson(lessonID)
		// Repeated requests are idempotent, never a conflict.
		return true, err
	})
}

func (h *Handler) handleReveal(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(c *tutor.Controller, lessonID string) (bool, error) {
		return c.RevealLessonSolution(lessonID)
	})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, controllerFrom(r.Context()).Snapshot())
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

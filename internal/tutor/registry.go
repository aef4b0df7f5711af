package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/veripop/internal/catalog"
)

// ErrUnknownLesson is returned when a lesson ID is not in the catalog.
var ErrUnknownLesson = errors.New("unknown lesson")

// RegistryOptions bound the number and lifetime of workspaces.
type RegistryOptions struct {
	// MaxWorkspaces caps live workspaces; the least recently used one is
	// evicted when the cap is exceeded. Zero means no cap.
	MaxWorkspaces int
	// TTL evicts workspaces idle for longer than this. Zero disables expiry.
	TTL time.Duration
}

type workspace struct {
	ctrl     *Controller
	lastSeen time.Time
}

// Registry keeps one Controller per browser workspace. Workspaces never share
// state.
type Registry struct {
	catalog *catalog.Catalog
	cfg     Config
	opts    RegistryOptions
	now     func() time.Time

	mu         sync.Mutex
	workspaces map[string]*workspace
}

// NewRegistry creates a registry whose controllers start on the catalog's
// first lesson.
func NewRegistry(cat *catalog.Catalog, cfg Config, opts RegistryOptions) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{
		catalog:    cat,
		cfg:        cfg,
		opts:       opts,
		now:        time.Now,
		workspaces: make(map[string]*workspace),
	}
}

// Catalog returns the catalog controllers are created from.
func (r *Registry) Catalog() *catalog.Catalog { return r.catalog }

// Acquire returns the controller for id, creating it if needed. An empty or
// malformed id gets a freshly generated one. The returned id must be used on
// subsequent calls.
func (r *Registry) Acquire(id string) (*Controller, string) {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if ws, ok := r.workspaces[id]; ok {
		ws.lastSeen = r.now()
		return ws.ctrl, id
	}

	cfg := r.cfg
	cfg.Logger = r.cfg.Logger.With("workspace", id)
	ws := &workspace{ctrl: New(cfg, r.catalog.First()), lastSeen: r.now()}
	r.workspaces[id] = ws
	r.cfg.Logger.Info("workspace created", "workspace", id, "active", len(r.workspaces))
	r.evictOverflowLocked(id)
	return ws.ctrl, id
}

// Lookup returns an existing controller without creating one.
func (r *Registry) Lookup(id string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[id]
	if !ok {
		return nil, false
	}
	ws.lastSeen = r.now()
	return ws.ctrl, true
}

// Activate selects lessonID on ctrl unless it is already the active lesson.
// It reports whether the session was reset.
func (r *Registry) Activate(ctrl *Controller, lessonID string) (bool, error) {
	lesson, err := r.catalog.Lookup(lessonID)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrUnknownLesson, lessonID)
	}
	return ctrl.ActivateLesson(lesson), nil
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// Sweep evicts workspaces idle longer than the TTL and returns how many were
// removed.
func (r *Registry) Sweep() int {
	if r.opts.TTL <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.opts.TTL)
	n := 0
	for id, ws := range r.workspaces {
		if ws.lastSeen.Before(cutoff) {
			r.removeLocked(id, ws)
			n++
		}
	}
	if n > 0 {
		r.cfg.Logger.Info("expired idle workspaces", "count", n, "active", len(r.workspaces))
	}
	return n
}

func (r *Registry) evictOverflowLocked(keep string) {
	if r.opts.MaxWorkspaces <= 0 || len(r.workspaces) <= r.opts.MaxWorkspaces {
		return
	}
	type entry struct {
		id string
		ws *workspace
	}
	entries := make([]entry, 0, len(r.workspaces))
	for id, ws := range r.workspaces {
		if id != keep {
			entries = append(entries, entry{id, ws})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ws.lastSeen.Before(entries[j].ws.lastSeen)
	})
	for _, e := range entries[:len(r.workspaces)-r.opts.MaxWorkspaces] {
		r.removeLocked(e.id, e.ws)
		r.cfg.Logger.Info("evicted workspace", "workspace", e.id)
	}
}

func (r *Registry) removeLocked(id string, ws *workspace) {
	delete(r.workspaces, id)
	ws.ctrl.Close()
}

// Run sweeps expired workspaces every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.opts.TTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close closes every controller.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ws := range r.workspaces {
		r.removeLocked(id, ws)
	}
}

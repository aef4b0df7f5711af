package handler

import (
	"context"
	"net/http"

	"github.com/pavelanni/veripop/internal/model"
	"github.com/pavelanni/veripop/internal/tutor"
)

const workspaceCookieName = "workspace"

type controllerKey struct{}

// workspaceMiddleware binds the request to the browser's session controller,
// issuing a new workspace cookie when the browser has none or its workspace
// has been evicted.
func (h *Handler) workspaceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var requested string
		if c, err := r.Cookie(workspaceCookieName); err == nil {
			requested = c.Value
		}

		ctrl, id := h.registry.Acquire(requested)
		if id != requested {
			cookie := &http.Cookie{
				Name:     workspaceCookieName,
				Value:    id,
				Path:     h.cookiePath(),
				HttpOnly: true,
				Secure:   h.cfg.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			}
			if h.cfg.WorkspaceTTL > 0 {
				cookie.MaxAge = int(h.cfg.WorkspaceTTL.Seconds())
			}
			http.SetCookie(w, cookie)
		}

		ctx := model.ContextWithWorkspaceID(r.Context(), id)
		ctx = context.WithValue(ctx, controllerKey{}, ctrl)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func controllerFrom(ctx context.Context) *tutor.Controller {
	ctrl, _ := ctx.Value(controllerKey{}).(*tutor.Controller)
	return ctrl
}

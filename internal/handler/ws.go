package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/pavelanni/veripop/internal/model"
)

const wsWriteTimeout = 10 * time.Second

// handleSessionWS streams the session snapshot to the browser. The
// subscription delivers the current state first, then every change.
func (h *Handler) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	ctrl := controllerFrom(r.Context())
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	// The client never sends; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	logger := slog.With("workspace", model.WorkspaceIDFromContext(r.Context()))

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			if err := writeSnapshot(ctx, conn, snap); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

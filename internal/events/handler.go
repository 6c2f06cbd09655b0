package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/opsboard/opsboard/internal/auth"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// ConnectionObserver tracks live subscriber counts, typically in metrics.
type ConnectionObserver interface {
	SubscriberConnected()
	SubscriberDisconnected()
}

// Handler upgrades authenticated requests to a WebSocket task feed.
type Handler struct {
	hub            *Hub
	originPatterns []string
	observer       ConnectionObserver
}

func NewHandler(hub *Hub, originPatterns []string, observer ConnectionObserver) *Handler {
	return &Handler{hub: hub, originPatterns: originPatterns, observer: observer}
}

type serverMessage struct {
	Type  string `json:"type"`
	Event any    `json:"event,omitempty"`
}

// HandleStream serves GET /api/v1/tasks/events. Browsers pass the token as
// the access_token query parameter; auth.Middleware resolves it before this
// handler runs.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetActor(r.Context())
	if actor == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		slog.ErrorContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	// The feed is server-to-client only.
	conn.SetReadLimit(1 << 10)

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	sub := h.hub.Subscribe(actor)
	defer sub.Close()

	if h.observer != nil {
		h.observer.SubscriberConnected()
		defer h.observer.SubscriberDisconnected()
	}

	slog.InfoContext(r.Context(), "task feed subscribed", "actor_id", actor.ID, "role", actor.Role.String())

	ctx := conn.CloseRead(r.Context())
	if err := h.write(ctx, conn, serverMessage{Type: "subscribed"}); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "feed closed")
				return
			}
			if err := h.write(ctx, conn, serverMessage{Type: string(e.Type), Event: e}); err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, msg serverMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, msg); err != nil {
		slog.DebugContext(ctx, "task feed write failed", "error", err)
		return err
	}
	return nil
}

// ABOUTME: WebSocket bridge streaming an owner's store changes to the UI
// ABOUTME: Each change is sent as one JSON text frame; the UI re-fetches what it shows

package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/2389/scout-desk/internal/store"
)

const writeTimeout = 10 * time.Second

// OwnerResolver returns the owner a WebSocket request streams changes for.
type OwnerResolver func(r *http.Request) (string, error)

// WebSocketHandler upgrades requests and forwards owner-topic changes.
type WebSocketHandler struct {
	broadcaster    *Broadcaster
	resolve        OwnerResolver
	originPatterns []string
	logger         *slog.Logger
}

// NewWebSocketHandler creates a handler. originPatterns follow
// websocket.AcceptOptions; empty means same-origin only.
func NewWebSocketHandler(b *Broadcaster, resolve OwnerResolver, originPatterns []string, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		broadcaster:    b,
		resolve:        resolve,
		originPatterns: originPatterns,
		logger:         logger.With("component", "push-ws"),
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.resolve(r)
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("failed to accept websocket", "error", err, "owner", ownerID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("failed to close websocket", "error", closeErr, "owner", ownerID)
		}
	}()

	// CloseRead discards client frames and cancels ctx once the client goes away.
	ctx := ws.CloseRead(r.Context())
	changes, _ := h.broadcaster.Subscribe(ctx, OwnerTopic(ownerID))

	h.logger.Debug("push stream opened", "owner", ownerID)
	h.stream(ctx, ws, changes)
	h.logger.Debug("push stream closed", "owner", ownerID)
}

func (h *WebSocketHandler) stream(ctx context.Context, ws *websocket.Conn, changes <-chan store.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			data, err := json.Marshal(c)
			if err != nil {
				h.logger.Error("failed to encode change", "error", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = ws.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

package stream

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Handler serves the observer WebSocket endpoint: each connection gets
// its own broadcaster subscription and receives events as JSON text
// frames until it disconnects.
type Handler struct {
	broadcaster *Broadcaster
	logger      *zap.Logger
}

// NewHandler creates an observer endpoint over the given broadcaster.
func NewHandler(b *Broadcaster, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		broadcaster: b,
		logger:      logger.With(zap.String("component", "observer_ws")),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	id, events := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	h.logger.Info("observer connected", zap.String("subscriber_id", id))
	defer h.logger.Info("observer disconnected", zap.String("subscriber_id", id))

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server closing")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "stream closed")
				return
			}
			if err := h.writeEvent(ctx, conn, ev); err != nil {
				h.logger.Debug("observer write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *Handler) writeEvent(ctx context.Context, conn *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/scorehub/scorehub-api/pkg/progress"
)

const (
	progressWriteWait = 10 * time.Second
	progressPingEvery = 30 * time.Second
)

// ProgressHandler streams pipeline progress events over a websocket, keyed by
// the correlation id the client supplied with its upload.
type ProgressHandler struct {
	broker   *progress.Broker
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewProgressHandler constructs the handler.
func NewProgressHandler(broker *progress.Broker, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cross-origin browser clients are allowed; the stream carries
			// only stage names keyed by the caller-chosen correlation id.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Stream godoc
// @Summary Stream pipeline progress events for a correlation id
// @Description Upgrades to a websocket. Earlier events are replayed on
// @Description connect; the stream closes after the terminal event.
// @Tags Progress
// @Param correlationId path string true "Correlation ID"
// @Router /progress/{correlationId} [get]
func (h *ProgressHandler) Stream(c *gin.Context) {
	correlationID := c.Param("correlationId")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Sugar().Warnw("websocket upgrade failed", "correlation_id", correlationID, "error", err)
		return
	}
	defer conn.Close() //nolint:errcheck

	events, cancel := h.broker.Subscribe(correlationID)
	defer cancel()

	// Reader goroutine only watches for the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(progressPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(progressWriteWait)); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				deadline := time.Now().Add(progressWriteWait)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "pipeline finished"), deadline)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(progressWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

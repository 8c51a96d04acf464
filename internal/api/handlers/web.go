package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/internal/session"
	"github.com/troikatech/cab-voice-agent/pkg/errors"
	"github.com/troikatech/cab-voice-agent/pkg/middleware"
)

// WebCallWebSocket serves a browser caller. The caller id comes from the
// init message; the call id is assigned here.
func (h *Handler) WebCallWebSocket(c *gin.Context) {
	if h.draining.Load() {
		errors.ServiceUnavailable(c, "server is shutting down")
		return
	}

	upgrader := createWebSocketUpgrader(h.cfg, h.logger)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade web caller", zap.Error(err))
		return
	}

	callID := "web-" + uuid.NewString()
	h.logger.Info("Web caller connected",
		zap.String("call_id", callID),
		zap.String("client_id", c.GetString(middleware.ClientIDKey)),
	)
	h.serveCall(c.Request.Context(), conn, callID, session.ChannelWeb, session.NewWebCodec())
}

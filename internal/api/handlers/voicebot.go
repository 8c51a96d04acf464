package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/internal/session"
	"github.com/troikatech/cab-voice-agent/pkg/audio"
	"github.com/troikatech/cab-voice-agent/pkg/errors"
	"github.com/troikatech/cab-voice-agent/pkg/logger"
)

// VoicebotInitRequest is what the telephony provider sends when a call
// reaches the voicebot applet
type VoicebotInitRequest struct {
	CallSid string `json:"CallSid" form:"CallSid"`
	From    string `json:"From" form:"From"`
	To      string `json:"To" form:"To"`
}

// VoicebotWebSocketResponse is what the provider expects back.
type VoicebotWebSocketResponse struct {
	WebSocketURL string `json:"websocket_url"`
}

// VoicebotInit returns the stream URL for a call. Supports GET (query
// params) and POST (form/json).
func (h *Handler) VoicebotInit(c *gin.Context) {
	var req VoicebotInitRequest
	if err := c.ShouldBind(&req); err != nil {
		req.CallSid = c.Query("CallSid")
		req.From = c.Query("From")
		req.To = c.Query("To")
	}
	if req.CallSid == "" {
		req.CallSid = c.Query("call_sid")
	}
	if req.From == "" {
		req.From = c.Query("CallFrom")
	}
	if req.To == "" {
		req.To = c.Query("CallTo")
	}

	if req.CallSid == "" {
		h.logger.Warn("Voicebot init called without CallSid",
			zap.String("method", c.Request.Method),
			zap.String("url", c.Request.URL.Path),
		)
		errors.BadRequest(c, "CallSid is required")
		return
	}
	if h.draining.Load() {
		errors.ServiceUnavailable(c, "server is shutting down")
		return
	}

	params := url.Values{}
	params.Set("call_sid", req.CallSid)
	params.Set("from", req.From)
	params.Set("to", req.To)
	wsURL := fmt.Sprintf("%s/voicebot/ws?%s", h.wsBaseURL(c), params.Encode())

	h.logger.Info("Generated voicebot stream URL",
		zap.String("call_sid", req.CallSid),
		logger.MaskPhoneIfPresent("from", req.From),
	)
	c.JSON(http.StatusOK, VoicebotWebSocketResponse{WebSocketURL: wsURL})
}

// wsBaseURL prefers the configured base URL and falls back to the request
// headers, which works behind a reverse proxy.
func (h *Handler) wsBaseURL(c *gin.Context) string {
	baseURL := h.cfg.VoicebotBaseURL
	if baseURL == "" {
		scheme := "https"
		if proto := c.GetHeader("X-Forwarded-Proto"); proto == "http" {
			scheme = "http"
		} else if proto == "" && c.Request.TLS == nil {
			scheme = "http"
		}

		host := c.GetHeader("X-Forwarded-Host")
		if host == "" {
			host = c.Request.Host
		}
		baseURL = scheme + "://" + host
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	}
	return baseURL
}

// VoicebotWebSocket is the telephony media stream. The provider connects
// directly, so there is no token; the call sid identifies the call.
func (h *Handler) VoicebotWebSocket(c *gin.Context) {
	callSid := c.Query("call_sid")
	if callSid == "" {
		callSid = c.Query("callLogId")
	}
	from := c.Query("from")

	if callSid == "" {
		errors.BadRequest(c, "call_sid or callLogId is required")
		return
	}
	if h.draining.Load() {
		errors.ServiceUnavailable(c, "server is shutting down")
		return
	}

	sampleRate := h.cfg.TelephonyRateHz
	if sr, err := strconv.Atoi(c.Query("sample-rate")); err == nil && audio.SupportedRate(sr) {
		sampleRate = sr
	}

	upgrader := createWebSocketUpgrader(h.cfg, h.logger)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade to WebSocket",
			zap.Error(err),
			zap.String("call_sid", callSid),
			zap.String("origin", c.GetHeader("Origin")),
		)
		return
	}

	h.logger.Info("Voicebot stream connected",
		zap.String("call_sid", callSid),
		logger.MaskPhoneIfPresent("from", from),
		zap.Int("sample_rate", sampleRate),
	)
	codec := session.NewTelephonyCodec(callSid, from, sampleRate)
	h.serveCall(c.Request.Context(), conn, callSid, session.ChannelTelephony, codec)
}

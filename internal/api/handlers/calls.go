package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/internal/session"
	"github.com/troikatech/cab-voice-agent/pkg/env"
)

// inboundBuffer bounds caller messages waiting for the session loop.
const inboundBuffer = 64

// createWebSocketUpgrader allows any origin in development. Elsewhere the
// origin must be one of the configured CORS origins, the voicebot base URL
// or the telephony host. Non-browser clients send no origin and pass.
func createWebSocketUpgrader(cfg *env.Config, log *zap.Logger) websocket.Upgrader {
	allowed := map[string]bool{}
	for _, o := range strings.Split(cfg.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}
	if cfg.VoicebotBaseURL != "" {
		allowed[strings.TrimSuffix(cfg.VoicebotBaseURL, "/")] = true
	}
	if cfg.TelephonyHost != "" {
		allowed["https://"+cfg.TelephonyHost] = true
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if cfg.AppEnv == "development" || origin == "" || allowed["*"] || allowed[origin] {
				return true
			}
			log.Warn("WebSocket connection rejected - invalid origin",
				zap.String("origin", origin),
				zap.String("remote_addr", r.RemoteAddr),
			)
			return false
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// serveCall runs one call on an upgraded connection and returns when it
// has ended.
func (h *Handler) serveCall(ctx context.Context, conn *websocket.Conn, callID, channel string, codec session.Codec) {
	caller := session.NewSocketCaller(conn, codec, h.logger.With(zap.String("call_id", callID)))
	s := h.newSession(callID, channel, caller)
	if err := h.registry.Register(s); err != nil {
		h.logger.Warn("Rejected call", zap.String("call_id", callID), zap.Error(err))
		caller.Send(session.Outbound{Kind: session.OutCallEnded, Reason: "duplicate_call"})
		caller.Close()
		s.Cancel()
		return
	}

	inbound := make(chan session.Inbound, inboundBuffer)
	go caller.Pump(inbound, s.Done())

	// The upgrade hijacked the connection, so the request context no longer
	// tracks the caller. Shutdown reaches the session through the registry.
	s.Run(context.WithoutCancel(ctx), inbound)
}

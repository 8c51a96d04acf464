package handlers

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/internal/livestate"
	"github.com/troikatech/cab-voice-agent/internal/session"
	"github.com/troikatech/cab-voice-agent/pkg/errors"
)

type SessionView struct {
	session.Info
	Snapshot *livestate.Snapshot `json:"snapshot,omitempty"`
}

// ListSessions returns the live calls on this instance, oldest first.
func (h *Handler) ListSessions(c *gin.Context) {
	infos := h.registry.List()
	views := make([]SessionView, 0, len(infos))
	for _, info := range infos {
		views = append(views, SessionView{Info: info, Snapshot: h.latest(c.Request.Context(), info.CallID)})
	}
	c.JSON(http.StatusOK, gin.H{"data": views, "count": len(views)})
}

// GetSession also answers for calls that have ended while their snapshot
// is still retained.
func (h *Handler) GetSession(c *gin.Context) {
	id := c.Param("id")
	if s, ok := h.registry.Get(id); ok {
		c.JSON(http.StatusOK, SessionView{Info: s.Info(), Snapshot: h.latest(c.Request.Context(), id)})
		return
	}

	snap := h.latest(c.Request.Context(), id)
	if snap == nil {
		errors.NotFound(c, "session not found")
		return
	}
	c.JSON(http.StatusOK, SessionView{
		Info:     session.Info{CallID: snap.CallID, Channel: snap.Channel, State: snap.Phase},
		Snapshot: snap,
	})
}

func (h *Handler) latest(ctx context.Context, callID string) *livestate.Snapshot {
	if h.snapshots == nil {
		return nil
	}
	snap, err := h.snapshots.Latest(ctx, callID)
	if err != nil {
		if !stderrors.Is(err, livestate.ErrNoSnapshot) {
			h.logger.Warn("Failed to read live snapshot", zap.String("call_id", callID), zap.Error(err))
		}
		return nil
	}
	return snap
}

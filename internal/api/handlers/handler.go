package handlers

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/internal/livestate"
	"github.com/troikatech/cab-voice-agent/internal/session"
	"github.com/troikatech/cab-voice-agent/internal/store"
	"github.com/troikatech/cab-voice-agent/pkg/env"
)

// Pinger reports whether a backing service is reachable.
type Pinger func(ctx context.Context) error

// SessionFactory builds a session for a newly connected caller.
type SessionFactory func(callID, channel string, caller session.Caller) *session.Session

type BookingReader interface {
	ListBookings(ctx context.Context, f store.BookingFilter, limit, skip int64) ([]store.Booking, int64, error)
	GetBooking(ctx context.Context, id string) (*store.Booking, error)
}

type SnapshotReader interface {
	Latest(ctx context.Context, callID string) (*livestate.Snapshot, error)
}

type Deps struct {
	// Checks are pinged by the health endpoint, keyed by service name.
	Checks     map[string]Pinger
	Bookings   BookingReader
	Snapshots  SnapshotReader
	Registry   *session.Registry
	NewSession SessionFactory
}

type Handler struct {
	cfg        *env.Config
	checks     map[string]Pinger
	bookings   BookingReader
	snapshots  SnapshotReader
	registry   *session.Registry
	newSession SessionFactory
	logger     *zap.Logger

	draining atomic.Bool
}

func NewHandler(cfg *env.Config, deps Deps, logger *zap.Logger) *Handler {
	if deps.Registry == nil {
		deps.Registry = session.NewRegistry()
	}
	return &Handler{
		cfg:        cfg,
		checks:     deps.Checks,
		bookings:   deps.Bookings,
		snapshots:  deps.Snapshots,
		registry:   deps.Registry,
		newSession: deps.NewSession,
		logger:     logger,
	}
}

// Drain stops new calls from being accepted. Live calls are untouched.
func (h *Handler) Drain() {
	h.draining.Store(true)
}

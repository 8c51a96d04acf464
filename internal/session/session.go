// Package session runs one call: it bridges the caller transport and the
// realtime model, owns the booking state, and drives it through the phase
// machine until the call ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/troikatech/cab-voice-agent/internal/address"
	"github.com/troikatech/cab-voice-agent/internal/booking"
	"github.com/troikatech/cab-voice-agent/internal/clock"
	"github.com/troikatech/cab-voice-agent/internal/disambig"
	"github.com/troikatech/cab-voice-agent/internal/failsafe"
	"github.com/troikatech/cab-voice-agent/internal/fare"
	"github.com/troikatech/cab-voice-agent/internal/livestate"
	"github.com/troikatech/cab-voice-agent/internal/realtime"
	"github.com/troikatech/cab-voice-agent/internal/store"
	"github.com/troikatech/cab-voice-agent/internal/transcript"
	"github.com/troikatech/cab-voice-agent/internal/turn"
	"github.com/troikatech/cab-voice-agent/pkg/logger"
	"github.com/troikatech/cab-voice-agent/pkg/metrics"
	"github.com/troikatech/cab-voice-agent/pkg/utils"
)

// Channels a call can arrive on.
const (
	ChannelTelephony = "telephony"
	ChannelWeb       = "web"
)

// historyLines bounds the transcript carried in live snapshots.
const historyLines = 12

// Model is the realtime model connection.
type Model interface {
	Events() <-chan realtime.Event
	AppendAudio(pcm []byte) error
	CommitAudio() error
	SendUserText(text string) error
	SendFunctionOutput(callID string, output interface{}) error
	CreateResponse(instructions string) error
	CancelResponse() error
	Close() error
}

// DialFunc opens a model connection configured for one call.
type DialFunc func(ctx context.Context, cfg realtime.SessionConfig) (Model, error)

// Store is the persistence the session uses.
type Store interface {
	Profile(ctx context.Context, phone string) (*booking.Profile, error)
	SaveName(ctx context.Context, phone, name string) error
	SaveAlias(ctx context.Context, phone, alias, addr string) error
	RememberAddresses(ctx context.Context, phone, bookingID string, addrs ...string) error
	CreateBooking(ctx context.Context, b *store.Booking) error
	UpdateBooking(ctx context.Context, b *store.Booking) error
	CancelBooking(ctx context.Context, id string) error
	StartCall(ctx context.Context, c store.Call) error
	EndCall(ctx context.Context, c store.Call) error
	Audit(ctx context.Context, callID, action, resourceType, resourceID string, metadata map[string]interface{}) error
}

type Config struct {
	CompanyName        string
	Voice              string
	TranscriptionModel string
	VADThreshold       float64
	VADSilenceMs       int

	TranscriptGrace      time.Duration
	AudioGrace           time.Duration
	ProfileLookupTimeout time.Duration
	CollaboratorTimeout  time.Duration
	MaxClarifications    int
	HighFareThreshold    float64

	Failsafe failsafe.Config
	Filter   transcript.Config
}

type Deps struct {
	Dial     DialFunc
	Pipeline *booking.Pipeline
	Resolver address.Resolver
	Fares    fare.Quoter
	Store    Store
	// Live is optional; without it no snapshots are published.
	Live  livestate.Sink
	Clock clock.Clock
	Log   *zap.Logger
}

// Info is the externally visible summary of a session. Safe to read from
// any goroutine.
type Info struct {
	CallID    string    `json:"call_id"`
	Channel   string    `json:"channel"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
}

// Session is one call. Everything below the constructor runs on the
// session loop; other goroutines only post closures to it.
type Session struct {
	id      string
	channel string
	cfg     Config
	deps    Deps
	caller  Caller
	clock   clock.Clock
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	posted chan func()
	done   chan struct{}
	// post runs f on the loop; async runs f off it. Tests replace both.
	post  func(func())
	async func(func())

	info atomic.Value

	model   Model
	arbiter *turn.Arbiter
	timers  *failsafe.Scheduler
	filter  *transcript.Filter
	live    *livestate.Queue

	phase     Phase
	pending   *disambig.Pending
	booking   booking.KnownBooking
	profile   booking.Profile
	phone     string
	startedAt time.Time

	quote         *fare.Quote
	bookingID     string
	bookingRef    string
	modifying     bool
	awaitingName  bool
	typing        bool
	dispatching   bool
	audioBytes    int
	turnAudio     time.Duration
	agentText     strings.Builder
	lastAgentLine string
	agentStopped  time.Time
	history       []livestate.Line
	turns         int

	jobs       []extractJob
	extracting bool

	closing   bool
	ended     bool
	endReason string
}

// New builds a session. Run starts it.
func New(callID, channel string, caller Caller, cfg Config, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = logger.ForSession(log, callID, channel, "")

	s := &Session{
		id:      callID,
		channel: channel,
		cfg:     cfg,
		deps:    deps,
		caller:  caller,
		clock:   deps.Clock,
		log:     log,
		posted:  make(chan func(), 64),
		done:    make(chan struct{}),
		phase:   Connecting,
		filter:  transcript.New(cfg.Filter),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.post = s.enqueue
	s.async = func(f func()) { go f() }

	loop := func(f func()) { s.post(f) }
	s.arbiter = turn.NewArbiter(s.clock, loop, cfg.TranscriptGrace, hooks{s}, responder{s}, log)
	s.timers = failsafe.New(cfg.Failsafe, s.clock, loop, actions{s}, log)
	if deps.Live != nil {
		s.live = livestate.NewQueue(deps.Live, cfg.CollaboratorTimeout, log)
	}
	s.startedAt = s.clock.Now()
	s.storeInfo()
	return s
}

func (s *Session) ID() string { return s.id }

// Info returns the current summary.
func (s *Session) Info() Info {
	return s.info.Load().(Info)
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Cancel ends the session from outside, e.g. on shutdown.
func (s *Session) Cancel() { s.cancel() }

func (s *Session) enqueue(f func()) {
	select {
	case s.posted <- f:
	case <-s.done:
	}
}

// Run is the session loop. It returns once the call has ended; inbound is
// the caller transport's decoded messages and is closed when it
// disconnects.
func (s *Session) Run(ctx context.Context, inbound <-chan Inbound) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Session panicked", zap.Any("panic", r))
			s.finish("internal_error")
		}
	}()

	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	var events <-chan realtime.Event
	subscribed := false
	for !s.ended {
		if !subscribed && s.model != nil {
			events = s.model.Events()
			subscribed = true
		}
		select {
		case <-s.ctx.Done():
			s.finish("shutdown")
		case f := <-s.posted:
			f()
		case in, ok := <-inbound:
			if !ok {
				inbound = nil
				s.finish("caller_disconnected")
				continue
			}
			s.HandleCaller(in)
		case ev, ok := <-events:
			if !ok {
				events = nil
				s.log.Warn("Model connection closed")
				s.forceEnd("model_disconnected")
				continue
			}
			s.HandleModel(ev)
		}
	}
}

// HandleCaller applies one caller message.
func (s *Session) HandleCaller(in Inbound) {
	if s.ended {
		return
	}
	switch in.Kind {
	case InInit:
		if s.phase != Connecting || s.model != nil {
			return
		}
		s.connect(in)
	case InAudio:
		if s.model == nil || s.closing {
			return
		}
		pcm := toModelAudio(in.Audio, s.caller.SampleRate())
		s.audioBytes += len(pcm)
		if err := s.model.AppendAudio(pcm); err != nil {
			s.log.Debug("Failed to forward caller audio", zap.Error(err))
		}
	case InCommit:
		if s.model != nil && !s.closing {
			if err := s.model.CommitAudio(); err != nil {
				s.log.Warn("Failed to commit caller audio", zap.Error(err))
			}
		}
	case InText:
		if s.model == nil || s.closing || strings.TrimSpace(in.Text) == "" {
			return
		}
		s.turnAudio = 0
		s.typing = true
		s.arbiter.OnText(in.Text)
		s.typing = false
	case InHangup:
		s.finish("caller_hangup")
	default:
		s.log.Debug("Ignoring caller message", zap.String("kind", in.Kind))
	}
}

// connect runs the profile lookup and the model dial in parallel. A missing
// or slow profile is not an error; a failed dial ends the call.
func (s *Session) connect(in Inbound) {
	if in.CallID != "" && s.id == "" {
		s.id = in.CallID
	}
	s.phone = utils.NormalizePhone(in.Phone)
	if s.phone != "" && !utils.ValidateE164(s.phone) {
		s.log.Warn("Ignoring malformed caller id")
		s.phone = ""
	}
	s.log.Info("Session connecting", logger.MaskPhoneIfPresent("phone", s.phone))

	var profile *booking.Profile
	var model Model
	g, ctx := errgroup.WithContext(s.ctx)
	g.Go(func() error {
		if s.phone == "" || s.deps.Store == nil {
			return nil
		}
		lctx, cancel := context.WithTimeout(ctx, s.cfg.ProfileLookupTimeout)
		defer cancel()
		p, err := s.deps.Store.Profile(lctx, s.phone)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("Caller profile lookup failed", zap.Error(err))
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		m, err := s.deps.Dial(ctx, s.sessionConfig())
		if err != nil {
			return fmt.Errorf("dial model: %w", err)
		}
		model = m
		return nil
	})
	if err := g.Wait(); err != nil {
		s.log.Error("Session failed to connect", zap.Error(err))
		if model != nil {
			model.Close()
		}
		s.send(Outbound{Kind: OutError, Error: "voice service unavailable"})
		s.finish("model_unavailable")
		return
	}

	s.model = model
	if profile != nil {
		s.profile = *profile
	}
	s.profile.Phone = s.phone
	metrics.SessionOpened(s.channel)

	s.setPhase(Greeting)
	s.recordCallStart()
	s.send(Outbound{Kind: OutSessionReady, CallID: s.id})
	s.arbiter.Prompt([]string{greetingInstruction(s.cfg.CompanyName, s.profile.Name)})
}

// HandleModel applies one model event.
func (s *Session) HandleModel(ev realtime.Event) {
	if s.ended {
		return
	}
	switch ev.Type {
	case realtime.EventSpeechStarted:
		if s.arbiter.OnSpeechStart() {
			s.send(Outbound{Kind: OutClear})
			s.send(Outbound{Kind: OutAISpeaking, Speaking: false})
			s.agentStopped = s.clock.Now()
		}
		s.timers.CallerActivity()
		s.send(Outbound{Kind: OutUserSpeaking, Speaking: true})
	case realtime.EventSpeechStopped:
		s.send(Outbound{Kind: OutUserSpeaking, Speaking: false})
	case realtime.EventBufferCommitted:
		s.turnAudio = committedDuration(s.audioBytes)
		s.audioBytes = 0
		s.arbiter.OnBufferCommitted()
	case realtime.EventTranscriptionDone:
		s.arbiter.OnTranscriptFinal(ev.Transcript)
	case realtime.EventTranscriptionFailed:
		s.log.Debug("Transcription failed")
		s.arbiter.OnTranscriptionFailed()
	case realtime.EventResponseCreated:
		s.agentText.Reset()
	case realtime.EventAudioDelta:
		pcm, err := decodeModelAudio(ev.Delta, s.caller.SampleRate())
		if err != nil {
			s.log.Debug("Bad audio delta", zap.Error(err))
			return
		}
		if !s.arbiter.AgentSpeaking() {
			s.arbiter.SetAgentSpeaking(true)
			s.send(Outbound{Kind: OutAISpeaking, Speaking: true})
		}
		s.send(Outbound{Kind: OutAudio, Audio: pcm})
	case realtime.EventAudioTranscriptDelta:
		s.agentText.WriteString(ev.Delta)
	case realtime.EventAudioTranscriptDone:
		s.agentUtterance(ev.Transcript)
	case realtime.EventAudioDone, realtime.EventResponseDone:
		if s.arbiter.AgentSpeaking() {
			s.arbiter.SetAgentSpeaking(false)
			s.agentStopped = s.clock.Now()
			s.send(Outbound{Kind: OutAISpeaking, Speaking: false})
		}
	case realtime.EventFunctionArgumentsDone:
		s.handleTool(ev.CallID, ev.Name, ev.Arguments)
	case realtime.EventError:
		if ev.Error != nil {
			s.log.Warn("Model reported error",
				zap.String("type", ev.Error.Type),
				zap.String("code", ev.Error.Code),
				zap.String("message", ev.Error.Message))
		}
	}
}

// agentUtterance records one finished agent utterance.
func (s *Session) agentUtterance(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = strings.TrimSpace(s.agentText.String())
	}
	s.agentText.Reset()
	if text == "" {
		return
	}
	s.lastAgentLine = text
	s.addHistory("assistant", text)
	s.send(Outbound{Kind: OutTranscript, Role: "assistant", Text: text})

	lower := strings.ToLower(text)
	s.awaitingName = failsafe.IsQuestion(text) && strings.Contains(lower, "name")

	if s.phase == Greeting {
		s.setPhase(Collecting)
	}
	s.timers.AgentUtterance(text)
	s.publish()
}

// agentContext is the text the echo check compares against: the utterance
// being spoken, else the last one.
func (s *Session) agentContext() string {
	if s.agentText.Len() > 0 {
		return s.agentText.String()
	}
	return s.lastAgentLine
}

func (s *Session) setPhase(p Phase) {
	if s.phase == p {
		return
	}
	if !canTransition(s.phase, p) {
		s.log.Warn("Illegal phase transition ignored",
			zap.String("from", s.phase.String()),
			zap.String("to", p.String()))
		return
	}
	s.log.Info("Phase changed",
		zap.String("from", s.phase.String()),
		zap.String("to", p.String()))
	s.phase = p
	s.storeInfo()
	s.publish()
}

// State is the phase name, or "disambiguating" while a question is open.
func (s *Session) State() string {
	if s.pending != nil {
		return Disambiguating
	}
	return s.phase.String()
}

func (s *Session) storeInfo() {
	s.info.Store(Info{CallID: s.id, Channel: s.channel, State: s.State(), StartedAt: s.startedAt})
}

func (s *Session) send(msg Outbound) {
	if s.caller == nil {
		return
	}
	if err := s.caller.Send(msg); err != nil {
		s.log.Debug("Failed to send to caller", zap.String("kind", msg.Kind), zap.Error(err))
	}
}

func (s *Session) addHistory(role, text string) {
	s.history = append(s.history, livestate.Line{Role: role, Text: text})
	if len(s.history) > historyLines {
		s.history = s.history[len(s.history)-historyLines:]
	}
	if role == "user" {
		s.turns++
	}
}

func (s *Session) publish() {
	if s.live == nil {
		return
	}
	var areas []string
	if s.pending != nil {
		areas = s.pending.Areas()
	}
	lines := make([]livestate.Line, len(s.history))
	copy(lines, s.history)
	s.live.Publish(livestate.Snapshot{
		CallID:     s.id,
		Channel:    s.channel,
		Phase:      s.State(),
		Caller:     utils.MaskPhoneNumber(s.phone),
		Booking:    s.booking,
		Pending:    areas,
		Transcript: lines,
		UpdatedAt:  s.clock.Now(),
	})
}

// forceEnd moves to closing and ends the call after the audio grace period
// so speech already sent can finish playing. Repeated calls are no-ops.
func (s *Session) forceEnd(reason string) {
	if s.closing || s.ended {
		return
	}
	s.closing = true
	s.timers.Stop()
	s.setPhase(Closing)
	s.log.Info("Call closing", zap.String("reason", reason))
	s.clock.AfterFunc(s.cfg.AudioGrace, func() {
		s.post(func() { s.finish(reason) })
	})
}

// finish ends the call now. It runs exactly once.
func (s *Session) finish(reason string) {
	if s.ended {
		return
	}
	s.timers.Stop()
	if s.phase != Connecting {
		s.setPhase(Closing)
	}
	s.setPhase(Ended)
	s.ended = true
	s.endReason = reason
	s.storeInfo()

	s.send(Outbound{Kind: OutCallEnded, Reason: reason})
	if s.caller != nil {
		s.caller.Close()
	}
	if s.model != nil {
		s.model.Close()
		metrics.SessionClosed(reason)
	}
	s.log.Info("Call ended", zap.String("reason", reason), zap.Int("turns", s.turns))

	s.recordCallEnd(reason)
	s.publish()
	if s.live != nil {
		live := s.live
		s.async(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CollaboratorTimeout)
			defer cancel()
			live.Close(ctx)
		})
	}
	s.cancel()
	close(s.done)
}

func (s *Session) recordCallStart() {
	if s.deps.Store == nil {
		return
	}
	call := store.Call{CallID: s.id, Channel: s.channel, Phone: s.phone, StartedAt: s.startedAt}
	s.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CollaboratorTimeout)
		defer cancel()
		if err := s.deps.Store.StartCall(ctx, call); err != nil {
			s.log.Warn("Failed to record call start", zap.Error(err))
		}
	})
}

func (s *Session) recordCallEnd(reason string) {
	if s.deps.Store == nil || s.model == nil {
		return
	}
	call := store.Call{
		CallID:    s.id,
		EndedAt:   s.clock.Now(),
		EndReason: reason,
		Turns:     s.turns,
		BookingID: s.bookingID,
	}
	s.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CollaboratorTimeout)
		defer cancel()
		if err := s.deps.Store.EndCall(ctx, call); err != nil {
			s.log.Warn("Failed to record call end", zap.Error(err))
		}
	})
}

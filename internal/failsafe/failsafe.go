// Package failsafe owns the timers that guarantee a call always ends.
package failsafe

import (
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/internal/clock"
	"github.com/troikatech/cab-voice-agent/pkg/metrics"
)

type Kind int

const (
	NoReplyReprompt Kind = iota
	FollowUpSilence
	GoodbyeFailsafe
	SilenceTimeoutFailsafe
)

var kinds = []Kind{NoReplyReprompt, FollowUpSilence, GoodbyeFailsafe, SilenceTimeoutFailsafe}

func (k Kind) String() string {
	switch k {
	case NoReplyReprompt:
		return "no_reply_reprompt"
	case FollowUpSilence:
		return "follow_up_silence"
	case GoodbyeFailsafe:
		return "goodbye_failsafe"
	case SilenceTimeoutFailsafe:
		return "silence_timeout_failsafe"
	}
	return "unknown"
}

// Timer is an armed timer as seen from outside.
type Timer struct {
	Kind     Kind
	ArmedAt  time.Time
	Deadline time.Time
}

type Config struct {
	NoReply        time.Duration
	FollowUp       time.Duration
	Goodbye        time.Duration
	Silence        time.Duration
	RecentActivity time.Duration
	MaxReprompts   int
}

// Actions are what a firing timer asks the session to do.
type Actions interface {
	// Reprompt asks the model to repeat question word for word.
	Reprompt(question string)
	// SayGoodbye asks the model for the fixed goodbye and end_call.
	SayGoodbye()
	// ForceEnd terminates the call. It must be idempotent.
	ForceEnd(reason string)
}

type armed struct {
	Timer
	gen    uint64
	handle clock.Timer
}

// Scheduler holds at most one timer of each kind. It is not safe for
// concurrent use: every method, and every fire, runs on the owning session
// loop through post.
type Scheduler struct {
	cfg     Config
	clock   clock.Clock
	post    func(func())
	actions Actions
	log     *zap.Logger

	timers       map[Kind]*armed
	gen          uint64
	stopped      bool
	reprompts    int
	lastQuestion string
	lastActivity time.Time
}

// New builds a scheduler. post must run f on the session loop.
func New(cfg Config, c clock.Clock, post func(func()), actions Actions, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		clock:   c,
		post:    post,
		actions: actions,
		log:     log,
		timers:  make(map[Kind]*armed),
	}
}

func (s *Scheduler) window(k Kind) time.Duration {
	switch k {
	case NoReplyReprompt:
		return s.cfg.NoReply
	case FollowUpSilence:
		return s.cfg.FollowUp
	case GoodbyeFailsafe:
		return s.cfg.Goodbye
	default:
		return s.cfg.Silence
	}
}

// Arm (re)starts the timer of kind k. Arming the follow-up timer disarms the
// no-reply timer so the two never both lead to a termination.
func (s *Scheduler) Arm(k Kind) {
	if s.stopped {
		return
	}
	s.Cancel(k)
	if k == FollowUpSilence {
		s.Cancel(NoReplyReprompt)
	}

	s.gen++
	gen := s.gen
	now := s.clock.Now()
	d := s.window(k)
	a := &armed{Timer: Timer{Kind: k, ArmedAt: now, Deadline: now.Add(d)}, gen: gen}
	a.handle = s.clock.AfterFunc(d, func() {
		s.post(func() { s.fire(k, gen) })
	})
	s.timers[k] = a
	s.log.Debug("Timer armed", zap.String("kind", k.String()), zap.Duration("after", d))
}

// Cancel disarms one timer.
func (s *Scheduler) Cancel(k Kind) {
	if a, ok := s.timers[k]; ok {
		a.handle.Stop()
		delete(s.timers, k)
	}
}

// CancelAll disarms every timer.
func (s *Scheduler) CancelAll() {
	for _, k := range kinds {
		s.Cancel(k)
	}
}

// Stop disarms everything and refuses further arming.
func (s *Scheduler) Stop() {
	s.CancelAll()
	s.stopped = true
}

func (s *Scheduler) Armed(k Kind) bool {
	_, ok := s.timers[k]
	return ok
}

// Timers lists armed timers in kind order.
func (s *Scheduler) Timers() []Timer {
	var out []Timer
	for _, k := range kinds {
		if a, ok := s.timers[k]; ok {
			out = append(out, a.Timer)
		}
	}
	return out
}

// CallerActivity records genuine caller activity: speech start or an
// accepted transcript. It cancels every timer.
func (s *Scheduler) CallerActivity() {
	s.lastActivity = s.clock.Now()
	s.reprompts = 0
	s.CancelAll()
}

// AgentUtterance observes one finished agent utterance and arms whatever
// timer its content calls for.
func (s *Scheduler) AgentUtterance(text string) {
	if s.stopped {
		return
	}
	if IsFarewell(text) {
		s.Arm(GoodbyeFailsafe)
	}
	switch {
	case IsClosingQuestion(text):
		s.Arm(FollowUpSilence)
	case IsQuestion(text) && !IsConfirmationRequest(text):
		// Once the call is on its way out, a question must not start a
		// second path to the goodbye.
		if s.Armed(FollowUpSilence) || s.Armed(SilenceTimeoutFailsafe) {
			return
		}
		if !s.lastActivity.IsZero() && s.clock.Now().Sub(s.lastActivity) < s.cfg.RecentActivity {
			return
		}
		s.lastQuestion = text
		s.Arm(NoReplyReprompt)
	}
}

func (s *Scheduler) fire(k Kind, gen uint64) {
	a, ok := s.timers[k]
	if !ok || a.gen != gen || s.stopped {
		return
	}
	delete(s.timers, k)
	metrics.Inc(metrics.FailsafeFires, k.String())
	s.log.Info("Timer fired", zap.String("kind", k.String()))

	switch k {
	case NoReplyReprompt:
		if s.reprompts < s.cfg.MaxReprompts {
			s.reprompts++
			s.actions.Reprompt(s.lastQuestion)
			return
		}
		s.followUpExpired()
	case FollowUpSilence:
		s.followUpExpired()
	case GoodbyeFailsafe:
		s.actions.ForceEnd("goodbye_failsafe")
	case SilenceTimeoutFailsafe:
		s.actions.ForceEnd("silence_timeout")
	}
}

// followUpExpired hands the goodbye to the model and arms the unconditional
// backstop in case it never calls end_call.
func (s *Scheduler) followUpExpired() {
	s.Cancel(NoReplyReprompt)
	s.Arm(SilenceTimeoutFailsafe)
	s.actions.SayGoodbye()
}

// Package turn sequences voice activity, commits, transcripts and model
// responses into well-ordered conversational turns.
package turn

import (
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/internal/clock"
	"github.com/troikatech/cab-voice-agent/internal/transcript"
	"github.com/troikatech/cab-voice-agent/pkg/metrics"
)

// Turn is one caller utterance and the agent's answer to it.
type Turn struct {
	ID          int
	CommittedAt time.Time
	Transcript  string
	Verdict     transcript.Verdict
	// Awaiting is set from commit until the turn is answered or dropped.
	Awaiting    bool
	Responded   bool
	Interrupted bool
}

// Hooks are the session-side steps of a turn.
type Hooks interface {
	// Filter classifies a final transcript for the turn.
	Filter(t *Turn, text string) transcript.Verdict
	// Extract runs booking extraction for an accepted turn and calls done on
	// the session loop with any forced instructions.
	Extract(t *Turn, done func(instructions []string))
}

// Responder talks to the model.
type Responder interface {
	CancelResponse()
	Respond(t *Turn, instructions []string)
}

// Arbiter is not safe for concurrent use; it runs on the session loop.
type Arbiter struct {
	clock     clock.Clock
	post      func(func())
	grace     time.Duration
	hooks     Hooks
	responder Responder
	log       *zap.Logger

	current       *Turn
	nextID        int
	agentSpeaking bool
	graceTimer    clock.Timer
}

func NewArbiter(c clock.Clock, post func(func()), grace time.Duration, hooks Hooks, responder Responder, log *zap.Logger) *Arbiter {
	return &Arbiter{clock: c, post: post, grace: grace, hooks: hooks, responder: responder, log: log}
}

// Current returns the open turn, or nil.
func (a *Arbiter) Current() *Turn { return a.current }

func (a *Arbiter) AgentSpeaking() bool { return a.agentSpeaking }

// SetAgentSpeaking tracks whether agent audio is being produced.
func (a *Arbiter) SetAgentSpeaking(speaking bool) { a.agentSpeaking = speaking }

// OnSpeechStart handles caller voice activity. If the agent is speaking the
// in-flight response is cancelled and the answered turn marked interrupted.
func (a *Arbiter) OnSpeechStart() bool {
	if !a.agentSpeaking {
		return false
	}
	a.agentSpeaking = false
	a.responder.CancelResponse()
	if a.current != nil && a.current.Responded {
		a.current.Interrupted = true
	}
	metrics.Inc(metrics.BargeIns, "speech_start")
	a.log.Debug("Barge-in, response cancelled")
	return true
}

// OnBufferCommitted opens a new turn. Any unanswered previous turn is
// superseded and will never get a response.
func (a *Arbiter) OnBufferCommitted() *Turn {
	a.stopGrace()
	a.nextID++
	t := &Turn{ID: a.nextID, CommittedAt: a.clock.Now(), Awaiting: true}
	a.current = t

	a.graceTimer = a.clock.AfterFunc(a.grace, func() {
		a.post(func() { a.graceExpired(t) })
	})
	return t
}

// OnTranscriptFinal runs the turn's transcript through the filter and, if it
// survives, extraction, then answers the turn once. A transcript that
// arrives after the turn was already answered by the fallback still updates
// the booking but gets no second response. It returns false when the
// transcript was dropped.
func (a *Arbiter) OnTranscriptFinal(text string) bool {
	t := a.current
	switch {
	case t == nil:
		t = a.OnBufferCommitted()
	case t.Transcript != "":
		a.log.Debug("Second transcript for turn ignored", zap.Int("turn", t.ID))
		return false
	}
	t.Transcript = text
	t.Verdict = a.hooks.Filter(t, text)
	if !t.Verdict.Accepted {
		a.drop(t)
		return false
	}

	a.hooks.Extract(t, func(instructions []string) {
		a.respond(t, instructions, "normal")
	})
	return true
}

// OnText handles typed input as a complete turn.
func (a *Arbiter) OnText(text string) bool {
	a.OnBufferCommitted()
	return a.OnTranscriptFinal(text)
}

// OnTranscriptionFailed drops the open turn without a response.
func (a *Arbiter) OnTranscriptionFailed() {
	if a.current != nil && a.current.Awaiting {
		a.drop(a.current)
	}
}

// Prompt requests a response outside the caller's turns, e.g. the greeting
// or a failsafe reprompt. It does not disturb an unanswered turn.
func (a *Arbiter) Prompt(instructions []string) {
	metrics.Inc(metrics.ResponseRequests, "prompt")
	a.responder.Respond(nil, instructions)
}

func (a *Arbiter) drop(t *Turn) {
	t.Awaiting = false
	if t == a.current {
		a.stopGrace()
	}
	a.log.Debug("Turn dropped",
		zap.Int("turn", t.ID),
		zap.String("reason", string(t.Verdict.Reason)))
}

func (a *Arbiter) respond(t *Turn, instructions []string, kind string) {
	if t != a.current || t.Responded || !t.Awaiting {
		return
	}
	t.Responded = true
	t.Awaiting = false
	a.stopGrace()
	metrics.Inc(metrics.ResponseRequests, kind)
	a.responder.Respond(t, instructions)
}

func (a *Arbiter) graceExpired(t *Turn) {
	if t != a.current || t.Responded || !t.Awaiting {
		return
	}
	a.log.Warn("No response for committed turn, answering anyway", zap.Int("turn", t.ID))
	a.respond(t, nil, "fallback")
}

func (a *Arbiter) stopGrace() {
	if a.graceTimer != nil {
		a.graceTimer.Stop()
		a.graceTimer = nil
	}
}

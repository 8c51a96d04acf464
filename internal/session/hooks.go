package session

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/internal/transcript"
	"github.com/troikatech/cab-voice-agent/internal/turn"
	"github.com/troikatech/cab-voice-agent/pkg/metrics"
)

// hooks are the session's side of a turn.
type hooks struct{ s *Session }

func (h hooks) Filter(t *turn.Turn, text string) transcript.Verdict {
	s := h.s
	var vocabulary []string
	if s.pending != nil {
		vocabulary = s.pending.Areas()
	}
	v := s.filter.Check(text, transcript.Context{
		AgentUtterance: s.agentContext(),
		AgentSpeaking:  s.arbiter.AgentSpeaking(),
		AgentStoppedAt: s.agentStopped,
		Now:            s.clock.Now(),
		AudioDuration:  s.turnAudio,
		Vocabulary:     vocabulary,
		AwaitingName:   s.awaitingName,
	})
	if !v.Accepted {
		metrics.Inc(metrics.FilterRejections, string(v.Reason))
		s.log.Debug("Transcript rejected",
			zap.Int("turn", t.ID),
			zap.String("reason", string(v.Reason)),
			zap.String("detail", v.Detail))
		return v
	}

	s.timers.CallerActivity()
	s.addHistory("user", text)
	s.send(Outbound{Kind: OutTranscript, Role: "user", Text: text})
	if s.typing && s.model != nil {
		if err := s.model.SendUserText(text); err != nil {
			s.log.Warn("Failed to forward typed text", zap.Error(err))
		}
	}
	s.publish()
	return v
}

func (h hooks) Extract(t *turn.Turn, done func(instructions []string)) {
	h.s.enqueueExtraction(extractJob{text: t.Transcript, done: done})
}

// responder sends response requests to the model.
type responder struct{ s *Session }

func (r responder) CancelResponse() {
	if r.s.model == nil {
		return
	}
	if err := r.s.model.CancelResponse(); err != nil {
		r.s.log.Debug("Failed to cancel response", zap.Error(err))
	}
}

func (r responder) Respond(t *turn.Turn, instructions []string) {
	s := r.s
	if s.model == nil || s.ended {
		return
	}
	if err := s.model.CreateResponse(s.responseInstructions(instructions)); err != nil {
		s.log.Warn("Failed to request response", zap.Error(err))
	}
}

// actions carry out failsafe timer fires.
type actions struct{ s *Session }

func (a actions) Reprompt(question string) {
	a.s.arbiter.Prompt([]string{fmt.Sprintf("The caller has not answered. Repeat your last question word for word: %q", question)})
}

func (a actions) SayGoodbye() {
	a.s.arbiter.Prompt([]string{goodbyeInstruction(a.s.cfg.CompanyName)})
}

func (a actions) ForceEnd(reason string) {
	a.s.forceEnd(reason)
}

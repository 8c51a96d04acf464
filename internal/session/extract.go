package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/internal/booking"
	"github.com/troikatech/cab-voice-agent/internal/disambig"
	"github.com/troikatech/cab-voice-agent/internal/fare"
	"github.com/troikatech/cab-voice-agent/pkg/metrics"
)

// extractJob is one booking update: an accepted transcript, or a delta
// supplied directly by modify_booking. Jobs run one at a time in arrival
// order, and a job holds the queue until its done callback has run, fare
// quote included.
type extractJob struct {
	text  string
	delta *booking.Delta
	done  func(instructions []string)
}

func (s *Session) enqueueExtraction(job extractJob) {
	s.jobs = append(s.jobs, job)
	s.nextExtraction()
}

func (s *Session) nextExtraction() {
	if s.extracting || len(s.jobs) == 0 || s.ended {
		return
	}
	job := s.jobs[0]
	s.jobs = s.jobs[1:]
	s.extracting = true

	finish := func(instructions []string) {
		s.extracting = false
		job.done(instructions)
		s.nextExtraction()
	}

	// While a question is open the reply is matched against it and nothing
	// else.
	if s.pending != nil && job.delta == nil {
		s.resolvePending(job.text, finish)
		return
	}

	in := booking.Input{
		Transcript:     job.text,
		AgentUtterance: s.lastAgentLine,
		Booking:        s.booking,
		Profile:        s.profileCopy(),
	}
	pipeline := s.deps.Pipeline
	s.async(func() {
		var res *booking.Result
		var err error
		if job.delta != nil {
			res = pipeline.Verify(s.ctx, in, *job.delta)
		} else {
			res, err = pipeline.Evaluate(s.ctx, in)
		}
		s.post(func() { s.applyExtraction(res, err, finish) })
	})
}

func (s *Session) profileCopy() booking.Profile {
	p := s.profile
	p.History = append([]string(nil), s.profile.History...)
	p.Aliases = make(map[string]string, len(s.profile.Aliases))
	for k, v := range s.profile.Aliases {
		p.Aliases[k] = v
	}
	return p
}

func (s *Session) applyExtraction(res *booking.Result, err error, done func([]string)) {
	if s.ended {
		return
	}
	if err != nil {
		s.log.Warn("Booking extraction failed", zap.Error(err))
		done(nil)
		return
	}

	out := s.booking.Apply(res, s.cfg.MaxClarifications)
	if out.CallerName != "" {
		s.profile.Name = out.CallerName
		s.awaitingName = false
	}
	instructions := out.Instructions()

	if len(out.Ambiguities) > 0 && s.pending == nil {
		s.openPending(out.Ambiguities[0])
		instructions = append(instructions, s.pending.Prompt())
	}
	if out.Affirmation != nil && *out.Affirmation && s.phase == Confirming && s.highFarePending() {
		s.booking.HighFareVerified = true
		instructions = append(instructions, "The caller has accepted the fare.")
	}
	if len(out.Changed) > 0 {
		s.log.Debug("Booking updated", zap.Any("fields", out.Changed))
	}
	s.afterBookingChange(len(out.Changed) > 0, instructions, done)
}

func (s *Session) openPending(a booking.Ambiguity) {
	s.pending = disambig.New(a)
	metrics.Inc(metrics.Disambiguations, "opened")
	s.log.Info("Disambiguation opened",
		zap.String("field", string(a.Field)),
		zap.Strings("areas", s.pending.Areas()))
	s.storeInfo()
}

// resolvePending matches the caller's reply against the open question. No
// match offers the same candidates again.
func (s *Session) resolvePending(reply string, done func([]string)) {
	p := s.pending
	c, ok := p.Resolve(&s.booking, reply)
	if !ok {
		metrics.Inc(metrics.Disambiguations, "reprompted")
		s.publish()
		done([]string{p.Prompt()})
		return
	}

	metrics.Inc(metrics.Disambiguations, "resolved")
	s.pending = nil
	s.storeInfo()
	s.log.Info("Disambiguation resolved",
		zap.String("field", string(p.Field)),
		zap.String("area", c.Label()))
	s.afterBookingChange(true, []string{
		fmt.Sprintf("The %s is %s. Do not ask about it again.", fieldLabel(p.Field), c.Formatted),
	}, done)
}

// afterBookingChange moves the phase to match the booking and, on reaching
// confirmation, prices the trip before the response is requested.
func (s *Session) afterBookingChange(changed bool, instructions []string, done func([]string)) {
	if s.phase == Greeting && !s.closing {
		s.setPhase(Collecting)
	}
	s.publish()
	if s.pending != nil || s.closing {
		done(instructions)
		return
	}
	if changed && s.phase == Booked && s.bookingID != "" {
		s.modifying = true
	}

	if !s.booking.Complete() {
		if changed && (s.phase == Confirming || s.phase == Booked) {
			s.quote = nil
			s.setPhase(Collecting)
		}
		if s.phase == Collecting {
			if missing := s.booking.Missing(); len(missing) > 0 {
				instructions = append(instructions, stillNeeded(missing))
			}
		}
		done(instructions)
		return
	}

	switch {
	case s.phase == Collecting:
	case changed && (s.phase == Confirming || s.phase == Booked):
	default:
		done(instructions)
		return
	}
	s.requestQuote(instructions, done)
}

func (s *Session) requestQuote(instructions []string, done func([]string)) {
	if s.deps.Fares == nil {
		s.enterConfirming(nil, instructions, done)
		return
	}
	req := fare.Request{
		Pickup:      s.booking.Pickup.Value,
		Destination: s.booking.Destination.Value,
		Passengers:  s.booking.PassengerCount(),
		PickupTime:  s.booking.PickupTime.Value,
		VehicleType: s.booking.VehicleType.Value,
	}
	quoter := s.deps.Fares
	s.async(func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.CollaboratorTimeout)
		defer cancel()
		q, err := quoter.Quote(ctx, req)
		s.post(func() {
			if s.ended {
				return
			}
			s.applyQuote(q, err, instructions, done)
		})
	})
}

func (s *Session) applyQuote(q *fare.Quote, err error, instructions []string, done func([]string)) {
	if err != nil {
		s.log.Warn("Fare quote failed", zap.Error(err))
		s.enterConfirming(nil, instructions, done)
		return
	}
	if q.Status == fare.StatusAmbiguous {
		name := booking.FieldName(q.Ambiguity.Field)
		// An area the caller already settled is not asked about again.
		if f := s.booking.Field(name); f != nil && name.IsAddress() && !f.AreaResolved {
			s.openPending(booking.Ambiguity{Field: name, Road: q.Ambiguity.Road, Candidates: q.Ambiguity.Candidates})
			s.publish()
			done(append(instructions, s.pending.Prompt()))
			return
		}
		s.enterConfirming(nil, instructions, done)
		return
	}
	s.enterConfirming(q, instructions, done)
}

func (s *Session) enterConfirming(q *fare.Quote, instructions []string, done func([]string)) {
	s.quote = q
	s.setPhase(Confirming)
	instructions = append(instructions, s.summaryInstruction())
	done(instructions)
}

func (s *Session) highFarePending() bool {
	return s.quote != nil && s.cfg.HighFareThreshold > 0 &&
		s.quote.Fare >= s.cfg.HighFareThreshold && !s.booking.HighFareVerified
}

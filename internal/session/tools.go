package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/internal/booking"
	"github.com/troikatech/cab-voice-agent/internal/realtime"
	"github.com/troikatech/cab-voice-agent/internal/store"
	"github.com/troikatech/cab-voice-agent/pkg/metrics"
	"github.com/troikatech/cab-voice-agent/pkg/otel"
)

// ErrNotVerified refuses a booking that is not ready to dispatch.
var ErrNotVerified = errors.New("booking is not verified")

const (
	toolBook    = "book_taxi"
	toolCancel  = "cancel_booking"
	toolModify  = "modify_booking"
	toolName    = "save_name"
	toolAlias   = "save_address_alias"
	toolNearby  = "find_nearby"
	toolEndCall = "end_call"
	nearbyLimit = 3
)

func str(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

// Tools declares the functions the model may call.
func Tools() []realtime.Tool {
	return []realtime.Tool{
		realtime.FunctionTool(toolBook,
			"Book the taxi. Only after the caller has confirmed the full summary and fare.",
			map[string]interface{}{}),
		realtime.FunctionTool(toolCancel,
			"Cancel the caller's booking made on this call.",
			map[string]interface{}{"reason": str("Why the caller is cancelling")}),
		realtime.FunctionTool(toolModify,
			"Change details of the booking. Pass only the fields the caller wants changed, exactly as said.",
			map[string]interface{}{
				"pickup":       str("New pickup address as spoken"),
				"destination":  str("New destination as spoken"),
				"passengers":   map[string]interface{}{"type": "integer", "minimum": 1},
				"pickup_time":  str("ASAP or an RFC 3339 time"),
				"vehicle_type": str("saloon, estate, executive or minibus"),
				"luggage":      str("What the party is carrying"),
			}),
		realtime.FunctionTool(toolName,
			"Remember the caller's name for future calls.",
			map[string]interface{}{"name": str("The caller's name")}, "name"),
		realtime.FunctionTool(toolAlias,
			"Save a named address such as home or work for the caller.",
			map[string]interface{}{
				"alias":   str("Alias such as home or work"),
				"address": str("The full address"),
			}, "alias", "address"),
		realtime.FunctionTool(toolNearby,
			"Find places such as stations or hospitals near an address.",
			map[string]interface{}{
				"category": str("What to look for, e.g. train station"),
				"near":     str("Address to search around; defaults to the pickup"),
			}, "category"),
		realtime.FunctionTool(toolEndCall,
			"End the call after saying goodbye.",
			map[string]interface{}{"reason": str("Why the call is ending")}),
	}
}

type toolOutput map[string]interface{}

func failure(msg string) toolOutput {
	return toolOutput{"success": false, "error": msg}
}

func (s *Session) handleTool(callID, name, arguments string) {
	if s.ended {
		return
	}
	if s.closing && name != toolEndCall {
		s.reply(callID, name, "rejected", failure("the call is ending"), nil)
		return
	}

	var args map[string]interface{}
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			s.log.Warn("Bad tool arguments", zap.String("tool", name), zap.Error(err))
			s.reply(callID, name, "bad_arguments", failure("invalid arguments"), nil)
			return
		}
	}
	s.log.Info("Tool called", zap.String("tool", name))

	switch name {
	case toolBook:
		s.bookTaxi(callID)
	case toolCancel:
		s.cancelBooking(callID, stringArg(args, "reason"))
	case toolModify:
		s.modifyBooking(callID, args)
	case toolName:
		s.saveName(callID, stringArg(args, "name"))
	case toolAlias:
		s.saveAlias(callID, stringArg(args, "alias"), stringArg(args, "address"))
	case toolNearby:
		s.findNearby(callID, stringArg(args, "category"), stringArg(args, "near"))
	case toolEndCall:
		s.reply(callID, name, "ok", toolOutput{"success": true}, nil)
		s.forceEnd("agent_ended")
	default:
		s.reply(callID, name, "unknown", failure("unknown function "+name), nil)
	}
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

// reply returns a tool result and, unless the call is ending, asks for the
// response that speaks it.
func (s *Session) reply(callID, tool, outcome string, output toolOutput, instructions []string) {
	metrics.Inc(metrics.ToolCalls, tool+":"+outcome)
	if s.model == nil {
		return
	}
	if err := s.model.SendFunctionOutput(callID, output); err != nil {
		s.log.Warn("Failed to send tool result", zap.String("tool", tool), zap.Error(err))
	}
	if tool == toolEndCall || s.ended {
		return
	}
	s.arbiter.Prompt(instructions)
}

// runTool runs work off the loop under a span and a timeout, then hands its
// error to then on the loop.
func (s *Session) runTool(tool string, work func(ctx context.Context) error, then func(err error)) {
	s.async(func() {
		ctx, span := otel.StartToolSpan(s.ctx, s.id, tool)
		ctx, cancel := context.WithTimeout(ctx, s.cfg.CollaboratorTimeout)
		err := work(ctx)
		cancel()
		otel.EndSpan(span, err)
		s.post(func() {
			if s.ended {
				return
			}
			then(err)
		})
	})
}

// bookable reports why the booking cannot be dispatched, or nil.
func (s *Session) bookable() error {
	switch {
	case s.pending != nil:
		return fmt.Errorf("%w: %s area not settled", ErrNotVerified, fieldLabel(s.pending.Field))
	case !s.booking.Complete():
		return ErrNotVerified
	case s.phase != Confirming:
		return fmt.Errorf("%w: summary not confirmed", ErrNotVerified)
	case s.highFarePending():
		return fmt.Errorf("%w: high fare not accepted", ErrNotVerified)
	}
	return nil
}

func (s *Session) bookTaxi(callID string) {
	if s.dispatching {
		s.reply(callID, toolBook, "duplicate", failure("booking already in progress"), nil)
		return
	}
	if err := s.bookable(); err != nil {
		s.log.Warn("Booking refused", zap.Error(err))
		instr := []string{"The booking was not made. Tell the caller what is still needed."}
		if missing := s.booking.Missing(); len(missing) > 0 {
			instr = append(instr, stillNeeded(missing))
		}
		if s.highFarePending() {
			instr = append(instr, "Ask the caller to confirm they accept the fare of "+s.quote.Spoken()+".")
		}
		s.reply(callID, toolBook, "refused", failure(err.Error()), instr)
		return
	}

	b := &store.Booking{
		CallID:      s.id,
		Phone:       s.phone,
		CallerName:  s.profile.Name,
		Pickup:      s.booking.Pickup.Value,
		Destination: s.booking.Destination.Value,
		Passengers:  s.booking.PassengerCount(),
		PickupTime:  s.booking.PickupTime.Value,
		VehicleType: s.booking.VehicleType.Value,
		Luggage:     s.booking.Luggage.Value,
	}
	if s.quote != nil {
		b.Fare = s.quote.Fare
		b.Miles = s.quote.Miles
	}
	update := s.modifying && s.bookingID != ""
	if update {
		b.ID = s.bookingID
		b.Reference = s.bookingRef
	}

	st := s.deps.Store
	s.dispatching = true
	s.runTool(toolBook, func(ctx context.Context) error {
		if st == nil {
			return errors.New("no booking store")
		}
		action := store.ActionBook
		if update {
			action = store.ActionModify
			if err := st.UpdateBooking(ctx, b); err != nil {
				return err
			}
		} else if err := st.CreateBooking(ctx, b); err != nil {
			return err
		}
		if err := st.RememberAddresses(ctx, b.Phone, b.ID, b.Pickup, b.Destination); err != nil {
			s.log.Warn("Failed to remember addresses", zap.Error(err))
		}
		if err := st.Audit(ctx, b.CallID, action, "booking", b.ID, map[string]interface{}{"fare": b.Fare}); err != nil {
			s.log.Warn("Failed to write audit entry", zap.Error(err))
		}
		return nil
	}, func(err error) {
		s.dispatching = false
		if err != nil {
			s.log.Error("Failed to save booking", zap.Error(err))
			s.reply(callID, toolBook, "error", failure("booking system unavailable"),
				[]string{"The booking could not be saved. Apologise and offer to try again."})
			return
		}
		s.bookingID = b.ID
		s.bookingRef = b.Reference
		s.modifying = false
		s.setPhase(Booked)
		kind := OutBookingConfirmed
		if update {
			kind = OutBookingModified
		}
		s.send(Outbound{Kind: kind, CallID: s.id, Booking: b})
		s.log.Info("Booking saved", zap.String("booking_id", b.ID), zap.String("reference", b.Reference), zap.Bool("modified", update))
		s.reply(callID, toolBook, "ok", toolOutput{"success": true, "reference": b.Reference},
			[]string{fmt.Sprintf("The booking is made. Give the caller the reference %s and ask if there is anything else.", spell(b.Reference))})
	})
}

// spell separates reference characters so they are read one by one.
func spell(ref string) string {
	return strings.Join(strings.Split(ref, ""), " ")
}

func (s *Session) cancelBooking(callID, reason string) {
	id := s.bookingID
	if id == "" {
		s.booking = booking.KnownBooking{}
		s.quote = nil
		s.pending = nil
		if s.phase == Confirming {
			s.setPhase(Collecting)
		}
		s.storeInfo()
		s.publish()
		s.reply(callID, toolCancel, "nothing_booked", toolOutput{"success": true, "booked": false},
			[]string{"Nothing had been booked yet. Tell the caller the request is cancelled and ask if there is anything else."})
		return
	}

	st := s.deps.Store
	s.runTool(toolCancel, func(ctx context.Context) error {
		if st == nil {
			return errors.New("no booking store")
		}
		if err := st.CancelBooking(ctx, id); err != nil {
			return err
		}
		if err := st.Audit(ctx, s.id, store.ActionCancel, "booking", id, map[string]interface{}{"reason": reason}); err != nil {
			s.log.Warn("Failed to write audit entry", zap.Error(err))
		}
		return nil
	}, func(err error) {
		if err != nil {
			s.log.Error("Failed to cancel booking", zap.String("booking_id", id), zap.Error(err))
			s.reply(callID, toolCancel, "error", failure("booking system unavailable"),
				[]string{"The booking could not be cancelled. Apologise and offer to try again."})
			return
		}
		ref := s.bookingRef
		s.bookingID, s.bookingRef, s.modifying = "", "", false
		s.booking = booking.KnownBooking{}
		s.quote = nil
		s.setPhase(Collecting)
		s.send(Outbound{Kind: OutBookingCancelled, CallID: s.id, Reason: reason})
		s.reply(callID, toolCancel, "ok", toolOutput{"success": true, "reference": ref},
			[]string{"Confirm the booking is cancelled and ask if there is anything else."})
	})
}

// modifyBooking runs the arguments through the same verification as speech.
func (s *Session) modifyBooking(callID string, args map[string]interface{}) {
	d := deltaFromArgs(args)
	if d.Empty() {
		s.reply(callID, toolModify, "empty", failure("no changes given"),
			[]string{"Ask the caller what they would like to change."})
		return
	}
	s.enqueueExtraction(extractJob{
		delta: &d,
		done: func(instructions []string) {
			s.reply(callID, toolModify, "ok", toolOutput{"success": true, "state": s.State()}, instructions)
		},
	})
}

func deltaFromArgs(args map[string]interface{}) booking.Delta {
	var d booking.Delta
	opt := func(key string) *string {
		if v := stringArg(args, key); v != "" {
			return &v
		}
		return nil
	}
	d.Pickup = opt("pickup")
	d.Destination = opt("destination")
	d.PickupTime = opt("pickup_time")
	d.VehicleType = opt("vehicle_type")
	d.Luggage = opt("luggage")
	if n, ok := args["passengers"].(float64); ok && n >= 1 {
		p := int(n)
		d.Passengers = &p
	}
	return d
}

func (s *Session) saveName(callID, name string) {
	if name == "" {
		s.reply(callID, toolName, "empty", failure("no name given"), nil)
		return
	}
	s.profile.Name = name
	s.awaitingName = false
	phone := s.phone
	st := s.deps.Store
	s.runTool(toolName, func(ctx context.Context) error {
		if st == nil || phone == "" {
			return nil
		}
		if err := st.SaveName(ctx, phone, name); err != nil {
			return err
		}
		return st.Audit(ctx, s.id, store.ActionName, "caller", phone, nil)
	}, func(err error) {
		if err != nil {
			s.log.Warn("Failed to save caller name", zap.Error(err))
		}
		s.reply(callID, toolName, "ok", toolOutput{"success": true}, nil)
	})
}

func (s *Session) saveAlias(callID, alias, addr string) {
	if alias == "" || addr == "" || s.phone == "" {
		s.reply(callID, toolAlias, "rejected", failure("alias, address and caller number are required"), nil)
		return
	}
	phone := s.phone
	st := s.deps.Store
	s.runTool(toolAlias, func(ctx context.Context) error {
		if st == nil {
			return errors.New("no caller store")
		}
		if err := st.SaveAlias(ctx, phone, alias, addr); err != nil {
			return err
		}
		return st.Audit(ctx, s.id, store.ActionAlias, "caller", phone, map[string]interface{}{"alias": alias})
	}, func(err error) {
		if err != nil {
			s.log.Warn("Failed to save alias", zap.String("alias", alias), zap.Error(err))
			s.reply(callID, toolAlias, "error", failure("could not save the address"), nil)
			return
		}
		if s.profile.Aliases == nil {
			s.profile.Aliases = make(map[string]string)
		}
		s.profile.Aliases[alias] = addr
		s.reply(callID, toolAlias, "ok", toolOutput{"success": true}, nil)
	})
}

func (s *Session) findNearby(callID, category, near string) {
	if near == "" {
		near = s.booking.Pickup.Value
	}
	if category == "" || near == "" || s.deps.Resolver == nil {
		s.reply(callID, toolNearby, "rejected", failure("need a category and an address to search near"), nil)
		return
	}
	resolver := s.deps.Resolver
	var places []string
	s.runTool(toolNearby, func(ctx context.Context) error {
		found, err := resolver.Nearby(ctx, near, category)
		if err != nil {
			return err
		}
		for i, c := range found {
			if i == nearbyLimit {
				break
			}
			places = append(places, c.Formatted)
		}
		return nil
	}, func(err error) {
		if err != nil {
			s.log.Warn("Nearby search failed", zap.Error(err))
			s.reply(callID, toolNearby, "error", failure("search unavailable"), nil)
			return
		}
		s.reply(callID, toolNearby, "ok", toolOutput{"success": true, "places": places}, nil)
	})
}

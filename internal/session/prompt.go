package session

import (
	"fmt"
	"strings"

	"github.com/troikatech/cab-voice-agent/internal/booking"
	"github.com/troikatech/cab-voice-agent/internal/realtime"
)

func systemInstructions(company string) string {
	if company == "" {
		company = "the taxi company"
	}
	return fmt.Sprintf(`You are the telephone booking agent for %s. Speak British English, warmly and briefly. One question at a time.

Collect the pickup address, the destination, the number of passengers and the pickup time. Ask about luggage for groups of more than four.

Rules:
- Never invent, correct or complete an address. Repeat addresses exactly as the caller gave them.
- When told an address could not be verified, ask only for the postcode, area or a nearby landmark.
- Never ask about anything the booking state below marks as verified.
- Read back the full booking and the fare before booking, and book only after the caller says yes.
- Call book_taxi only after the caller has confirmed the summary.
- When the caller is finished, say goodbye and call end_call.`, company)
}

func greetingInstruction(company, name string) string {
	if company == "" {
		company = "the taxi company"
	}
	if name != "" {
		return fmt.Sprintf("Greet the caller by name (%s), say this is %s and ask where they would like to be picked up.", name, company)
	}
	return fmt.Sprintf("Greet the caller, say this is %s and ask where they would like to be picked up.", company)
}

func goodbyeInstruction(company string) string {
	if company == "" {
		return "Thank the caller and say goodbye, then call end_call."
	}
	return fmt.Sprintf("Thank the caller for calling %s and say goodbye, then call end_call.", company)
}

func fieldLabel(name booking.FieldName) string {
	return strings.ReplaceAll(string(name), "_", " ")
}

func stillNeeded(missing []booking.FieldName) string {
	labels := make([]string, len(missing))
	for i, name := range missing {
		labels[i] = fieldLabel(name)
	}
	return "Still needed: " + strings.Join(labels, ", ") + ". Ask for the next one."
}

// summaryInstruction asks the agent to read back the booking and the fare.
func (s *Session) summaryInstruction() string {
	b := &s.booking
	var sb strings.Builder
	fmt.Fprintf(&sb, "Read back the booking: pickup %s, destination %s, %s passenger(s), pickup time %s",
		b.Pickup.Value, b.Destination.Value, b.Passengers.Value, spokenTime(b.PickupTime.Value))
	if b.VehicleType.Value != "" {
		fmt.Fprintf(&sb, ", vehicle %s", b.VehicleType.Value)
	}
	if b.Luggage.Value != "" {
		fmt.Fprintf(&sb, ", luggage %s", b.Luggage.Value)
	}
	sb.WriteString(".")
	if s.quote != nil {
		fmt.Fprintf(&sb, " The fare is %s", s.quote.Spoken())
		if s.quote.Miles > 0 {
			fmt.Fprintf(&sb, " for about %.1f miles", s.quote.Miles)
		}
		sb.WriteString(".")
		if s.highFarePending() {
			sb.WriteString(" This is a high fare. Ask the caller to confirm they accept it before booking.")
		}
	}
	if s.modifying {
		sb.WriteString(" This changes their existing booking.")
	}
	sb.WriteString(" Ask the caller to confirm.")
	return sb.String()
}

func spokenTime(v string) string {
	if v == booking.ASAP {
		return "as soon as possible"
	}
	return v
}

// stateSummary is the booking as the agent must treat it for the next
// response.
func (s *Session) stateSummary() string {
	var sb strings.Builder
	sb.WriteString("Booking state:")
	for _, name := range []booking.FieldName{booking.Pickup, booking.Destination, booking.Passengers, booking.PickupTime, booking.VehicleType, booking.Luggage} {
		f := s.booking.Field(name)
		switch {
		case f.Value == "":
			fmt.Fprintf(&sb, "\n- %s: not given", fieldLabel(name))
		case f.Verified:
			fmt.Fprintf(&sb, "\n- %s: %s (verified, do not ask again)", fieldLabel(name), f.Value)
		default:
			fmt.Fprintf(&sb, "\n- %s: %s (unverified)", fieldLabel(name), f.Value)
		}
	}
	if s.profile.Name != "" {
		fmt.Fprintf(&sb, "\nCaller name: %s", s.profile.Name)
	}
	if s.bookingRef != "" {
		fmt.Fprintf(&sb, "\nBooking reference: %s", s.bookingRef)
	}
	fmt.Fprintf(&sb, "\nCall stage: %s", s.State())
	return sb.String()
}

// responseInstructions composes per-response instructions. They replace the
// session instructions for that response, so the base prompt is repeated.
func (s *Session) responseInstructions(extra []string) string {
	parts := []string{systemInstructions(s.cfg.CompanyName), s.stateSummary()}
	if len(extra) > 0 {
		parts = append(parts, "Do this now:\n- "+strings.Join(extra, "\n- "))
	}
	return strings.Join(parts, "\n\n")
}

func (s *Session) sessionConfig() realtime.SessionConfig {
	return realtime.SessionConfig{
		Instructions:       systemInstructions(s.cfg.CompanyName),
		Voice:              s.cfg.Voice,
		TranscriptionModel: s.cfg.TranscriptionModel,
		VADThreshold:       s.cfg.VADThreshold,
		VADSilenceMs:       s.cfg.VADSilenceMs,
		Tools:              Tools(),
	}
}

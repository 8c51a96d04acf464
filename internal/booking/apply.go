package booking

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/troikatech/cab-voice-agent/internal/address"
)

type ClarifyKind int

const (
	// ClarifyArea asks for a postcode, area or landmark. Never the street.
	ClarifyArea ClarifyKind = iota
	// ClarifySuggestion asks the caller to confirm a history address.
	ClarifySuggestion
)

type Clarification struct {
	Field     FieldName
	Kind      ClarifyKind
	Spoken    string
	Suggested string
}

// Ambiguity is an address that matched several areas.
type Ambiguity struct {
	Field      FieldName
	Road       string
	Candidates []address.Candidate
}

// Outcome is what applying a Result did to the booking.
type Outcome struct {
	Changed        []FieldName
	Clarifications []Clarification
	Ambiguities    []Ambiguity
	// Affirmation is the caller's yes/no, unless it was spent confirming a
	// suggested address.
	Affirmation *bool
	CallerName  string
	// LuggagePrompt is set when a large party has not said what they carry.
	LuggagePrompt bool
}

// Apply folds a pipeline result into the booking. maxClarifications bounds
// how often one field is asked about before it is accepted as given.
func (b *KnownBooking) Apply(r *Result, maxClarifications int) Outcome {
	var out Outcome
	d := r.Delta
	out.Affirmation = d.Affirmation
	if d.CallerName != nil {
		out.CallerName = strings.TrimSpace(*d.CallerName)
	}

	targeted := make(map[FieldName]bool)
	for _, v := range r.Verifications {
		targeted[v.Field] = true
	}

	// A yes or no answers an outstanding suggestion before anything else.
	if d.Affirmation != nil {
		for _, name := range []FieldName{Pickup, Destination} {
			f := b.Field(name)
			if f.Suggested == "" || targeted[name] {
				continue
			}
			out.Affirmation = nil
			if *d.Affirmation {
				suggested := f.Suggested
				if b.Set(name, suggested) {
					out.Changed = append(out.Changed, name)
				}
				b.markVerified(name, ByConfirmation)
				f.Suggested = ""
				continue
			}
			f.Suggested = ""
			b.clarifyOrExhaust(name, maxClarifications, &out)
		}
	}

	if d.Passengers != nil && *d.Passengers >= 1 {
		b.assign(Passengers, strconv.Itoa(*d.Passengers), &out)
	}
	if d.PickupTime != nil {
		if t, ok := normalizePickupTime(*d.PickupTime); ok {
			b.assign(PickupTime, t, &out)
		}
	}
	if d.VehicleType != nil && strings.TrimSpace(*d.VehicleType) != "" {
		b.assign(VehicleType, strings.ToLower(strings.TrimSpace(*d.VehicleType)), &out)
	}
	if d.Luggage != nil && strings.TrimSpace(*d.Luggage) != "" {
		b.assign(Luggage, *d.Luggage, &out)
	}

	for _, v := range r.Verifications {
		f := b.Field(v.Field)
		changed := b.Set(v.Field, v.Value)
		if !changed && f.Verified {
			continue
		}
		if changed {
			out.Changed = append(out.Changed, v.Field)
		}

		switch v.Status {
		case Verified:
			f.Verified = true
			f.VerifiedBy = v.By
			f.Place = v.Place
		case Suggest:
			if f.Exhausted || f.ClarificationAttempts >= maxClarifications {
				b.exhaust(v.Field)
				continue
			}
			f.Suggested = v.Suggested
			f.ClarificationAttempts++
			f.LastAddressAsked = f.Value
			out.Clarifications = append(out.Clarifications, Clarification{
				Field: v.Field, Kind: ClarifySuggestion, Spoken: v.Spoken, Suggested: v.Suggested,
			})
		case Ambiguous:
			if f.Exhausted {
				b.exhaust(v.Field)
				continue
			}
			out.Ambiguities = append(out.Ambiguities, Ambiguity{Field: v.Field, Road: v.Road, Candidates: v.Candidates})
		default:
			b.clarifyOrExhaust(v.Field, maxClarifications, &out)
		}
	}

	out.LuggagePrompt = b.PassengerCount() > 4 && b.Luggage.Value == ""
	return out
}

// assign sets a field with no external verification path; such values are
// verified as soon as they are assigned.
func (b *KnownBooking) assign(name FieldName, value string, out *Outcome) {
	if b.Set(name, value) {
		out.Changed = append(out.Changed, name)
	}
	b.markVerified(name, ByAssignment)
}

func (b *KnownBooking) clarifyOrExhaust(name FieldName, limit int, out *Outcome) {
	f := b.Field(name)
	if f.Exhausted || f.ClarificationAttempts >= limit {
		b.exhaust(name)
		return
	}
	f.ClarificationAttempts++
	f.LastAddressAsked = f.Value
	out.Clarifications = append(out.Clarifications, Clarification{Field: name, Kind: ClarifyArea, Spoken: f.Value})
}

func (b *KnownBooking) exhaust(name FieldName) {
	f := b.Field(name)
	f.Exhausted = true
	f.Suggested = ""
	b.markVerified(name, ByExhaustion)
}

// Instructions renders the outcome as system instructions for the next
// agent response.
func (o Outcome) Instructions() []string {
	var out []string
	for _, c := range o.Clarifications {
		label := strings.ReplaceAll(string(c.Field), "_", " ")
		switch c.Kind {
		case ClarifySuggestion:
			out = append(out, fmt.Sprintf("Ask the caller to confirm the %s is %s. Do not book until they confirm.", label, c.Suggested))
		default:
			out = append(out, fmt.Sprintf("The %s %q could not be verified. Ask only for the postcode, area or a nearby landmark. Do not ask for the street name again.", label, c.Spoken))
		}
	}
	if o.LuggagePrompt {
		out = append(out, "Ask about luggage before confirming.")
	}
	return out
}

// Package booking holds the per-call booking record and the pipeline that
// fills and verifies it from caller speech.
package booking

import (
	"strconv"
	"strings"
	"time"

	"github.com/troikatech/cab-voice-agent/internal/address"
)

type FieldName string

const (
	Pickup      FieldName = "pickup"
	Destination FieldName = "destination"
	Passengers  FieldName = "passengers"
	PickupTime  FieldName = "pickup_time"
	VehicleType FieldName = "vehicle_type"
	Luggage     FieldName = "luggage"
)

// Required fields must all be present and verified before confirming.
var Required = []FieldName{Pickup, Destination, Passengers, PickupTime}

func (n FieldName) IsAddress() bool {
	return n == Pickup || n == Destination
}

// ASAP is the pickup time for "now".
const ASAP = "ASAP"

// How a field became verified.
const (
	ByHistory        = "history"
	ByAlias          = "alias"
	ByResolver       = "resolver"
	ByCorrection     = "correction"
	ByDisambiguation = "disambiguation"
	ByConfirmation   = "confirmation"
	ByAssignment     = "assignment"
	ByExhaustion     = "exhaustion"
)

// Field is one booking value and its verification state.
type Field struct {
	Value    string `json:"value,omitempty"`
	Verified bool   `json:"verified"`
	// VerifiedBy records which path verified the current value.
	VerifiedBy string `json:"verified_by,omitempty"`
	// Exhausted is sticky: once clarification attempts run out the field is
	// never asked about again.
	Exhausted             bool   `json:"exhausted,omitempty"`
	ClarificationAttempts int    `json:"clarification_attempts,omitempty"`
	LastAddressAsked      string `json:"last_address_asked,omitempty"`
	AreaResolved          bool   `json:"area_resolved,omitempty"`
	// Suggested holds a history address awaiting the caller's confirmation.
	Suggested string             `json:"suggested,omitempty"`
	Place     *address.Candidate `json:"place,omitempty"`
}

// KnownBooking is everything the call has established so far. It is owned by
// one session and only mutated on that session's loop.
type KnownBooking struct {
	Pickup      Field `json:"pickup"`
	Destination Field `json:"destination"`
	Passengers  Field `json:"passengers"`
	PickupTime  Field `json:"pickup_time"`
	VehicleType Field `json:"vehicle_type"`
	Luggage     Field `json:"luggage"`

	HighFareVerified bool `json:"high_fare_verified"`
}

// Field returns the named field, or nil.
func (b *KnownBooking) Field(name FieldName) *Field {
	switch name {
	case Pickup:
		return &b.Pickup
	case Destination:
		return &b.Destination
	case Passengers:
		return &b.Passengers
	case PickupTime:
		return &b.PickupTime
	case VehicleType:
		return &b.VehicleType
	case Luggage:
		return &b.Luggage
	}
	return nil
}

// Set assigns value to a field. A different value always leaves the field
// unverified and revokes any high-fare verification. It reports whether the
// value changed.
func (b *KnownBooking) Set(name FieldName, value string) bool {
	f := b.Field(name)
	if f == nil {
		return false
	}
	value = strings.TrimSpace(value)
	if sameValue(f.Value, value) {
		return false
	}
	f.Value = value
	f.Verified = false
	f.VerifiedBy = ""
	f.Suggested = ""
	f.AreaResolved = false
	f.Place = nil
	b.HighFareVerified = false
	return true
}

func (b *KnownBooking) markVerified(name FieldName, by string) {
	if f := b.Field(name); f != nil && f.Value != "" {
		f.Verified = true
		f.VerifiedBy = by
	}
}

// ResolveArea applies a disambiguated candidate to an address field.
func (b *KnownBooking) ResolveArea(name FieldName, c address.Candidate) {
	b.Set(name, c.Formatted)
	f := b.Field(name)
	f.Verified = true
	f.VerifiedBy = ByDisambiguation
	f.AreaResolved = true
	f.Place = &c
}

// Missing lists required fields without a value.
func (b *KnownBooking) Missing() []FieldName {
	var out []FieldName
	for _, name := range Required {
		if b.Field(name).Value == "" {
			out = append(out, name)
		}
	}
	return out
}

// Unverified lists required fields that have a value but are not verified.
func (b *KnownBooking) Unverified() []FieldName {
	var out []FieldName
	for _, name := range Required {
		if f := b.Field(name); f.Value != "" && !f.Verified {
			out = append(out, name)
		}
	}
	return out
}

// Complete reports whether every required field is present and verified.
func (b *KnownBooking) Complete() bool {
	for _, name := range Required {
		if f := b.Field(name); f.Value == "" || !f.Verified {
			return false
		}
	}
	return true
}

func (b *KnownBooking) PassengerCount() int {
	n, err := strconv.Atoi(b.Passengers.Value)
	if err != nil {
		return 0
	}
	return n
}

// PickupAt returns the pickup time, or the zero time for ASAP.
func (b *KnownBooking) PickupAt() time.Time {
	t, err := time.Parse(time.RFC3339, b.PickupTime.Value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func sameValue(a, b string) bool {
	if a == b {
		return true
	}
	return address.Normalize(a) == address.Normalize(b) && address.Normalize(a) != ""
}

// normalizePickupTime accepts "ASAP"-like words and RFC 3339 timestamps.
func normalizePickupTime(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null":
		return "", false
	case "asap", "now", "right now", "immediately", "as soon as possible":
		return ASAP, true
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return t.Format(time.RFC3339), true
}

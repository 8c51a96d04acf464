package booking

import (
	"context"
	"strings"

	"github.com/troikatech/cab-voice-agent/internal/address"
)

// Delta is what one caller utterance proposes to change. Nil means "not
// mentioned".
type Delta struct {
	Pickup      *string `json:"pickup,omitempty"`
	Destination *string `json:"destination,omitempty"`
	Passengers  *int    `json:"passengers,omitempty"`
	PickupTime  *string `json:"pickup_time,omitempty"`
	VehicleType *string `json:"vehicle_type,omitempty"`
	Luggage     *string `json:"luggage,omitempty"`
	// Affirmation is the caller's yes (true) or no (false) to the agent's
	// last question.
	Affirmation *bool   `json:"affirmation,omitempty"`
	CallerName  *string `json:"caller_name,omitempty"`
}

func (d *Delta) address(name FieldName) *string {
	switch name {
	case Pickup:
		return d.Pickup
	case Destination:
		return d.Destination
	}
	return nil
}

// Empty reports whether the delta proposes nothing.
func (d *Delta) Empty() bool {
	return d.Pickup == nil && d.Destination == nil && d.Passengers == nil &&
		d.PickupTime == nil && d.VehicleType == nil && d.Luggage == nil &&
		d.Affirmation == nil && d.CallerName == nil
}

// ExtractRequest is the input to a structured extractor.
type ExtractRequest struct {
	Transcript     string
	AgentUtterance string
	Booking        KnownBooking
}

// Extractor proposes field values from one caller utterance.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (*Delta, error)
}

// Profile is the caller record the pipeline verifies against.
type Profile struct {
	Name    string
	Phone   string
	History []string
	Aliases map[string]string
}

// Alias expands a saved alias such as "home".
func (p Profile) Alias(s string) (string, bool) {
	key := address.Normalize(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "my "))
	for alias, addr := range p.Aliases {
		if address.Normalize(alias) == key && addr != "" {
			return addr, true
		}
	}
	return "", false
}

package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/troikatech/cab-voice-agent/pkg/ai"
)

const extractionPrompt = `You extract taxi booking details from one caller utterance.
Reply with a single JSON object using only these keys, and only for details the caller stated in THIS utterance:
  "pickup": string, the pickup address or place exactly as spoken
  "destination": string, the drop-off address or place exactly as spoken
  "passengers": integer
  "pickup_time": "ASAP" for now, otherwise an RFC 3339 timestamp
  "vehicle_type": one of "saloon", "estate", "mpv", "minibus", "wheelchair"
  "luggage": short description
  "affirmation": true if the caller agreed to the agent's question, false if they refused
  "caller_name": the caller's name if they gave it
Never guess. Never copy values from the current booking. Omit keys that were not mentioned.`

// AIExtractor proposes field deltas with a JSON-mode language model.
type AIExtractor struct {
	ai      *ai.Manager
	timeout time.Duration
	now     func() time.Time
}

func NewAIExtractor(manager *ai.Manager, timeout time.Duration) *AIExtractor {
	return &AIExtractor{ai: manager, timeout: timeout, now: time.Now}
}

func (e *AIExtractor) Extract(ctx context.Context, req ExtractRequest) (*Delta, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	current, err := json.Marshal(map[string]string{
		"pickup":       req.Booking.Pickup.Value,
		"destination":  req.Booking.Destination.Value,
		"passengers":   req.Booking.Passengers.Value,
		"pickup_time":  req.Booking.PickupTime.Value,
		"vehicle_type": req.Booking.VehicleType.Value,
		"luggage":      req.Booking.Luggage.Value,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal booking: %w", err)
	}

	user := fmt.Sprintf("Current time: %s\nCurrent booking: %s\nAgent just said: %q\nCaller said: %q",
		e.now().Format(time.RFC3339), current, req.AgentUtterance, req.Transcript)

	resp, err := e.ai.CompleteJSON(ctx, &ai.JSONRequest{System: extractionPrompt, User: user})
	if err != nil {
		return nil, err
	}
	return ParseDelta(resp.Content)
}

// ParseDelta decodes an extractor reply. Models are loose with types, so
// numbers may arrive as strings and empty strings mean "not mentioned".
func ParseDelta(content string) (*Delta, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}

	d := &Delta{
		Pickup:      stringField(raw, "pickup"),
		Destination: stringField(raw, "destination"),
		PickupTime:  stringField(raw, "pickup_time"),
		VehicleType: stringField(raw, "vehicle_type"),
		Luggage:     stringField(raw, "luggage"),
		CallerName:  stringField(raw, "caller_name"),
	}

	switch v := raw["passengers"].(type) {
	case float64:
		n := int(v)
		d.Passengers = &n
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			d.Passengers = &n
		}
	}

	switch v := raw["affirmation"].(type) {
	case bool:
		d.Affirmation = &v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			d.Affirmation = &b
		}
	}
	return d, nil
}

func stringField(raw map[string]interface{}, key string) *string {
	s, ok := raw[key].(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

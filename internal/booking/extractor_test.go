package booking

import "testing"

func TestParseDelta(t *testing.T) {
	d, err := ParseDelta("```json\n{\"pickup\":\"52A David Road\",\"destination\":\"\",\"passengers\":\"3\",\"affirmation\":true,\"pickup_time\":null}\n```")
	if err != nil {
		t.Fatalf("ParseDelta: %v", err)
	}
	if d.Pickup == nil || *d.Pickup != "52A David Road" {
		t.Errorf("pickup = %v", d.Pickup)
	}
	if d.Destination != nil {
		t.Errorf("empty destination should be omitted, got %q", *d.Destination)
	}
	if d.Passengers == nil || *d.Passengers != 3 {
		t.Errorf("passengers = %v", d.Passengers)
	}
	if d.Affirmation == nil || !*d.Affirmation {
		t.Errorf("affirmation = %v", d.Affirmation)
	}
	if d.PickupTime != nil {
		t.Errorf("null pickup_time should be omitted")
	}
}

func TestParseDeltaRejectsProse(t *testing.T) {
	if _, err := ParseDelta("The caller wants a taxi."); err == nil {
		t.Fatal("expected error")
	}
}

func TestNormalizePickupTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"now", ASAP, true},
		{"ASAP", ASAP, true},
		{"2026-03-01T18:30:00Z", "2026-03-01T18:30:00Z", true},
		{"half six", "", false},
	}
	for _, tt := range tests {
		got, ok := normalizePickupTime(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("normalizePickupTime(%q) = %q, %v", tt.in, got, ok)
		}
	}
}

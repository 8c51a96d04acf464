package booking

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/internal/address"
)

type fakeExtractor struct {
	delta *Delta
	err   error
}

func (f *fakeExtractor) Extract(ctx context.Context, req ExtractRequest) (*Delta, error) {
	return f.delta, f.err
}

type fakeResolver struct {
	results map[string]*address.Resolution
	err     error
	queries []address.Query
}

func (f *fakeResolver) Resolve(ctx context.Context, q address.Query) (*address.Resolution, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[q.Address]; ok {
		return r, nil
	}
	return &address.Resolution{Status: address.StatusNotFound}, nil
}

func (f *fakeResolver) Nearby(ctx context.Context, near, category string) ([]address.Candidate, error) {
	return nil, nil
}

func str(s string) *string { return &s }

func num(n int) *int { return &n }

func yes() *bool {
	b := true
	return &b
}

func no() *bool {
	b := false
	return &b
}

var schoolRoads = &address.Resolution{
	Status: address.StatusAmbiguous,
	Candidates: []address.Candidate{
		{Road: "School Road", Area: "Hall Green", City: "Birmingham", Formatted: "School Road, Hall Green, Birmingham"},
		{Road: "School Road", Area: "Solihull", City: "Solihull", Formatted: "School Road, Solihull"},
		{Road: "School Road", Area: "Coventry", City: "Coventry", Formatted: "School Road, Coventry"},
	},
}

func run(t *testing.T, p *Pipeline, b *KnownBooking, profile Profile, d Delta) Outcome {
	t.Helper()
	r := p.Verify(context.Background(), Input{Booking: *b, Profile: profile}, d)
	return b.Apply(r, 2)
}

func TestOneUtteranceCompletesBooking(t *testing.T) {
	resolver := &fakeResolver{results: map[string]*address.Resolution{
		"Coventry station": {
			Status:  address.StatusVerified,
			Quality: address.QualityPartial,
			Address: &address.Candidate{Formatted: "Coventry Railway Station, Station Square, Coventry"},
		},
	}}
	extractor := &fakeExtractor{delta: &Delta{
		Pickup:      str("52A David Road"),
		Destination: str("Coventry station"),
		Passengers:  num(2),
		PickupTime:  str("now"),
	}}
	p := NewPipeline(extractor, resolver, zap.NewNop())
	profile := Profile{History: []string{"52A David Road, Coventry"}}

	var b KnownBooking
	r, err := p.Evaluate(context.Background(), Input{Transcript: "from 52A David Road to Coventry station, two passengers, now", Profile: profile})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	out := b.Apply(r, 2)

	if !b.Complete() {
		t.Fatalf("booking not complete: missing %v unverified %v", b.Missing(), b.Unverified())
	}
	if len(out.Clarifications) != 0 || len(out.Ambiguities) != 0 {
		t.Fatalf("unexpected questions: %+v", out)
	}
	if b.Pickup.Value != "52A David Road, Coventry" || b.Pickup.VerifiedBy != ByHistory {
		t.Errorf("pickup = %+v", b.Pickup)
	}
	if b.PickupTime.Value != ASAP {
		t.Errorf("pickup time = %q", b.PickupTime.Value)
	}
	if len(resolver.queries) != 1 || resolver.queries[0].Near != "52A David Road" {
		t.Errorf("resolver queries = %+v", resolver.queries)
	}
}

func TestAmbiguousRoadOpensDisambiguation(t *testing.T) {
	resolver := &fakeResolver{results: map[string]*address.Resolution{"School Road": schoolRoads}}
	p := NewPipeline(&fakeExtractor{}, resolver, zap.NewNop())

	var b KnownBooking
	out := run(t, p, &b, Profile{}, Delta{Pickup: str("School Road")})

	if len(out.Ambiguities) != 1 {
		t.Fatalf("ambiguities = %+v", out.Ambiguities)
	}
	a := out.Ambiguities[0]
	if a.Field != Pickup || a.Road != "School Road" || len(a.Candidates) != 3 {
		t.Errorf("ambiguity = %+v", a)
	}
	if b.Pickup.Verified {
		t.Error("ambiguous pickup must stay unverified")
	}
}

func TestAmbiguityBrokenByOtherField(t *testing.T) {
	resolver := &fakeResolver{results: map[string]*address.Resolution{"School Road": schoolRoads}}
	p := NewPipeline(&fakeExtractor{}, resolver, zap.NewNop())

	b := KnownBooking{}
	b.Set(Destination, "Solihull Station")
	out := run(t, p, &b, Profile{}, Delta{Pickup: str("School Road")})

	if len(out.Ambiguities) != 0 {
		t.Fatalf("ambiguities = %+v", out.Ambiguities)
	}
	if !b.Pickup.Verified || b.Pickup.Value != "School Road, Solihull" {
		t.Errorf("pickup = %+v", b.Pickup)
	}
}

func TestSuggestedHouseNumberNeedsConfirmation(t *testing.T) {
	resolver := &fakeResolver{}
	p := NewPipeline(&fakeExtractor{}, resolver, zap.NewNop())
	profile := Profile{History: []string{"52A David Road"}}

	var b KnownBooking
	out := run(t, p, &b, profile, Delta{Pickup: str("5208 David Road")})

	if b.Pickup.Verified || b.Pickup.Value != "5208 David Road" {
		t.Fatalf("pickup silently substituted: %+v", b.Pickup)
	}
	if len(out.Clarifications) != 1 || out.Clarifications[0].Kind != ClarifySuggestion || out.Clarifications[0].Suggested != "52A David Road" {
		t.Fatalf("clarifications = %+v", out.Clarifications)
	}
	if len(resolver.queries) != 0 {
		t.Error("resolver consulted for a history suggestion")
	}

	out = run(t, p, &b, profile, Delta{Affirmation: yes()})
	if !b.Pickup.Verified || b.Pickup.Value != "52A David Road" || b.Pickup.VerifiedBy != ByConfirmation {
		t.Fatalf("pickup after yes = %+v", b.Pickup)
	}
	if out.Affirmation != nil {
		t.Error("affirmation should be spent on the suggestion")
	}
}

func TestRejectedSuggestionAsksForArea(t *testing.T) {
	p := NewPipeline(&fakeExtractor{}, &fakeResolver{}, zap.NewNop())
	profile := Profile{History: []string{"52A David Road"}}

	var b KnownBooking
	run(t, p, &b, profile, Delta{Pickup: str("5208 David Road")})
	out := run(t, p, &b, profile, Delta{Affirmation: no()})

	if b.Pickup.Suggested != "" || b.Pickup.Verified {
		t.Fatalf("pickup = %+v", b.Pickup)
	}
	if len(out.Clarifications) != 1 || out.Clarifications[0].Kind != ClarifyArea {
		t.Fatalf("clarifications = %+v", out.Clarifications)
	}
}

func TestUnsafeCorrectionLeavesFieldUnverified(t *testing.T) {
	resolver := &fakeResolver{results: map[string]*address.Resolution{
		"52 Davids Road": {
			Status:  address.StatusVerified,
			Quality: address.QualityCorrection,
			Address: &address.Candidate{Formatted: "53 Dover Road, Coventry"},
		},
		"14 Queens Rd": {
			Status:  address.StatusVerified,
			Quality: address.QualityCorrection,
			Address: &address.Candidate{Formatted: "14 Queens Road, Nuneaton"},
		},
	}}
	p := NewPipeline(&fakeExtractor{}, resolver, zap.NewNop())

	var b KnownBooking
	out := run(t, p, &b, Profile{}, Delta{Pickup: str("52 Davids Road"), Destination: str("14 Queens Rd")})

	if b.Pickup.Verified || b.Pickup.Value != "52 Davids Road" {
		t.Errorf("pickup = %+v", b.Pickup)
	}
	if !b.Destination.Verified || b.Destination.VerifiedBy != ByCorrection {
		t.Errorf("destination = %+v", b.Destination)
	}
	if len(out.Clarifications) != 1 || out.Clarifications[0].Field != Pickup {
		t.Fatalf("clarifications = %+v", out.Clarifications)
	}
	instr := strings.Join(out.Instructions(), " ")
	if !strings.Contains(instr, "Do not ask for the street name again") {
		t.Errorf("instructions = %q", instr)
	}
}

func TestClarificationBound(t *testing.T) {
	p := NewPipeline(&fakeExtractor{}, &fakeResolver{}, zap.NewNop())
	var b KnownBooking

	for i := 1; i <= 2; i++ {
		out := run(t, p, &b, Profile{}, Delta{Pickup: str("the big tree")})
		if len(out.Clarifications) != 1 {
			t.Fatalf("attempt %d: clarifications = %+v", i, out.Clarifications)
		}
		if b.Pickup.ClarificationAttempts != i {
			t.Fatalf("attempt %d: counter = %d", i, b.Pickup.ClarificationAttempts)
		}
	}

	out := run(t, p, &b, Profile{}, Delta{Pickup: str("the big tree")})
	if len(out.Clarifications) != 0 {
		t.Fatalf("asked again after the cap: %+v", out.Clarifications)
	}
	if !b.Pickup.Verified || !b.Pickup.Exhausted || b.Pickup.VerifiedBy != ByExhaustion {
		t.Fatalf("pickup = %+v", b.Pickup)
	}

	// A new value is still never asked about.
	out = run(t, p, &b, Profile{}, Delta{Pickup: str("the old mill")})
	if len(out.Clarifications) != 0 || !b.Pickup.Verified || b.Pickup.Value != "the old mill" {
		t.Fatalf("exhausted field asked again: %+v %+v", out.Clarifications, b.Pickup)
	}
}

func TestRepeatedAddressIsNotResolvedAgain(t *testing.T) {
	resolver := &fakeResolver{results: map[string]*address.Resolution{
		"12 Mill Lane, Kenilworth": {
			Status:  address.StatusVerified,
			Quality: address.QualityExact,
			Address: &address.Candidate{Formatted: "12 Mill Lane, Kenilworth"},
		},
	}}
	p := NewPipeline(&fakeExtractor{}, resolver, zap.NewNop())
	var b KnownBooking

	out := run(t, p, &b, Profile{}, Delta{Pickup: str("12 Mill Lane")})
	if len(out.Clarifications) != 1 || b.Pickup.LastAddressAsked != "12 Mill Lane" {
		t.Fatalf("first attempt: %+v %+v", out.Clarifications, b.Pickup)
	}
	if len(resolver.queries) != 1 {
		t.Fatalf("queries = %d, want 1", len(resolver.queries))
	}

	// The same words again: no new lookup, but the attempt still counts.
	out = run(t, p, &b, Profile{}, Delta{Pickup: str("12 mill lane")})
	if len(resolver.queries) != 1 {
		t.Errorf("repeated address re-resolved: %d queries", len(resolver.queries))
	}
	if len(out.Clarifications) != 1 || out.Clarifications[0].Kind != ClarifyArea {
		t.Errorf("repeat clarifications = %+v", out.Clarifications)
	}
	if b.Pickup.ClarificationAttempts != 2 || b.Pickup.Verified {
		t.Errorf("pickup after repeat = %+v", b.Pickup)
	}

	// A different address gets a full verification.
	out = run(t, p, &b, Profile{}, Delta{Pickup: str("12 Mill Lane, Kenilworth")})
	if len(resolver.queries) != 2 {
		t.Errorf("new address not resolved: %d queries", len(resolver.queries))
	}
	if !b.Pickup.Verified || b.Pickup.VerifiedBy != ByResolver || len(out.Clarifications) != 0 {
		t.Errorf("pickup after new address = %+v, clarifications %+v", b.Pickup, out.Clarifications)
	}
}

func TestVerificationOnlyLostOnValueChange(t *testing.T) {
	resolver := &fakeResolver{results: map[string]*address.Resolution{
		"Coventry station": {
			Status:  address.StatusVerified,
			Quality: address.QualityExact,
			Address: &address.Candidate{Formatted: "Coventry Station"},
		},
	}}
	p := NewPipeline(&fakeExtractor{}, resolver, zap.NewNop())

	var b KnownBooking
	run(t, p, &b, Profile{}, Delta{Destination: str("Coventry station")})
	if !b.Destination.Verified {
		t.Fatal("destination not verified")
	}
	b.HighFareVerified = true

	run(t, p, &b, Profile{}, Delta{Destination: str("coventry station")})
	if !b.Destination.Verified || !b.HighFareVerified {
		t.Fatal("repeating the same value lost verification")
	}
	if len(resolver.queries) != 1 {
		t.Errorf("verified value re-resolved: %d queries", len(resolver.queries))
	}

	resolver.err = errors.New("down")
	out := run(t, p, &b, Profile{}, Delta{Destination: str("Birmingham Airport")})
	if b.Destination.Verified || b.Destination.Value != "Birmingham Airport" {
		t.Errorf("destination = %+v", b.Destination)
	}
	if b.HighFareVerified {
		t.Error("high-fare verification survived a field change")
	}
	if len(out.Clarifications) != 1 {
		t.Errorf("resolver fault should ask for clarification: %+v", out.Clarifications)
	}
}

func TestAliasExpands(t *testing.T) {
	resolver := &fakeResolver{}
	p := NewPipeline(&fakeExtractor{}, resolver, zap.NewNop())

	var b KnownBooking
	run(t, p, &b, Profile{Aliases: map[string]string{"home": "52A David Road, Coventry"}}, Delta{Pickup: str("my home")})
	if !b.Pickup.Verified || b.Pickup.Value != "52A David Road, Coventry" || b.Pickup.VerifiedBy != ByAlias {
		t.Fatalf("pickup = %+v", b.Pickup)
	}
	if len(resolver.queries) != 0 {
		t.Error("alias should not need the resolver")
	}
}

func TestLuggagePromptForLargeParty(t *testing.T) {
	p := NewPipeline(&fakeExtractor{}, &fakeResolver{}, zap.NewNop())
	var b KnownBooking

	out := run(t, p, &b, Profile{}, Delta{Passengers: num(6)})
	if !out.LuggagePrompt {
		t.Fatal("expected luggage prompt")
	}
	if got := out.Instructions(); len(got) != 1 || got[0] != "Ask about luggage before confirming." {
		t.Errorf("instructions = %v", got)
	}

	out = run(t, p, &b, Profile{}, Delta{Luggage: str("two suitcases")})
	if out.LuggagePrompt {
		t.Error("luggage prompt after luggage given")
	}
}

func TestEvaluateReportsExtractorFailure(t *testing.T) {
	p := NewPipeline(&fakeExtractor{err: errors.New("timeout")}, &fakeResolver{}, zap.NewNop())
	if _, err := p.Evaluate(context.Background(), Input{Transcript: "hello"}); err == nil {
		t.Fatal("expected error")
	}
}

package booking

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/internal/address"
)

// VerifyStatus is the pipeline's verdict on one proposed address.
type VerifyStatus int

const (
	Unverified VerifyStatus = iota
	Verified
	// Suggest means a history address probably is what the caller meant but
	// the caller has to confirm it.
	Suggest
	Ambiguous
)

// Verification is the verdict for one proposed address value.
type Verification struct {
	Field      FieldName
	Spoken     string
	Value      string
	Status     VerifyStatus
	By         string
	Place      *address.Candidate
	Suggested  string
	Road       string
	Candidates []address.Candidate
}

// Result is everything Evaluate learned. It is applied to the live booking
// on the session loop.
type Result struct {
	Delta         Delta
	Verifications []Verification
}

// Input is a snapshot of what the session knows when a turn is accepted.
type Input struct {
	Transcript     string
	AgentUtterance string
	Booking        KnownBooking
	Profile        Profile
}

// Pipeline runs extraction and address verification. It performs every
// remote call and never touches a live booking.
type Pipeline struct {
	extractor Extractor
	resolver  address.Resolver
	log       *zap.Logger
}

func NewPipeline(extractor Extractor, resolver address.Resolver, log *zap.Logger) *Pipeline {
	return &Pipeline{extractor: extractor, resolver: resolver, log: log}
}

// Evaluate extracts field values from the transcript and verifies addresses.
func (p *Pipeline) Evaluate(ctx context.Context, in Input) (*Result, error) {
	d, err := p.extractor.Extract(ctx, ExtractRequest{
		Transcript:     in.Transcript,
		AgentUtterance: in.AgentUtterance,
		Booking:        in.Booking,
	})
	if err != nil {
		return nil, fmt.Errorf("extract fields: %w", err)
	}
	if d == nil {
		d = &Delta{}
	}
	return p.Verify(ctx, in, *d), nil
}

// Verify runs address verification for a delta that did not come from the
// extractor, e.g. modify_booking arguments.
func (p *Pipeline) Verify(ctx context.Context, in Input, d Delta) *Result {
	r := &Result{Delta: d}
	for _, name := range []FieldName{Pickup, Destination} {
		spoken := d.address(name)
		if spoken == nil || strings.TrimSpace(*spoken) == "" {
			continue
		}
		f := in.Booking.Field(name)
		if f.Verified && sameValue(f.Value, *spoken) {
			continue
		}
		// The address we already asked about, said again, has nothing new
		// for the resolver. It counts as another failed clarification.
		if f.LastAddressAsked != "" && f.Suggested == "" && sameValue(f.Value, *spoken) && sameValue(f.LastAddressAsked, *spoken) {
			p.log.Debug("Repeated address not re-verified", zap.String("field", string(name)))
			r.Verifications = append(r.Verifications, Verification{Field: name, Spoken: strings.TrimSpace(*spoken), Value: f.Value})
			continue
		}
		near := otherAddress(in.Booking, d, name)
		r.Verifications = append(r.Verifications, p.verifyAddress(ctx, name, strings.TrimSpace(*spoken), near, in.Profile))
	}
	return r
}

func otherAddress(b KnownBooking, d Delta, name FieldName) string {
	other := Destination
	if name == Destination {
		other = Pickup
	}
	if v := d.address(other); v != nil && *v != "" {
		return *v
	}
	return b.Field(other).Value
}

func (p *Pipeline) verifyAddress(ctx context.Context, name FieldName, spoken, near string, profile Profile) Verification {
	v := Verification{Field: name, Spoken: spoken, Value: spoken}

	if aliased, ok := profile.Alias(spoken); ok {
		v.Value, v.Status, v.By = aliased, Verified, ByAlias
		return v
	}

	m := address.MatchHistory(spoken, profile.History)
	switch {
	case m.Trusted():
		v.Value, v.Status, v.By = m.Known, Verified, ByHistory
		return v
	case m.NeedsClarification():
		v.Status, v.Suggested = Suggest, m.Known
		return v
	}

	res, err := p.resolver.Resolve(ctx, address.Query{Address: spoken, Near: near, Phone: profile.Phone})
	if err != nil {
		p.log.Warn("Address verification failed",
			zap.String("field", string(name)),
			zap.Error(err))
		return v
	}

	switch res.Status {
	case address.StatusVerified:
		if res.Quality == address.QualityCorrection {
			if !address.IsSafeCorrection(spoken, res.Address.Formatted) {
				p.log.Info("Unsafe address correction ignored",
					zap.String("field", string(name)),
					zap.String("proposed", res.Address.Formatted))
				return v
			}
			v.By = ByCorrection
		} else {
			v.By = ByResolver
		}
		v.Value, v.Status, v.Place = res.Address.Formatted, Verified, res.Address

	case address.StatusAmbiguous:
		if len(res.Candidates) == 0 {
			return v
		}
		if c, ok := breakTie(res, near, profile.History); ok {
			v.Value, v.Status, v.By, v.Place = c.Formatted, Verified, ByResolver, &c
			return v
		}
		v.Status = Ambiguous
		v.Candidates = res.Candidates
		v.Road = res.Candidates[0].Road
		if v.Road == "" {
			v.Road = spoken
		}
	}
	return v
}

// breakTie picks the one candidate that the other journey end or the
// caller's history places them in.
func breakTie(res *address.Resolution, near string, history []string) (address.Candidate, bool) {
	if len(res.Candidates) == 0 {
		return address.Candidate{}, false
	}
	if len(res.Areas()) <= 1 {
		return res.Candidates[0], true
	}

	hints := append([]string{near}, history...)
	var found []address.Candidate
	for _, c := range res.Candidates {
		for _, s := range hints {
			if mentions(s, c.Area) || mentions(s, c.City) {
				found = append(found, c)
				break
			}
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return address.Candidate{}, false
}

func mentions(text, word string) bool {
	w := address.Normalize(word)
	if w == "" {
		return false
	}
	return strings.Contains(" "+address.Normalize(text)+" ", " "+w+" ")
}

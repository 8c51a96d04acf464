package address

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/pkg/client"
	"github.com/troikatech/cab-voice-agent/pkg/logger"
)

// Status is the resolver's verdict on one address.
type Status string

const (
	StatusVerified  Status = "verified"
	StatusAmbiguous Status = "ambiguous"
	StatusNotFound  Status = "not_found"
)

// Quality describes how the resolver reached a verified address.
type Quality string

const (
	QualityExact      Quality = "exact"
	QualityPartial    Quality = "partial"
	QualityCorrection Quality = "correction"
)

// Candidate is one concrete place the resolver knows about.
type Candidate struct {
	Road      string  `json:"road"`
	Area      string  `json:"area"`
	City      string  `json:"city"`
	Postcode  string  `json:"postcode,omitempty"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Formatted string  `json:"formatted"`
}

// Label is what the caller hears when asked to choose this candidate.
func (c Candidate) Label() string {
	if c.Area != "" {
		return c.Area
	}
	if c.City != "" {
		return c.City
	}
	return c.Formatted
}

// Query asks the resolver to place an address.
type Query struct {
	Address string `json:"address"`
	// Near biases the search, normally the other end of the journey.
	Near  string `json:"near,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Resolution is the resolver's answer.
type Resolution struct {
	Status     Status      `json:"status"`
	Quality    Quality     `json:"match_type,omitempty"`
	Address    *Candidate  `json:"address,omitempty"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

// Areas returns the distinct candidate areas in resolver order.
func (r *Resolution) Areas() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range r.Candidates {
		label := c.Label()
		key := Normalize(label)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, label)
	}
	return out
}

// ErrResolverUnavailable wraps every transport or decode failure so callers
// can treat the address as unverified rather than not found.
var ErrResolverUnavailable = errors.New("address resolver unavailable")

// Resolver verifies spoken addresses and finds nearby places.
type Resolver interface {
	Resolve(ctx context.Context, q Query) (*Resolution, error)
	Nearby(ctx context.Context, near, category string) ([]Candidate, error)
}

// HTTPResolver calls the address service over HTTP and caches answers.
type HTTPResolver struct {
	baseURL string
	http    *client.HTTPClient
	cache   *expirable.LRU[string, *Resolution]
}

func NewHTTPResolver(baseURL string, timeout time.Duration, cacheSize int, cacheTTL time.Duration) *HTTPResolver {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &HTTPResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client.NewHTTPClient("address-resolver", timeout),
		cache:   expirable.NewLRU[string, *Resolution](cacheSize, nil, cacheTTL),
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, q Query) (*Resolution, error) {
	key := Normalize(q.Address) + "|" + Normalize(q.Near)
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	var res Resolution
	if err := r.http.PostJSON(ctx, r.baseURL+"/v1/resolve", q, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolverUnavailable, err)
	}
	switch res.Status {
	case StatusVerified:
		if res.Address == nil {
			return nil, fmt.Errorf("%w: verified without address", ErrResolverUnavailable)
		}
	case StatusAmbiguous, StatusNotFound:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrResolverUnavailable, res.Status)
	}

	r.cache.Add(key, &res)
	logger.Log.Debug("Address resolved",
		zap.String("status", string(res.Status)),
		zap.Int("candidates", len(res.Candidates)))
	return &res, nil
}

func (r *HTTPResolver) Nearby(ctx context.Context, near, category string) ([]Candidate, error) {
	params := url.Values{}
	params.Set("near", near)
	if category != "" {
		params.Set("category", category)
	}

	var out struct {
		Places []Candidate `json:"places"`
	}
	if err := r.http.GetJSON(ctx, r.baseURL+"/v1/nearby?"+params.Encode(), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolverUnavailable, err)
	}
	return out.Places, nil
}

// Package fare is the client for the fare and distance service.
package fare

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/troikatech/cab-voice-agent/internal/address"
	"github.com/troikatech/cab-voice-agent/pkg/client"
)

var ErrUnavailable = errors.New("fare service unavailable")

type Status string

const (
	StatusQuoted    Status = "quoted"
	StatusAmbiguous Status = "ambiguous"
)

type Request struct {
	Pickup      string `json:"pickup"`
	Destination string `json:"destination"`
	Passengers  int    `json:"passengers"`
	PickupTime  string `json:"pickup_time,omitempty"`
	VehicleType string `json:"vehicle_type,omitempty"`
}

// Ambiguity names a trip end the fare service could not place.
type Ambiguity struct {
	Field      string              `json:"field"`
	Road       string              `json:"road"`
	Candidates []address.Candidate `json:"candidates"`
}

type Quote struct {
	Status      Status             `json:"status"`
	Fare        float64            `json:"fare"`
	Currency    string             `json:"currency"`
	Miles       float64            `json:"distance_miles"`
	Minutes     int                `json:"duration_min"`
	Pickup      *address.Candidate `json:"pickup,omitempty"`
	Destination *address.Candidate `json:"destination,omitempty"`
	Ambiguity   *Ambiguity         `json:"ambiguity,omitempty"`
}

// Quoter prices a trip.
type Quoter interface {
	Quote(ctx context.Context, req Request) (*Quote, error)
}

type HTTPQuoter struct {
	baseURL string
	http    *client.HTTPClient
}

func NewHTTPQuoter(baseURL string, timeout time.Duration) *HTTPQuoter {
	return &HTTPQuoter{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client.NewHTTPClient("fare-service", timeout),
	}
}

func (q *HTTPQuoter) Quote(ctx context.Context, req Request) (*Quote, error) {
	var out Quote
	if err := q.http.PostJSON(ctx, q.baseURL+"/v1/quote", req, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch out.Status {
	case StatusQuoted:
	case StatusAmbiguous:
		if out.Ambiguity == nil || len(out.Ambiguity.Candidates) == 0 {
			return nil, fmt.Errorf("%w: ambiguous quote without candidates", ErrUnavailable)
		}
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrUnavailable, out.Status)
	}
	return &out, nil
}

// Spoken renders the fare for the agent to read out, e.g. "£23.50".
func (q *Quote) Spoken() string {
	symbol := "£"
	switch strings.ToUpper(q.Currency) {
	case "", "GBP":
	case "EUR":
		symbol = "€"
	case "USD":
		symbol = "$"
	default:
		return fmt.Sprintf("%.2f %s", q.Fare, strings.ToUpper(q.Currency))
	}
	return fmt.Sprintf("%s%.2f", symbol, q.Fare)
}

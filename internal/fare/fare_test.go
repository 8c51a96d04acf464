package fare

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		want    Status
		wantErr bool
	}{
		{
			name: "quoted",
			body: `{"status":"quoted","fare":23.5,"currency":"GBP","distance_miles":8.2,"duration_min":21}`,
			want: StatusQuoted,
		},
		{
			name: "ambiguous",
			body: `{"status":"ambiguous","ambiguity":{"field":"pickup","road":"School Road","candidates":[{"road":"School Road","area":"Solihull"},{"road":"School Road","area":"Moseley"}]}}`,
			want: StatusAmbiguous,
		},
		{
			name:    "ambiguous without candidates",
			body:    `{"status":"ambiguous"}`,
			wantErr: true,
		},
		{
			name:    "unknown status",
			body:    `{"status":"maybe"}`,
			wantErr: true,
		},
		{
			name:    "server error",
			body:    `{}`,
			status:  http.StatusBadGateway,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/quote" {
					t.Errorf("path = %s", r.URL.Path)
				}
				var req Request
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Passengers != 2 {
					t.Errorf("request = %+v, err = %v", req, err)
				}
				w.Header().Set("Content-Type", "application/json")
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			q := NewHTTPQuoter(srv.URL, time.Second)
			got, err := q.Quote(context.Background(), Request{Pickup: "52A David Road", Destination: "Coventry station", Passengers: 2})
			if tt.wantErr {
				if !errors.Is(err, ErrUnavailable) {
					t.Fatalf("err = %v, want ErrUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Quote() error = %v", err)
			}
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s", got.Status, tt.want)
			}
		})
	}
}

func TestSpoken(t *testing.T) {
	tests := []struct {
		currency string
		want     string
	}{
		{"", "£23.50"},
		{"gbp", "£23.50"},
		{"EUR", "€23.50"},
		{"CHF", "23.50 CHF"},
	}
	for _, tt := range tests {
		q := &Quote{Fare: 23.5, Currency: tt.currency}
		if got := q.Spoken(); got != tt.want {
			t.Errorf("Spoken(%q) = %q, want %q", tt.currency, got, tt.want)
		}
	}
}

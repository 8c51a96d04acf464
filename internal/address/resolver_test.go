package address

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPResolverCachesByNormalizedAddress(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/resolve" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		var q Query
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Resolution{
			Status:  StatusVerified,
			Quality: QualityExact,
			Address: &Candidate{Road: "David Road", City: "Coventry", Formatted: "52A David Road, Coventry"},
		})
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL, time.Second, 16, time.Minute)
	ctx := context.Background()

	first, err := r.Resolve(ctx, Query{Address: "52A David Road"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first.Status != StatusVerified || first.Address.Formatted != "52A David Road, Coventry" {
		t.Fatalf("unexpected resolution %+v", first)
	}
	if _, err := r.Resolve(ctx, Query{Address: "52a david rd"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("resolver called %d times, want 1", got)
	}
}

func TestHTTPResolverRejectsVerifiedWithoutAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"verified"}`))
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL, time.Second, 16, time.Minute)
	_, err := r.Resolve(context.Background(), Query{Address: "somewhere"})
	if !errors.Is(err, ErrResolverUnavailable) {
		t.Fatalf("err = %v, want ErrResolverUnavailable", err)
	}
}

func TestResolutionAreasAreDistinct(t *testing.T) {
	res := Resolution{
		Status: StatusAmbiguous,
		Candidates: []Candidate{
			{Road: "School Road", Area: "Moseley"},
			{Road: "School Road", Area: "Hall Green"},
			{Road: "School Lane", Area: "moseley"},
		},
	}
	areas := res.Areas()
	if len(areas) != 2 || areas[0] != "Moseley" || areas[1] != "Hall Green" {
		t.Fatalf("Areas() = %v", areas)
	}
}

func TestHTTPResolverNearby(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("near") != "Coventry Station" {
			t.Errorf("near = %q", r.URL.Query().Get("near"))
		}
		_, _ = w.Write([]byte(`{"places":[{"formatted":"Lima Lounge, Coventry","area":"City Centre"}]}`))
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL, time.Second, 16, time.Minute)
	places, err := r.Nearby(context.Background(), "Coventry Station", "restaurant")
	if err != nil {
		t.Fatalf("Nearby: %v", err)
	}
	if len(places) != 1 || places[0].Formatted != "Lima Lounge, Coventry" {
		t.Fatalf("places = %+v", places)
	}
}

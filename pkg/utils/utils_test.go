package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"07700 900123", "+447700900123"},
		{"+44 7700 900123", "+447700900123"},
		{"0044 7700 900123", "+447700900123"},
		{"447700900123", "+447700900123"},
		{"(0121) 496-0000", "+441214960000"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.in); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if tt.want != "" && !ValidateE164(tt.want) {
			t.Errorf("ValidateE164(%q) = false", tt.want)
		}
	}
	if ValidateE164("+44") {
		t.Error("short number should not validate")
	}
}

func TestParsePagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		query     string
		wantPage  int
		wantLimit int
	}{
		{"", 1, 50},
		{"?page=3&limit=20", 3, 20},
		{"?page=0&limit=500", 1, 100},
		{"?page=x&limit=-1", 1, 50},
	}
	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", "/api/bookings"+tt.query, nil)
		got := ParsePagination(c)
		if got.Page != tt.wantPage || got.Limit != tt.wantLimit {
			t.Errorf("ParsePagination(%q) = %+v", tt.query, got)
		}
	}
}

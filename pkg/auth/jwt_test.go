package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssuerRoundTrip(t *testing.T) {
	iss := NewIssuer("secret", "cab-voice-agent", "web")
	tok, exp, err := iss.GenerateAccessToken("kiosk-1", RoleWebCaller, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Errorf("expiry %v too soon", exp)
	}

	claims, err := iss.ParseToken(tok)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.ClientID != "kiosk-1" || claims.Role != RoleWebCaller {
		t.Errorf("claims = %+v", claims)
	}
}

func TestIssuerRejects(t *testing.T) {
	iss := NewIssuer("secret", "cab-voice-agent", "web")
	good, _, _ := iss.GenerateAccessToken("ops", RoleOperator, time.Hour)
	defaulted, _, _ := iss.GenerateAccessToken("ops", RoleOperator, -time.Minute)
	otherAudience, _, _ := NewIssuer("secret", "cab-voice-agent", "admin").GenerateAccessToken("ops", RoleOperator, time.Hour)

	tests := []struct {
		name   string
		issuer *Issuer
		token  string
	}{
		{"wrong secret", NewIssuer("other", "cab-voice-agent", "web"), good},
		{"garbage", iss, "not.a.token"},
		{"wrong audience", iss, otherAudience},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.issuer.ParseToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ParseToken() error = %v, want ErrInvalidToken", err)
			}
		})
	}

	// A non-positive ttl falls back to the default lifetime.
	if _, err := iss.ParseToken(defaulted); err != nil {
		t.Errorf("default ttl token rejected: %v", err)
	}
}

// Command issue-token mints an access token for a web caller client or an
// operator reading the API.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/troikatech/cab-voice-agent/pkg/auth"
	"github.com/troikatech/cab-voice-agent/pkg/env"
)

func main() {
	clientID := flag.String("client", "", "client id recorded in the token (required)")
	role := flag.String("role", auth.RoleWebCaller, "web_caller or operator")
	ttl := flag.Duration("ttl", 0, "token lifetime; defaults to ACCESS_TTL_MIN")
	flag.Parse()

	if *clientID == "" {
		log.Fatal("-client is required")
	}
	if *role != auth.RoleWebCaller && *role != auth.RoleOperator {
		log.Fatalf("unknown role %q", *role)
	}

	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *ttl == 0 {
		*ttl = time.Duration(cfg.AccessTTLMin) * time.Minute
	}

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	token, expiresAt, err := issuer.GenerateAccessToken(*clientID, *role, *ttl)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	fmt.Println(token)
	fmt.Printf("expires %s\n", expiresAt.Format(time.RFC3339))
}

// Package main is a CLI for minting test bearer tokens against the dev
// signing key. These tokens will NOT verify in production.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"peakform/internal/identity"
)

const (
	// Matches config.go when JWT_SIGNING_KEY is not set.
	devSigningKey = "dev-secret-key-change-in-production"
	devIssuer     = "https://auth.peakform.fit"
)

type tokenOutput struct {
	Token     string         `json:"token"`
	UID       string         `json:"uid"`
	ExpiresIn string         `json:"expires_in"`
	Claims    map[string]any `json:"claims,omitempty"`
	Usage     string         `json:"usage"`
}

func main() {
	uid := flag.String("uid", "", "Subject UID. Generated if empty.")
	email := flag.String("email", "", "Email claim. Derived from uid if empty.")
	verified := flag.Bool("verified", true, "Set email_verified.")
	level := flag.String("level", "", "Admin tier: support, admin, or super_admin.")
	premium := flag.Bool("premium", false, "Set the premium claim.")
	forceLogout := flag.Bool("force-logout", false, "Set the forceLogout claim.")
	authAge := flag.Duration("auth-age", 0, "Backdate auth_time by this much (e.g. 30m).")
	ttl := flag.Duration("ttl", time.Hour, "Token lifetime.")
	signingKey := flag.String("key", devSigningKey, "HMAC signing key.")
	flag.Parse()

	if *uid == "" {
		*uid = uuid.NewString()
	}
	if *email == "" {
		*email = *uid + "@peakform.test"
	}

	claims := map[string]any{}
	if *premium {
		claims["premium"] = true
	}
	if *forceLogout {
		claims["forceLogout"] = true
	}
	switch strings.ToLower(*level) {
	case "":
	case "support", "admin", "super_admin":
		claims[strings.ToLower(*level)] = true
	default:
		fmt.Fprintf(os.Stderr, "unknown level %q\n", *level)
		os.Exit(2)
	}

	provider := identity.NewInMemoryProvider(*signingKey, devIssuer)
	user := &identity.User{
		UID:           *uid,
		Email:         *email,
		EmailVerified: *verified,
		CustomClaims:  claims,
	}
	provider.PutUser(user)

	token, err := provider.Issue(context.Background(), user, identity.IssueOptions{
		TTL:      *ttl,
		AuthTime: time.Now().Add(-*authAge),
		Custom:   claims,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}

	out := tokenOutput{
		Token:     token,
		UID:       *uid,
		ExpiresIn: ttl.String(),
		Claims:    claims,
		Usage:     fmt.Sprintf("curl -H 'Authorization: Bearer %s' http://localhost:8080/v1/me", token),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		os.Exit(1)
	}
}

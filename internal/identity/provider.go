// Package identity is the port to the external identity provider: user
// records, per-user custom claims, bearer token verification, and session
// revocation. The provider owns credentials and token issuance; this core
// only reads identities and mutates claims through it.
package identity

import (
	"context"
	"time"
)

// SecondFactor describes one enrolled MFA factor on a user record.
type SecondFactor struct {
	FactorID   string
	Type       string // "totp", "phone"
	EnrolledAt time.Time
}

// User is the identity-provider view of an account. CustomClaims is the
// authoritative claim bag; tokens carry a snapshot of it from issuance time.
type User struct {
	UID              string
	Email            string
	EmailVerified    bool
	Disabled         bool
	CustomClaims     map[string]any
	LastSignInAt     time.Time // zero when the provider has no record
	TokensValidAfter time.Time // most recent refresh-token revocation
	MFAFactors       []SecondFactor
	CreatedAt        time.Time
}

// ListPage is one page of ListUsers results.
type ListPage struct {
	Users         []User
	NextPageToken string // empty on the last page
}

// Provider is the identity-provider port.
//
// VerifyToken returns the token's claim bag on success. Failures must be
// distinguishable via errors.Is: sentinel.ErrExpired for expired tokens,
// sentinel.ErrRevoked for tokens issued before the user's revocation
// timestamp (only checked when checkRevoked is true), sentinel.ErrMalformed
// for everything else. Lookup methods return sentinel.ErrNotFound for
// unknown users.
//
// UpdateClaims is the atomic read-modify-write over a user's claim bag:
// update receives the current claims and returns the full replacement set.
// Implementations must serialize concurrent updates on the same user, so
// two racing merges never overwrite each other's keys. SetCustomClaims is
// the plain replace-wholesale write; merges go through UpdateClaims.
type Provider interface {
	GetUser(ctx context.Context, uid string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, pageToken string) (*ListPage, error)
	SetCustomClaims(ctx context.Context, uid string, claims map[string]any) error
	UpdateClaims(ctx context.Context, uid string, update func(claims map[string]any) map[string]any) error
	VerifyToken(ctx context.Context, token string, checkRevoked bool) (map[string]any, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
	DeleteUser(ctx context.Context, uid string) error
}

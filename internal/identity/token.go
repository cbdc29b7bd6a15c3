package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"peakform/internal/sentinel"
	"peakform/pkg/requestcontext"
)

// TokenClaims is the claim shape this core expects from provider-issued
// bearer tokens. Custom claims ride alongside the registered set.
type TokenClaims struct {
	Email              string         `json:"email,omitempty"`
	EmailVerified      bool           `json:"email_verified,omitempty"`
	AuthTime           int64          `json:"auth_time,omitempty"`
	SignInSecondFactor string         `json:"sign_in_second_factor,omitempty"`
	Custom             map[string]any `json:"custom,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HMAC-signed bearer tokens against a user source for
// revocation checks. It implements the verification half of Provider and is
// embedded by InMemoryProvider.
type Verifier struct {
	signingKey []byte
	issuer     string
	users      userSource
}

// userSource resolves a UID to its current record, for revocation checks.
type userSource interface {
	GetUser(ctx context.Context, uid string) (*User, error)
}

// NewVerifier creates a token verifier bound to a signing key and issuer.
func NewVerifier(signingKey, issuer string, users userSource) *Verifier {
	return &Verifier{signingKey: []byte(signingKey), issuer: issuer, users: users}
}

// VerifyToken parses and validates a bearer token, returning its claim bag.
// Error classes follow the Provider contract: expired, revoked, and
// malformed are distinct; signature, issuer, and shape problems all
// collapse into malformed so callers cannot build a verification oracle.
func (v *Verifier) VerifyToken(ctx context.Context, token string, checkRevoked bool) (map[string]any, error) {
	parsed, err := jwt.ParseWithClaims(token, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithIssuer(v.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("verify token: %w", sentinel.ErrExpired)
		}
		return nil, fmt.Errorf("verify token: %w", sentinel.ErrMalformed)
	}

	claims, ok := parsed.Claims.(*TokenClaims)
	if !ok || claims.Subject == "" {
		return nil, fmt.Errorf("verify token: %w", sentinel.ErrMalformed)
	}

	if checkRevoked {
		user, err := v.users.GetUser(ctx, claims.Subject)
		if err != nil {
			return nil, fmt.Errorf("verify token: revocation lookup: %w", err)
		}
		issuedAt := time.Time{}
		if claims.IssuedAt != nil {
			issuedAt = claims.IssuedAt.Time
		}
		if user.Disabled || (!user.TokensValidAfter.IsZero() && issuedAt.Before(user.TokensValidAfter)) {
			return nil, fmt.Errorf("verify token: %w", sentinel.ErrRevoked)
		}
	}

	return claims.toBag(), nil
}

// toBag flattens the typed claims back into the open key-value shape the
// resolver consumes, mirroring what a managed provider hands middleware.
func (c *TokenClaims) toBag() map[string]any {
	bag := make(map[string]any, len(c.Custom)+8)
	for k, v := range c.Custom {
		bag[k] = v
	}
	bag["sub"] = c.Subject
	if c.Email != "" {
		bag["email"] = c.Email
		bag["email_verified"] = c.EmailVerified
	}
	if c.AuthTime != 0 {
		bag["auth_time"] = c.AuthTime
	}
	if c.SignInSecondFactor != "" {
		bag["sign_in_second_factor"] = c.SignInSecondFactor
	}
	if c.IssuedAt != nil {
		bag["iat"] = c.IssuedAt.Unix()
	}
	return bag
}

// IssueOptions shape a token minted by Issue.
type IssueOptions struct {
	TTL                time.Duration
	AuthTime           time.Time
	SignInSecondFactor string
	Custom             map[string]any
}

// Issue mints a signed bearer token for a user. Production tokens come from
// the provider; this exists for the in-memory provider, seed tooling, and
// tests that need tokens with controlled iat/auth_time.
func (v *Verifier) Issue(ctx context.Context, user *User, opts IssueOptions) (string, error) {
	now := requestcontext.Now(ctx)
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	authTime := opts.AuthTime
	if authTime.IsZero() {
		authTime = now
	}

	custom := opts.Custom
	if custom == nil {
		custom = user.CustomClaims
	}

	claims := TokenClaims{
		Email:              user.Email,
		EmailVerified:      user.EmailVerified,
		AuthTime:           authTime.Unix(),
		SignInSecondFactor: opts.SignInSecondFactor,
		Custom:             custom,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   user.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

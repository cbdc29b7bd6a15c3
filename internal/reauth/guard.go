// Package reauth implements step-up checks for irreversible operations:
// proof of recent authentication, verified email, multi-factor, and
// session validity against the provider's revocation timestamp.
package reauth

import (
	"context"
	"log/slog"
	"time"

	"peakform/internal/audit"
	"peakform/internal/authn"
	"peakform/internal/identity"
	dErrors "peakform/pkg/domain-errors"
	"peakform/pkg/requestcontext"
)

// Sensitive operations that always demand recent authentication.
const (
	OpAccountDeletion   = "account_deletion"
	OpDataExport        = "data_export"
	OpClaimModification = "claim_modification"
)

var sensitiveOps = map[string]struct{}{
	OpAccountDeletion:   {},
	OpDataExport:        {},
	OpClaimModification: {},
}

// sensitiveMaxAge is how recent the sign-in must be for a sensitive
// operation.
const sensitiveMaxAge = 5 * time.Minute

// Result is the outcome of a recency check.
type Result struct {
	Valid          bool
	RequiresReauth bool
	Message        string
	LastAuthTime   time.Time
}

type userSource interface {
	GetUser(ctx context.Context, uid string) (*identity.User, error)
}

type securityRecorder interface {
	Record(ctx context.Context, event audit.SecurityEvent)
}

// Guard performs step-up authentication checks.
type Guard struct {
	users    userSource
	security securityRecorder
	logger   *slog.Logger
}

// NewGuard wires the guard to the identity provider and the security
// event channel.
func NewGuard(users userSource, security securityRecorder, logger *slog.Logger) *Guard {
	return &Guard{users: users, security: security, logger: logger}
}

// CheckRecentAuth compares the provider's last-sign-in timestamp against
// now. Lookup failures read as "reauth required": when the provider cannot
// be asked, the safe answer is no.
func (g *Guard) CheckRecentAuth(ctx context.Context, subjectID string, maxAge time.Duration) *Result {
	user, err := g.users.GetUser(ctx, subjectID)
	if err != nil {
		g.logger.Warn("last sign-in lookup failed, requiring reauth",
			"subject_id", subjectID,
			"error", err,
		)
		return &Result{RequiresReauth: true, Message: "please reauthenticate"}
	}

	if user.LastSignInAt.IsZero() {
		return &Result{
			RequiresReauth: true,
			Message:        "no recent sign-in on record, please reauthenticate",
		}
	}

	now := requestcontext.Now(ctx)
	if now.Sub(user.LastSignInAt) > maxAge {
		return &Result{
			RequiresReauth: true,
			Message:        "last sign-in too old, please reauthenticate",
			LastAuthTime:   user.LastSignInAt,
		}
	}
	return &Result{Valid: true, LastAuthTime: user.LastSignInAt}
}

// RequireRecentAuth is CheckRecentAuth as a guard.
func (g *Guard) RequireRecentAuth(ctx context.Context, subjectID string, maxAge time.Duration) error {
	if res := g.CheckRecentAuth(ctx, subjectID, maxAge); !res.Valid {
		return dErrors.New(dErrors.CodeForbidden, res.Message)
	}
	return nil
}

// CheckTokenAuthTime is the fast path: the token's own auth_time claim,
// no provider round-trip. A token without the claim requires reauth.
func (g *Guard) CheckTokenAuthTime(ctx context.Context, authCtx *authn.Context, maxAge time.Duration) *Result {
	authTime := claimTime(authCtx, "auth_time")
	if authTime.IsZero() {
		return &Result{RequiresReauth: true, Message: "please reauthenticate"}
	}
	if requestcontext.Now(ctx).Sub(authTime) > maxAge {
		return &Result{
			RequiresReauth: true,
			Message:        "please reauthenticate",
			LastAuthTime:   authTime,
		}
	}
	return &Result{Valid: true, LastAuthTime: authTime}
}

// RequireReauthForSensitiveOp hard-fails operations in the sensitive set
// unless the session authenticated within the last few minutes. Operations
// outside the set pass through.
func (g *Guard) RequireReauthForSensitiveOp(ctx context.Context, authCtx *authn.Context, operation string) error {
	if _, ok := sensitiveOps[operation]; !ok {
		return nil
	}
	res := g.CheckTokenAuthTime(ctx, authCtx, sensitiveMaxAge)
	if res.Valid {
		return nil
	}
	if g.security != nil {
		g.security.Record(ctx, audit.SecurityEvent{
			Type:      audit.EventReauthRequired,
			SubjectID: authCtx.SubjectID,
			Detail:    operation,
		})
	}
	return dErrors.New(dErrors.CodeForbidden, "recent authentication required, please reauthenticate")
}

// IsEmailVerified reports the token's email verification claim.
func (g *Guard) IsEmailVerified(authCtx *authn.Context) bool {
	return authCtx.EmailVerified
}

// RequireEmailVerified gates features on a verified address.
func (g *Guard) RequireEmailVerified(authCtx *authn.Context) error {
	if !authCtx.EmailVerified {
		return dErrors.New(dErrors.CodeForbidden, "please verify your email address")
	}
	return nil
}

// IsMfaEnabled reports whether the account has at least one enrolled
// second factor.
func (g *Guard) IsMfaEnabled(ctx context.Context, subjectID string) (bool, error) {
	user, err := g.users.GetUser(ctx, subjectID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not check account factors")
	}
	return len(user.MFAFactors) > 0, nil
}

// RequireMfa demands both an enrolled factor and that this session actually
// signed in with one; enrollment alone proves nothing about the session.
func (g *Guard) RequireMfa(ctx context.Context, authCtx *authn.Context) error {
	enrolled, err := g.IsMfaEnabled(ctx, authCtx.SubjectID)
	if err != nil {
		return err
	}
	factor, _ := authCtx.Claims.Extra["sign_in_second_factor"].(string)
	if !enrolled || factor == "" {
		return dErrors.New(dErrors.CodeForbidden, "multi-factor authentication required")
	}
	return nil
}

// IsSessionValid reports whether the account is enabled and the token was
// issued after the provider's most recent revocation.
func (g *Guard) IsSessionValid(ctx context.Context, authCtx *authn.Context) (bool, error) {
	user, err := g.users.GetUser(ctx, authCtx.SubjectID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not check session state")
	}
	if user.Disabled {
		return false, nil
	}
	if user.TokensValidAfter.IsZero() {
		return true, nil
	}
	issuedAt := claimTime(authCtx, "iat")
	return !issuedAt.Before(user.TokensValidAfter), nil
}

// RequireValidSession is IsSessionValid as a guard.
func (g *Guard) RequireValidSession(ctx context.Context, authCtx *authn.Context) error {
	valid, err := g.IsSessionValid(ctx, authCtx)
	if err != nil {
		return err
	}
	if !valid {
		return dErrors.New(dErrors.CodeUnauthenticated, "session invalidated, please log in again")
	}
	return nil
}

// claimTime reads a unix-seconds claim from the context's extra bag.
func claimTime(authCtx *authn.Context, key string) time.Time {
	switch v := authCtx.Claims.Extra[key].(type) {
	case int64:
		return time.Unix(v, 0)
	case float64:
		return time.Unix(int64(v), 0)
	case int:
		return time.Unix(int64(v), 0)
	}
	return time.Time{}
}

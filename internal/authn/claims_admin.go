package authn

import (
	"context"
	"errors"
	"time"

	"peakform/internal/audit"
	"peakform/internal/docstore"
	"peakform/internal/sentinel"
	dErrors "peakform/pkg/domain-errors"
	"peakform/pkg/requestcontext"
)

// GetClaims returns the user's current custom claims, typed.
func (s *Service) GetClaims(ctx context.Context, subjectID string) (Claims, error) {
	user, err := s.provider.GetUser(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Claims{}, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return Claims{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not load claims")
	}
	return ClaimsFromMap(user.CustomClaims), nil
}

// SetClaims merges updates into the user's custom claims. Updated keys
// overwrite, a nil value deletes the key, all other claims survive. The
// merge runs inside the provider's atomic claim update, so concurrent
// merges on the same user serialize rather than losing each other's keys.
func (s *Service) SetClaims(ctx context.Context, subjectID string, updates map[string]any) error {
	err := s.provider.UpdateClaims(ctx, subjectID, func(claims map[string]any) map[string]any {
		merged := make(map[string]any, len(claims)+len(updates))
		for k, v := range claims {
			merged[k] = v
		}
		for k, v := range updates {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		return merged
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "could not update claims")
	}
	return nil
}

// RevokeSessions invalidates every refresh token the user holds. Access
// tokens already issued keep working until expiry unless the caller also
// sets force-logout.
func (s *Service) RevokeSessions(ctx context.Context, subjectID string) error {
	if err := s.provider.RevokeRefreshTokens(ctx, subjectID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "could not revoke sessions")
	}
	s.security.Record(ctx, audit.SecurityEvent{
		Type:      audit.EventSessionsRevoked,
		SubjectID: subjectID,
	})
	return nil
}

// SetForceLogout invalidates the user's live sessions immediately: the
// forceLogout claim rejects in-flight tokens mid-session, the user document
// records when it happened, and refresh tokens are revoked so no new tokens
// get minted. Each step must succeed; a failure part-way returns the error
// and leaves the earlier steps in place, which fails safe (the user stays
// logged out harder than intended, never softer).
func (s *Service) SetForceLogout(ctx context.Context, subjectID string) error {
	if err := s.SetClaims(ctx, subjectID, map[string]any{ClaimForceLogout: true}); err != nil {
		return err
	}

	stamp := requestcontext.Now(ctx).Format(time.RFC3339Nano)
	err := s.docs.RunTransaction(ctx, func(tx docstore.Tx) error {
		if _, err := tx.Get(usersCollection, subjectID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return tx.Set(usersCollection, subjectID, docstore.Doc{"forceLogoutAt": stamp})
			}
			return err
		}
		return tx.Update(usersCollection, subjectID, docstore.Doc{"forceLogoutAt": stamp})
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "could not record forced logout")
	}

	if err := s.provider.RevokeRefreshTokens(ctx, subjectID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "could not revoke sessions")
	}

	s.security.Record(ctx, audit.SecurityEvent{
		Type:      audit.EventSessionsRevoked,
		SubjectID: subjectID,
		Detail:    "forced logout",
	})
	return nil
}

// ClearForceLogout removes only the force-logout flag; all other claims and
// the recorded forceLogoutAt timestamp are untouched.
func (s *Service) ClearForceLogout(ctx context.Context, subjectID string) error {
	return s.SetClaims(ctx, subjectID, map[string]any{ClaimForceLogout: nil})
}

package authn

import (
	"context"
	"errors"
	"log/slog"

	"peakform/internal/audit"
	"peakform/internal/docstore"
	"peakform/internal/identity"
	"peakform/internal/sentinel"
	dErrors "peakform/pkg/domain-errors"
)

// usersCollection holds per-user trust state: deletion scheduling, consent
// flags, force-logout timestamps.
const usersCollection = "users"

// securityRecorder is the slice of the security event channel this package
// needs.
type securityRecorder interface {
	Record(ctx context.Context, event audit.SecurityEvent)
}

// Service resolves auth contexts and manages the custom-claim lifecycle.
type Service struct {
	provider identity.Provider
	docs     docstore.Store
	security securityRecorder
	logger   *slog.Logger
}

// NewService wires the resolver to the identity provider, the user-state
// document store, and the security event channel.
func NewService(provider identity.Provider, docs docstore.Store, security securityRecorder, logger *slog.Logger) *Service {
	return &Service{
		provider: provider,
		docs:     docs,
		security: security,
		logger:   logger,
	}
}

// Resolve lifts a raw claim bag into a typed Context. A nil bag or one
// without a subject yields an unauthenticated error; a returned Context
// always has a non-empty SubjectID.
func (s *Service) Resolve(raw map[string]any) (*Context, error) {
	if raw == nil {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "authentication required")
	}
	sub, _ := raw["sub"].(string)
	if sub == "" {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "authentication required")
	}

	email, _ := raw["email"].(string)
	verified, _ := raw["email_verified"].(bool)

	// sub/email/email_verified have typed fields; everything else, including
	// auth_time and iat, stays visible through Claims.Extra.
	bag := make(map[string]any, len(raw))
	for k, v := range raw {
		switch k {
		case "sub", "email", "email_verified":
			continue
		}
		bag[k] = v
	}

	return &Context{
		SubjectID:     sub,
		Email:         email,
		EmailVerified: verified,
		Claims:        ClaimsFromMap(bag),
	}, nil
}

// RequireAuth resolves the claim bag and additionally rejects sessions an
// operator has force-logged-out. Claim updates only reach clients on the
// next issued token, so the stale token's own claim snapshot is what gets
// inspected here; every rejection is a security event.
func (s *Service) RequireAuth(ctx context.Context, raw map[string]any) (*Context, error) {
	authCtx, err := s.Resolve(raw)
	if err != nil {
		return nil, err
	}
	if authCtx.Claims.ForceLogout {
		s.security.Record(ctx, audit.SecurityEvent{
			Type:      audit.EventForcedLogoutRejection,
			SubjectID: authCtx.SubjectID,
			Detail:    "request rejected for force-logged-out session",
		})
		return nil, dErrors.New(dErrors.CodeForbidden, "session invalidated")
	}
	return authCtx, nil
}

// VerifyBearer verifies a raw bearer token against the identity provider
// (including revocation) and resolves it into a Context. Expired and revoked
// tokens get distinct remediation messages; every other verification failure
// collapses into a generic one.
func (s *Service) VerifyBearer(ctx context.Context, token string) (*Context, error) {
	raw, err := s.provider.VerifyToken(ctx, token, true)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrExpired):
			return nil, dErrors.New(dErrors.CodeUnauthenticated, "token expired")
		case errors.Is(err, sentinel.ErrRevoked):
			return nil, dErrors.New(dErrors.CodeUnauthenticated, "session invalidated, please log in again")
		default:
			return nil, dErrors.New(dErrors.CodeUnauthenticated, "invalid token")
		}
	}
	return s.RequireAuth(ctx, raw)
}

// CheckDeletionScheduled reads whether the account is pending erasure.
// A missing user document is the common case and reads as false.
func (s *Service) CheckDeletionScheduled(ctx context.Context, subjectID string) (bool, error) {
	doc, err := s.docs.Get(ctx, usersCollection, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not check account status")
	}
	return docstore.Bool(doc, "deletionScheduled"), nil
}

// RequireWritePermission blocks writes once an account is pending erasure.
func (s *Service) RequireWritePermission(ctx context.Context, subjectID string) error {
	scheduled, err := s.CheckDeletionScheduled(ctx, subjectID)
	if err != nil {
		return err
	}
	if scheduled {
		return dErrors.New(dErrors.CodeForbidden, "account is scheduled for deletion")
	}
	return nil
}

// RequireConsent checks the product's consent pair on the user document:
// accepted terms and health-data processing. Consent-gated features call
// this before doing anything else; a missing document means consent was
// never given.
func (s *Service) RequireConsent(ctx context.Context, subjectID string) error {
	doc, err := s.docs.Get(ctx, usersCollection, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeMissingConsent, "consent required, please open settings")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "could not check consent status")
	}
	if !docstore.Bool(doc, "termsAccepted") || !docstore.Bool(doc, "healthDataConsent") {
		return dErrors.New(dErrors.CodeMissingConsent, "consent required, please open settings")
	}
	return nil
}

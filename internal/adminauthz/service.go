package adminauthz

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"peakform/internal/audit"
	"peakform/internal/authn"
	"peakform/internal/identity"
	dErrors "peakform/pkg/domain-errors"
)

const tracerName = "peakform/adminauthz"

// Directory is the slice of the identity provider this engine reads.
//
//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks
type Directory interface {
	GetUser(ctx context.Context, uid string) (*identity.User, error)
	ListUsers(ctx context.Context, pageToken string) (*identity.ListPage, error)
}

// ClaimsWriter applies claim merges for level changes.
type ClaimsWriter interface {
	SetClaims(ctx context.Context, subjectID string, updates map[string]any) error
}

type securityRecorder interface {
	Record(ctx context.Context, event audit.SecurityEvent)
}

// Request describes one delegated admin action to execute.
type Request struct {
	AdminID      string
	TargetUserID string
	Action       string
	Reason       string
	Metadata     map[string]any
}

// AdminUser is one listing result: a user holding an admin tier.
type AdminUser struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	Level Level  `json:"level"`
}

// Service is the admin authorization engine.
type Service struct {
	directory Directory
	claims    ClaimsWriter
	recorder  *audit.Recorder
	security  securityRecorder
	logger    *slog.Logger
}

// NewService wires the engine to the identity directory, the claim writer,
// the audit recorder, and the security event channel.
func NewService(directory Directory, claims ClaimsWriter, recorder *audit.Recorder, security securityRecorder, logger *slog.Logger) *Service {
	return &Service{
		directory: directory,
		claims:    claims,
		recorder:  recorder,
		security:  security,
		logger:    logger,
	}
}

// PermissionsOf returns the tier and closed action set the context grants.
// A context without an admin tier gets empty permissions.
func (s *Service) PermissionsOf(authCtx *authn.Context) Permissions {
	level, ok := LevelOf(authCtx.Claims)
	if !ok {
		return Permissions{}
	}
	return Permissions{Level: level, Actions: ActionsFor(level)}
}

// CanPerformAction checks the context's own claim snapshot against the
// action's tier requirement. Token-snapshot checks are the fast path;
// delegated actions go through CanActOnBehalfOf for a live read.
func (s *Service) CanPerformAction(authCtx *authn.Context, action string) bool {
	level, ok := LevelOf(authCtx.Claims)
	if !ok {
		return false
	}
	return actionAllowed(level, action)
}

// RequireAction is CanPerformAction as a guard.
func (s *Service) RequireAction(authCtx *authn.Context, action string) error {
	if !s.CanPerformAction(authCtx, action) {
		return dErrors.New(dErrors.CodeForbidden, "insufficient admin privileges")
	}
	return nil
}

// CanActOnBehalfOf authorizes a delegated action against the admin's
// current claims, re-read from the provider so a revoked tier takes effect
// immediately rather than at next token refresh. Self-targeting is
// forbidden below super_admin. Any provider failure denies.
func (s *Service) CanActOnBehalfOf(ctx context.Context, adminID, targetUserID, action string) bool {
	admin, err := s.directory.GetUser(ctx, adminID)
	if err != nil {
		s.logger.Warn("admin claim re-read failed, denying",
			"admin_id", adminID,
			"action", action,
			"error", err,
		)
		return false
	}

	level, ok := LevelOf(authn.ClaimsFromMap(admin.CustomClaims))
	if !ok {
		return false
	}
	if !actionAllowed(level, action) {
		return false
	}

	// An admin acting on their own account can launder privilege
	// (self-suspend to dodge audit, self-export). Only the top tier may.
	if adminID == targetUserID && level != LevelSuperAdmin {
		return false
	}

	return true
}

// ExecuteAdminAction authorizes, audits, and runs one delegated action.
// The audit entry opens before op runs and is finalized exactly once with
// the outcome; op's error is returned unchanged.
func (s *Service) ExecuteAdminAction(ctx context.Context, req Request, op func(ctx context.Context) error) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "admin_action",
		trace.WithAttributes(
			attribute.String("admin.action", req.Action),
			attribute.String("admin.id", req.AdminID),
		))
	defer span.End()

	if !s.CanActOnBehalfOf(ctx, req.AdminID, req.TargetUserID, req.Action) {
		span.SetStatus(codes.Error, "denied")
		s.security.Record(ctx, audit.SecurityEvent{
			Type:      "admin_action_denied",
			SubjectID: req.AdminID,
			Detail:    req.Action,
			Fields:    map[string]any{"target_user_id": req.TargetUserID},
		})
		return dErrors.New(dErrors.CodeForbidden, "not authorized for this action")
	}

	entryID, err := s.recorder.Begin(ctx, req.AdminID, req.TargetUserID, req.Action, req.Reason, req.Metadata)
	if err != nil {
		span.SetStatus(codes.Error, "audit unavailable")
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "audit log unavailable")
	}

	if opErr := op(ctx); opErr != nil {
		s.recorder.FinalizeFailure(ctx, entryID, opErr)
		span.SetStatus(codes.Error, opErr.Error())
		return opErr
	}
	s.recorder.FinalizeSuccess(ctx, entryID)
	return nil
}

// ListAdmins pages through all users and returns those holding exactly the
// given tier; with LevelNone or empty it returns every admin with their
// tier. Exact-tier means a super_admin does not appear in the admin
// listing: each account shows up under its highest tier only.
func (s *Service) ListAdmins(ctx context.Context, level Level) ([]AdminUser, error) {
	var out []AdminUser
	pageToken := ""
	for {
		page, err := s.directory.ListUsers(ctx, pageToken)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not list users")
		}
		for _, user := range page.Users {
			got, ok := LevelOf(authn.ClaimsFromMap(user.CustomClaims))
			if !ok {
				continue
			}
			if level != "" && level != LevelNone && got != level {
				continue
			}
			out = append(out, AdminUser{UID: user.UID, Email: user.Email, Level: got})
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

// SetAdminLevel grants the target exactly one tier (or none), merging into
// their claims so non-tier claims survive. Level changes are privilege
// changes and always hit the security channel, separate from the action
// audit log.
func (s *Service) SetAdminLevel(ctx context.Context, actorID, subjectID string, level Level) error {
	if level != LevelNone && !level.Valid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown admin level %q", level))
	}

	if err := s.claims.SetClaims(ctx, subjectID, claimUpdatesFor(level)); err != nil {
		return err
	}

	s.security.Record(ctx, audit.SecurityEvent{
		Type:      audit.EventAdminLevelChange,
		SubjectID: subjectID,
		Detail:    string(level),
		Fields:    map[string]any{"actor_id": actorID},
	})
	return nil
}

package authn

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peakform/internal/audit"
	"peakform/internal/docstore"
	"peakform/internal/identity"
	dErrors "peakform/pkg/domain-errors"
	"peakform/pkg/requestcontext"
)

type recordedEvents struct {
	events []audit.SecurityEvent
}

func (r *recordedEvents) Record(_ context.Context, event audit.SecurityEvent) {
	r.events = append(r.events, event)
}

type fixture struct {
	service  *Service
	provider *identity.InMemoryProvider
	docs     *docstore.InMemoryStore
	security *recordedEvents
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	provider := identity.NewInMemoryProvider("test-key", "https://auth.peakform.test")
	docs := docstore.NewInMemoryStore()
	security := &recordedEvents{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		service:  NewService(provider, docs, security, logger),
		provider: provider,
		docs:     docs,
		security: security,
	}
}

func TestResolve(t *testing.T) {
	f := newFixture(t)

	t.Run("nil claims", func(t *testing.T) {
		_, err := f.service.Resolve(nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
	})

	t.Run("missing subject", func(t *testing.T) {
		_, err := f.service.Resolve(map[string]any{"email": "a@b.c"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
	})

	t.Run("full bag", func(t *testing.T) {
		authCtx, err := f.service.Resolve(map[string]any{
			"sub":            "u1",
			"email":          "a@b.c",
			"email_verified": true,
			"admin":          true,
			"premium":        true,
			"auth_time":      int64(1750000000),
			"workspace":      "coaching",
		})
		require.NoError(t, err)
		assert.Equal(t, "u1", authCtx.SubjectID)
		assert.Equal(t, "a@b.c", authCtx.Email)
		assert.True(t, authCtx.EmailVerified)
		assert.True(t, authCtx.Claims.Admin)
		assert.True(t, authCtx.Claims.Premium)
		assert.False(t, authCtx.Claims.SuperAdmin)
		assert.Equal(t, int64(1750000000), authCtx.Claims.Extra["auth_time"])
		assert.Equal(t, "coaching", authCtx.Claims.Extra["workspace"])
	})
}

func TestRequireAuth_ForcedLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.RequireAuth(ctx, map[string]any{"sub": "u1", "forceLogout": true})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	assert.EqualError(t, err, "session invalidated")

	require.Len(t, f.security.events, 1)
	assert.Equal(t, audit.EventForcedLogoutRejection, f.security.events[0].Type)
	assert.Equal(t, "u1", f.security.events[0].SubjectID)

	authCtx, err := f.service.RequireAuth(ctx, map[string]any{"sub": "u1"})
	require.NoError(t, err)
	assert.Equal(t, "u1", authCtx.SubjectID)
}

func TestVerifyBearer_Messages(t *testing.T) {
	f := newFixture(t)
	user := &identity.User{UID: "u1", Email: "u1@peakform.test"}
	f.provider.PutUser(user)
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		token, err := f.provider.Issue(ctx, user, identity.IssueOptions{})
		require.NoError(t, err)
		authCtx, err := f.service.VerifyBearer(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "u1", authCtx.SubjectID)
	})

	t.Run("expired", func(t *testing.T) {
		past := requestcontext.WithClock(ctx, func() time.Time { return time.Now().Add(-2 * time.Hour) })
		token, err := f.provider.Issue(past, user, identity.IssueOptions{TTL: time.Hour})
		require.NoError(t, err)

		_, err = f.service.VerifyBearer(ctx, token)
		assert.EqualError(t, err, "token expired")
	})

	t.Run("revoked", func(t *testing.T) {
		token, err := f.provider.Issue(ctx, user, identity.IssueOptions{})
		require.NoError(t, err)

		future := requestcontext.WithClock(ctx, func() time.Time { return time.Now().Add(time.Second) })
		require.NoError(t, f.provider.RevokeRefreshTokens(future, "u1"))

		_, err = f.service.VerifyBearer(ctx, token)
		assert.EqualError(t, err, "session invalidated, please log in again")
	})

	t.Run("garbage collapses to generic", func(t *testing.T) {
		_, err := f.service.VerifyBearer(ctx, "junk")
		assert.EqualError(t, err, "invalid token")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
	})
}

func TestCheckDeletionScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	scheduled, err := f.service.CheckDeletionScheduled(ctx, "unknown")
	require.NoError(t, err, "a missing document is the common case, not a failure")
	assert.False(t, scheduled)

	require.NoError(t, f.docs.Set(ctx, usersCollection, "u1", docstore.Doc{"deletionScheduled": true}))
	scheduled, err = f.service.CheckDeletionScheduled(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, scheduled)

	assert.NoError(t, f.service.RequireWritePermission(ctx, "unknown"))
	err = f.service.RequireWritePermission(ctx, "u1")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestRequireConsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.service.RequireConsent(ctx, "unknown")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMissingConsent))

	require.NoError(t, f.docs.Set(ctx, usersCollection, "u1", docstore.Doc{
		"termsAccepted":     true,
		"healthDataConsent": false,
	}))
	err = f.service.RequireConsent(ctx, "u1")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMissingConsent), "both flags are required, not either")

	require.NoError(t, f.docs.Update(ctx, usersCollection, "u1", docstore.Doc{"healthDataConsent": true}))
	assert.NoError(t, f.service.RequireConsent(ctx, "u1"))
}

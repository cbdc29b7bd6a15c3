package authn

import (
	"context"
	"fmt"
	"sync"
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

func TestSetClaims_MergesNotReplaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.PutUser(&identity.User{UID: "u1", CustomClaims: map[string]any{
		"premium": true,
		"support": true,
	}})

	require.NoError(t, f.service.SetClaims(ctx, "u1", map[string]any{"admin": true}))

	claims, err := f.service.GetClaims(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, claims.Admin)
	assert.True(t, claims.Premium, "unrelated claims must survive a merge")
	assert.True(t, claims.Support)
}

func TestSetClaims_NilValueDeletesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.PutUser(&identity.User{UID: "u1", CustomClaims: map[string]any{
		"forceLogout": true,
		"premium":     true,
	}})

	require.NoError(t, f.service.SetClaims(ctx, "u1", map[string]any{"forceLogout": nil}))

	user, err := f.provider.GetUser(ctx, "u1")
	require.NoError(t, err)
	_, present := user.CustomClaims["forceLogout"]
	assert.False(t, present)
	assert.Equal(t, true, user.CustomClaims["premium"])
}

func TestSetClaims_ConcurrentMergesKeepEveryKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.PutUser(&identity.User{UID: "u1"})

	const writers = 8
	const keysPerWriter = 50

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		w := w
		go func() {
			defer wg.Done()
			for i := 0; i < keysPerWriter; i++ {
				key := fmt.Sprintf("w%d_k%d", w, i)
				if err := f.service.SetClaims(ctx, "u1", map[string]any{key: true}); err != nil {
					t.Errorf("SetClaims(%s): %v", key, err)
				}
			}
		}()
	}
	wg.Wait()

	user, err := f.provider.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, user.CustomClaims, writers*keysPerWriter,
		"racing merges must not overwrite each other's keys")
}

func TestSetClaims_UnknownUser(t *testing.T) {
	f := newFixture(t)
	err := f.service.SetClaims(context.Background(), "ghost", map[string]any{"admin": true})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestSetForceLogout(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithClock(context.Background(), func() time.Time { return now })
	f.provider.PutUser(&identity.User{UID: "u1", CustomClaims: map[string]any{"premium": true}})

	require.NoError(t, f.service.SetForceLogout(ctx, "u1"))

	user, err := f.provider.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, true, user.CustomClaims["forceLogout"])
	assert.Equal(t, true, user.CustomClaims["premium"])
	assert.True(t, user.TokensValidAfter.Equal(now), "refresh tokens must be revoked in the same operation")

	doc, err := f.docs.Get(ctx, usersCollection, "u1")
	require.NoError(t, err)
	assert.True(t, docstore.Time(doc, "forceLogoutAt").Equal(now))

	require.Len(t, f.security.events, 1)
	assert.Equal(t, audit.EventSessionsRevoked, f.security.events[0].Type)
}

func TestSetForceLogout_RejectsSubsequentRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.PutUser(&identity.User{UID: "u1"})

	require.NoError(t, f.service.SetForceLogout(ctx, "u1"))

	// The stale token still carries the old claim snapshot; a fresh claim
	// read is what middleware enforces against.
	claims, err := f.service.GetClaims(ctx, "u1")
	require.NoError(t, err)
	_, err = f.service.RequireAuth(ctx, mergeSub("u1", claims.ToMap()))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestClearForceLogout_RemovesOnlyThatFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.PutUser(&identity.User{UID: "u1", CustomClaims: map[string]any{"premium": true}})

	require.NoError(t, f.service.SetForceLogout(ctx, "u1"))
	require.NoError(t, f.service.ClearForceLogout(ctx, "u1"))

	user, err := f.provider.GetUser(ctx, "u1")
	require.NoError(t, err)
	_, present := user.CustomClaims["forceLogout"]
	assert.False(t, present)
	assert.Equal(t, true, user.CustomClaims["premium"])

	doc, err := f.docs.Get(ctx, usersCollection, "u1")
	require.NoError(t, err)
	assert.False(t, docstore.Time(doc, "forceLogoutAt").IsZero(), "the audit trail timestamp stays")
}

func TestRevokeSessions(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithClock(context.Background(), func() time.Time { return now })
	f.provider.PutUser(&identity.User{UID: "u1"})

	require.NoError(t, f.service.RevokeSessions(ctx, "u1"))

	user, err := f.provider.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, user.TokensValidAfter.Equal(now))
	require.Len(t, f.security.events, 1)
	assert.Equal(t, audit.EventSessionsRevoked, f.security.events[0].Type)

	err = f.service.RevokeSessions(ctx, "ghost")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func mergeSub(sub string, claims map[string]any) map[string]any {
	out := make(map[string]any, len(claims)+1)
	for k, v := range claims {
		out[k] = v
	}
	out["sub"] = sub
	return out
}

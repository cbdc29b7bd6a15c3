package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peakform/internal/sentinel"
	"peakform/pkg/requestcontext"
)

const (
	testKey    = "unit-test-signing-key"
	testIssuer = "https://auth.peakform.test"
)

func clockAt(t time.Time) requestcontext.Clock {
	return func() time.Time { return t }
}

func TestVerifyToken_RoundTrip(t *testing.T) {
	provider := NewInMemoryProvider(testKey, testIssuer)
	user := &User{UID: "u1", Email: "u1@peakform.test", EmailVerified: true,
		CustomClaims: map[string]any{"premium": true}}
	provider.PutUser(user)

	ctx := context.Background()
	token, err := provider.Issue(ctx, user, IssueOptions{})
	require.NoError(t, err)

	bag, err := provider.VerifyToken(ctx, token, false)
	require.NoError(t, err)
	assert.Equal(t, "u1", bag["sub"])
	assert.Equal(t, "u1@peakform.test", bag["email"])
	assert.Equal(t, true, bag["email_verified"])
	assert.Equal(t, true, bag["premium"])
	assert.NotZero(t, bag["iat"])
	assert.NotZero(t, bag["auth_time"])
}

func TestVerifyToken_Expired(t *testing.T) {
	provider := NewInMemoryProvider(testKey, testIssuer)
	user := &User{UID: "u1"}
	provider.PutUser(user)

	issued := time.Now().Add(-2 * time.Hour)
	ctx := requestcontext.WithClock(context.Background(), clockAt(issued))
	token, err := provider.Issue(ctx, user, IssueOptions{TTL: time.Hour})
	require.NoError(t, err)

	_, err = provider.VerifyToken(context.Background(), token, false)
	assert.ErrorIs(t, err, sentinel.ErrExpired)
}

func TestVerifyToken_RevokedWhenIssuedBeforeWatermark(t *testing.T) {
	provider := NewInMemoryProvider(testKey, testIssuer)
	user := &User{UID: "u1"}
	provider.PutUser(user)

	base := time.Now()
	issueCtx := requestcontext.WithClock(context.Background(), clockAt(base))
	token, err := provider.Issue(issueCtx, user, IssueOptions{TTL: time.Hour})
	require.NoError(t, err)

	// Revocation lands strictly after issuance.
	revokeCtx := requestcontext.WithClock(context.Background(), clockAt(base.Add(time.Second)))
	require.NoError(t, provider.RevokeRefreshTokens(revokeCtx, "u1"))

	_, err = provider.VerifyToken(context.Background(), token, true)
	assert.ErrorIs(t, err, sentinel.ErrRevoked)

	// Without the revocation check the stale token still parses.
	_, err = provider.VerifyToken(context.Background(), token, false)
	assert.NoError(t, err)
}

func TestVerifyToken_DisabledUserIsRevoked(t *testing.T) {
	provider := NewInMemoryProvider(testKey, testIssuer)
	user := &User{UID: "u1"}
	provider.PutUser(user)

	token, err := provider.Issue(context.Background(), user, IssueOptions{})
	require.NoError(t, err)

	user.Disabled = true
	provider.PutUser(user)

	_, err = provider.VerifyToken(context.Background(), token, true)
	assert.ErrorIs(t, err, sentinel.ErrRevoked)
}

func TestVerifyToken_MalformedCases(t *testing.T) {
	provider := NewInMemoryProvider(testKey, testIssuer)
	user := &User{UID: "u1"}
	provider.PutUser(user)
	ctx := context.Background()

	t.Run("garbage", func(t *testing.T) {
		_, err := provider.VerifyToken(ctx, "not-a-token", false)
		assert.ErrorIs(t, err, sentinel.ErrMalformed)
	})

	t.Run("wrong key", func(t *testing.T) {
		other := NewInMemoryProvider("some-other-key", testIssuer)
		other.PutUser(user)
		token, err := other.Issue(ctx, user, IssueOptions{})
		require.NoError(t, err)

		_, err = provider.VerifyToken(ctx, token, false)
		assert.ErrorIs(t, err, sentinel.ErrMalformed)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewInMemoryProvider(testKey, "https://elsewhere.test")
		other.PutUser(user)
		token, err := other.Issue(ctx, user, IssueOptions{})
		require.NoError(t, err)

		_, err = provider.VerifyToken(ctx, token, false)
		assert.ErrorIs(t, err, sentinel.ErrMalformed)
	})
}

func TestListUsers_Pagination(t *testing.T) {
	provider := NewInMemoryProvider(testKey, testIssuer, WithPageSize(2))
	for _, uid := range []string{"c", "a", "e", "b", "d"} {
		provider.PutUser(&User{UID: uid})
	}
	ctx := context.Background()

	var seen []string
	token := ""
	for {
		page, err := provider.ListUsers(ctx, token)
		require.NoError(t, err)
		for _, u := range page.Users {
			seen = append(seen, u.UID)
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
}

func TestSetCustomClaims_ReplacesWholesale(t *testing.T) {
	provider := NewInMemoryProvider(testKey, testIssuer)
	provider.PutUser(&User{UID: "u1", CustomClaims: map[string]any{"admin": true, "premium": true}})
	ctx := context.Background()

	require.NoError(t, provider.SetCustomClaims(ctx, "u1", map[string]any{"support": true}))

	user, err := provider.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"support": true}, user.CustomClaims,
		"provider-level set is replace; merging is the caller's job")
}

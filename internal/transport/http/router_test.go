package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peakform/internal/adminauthz"
	"peakform/internal/audit"
	"peakform/internal/authn"
	"peakform/internal/csrf"
	"peakform/internal/docstore"
	"peakform/internal/identity"
	"peakform/internal/ratelimit"
	"peakform/internal/reauth"
)

const appOrigin = "https://app.peakform.fit"

type testStack struct {
	router   http.Handler
	provider *identity.InMemoryProvider
	docs     *docstore.InMemoryStore
	audit    *audit.Store
	resolver *authn.Service
}

func newStack(t *testing.T) *testStack {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	provider := identity.NewInMemoryProvider("test-key", "https://auth.peakform.test")
	docs := docstore.NewInMemoryStore()
	security := audit.NewSecurityEvents(logger)
	auditStore := audit.NewStore(docs)

	resolver := authn.NewService(provider, docs, security, logger)
	admin := adminauthz.NewService(provider, resolver, audit.NewRecorder(auditStore, logger), security, logger)
	limiter := ratelimit.NewLimiter(docs, ratelimit.WithLogger(logger))
	guard := reauth.NewGuard(provider, security, logger)
	validator := csrf.NewValidator(
		csrf.WithAllowedOrigins([]string{appOrigin}),
		csrf.WithSecurityEvents(security),
	)

	handler := NewHandler(resolver, admin, limiter, guard, auditStore, logger)
	return &testStack{
		router:   NewRouter(handler, validator, logger),
		provider: provider,
		docs:     docs,
		audit:    auditStore,
		resolver: resolver,
	}
}

func (s *testStack) user(t *testing.T, uid string, claims map[string]any) *identity.User {
	t.Helper()
	user := &identity.User{UID: uid, Email: uid + "@peakform.test", EmailVerified: true, CustomClaims: claims}
	s.provider.PutUser(user)
	return user
}

func (s *testStack) token(t *testing.T, user *identity.User, opts identity.IssueOptions) string {
	t.Helper()
	token, err := s.provider.Issue(context.Background(), user, opts)
	require.NoError(t, err)
	return token
}

func (s *testStack) consent(t *testing.T, uid string) {
	t.Helper()
	require.NoError(t, s.docs.Set(context.Background(), "users", uid, docstore.Doc{
		"termsAccepted":     true,
		"healthDataConsent": true,
	}))
}

func (s *testStack) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Origin", appOrigin)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.False(t, body.Success)
	return body.Error.Code
}

func TestRouter_CSRFGateRunsBeforeAuth(t *testing.T) {
	s := newStack(t)

	r := httptest.NewRequest("GET", "/v1/me", nil)
	r.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "csrf_rejected", errorCode(t, w),
		"a bad origin must be rejected before credentials are even looked at")
}

func TestRouter_AuthRequired(t *testing.T) {
	s := newStack(t)

	w := s.do("GET", "/v1/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthenticated", errorCode(t, w))
}

func TestRouter_Me(t *testing.T) {
	s := newStack(t)
	user := s.user(t, "u1", map[string]any{"premium": true})

	w := s.do("GET", "/v1/me", s.token(t, user, identity.IssueOptions{}), "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "u1", body["subject_id"])
	assert.Equal(t, true, body["premium"])
}

func TestRouter_ForcedLogoutRejectedMidSession(t *testing.T) {
	s := newStack(t)
	user := s.user(t, "u1", map[string]any{"forceLogout": true})

	w := s.do("GET", "/v1/me", s.token(t, user, identity.IssueOptions{}), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", errorCode(t, w))
}

func TestRouter_WorkoutUploadGates(t *testing.T) {
	s := newStack(t)
	user := s.user(t, "u1", nil)
	token := s.token(t, user, identity.IssueOptions{})

	w := s.do("POST", "/v1/workouts", token, "{}")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "missing_consent", errorCode(t, w))

	s.consent(t, "u1")
	w = s.do("POST", "/v1/workouts", token, "{}")
	assert.Equal(t, http.StatusAccepted, w.Code)

	// Pending erasure blocks writes even with consent in place.
	require.NoError(t, s.docs.Update(context.Background(), "users", "u1", docstore.Doc{"deletionScheduled": true}))
	w = s.do("POST", "/v1/workouts", token, "{}")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_DataExportRequiresRecentAuthAndQuota(t *testing.T) {
	s := newStack(t)
	user := s.user(t, "u1", nil)
	s.consent(t, "u1")

	stale := s.token(t, user, identity.IssueOptions{
		AuthTime: time.Now().Add(-time.Hour),
		TTL:      2 * time.Hour,
	})
	w := s.do("POST", "/v1/me/export", stale, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The rate limit gate runs before the reauth gate, so a second subject
	// starts with an untouched quota.
	other := s.user(t, "u2", nil)
	s.consent(t, "u2")
	fresh := s.token(t, other, identity.IssueOptions{})
	for i := 0; i < ratelimit.Limits["data_export"].MaxRequests; i++ {
		w = s.do("POST", "/v1/me/export", fresh, "")
		assert.Equal(t, http.StatusAccepted, w.Code, "export %d", i+1)
	}
	w = s.do("POST", "/v1/me/export", fresh, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", errorCode(t, w))
}

func TestRouter_RemainingQuota(t *testing.T) {
	s := newStack(t)
	user := s.user(t, "u1", nil)
	s.consent(t, "u1")
	token := s.token(t, user, identity.IssueOptions{})

	require.Equal(t, http.StatusAccepted, s.do("POST", "/v1/workouts", token, "{}").Code)

	w := s.do("GET", "/v1/me/limits/workout_upload", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(ratelimit.Limits["workout_upload"].MaxRequests-1), body["remaining"])
}

func TestRouter_AdminSuspend(t *testing.T) {
	s := newStack(t)
	adminUser := s.user(t, "a1", map[string]any{"admin": true})
	s.user(t, "target", nil)
	adminToken := s.token(t, adminUser, identity.IssueOptions{})

	w := s.do("POST", "/v1/admin/users/target/suspend", adminToken, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "a reason is mandatory for the audit trail")

	w = s.do("POST", "/v1/admin/users/target/suspend", adminToken, `{"reason":"tos violation"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	target, err := s.provider.GetUser(context.Background(), "target")
	require.NoError(t, err)
	assert.Equal(t, true, target.CustomClaims["forceLogout"])
	assert.False(t, target.TokensValidAfter.IsZero())

	entries, err := s.audit.ListByAdmin(context.Background(), "a1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OutcomeSuccess, entries[0].Outcome)
	assert.Equal(t, "target", entries[0].TargetUserID)
}

func TestRouter_SupportCannotSuspend(t *testing.T) {
	s := newStack(t)
	supportUser := s.user(t, "s1", map[string]any{"support": true})
	s.user(t, "target", nil)

	w := s.do("POST", "/v1/admin/users/target/suspend",
		s.token(t, supportUser, identity.IssueOptions{}), `{"reason":"x"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_DeniedAdminRequestsDoNotConsumeQuota(t *testing.T) {
	s := newStack(t)
	user := s.user(t, "u1", nil)
	token := s.token(t, user, identity.IssueOptions{})

	for i := 0; i < 5; i++ {
		w := s.do("GET", "/v1/admin/users", token, "")
		assert.Equal(t, http.StatusForbidden, w.Code, "request %d", i+1)
		assert.Equal(t, "forbidden", errorCode(t, w),
			"the admin gate must answer before the limiter, never with rate_limited")
	}

	w := s.do("GET", "/v1/me/limits/admin_action", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(ratelimit.Limits["admin_action"].MaxRequests), body["remaining"],
		"denied requests must not burn admin quota")
}

func TestRouter_SetAdminLevel(t *testing.T) {
	s := newStack(t)
	superUser := s.user(t, "sa1", map[string]any{"super_admin": true})
	adminUser := s.user(t, "a1", map[string]any{"admin": true})
	s.user(t, "target", nil)

	// An admin holds suspend but not modify_claims.
	w := s.do("PUT", "/v1/admin/users/target/level",
		s.token(t, adminUser, identity.IssueOptions{}), `{"level":"support","reason":"promotion"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do("PUT", "/v1/admin/users/target/level",
		s.token(t, superUser, identity.IssueOptions{}), `{"level":"admin","reason":"promotion"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	target, err := s.provider.GetUser(context.Background(), "target")
	require.NoError(t, err)
	assert.Equal(t, true, target.CustomClaims["admin"])
}

func TestRouter_ListAdminsExactTier(t *testing.T) {
	s := newStack(t)
	superUser := s.user(t, "sa1", map[string]any{"super_admin": true})
	s.user(t, "a1", map[string]any{"admin": true})
	s.user(t, "u1", nil)
	token := s.token(t, superUser, identity.IssueOptions{})

	w := s.do("GET", "/v1/admin/users?level=admin", token, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Admins []adminauthz.AdminUser `json:"admins"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Admins, 1)
	assert.Equal(t, "a1", body.Admins[0].UID)
}

func TestRouter_ResetRateLimit(t *testing.T) {
	s := newStack(t)
	adminUser := s.user(t, "a1", map[string]any{"admin": true})
	user := s.user(t, "u1", nil)
	s.consent(t, "u1")
	userToken := s.token(t, user, identity.IssueOptions{})
	adminToken := s.token(t, adminUser, identity.IssueOptions{})

	for n := 0; n < ratelimit.Limits["data_export"].MaxRequests; n++ {
		require.Equal(t, http.StatusAccepted, s.do("POST", "/v1/me/export", userToken, "").Code)
	}
	require.Equal(t, http.StatusTooManyRequests, s.do("POST", "/v1/me/export", userToken, "").Code)

	w := s.do("DELETE", "/v1/admin/ratelimits/data_export/u1", adminToken, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, http.StatusAccepted, s.do("POST", "/v1/me/export", userToken, "").Code)
}

func TestRouter_AuditListing(t *testing.T) {
	s := newStack(t)
	adminUser := s.user(t, "a1", map[string]any{"admin": true})
	s.user(t, "target", nil)
	token := s.token(t, adminUser, identity.IssueOptions{})

	require.Equal(t, http.StatusOK,
		s.do("POST", "/v1/admin/users/target/suspend", token, `{"reason":"abuse"}`).Code)

	w := s.do("GET", "/v1/admin/audit?admin_id=a1", token, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Entries []audit.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "suspend_user", body.Entries[0].Action)
}

func TestRouter_Healthz(t *testing.T) {
	s := newStack(t)
	r := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

package middleware

import (
	"net"
	"net/http"
	"strings"

	"peakform/internal/adminauthz"
	"peakform/internal/authn"
	"peakform/internal/csrf"
	"peakform/internal/ratelimit"
	"peakform/internal/reauth"
	"peakform/internal/transport/http/shared"
	dErrors "peakform/pkg/domain-errors"
	"peakform/pkg/requestcontext"
)

// CSRF is the first gate: it rejects requests whose origin fails the
// validator with the shared error envelope and a 403.
func CSRF(validator *csrf.Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if result := validator.Validate(r); !result.Valid {
				shared.WriteError(w, dErrors.New(dErrors.CodeCSRF, "origin not allowed"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate verifies the bearer token and attaches the resolved auth
// context. Missing or bad credentials end the request here.
func Authenticate(resolver *authn.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				shared.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
				return
			}

			authCtx, err := resolver.VerifyBearer(r.Context(), token)
			if err != nil {
				shared.WriteError(w, err)
				return
			}

			ctx := WithAuthContext(r.Context(), authCtx)
			ctx = requestcontext.WithSubjectID(ctx, authCtx.SubjectID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdminAction gates a route on the caller's token-snapshot tier
// allowing the action. Delegated per-target checks happen inside the
// handler via ExecuteAdminAction.
func RequireAdminAction(engine *adminauthz.Service, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r.Context())
			if authCtx == nil {
				shared.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
				return
			}
			if err := engine.RequireAction(authCtx, action); err != nil {
				shared.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit consumes one request from the named quota, keyed by subject
// when authenticated and by client IP otherwise.
func RateLimit(limiter *ratelimit.Limiter, limitName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if authCtx := GetAuthContext(r.Context()); authCtx != nil {
				key = authCtx.SubjectID
			} else {
				key = clientIP(r)
			}
			if err := limiter.Check(r.Context(), limitName, key); err != nil {
				shared.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRecentAuth is the last gate, applied only to irreversible
// operations.
func RequireRecentAuth(guard *reauth.Guard, operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r.Context())
			if authCtx == nil {
				shared.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
				return
			}
			if err := guard.RequireReauthForSensitiveOp(r.Context(), authCtx, operation); err != nil {
				shared.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr; the edge proxy's X-Forwarded-For
// handling happens upstream of this service.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

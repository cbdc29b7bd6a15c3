// Package csrf validates request origins against an allow-list. Browser
// clients send Origin (or at least Referer); the mobile shells send a
// non-URL scheme marker or nothing at all, so a missing origin is accepted
// by default and only StrictMode turns it into a rejection.
package csrf

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/mssola/useragent"

	"peakform/internal/audit"
)

// defaultSchemeMarkers are the origin schemes the mobile shells report.
var defaultSchemeMarkers = []string{
	"capacitor://",
	"ionic://",
	"file://",
}

// loopbackHosts are the hosts the dev flag relaxes to any port.
var loopbackHosts = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"[::1]":     {},
}

// CheckResult is the outcome of one origin check. Reason is set only on
// rejection and names what failed, with the literal origin kept separately.
type CheckResult struct {
	Valid  bool
	Origin string
	Reason string
}

type securityRecorder interface {
	Record(ctx context.Context, event audit.SecurityEvent)
}

// Validator checks request origins. Validate is pure with respect to the
// validator's state; the allow-list mutates only through AddAllowedOrigin.
type Validator struct {
	mu      sync.RWMutex
	allowed map[string]struct{}

	schemeMarkers      []string
	allowMissingOrigin bool
	strictMode         bool
	devMode            bool
	security           securityRecorder
}

// Option configures the validator.
type Option func(*Validator)

// WithAllowedOrigins seeds the allow-list.
func WithAllowedOrigins(origins []string) Option {
	return func(v *Validator) {
		for _, o := range origins {
			v.allowed[normalizeOrigin(o)] = struct{}{}
		}
	}
}

// WithSchemeMarkers replaces the mobile-shell scheme markers.
func WithSchemeMarkers(markers []string) Option {
	return func(v *Validator) {
		v.schemeMarkers = append([]string(nil), markers...)
	}
}

// WithStrictMode rejects requests that carry no origin at all. This breaks
// native mobile clients and exists for browser-only deployments.
func WithStrictMode() Option {
	return func(v *Validator) {
		v.strictMode = true
		v.allowMissingOrigin = false
	}
}

// WithDevMode accepts any loopback origin regardless of port, for local
// dev servers and emulators.
func WithDevMode() Option {
	return func(v *Validator) {
		v.devMode = true
	}
}

// WithSecurityEvents wires rejections into the security event channel.
func WithSecurityEvents(rec securityRecorder) Option {
	return func(v *Validator) {
		v.security = rec
	}
}

// NewValidator creates a validator. Missing origins are allowed unless
// StrictMode is set.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		allowed:            make(map[string]struct{}),
		schemeMarkers:      append([]string(nil), defaultSchemeMarkers...),
		allowMissingOrigin: true,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks the request's Origin header, falling back to the Referer
// host when Origin is absent. Rejections are recorded on the security
// channel with the literal offending origin and the client platform.
func (v *Validator) Validate(r *http.Request) CheckResult {
	origin := r.Header.Get("Origin")
	if origin == "" {
		if ref := r.Header.Get("Referer"); ref != "" {
			if u, err := url.Parse(ref); err == nil && u.Host != "" {
				origin = u.Scheme + "://" + u.Host
			}
		}
	}

	result := v.check(origin)
	if !result.Valid && v.security != nil {
		ua := useragent.New(r.UserAgent())
		osInfo := ua.OSInfo()
		v.security.Record(r.Context(), audit.SecurityEvent{
			Type:   audit.EventCSRFRejection,
			Detail: result.Reason,
			Fields: map[string]any{
				"origin":   origin,
				"path":     r.URL.Path,
				"platform": ua.Platform(),
				"os":       osInfo.Name,
			},
		})
	}
	return result
}

func (v *Validator) check(origin string) CheckResult {
	if origin == "" {
		if v.allowMissingOrigin {
			return CheckResult{Valid: true}
		}
		return CheckResult{Valid: false, Reason: "missing origin"}
	}

	for _, marker := range v.schemeMarkers {
		if strings.HasPrefix(origin, marker) {
			return CheckResult{Valid: true, Origin: origin}
		}
	}

	normalized := normalizeOrigin(origin)

	if v.devMode && isLoopback(normalized) {
		return CheckResult{Valid: true, Origin: origin}
	}

	v.mu.RLock()
	_, ok := v.allowed[normalized]
	v.mu.RUnlock()
	if ok {
		return CheckResult{Valid: true, Origin: origin}
	}
	return CheckResult{Valid: false, Origin: origin, Reason: "origin not allowed"}
}

// AddAllowedOrigin adds one origin to the allow-list at runtime. Adding an
// origin twice is a no-op.
func (v *Validator) AddAllowedOrigin(origin string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.allowed[normalizeOrigin(origin)] = struct{}{}
}

// AllowedOrigins returns a sorted copy of the allow-list.
func (v *Validator) AllowedOrigins() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.allowed))
	for o := range v.allowed {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// normalizeOrigin lowercases and strips a trailing slash so configured and
// received origins compare equal.
func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(origin)), "/")
}

// isLoopback reports whether a normalized origin points at a loopback
// host, on any port.
func isLoopback(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if host == "::1" {
		host = "[::1]"
	}
	_, ok := loopbackHosts[host]
	return ok
}

// Package authn resolves raw token claims into a typed auth context and
// manages the custom-claim lifecycle: admin tiers, premium, force-logout,
// deletion flags. It is the single place raw claim maps are interpreted.
package authn

// Custom claim keys as they appear in provider tokens and claim bags.
const (
	ClaimAdmin             = "admin"
	ClaimSuperAdmin        = "super_admin"
	ClaimSupport           = "support"
	ClaimPremium           = "premium"
	ClaimForceLogout       = "forceLogout"
	ClaimDeletionScheduled = "deletionScheduled"
)

// wellKnown lists the claim keys lifted into typed fields; everything else
// rides in Extra.
var wellKnown = map[string]struct{}{
	ClaimAdmin:             {},
	ClaimSuperAdmin:        {},
	ClaimSupport:           {},
	ClaimPremium:           {},
	ClaimForceLogout:       {},
	ClaimDeletionScheduled: {},
}

// Claims is the typed view of a user's custom claims. Unknown keys are kept
// in Extra so claim merges never drop fields this code does not model.
type Claims struct {
	Admin             bool
	SuperAdmin        bool
	Support           bool
	Premium           bool
	ForceLogout       bool
	DeletionScheduled bool
	Extra             map[string]any
}

// Context is the resolved identity of a request. SubjectID is never empty
// on a Context returned by this package.
type Context struct {
	SubjectID     string
	Email         string
	EmailVerified bool
	Claims        Claims
}

// ClaimsFromMap lifts a raw claim bag into the typed shape. Absent or
// non-boolean values read as false, matching how token claims degrade when
// a client or an older token omits them.
func ClaimsFromMap(raw map[string]any) Claims {
	claims := Claims{
		Admin:             boolClaim(raw, ClaimAdmin),
		SuperAdmin:        boolClaim(raw, ClaimSuperAdmin),
		Support:           boolClaim(raw, ClaimSupport),
		Premium:           boolClaim(raw, ClaimPremium),
		ForceLogout:       boolClaim(raw, ClaimForceLogout),
		DeletionScheduled: boolClaim(raw, ClaimDeletionScheduled),
	}
	for k, v := range raw {
		if _, ok := wellKnown[k]; ok {
			continue
		}
		if claims.Extra == nil {
			claims.Extra = make(map[string]any)
		}
		claims.Extra[k] = v
	}
	return claims
}

// ToMap flattens typed claims back into the provider's claim-bag shape.
// False booleans are written explicitly so a merge can clear a flag.
func (c Claims) ToMap() map[string]any {
	out := make(map[string]any, len(c.Extra)+6)
	for k, v := range c.Extra {
		out[k] = v
	}
	out[ClaimAdmin] = c.Admin
	out[ClaimSuperAdmin] = c.SuperAdmin
	out[ClaimSupport] = c.Support
	out[ClaimPremium] = c.Premium
	out[ClaimForceLogout] = c.ForceLogout
	out[ClaimDeletionScheduled] = c.DeletionScheduled
	return out
}

func boolClaim(raw map[string]any, key string) bool {
	v, ok := raw[key].(bool)
	return ok && v
}

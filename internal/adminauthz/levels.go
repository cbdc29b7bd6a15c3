// Package adminauthz implements the three-tier delegated-admin permission
// model: support < admin < super_admin, each with a closed set of allowed
// actions. Authorization decisions for delegated actions re-read live
// claims instead of trusting the caller's token snapshot.
package adminauthz

import "peakform/internal/authn"

// Level is an admin tier.
type Level string

const (
	LevelSupport    Level = "support"
	LevelAdmin      Level = "admin"
	LevelSuperAdmin Level = "super_admin"

	// LevelNone removes all admin tiers in SetAdminLevel.
	LevelNone Level = "none"
)

// Admin actions. The sets below are closed: an action not listed for a
// tier is denied, full stop.
const (
	ActionViewUserData   = "view_user_data"
	ActionExportUserData = "export_user_data"
	ActionSuspendUser    = "suspend_user"
	ActionDeleteUserData = "delete_user_data"
	ActionModifyClaims   = "modify_claims"
)

var levelActions = map[Level][]string{
	LevelSupport: {
		ActionViewUserData,
	},
	LevelAdmin: {
		ActionViewUserData,
		ActionExportUserData,
		ActionSuspendUser,
	},
	LevelSuperAdmin: {
		ActionViewUserData,
		ActionExportUserData,
		ActionSuspendUser,
		ActionDeleteUserData,
		ActionModifyClaims,
	},
}

var levelRank = map[Level]int{
	LevelSupport:    1,
	LevelAdmin:      2,
	LevelSuperAdmin: 3,
}

// Valid reports whether l names a real tier.
func (l Level) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// Permissions is a tier plus its allowed actions.
type Permissions struct {
	Level   Level
	Actions []string
}

// LevelOf returns the highest tier the claims grant, if any. A super_admin
// claim wins over admin, which wins over support; holding a higher tier
// does not require the lower flags to be set.
func LevelOf(claims authn.Claims) (Level, bool) {
	switch {
	case claims.SuperAdmin:
		return LevelSuperAdmin, true
	case claims.Admin:
		return LevelAdmin, true
	case claims.Support:
		return LevelSupport, true
	}
	return "", false
}

// ActionsFor returns the closed action set of a tier. The returned slice is
// a copy.
func ActionsFor(level Level) []string {
	return append([]string(nil), levelActions[level]...)
}

// actionAllowed reports whether the tier's closed set contains the action.
func actionAllowed(level Level, action string) bool {
	for _, a := range levelActions[level] {
		if a == action {
			return true
		}
	}
	return false
}

// claimUpdatesFor translates a target tier into a claim merge: the chosen
// tier flag set, the other tier flags removed. Non-tier claims are
// untouched by the merge.
func claimUpdatesFor(level Level) map[string]any {
	updates := map[string]any{
		authn.ClaimSupport:    nil,
		authn.ClaimAdmin:      nil,
		authn.ClaimSuperAdmin: nil,
	}
	switch level {
	case LevelSupport:
		updates[authn.ClaimSupport] = true
	case LevelAdmin:
		updates[authn.ClaimAdmin] = true
	case LevelSuperAdmin:
		updates[authn.ClaimSuperAdmin] = true
	}
	return updates
}

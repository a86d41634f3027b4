package ratelimit

import "time"

// Built-in policies applied at the HTTP boundary.
var (
	PolicyComments     = Policy{Name: "comments", Limit: 20, Window: time.Hour, Scope: ScopeUser}
	PolicyPhotoUploads = Policy{Name: "photos", Limit: 500, Window: 24 * time.Hour, Scope: ScopeUser}
	PolicyGeocode      = Policy{Name: "geocode", Limit: 20, Window: time.Minute, Scope: ScopeUserOrIP}
	PolicyProfile      = Policy{Name: "profile", Limit: 500, Window: time.Hour, Scope: ScopeUserOrIP}
	PolicyFeed         = Policy{Name: "feed", Limit: 500, Window: time.Hour, Scope: ScopeUserOrIP}
	PolicyFriendAdd    = Policy{Name: "friends", Limit: 30, Window: 24 * time.Hour, Scope: ScopeUser}
	PolicyImport       = Policy{Name: "import", Limit: 30, Window: time.Hour, Scope: ScopeUser}
	PolicyExport       = Policy{Name: "export", Limit: 100, Window: 24 * time.Hour, Scope: ScopeUser}
	PolicyTripWrite    = Policy{Name: "trips", Limit: 30, Window: time.Hour, Scope: ScopeUser}
	PolicyLike         = Policy{Name: "likes", Limit: 100, Window: time.Hour, Scope: ScopeUser}
	PolicySearch       = Policy{Name: "search", Limit: 60, Window: time.Hour, Scope: ScopeUser}
	PolicyAvatar       = Policy{Name: "avatar", Limit: 30, Window: 24 * time.Hour, Scope: ScopeUser}
	PolicyLogin        = Policy{Name: "login", Limit: 10, Window: time.Hour, Scope: ScopeIP}
	PolicyVerify       = Policy{Name: "verify", Limit: 5, Window: time.Hour, Scope: ScopeIP}
)

// Policies lists every built-in policy.
func Policies() []Policy {
	return []Policy{
		PolicyComments, PolicyPhotoUploads, PolicyGeocode, PolicyProfile,
		PolicyFeed, PolicyFriendAdd, PolicyImport, PolicyExport,
		PolicyTripWrite, PolicyLike, PolicySearch, PolicyAvatar,
		PolicyLogin, PolicyVerify,
	}
}

// Resolve applies any configured override to policy.
func Resolve(policy Policy, cfg SettingsConfig) Policy {
	if cfg.Disabled {
		policy.Limit = 0
		return policy
	}
	if rate, ok := cfg.Overrides[policy.Name]; ok {
		policy.Limit = rate.Limit
		policy.Window = rate.Window
	}
	return policy
}

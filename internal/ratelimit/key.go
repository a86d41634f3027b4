package ratelimit

import (
	"fmt"
	"strings"
)

// KeyFor builds a limiter key for policy. An empty key means the request
// is not limited.
func KeyFor(policy Policy, userID uint64, ip string) string {
	if policy.Limit <= 0 || policy.Name == "" {
		return ""
	}
	ip = strings.TrimSpace(ip)
	switch policy.Scope {
	case ScopeUser:
		if userID == 0 {
			return ""
		}
		return fmt.Sprintf("%s:u:%d", policy.Name, userID)
	case ScopeIP:
		if ip == "" {
			return ""
		}
		return fmt.Sprintf("%s:ip:%s", policy.Name, ip)
	case ScopeUserOrIP:
		if userID != 0 {
			return fmt.Sprintf("%s:u:%d", policy.Name, userID)
		}
		if ip == "" {
			return ""
		}
		return fmt.Sprintf("%s:ip:%s", policy.Name, ip)
	default:
		return ""
	}
}

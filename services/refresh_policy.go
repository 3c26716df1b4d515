package services

import (
	"dr-tracker-service/models"
	"time"
)

// Refresh intervals by subscription tier: paid domains refresh 4x daily,
// free domains once daily.
const (
	PaidRefreshInterval = 6 * time.Hour
	FreeRefreshInterval = 24 * time.Hour
)

// RefreshInterval returns the automatic refresh interval for a tier
func RefreshInterval(tier string) time.Duration {
	if tier == models.SubscriptionPaid {
		return PaidRefreshInterval
	}
	return FreeRefreshInterval
}

// IsDue reports whether a domain is due for an automatic refresh. Domains
// that have never been checked are always due. Soft-deleted domains must be
// filtered out by the caller before consulting the policy.
func IsDue(domain *models.Domain, tier string, now time.Time) bool {
	if domain.LastChecked.IsZero() {
		return true
	}
	return now.Sub(domain.LastChecked) >= RefreshInterval(tier)
}

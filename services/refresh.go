package services

import (
	"dr-tracker-service/models"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

// RefreshResult describes a completed refresh of one domain
type RefreshResult struct {
	DomainID         uint      `json:"id"`
	URL              string    `json:"url"`
	NormalizedURL    string    `json:"normalized_url"`
	PreviousDA       int       `json:"previous_da"`
	CurrentDA        int       `json:"current_da"`
	DAChange         int       `json:"da_change"`
	Backlinks        *int      `json:"backlinks,omitempty"`
	ReferringDomains *int      `json:"referring_domains,omitempty"`
	LastChecked      time.Time `json:"last_checked"`
}

// BulkItem is the per-domain outcome of a bulk refresh
type BulkItem struct {
	ID      uint           `json:"id"`
	URL     string         `json:"url"`
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Result  *RefreshResult `json:"result,omitempty"`
}

// BulkSummary aggregates a bulk refresh
type BulkSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BulkResult is the response of a bulk refresh call
type BulkResult struct {
	Summary   BulkSummary `json:"summary"`
	Results   []BulkItem  `json:"results"`
	RateLimit LimitStatus `json:"rate_limit"`
}

// SweepStats reports one scheduled sweep run
type SweepStats struct {
	Total     int `json:"total_domains"`
	Processed int `json:"processed"`
	Refreshed int `json:"refreshed"`
	Errors    int `json:"errors"`
	Skipped   int `json:"skipped"`
}

// RefreshService orchestrates one domain's refresh cycle: policy check,
// quota admission (interactive paths), metrics fetch, persistence and
// alerting. Used by the scheduled sweep and the manual/bulk endpoints.
type RefreshService struct {
	db            *gorm.DB
	provider      MetricsProvider
	prefs         *PreferenceService
	milestones    *MilestoneService
	email         *EmailService
	singleLimiter *Limiter
	bulkLimiter   *Limiter
}

func NewRefreshService(
	db *gorm.DB,
	provider MetricsProvider,
	prefs *PreferenceService,
	milestones *MilestoneService,
	email *EmailService,
	singleLimiter, bulkLimiter *Limiter,
) *RefreshService {
	return &RefreshService{
		db:            db,
		provider:      provider,
		prefs:         prefs,
		milestones:    milestones,
		email:         email,
		singleLimiter: singleLimiter,
		bulkLimiter:   bulkLimiter,
	}
}

func refreshSubject(userID uint) string {
	return fmt.Sprintf("refresh:%d", userID)
}

// RefreshOne performs an interactive refresh of a single domain. Manual
// refresh is a paid-only capability; admission happens before any side
// effect.
func (s *RefreshService) RefreshOne(domainID, userID uint) (*RefreshResult, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, ErrNotFound
	}

	if user.Tier() != models.SubscriptionPaid {
		return nil, ErrForbidden
	}

	subject := refreshSubject(userID)
	status, ok := s.singleLimiter.Reserve(subject, 1)
	if !ok {
		return nil, &RateLimitedError{
			Limit:     s.singleLimiter.Max(),
			Remaining: s.singleLimiter.Max() - status.Count,
			ResetAt:   status.ResetAt,
		}
	}

	var domain models.Domain
	if err := s.db.Where("id = ? AND user_id = ?", domainID, userID).First(&domain).Error; err != nil {
		s.singleLimiter.Release(subject, 1)
		return nil, ErrNotFound
	}

	result, err := s.refreshDomain(&domain, &user, time.Now())
	if err != nil {
		// The operation was not performed; give the quota unit back.
		s.singleLimiter.Release(subject, 1)
		return nil, err
	}
	return result, nil
}

// BulkRefresh refreshes all of a user's active domains. The whole batch
// must fit the remaining quota before any element is processed; partial
// admission is not permitted. The counter ends up charged only for domains
// actually refreshed.
func (s *RefreshService) BulkRefresh(userID uint) (*BulkResult, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, ErrNotFound
	}

	if user.Tier() != models.SubscriptionPaid {
		return nil, ErrForbidden
	}

	var domains []models.Domain
	if err := s.db.Where("user_id = ?", userID).Find(&domains).Error; err != nil {
		return nil, err
	}
	if len(domains) == 0 {
		return nil, ErrNotFound
	}

	subject := refreshSubject(userID)
	status, ok := s.bulkLimiter.Reserve(subject, len(domains))
	if !ok {
		remaining := s.bulkLimiter.Max() - status.Count
		if remaining < 0 {
			remaining = 0
		}
		return nil, &RateLimitedError{
			Limit:     s.bulkLimiter.Max(),
			Remaining: remaining,
			ResetAt:   status.ResetAt,
		}
	}

	now := time.Now()
	results := make([]BulkItem, 0, len(domains))
	successful := 0
	failed := 0

	for i := range domains {
		domain := &domains[i]
		result, err := s.refreshDomain(domain, &user, now)
		if err != nil {
			log.Printf("[Bulk Refresh] Error processing domain %d (%s): %v", domain.ID, domain.URL, err)
			results = append(results, BulkItem{ID: domain.ID, URL: domain.URL, Success: false, Error: err.Error()})
			failed++
			continue
		}
		results = append(results, BulkItem{ID: domain.ID, URL: domain.URL, Success: true, Result: result})
		successful++
	}

	if failed > 0 {
		s.bulkLimiter.Release(subject, failed)
	}

	return &BulkResult{
		Summary:   BulkSummary{Total: len(domains), Successful: successful, Failed: failed},
		Results:   results,
		RateLimit: s.bulkLimiter.Check(subject),
	}, nil
}

// RunSweep refreshes every active domain that is due per its owner's tier.
// Per-domain errors are counted and skipped; the sweep never aborts early.
func (s *RefreshService) RunSweep() (*SweepStats, error) {
	now := time.Now()

	var domains []models.Domain
	if err := s.db.Find(&domains).Error; err != nil {
		return nil, err
	}

	stats := &SweepStats{Total: len(domains)}
	log.Printf("[Domain Monitor] Processing %d domains", len(domains))

	for i := range domains {
		domain := &domains[i]
		stats.Processed++

		var user models.User
		if err := s.db.First(&user, domain.UserID).Error; err != nil {
			log.Printf("[Domain Monitor] No user found for domain %d", domain.ID)
			stats.Skipped++
			continue
		}

		tier := user.Tier()
		if !IsDue(domain, tier, now) {
			stats.Skipped++
			continue
		}

		log.Printf("[Domain Monitor] Refreshing %s (%s)", domain.NormalizedURL, tier)
		if _, err := s.refreshDomain(domain, &user, now); err != nil {
			stats.Errors++
			log.Printf("[Domain Monitor] Error processing domain %d: %v", domain.ID, err)
			continue
		}
		stats.Refreshed++
	}

	return stats, nil
}

// refreshDomain runs steps shared by all refresh paths: fetch, usage
// tracking, delta computation, transactional persist, alerting, milestones.
// On a fetch or persistence failure the domain is left untouched.
func (s *RefreshService) refreshDomain(domain *models.Domain, user *models.User, now time.Time) (*RefreshResult, error) {
	metrics, err := s.provider.GetDomainMetrics(domain.NormalizedURL)
	if err != nil {
		return nil, err
	}

	// Cost tracking is best-effort and never blocks the refresh
	s.recordAPIUsage(domain.NormalizedURL)

	previousDA := domain.CurrentDA
	currentDA := metrics.DomainAuthority
	daChange := currentDA - previousDA

	// The domain update and its snapshot are one logical unit: neither may
	// land without the other.
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Domain{}).Where("id = ?", domain.ID).Updates(map[string]interface{}{
			"previous_da":  previousDA,
			"current_da":   currentDA,
			"da_change":    daChange,
			"last_checked": now,
		}).Error; err != nil {
			return err
		}

		snapshot := models.DRSnapshot{
			DomainID:         domain.ID,
			DAValue:          currentDA,
			Backlinks:        metrics.Backlinks,
			ReferringDomains: metrics.ReferringDomains,
			RecordedAt:       now,
		}
		return tx.Create(&snapshot).Error
	})
	if err != nil {
		return nil, &UpstreamError{Op: "refresh persist", Err: err}
	}

	domain.PreviousDA = previousDA
	domain.CurrentDA = currentDA
	domain.DAChange = daChange
	domain.LastChecked = now

	// Instant alert: "no change" and "below threshold" are independent
	// gates, both always applied.
	if daChange != 0 {
		if s.prefs.ShouldSendInstantAlert(domain.ID) && abs(daChange) >= s.prefs.GetChangeThreshold(domain.ID) {
			log.Printf("[Domain Monitor] Sending instant alert for %s: DR %d -> %d (%+d)",
				domain.NormalizedURL, previousDA, currentDA, daChange)
			if result := s.email.SendDRChangeAlert(user, domain, previousDA, currentDA, daChange); !result.Success {
				log.Printf("[Domain Monitor] Failed to send instant alert for %s: %s", domain.NormalizedURL, result.Error)
			}
		}
	}

	s.milestones.CheckAndCelebrate(domain, user.Email, user.ID, previousDA, currentDA)

	return &RefreshResult{
		DomainID:         domain.ID,
		URL:              domain.URL,
		NormalizedURL:    domain.NormalizedURL,
		PreviousDA:       previousDA,
		CurrentDA:        currentDA,
		DAChange:         daChange,
		Backlinks:        metrics.Backlinks,
		ReferringDomains: metrics.ReferringDomains,
		LastChecked:      now,
	}, nil
}

func (s *RefreshService) recordAPIUsage(domain string) {
	usage := models.APIUsage{
		Provider: "karmalabs",
		Domain:   domain,
		Cost:     0.01,
	}
	if err := s.db.Create(&usage).Error; err != nil {
		log.Printf("[API Usage] Failed to track: %v", err)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

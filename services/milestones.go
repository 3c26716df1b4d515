package services

import (
	"dr-tracker-service/models"
	"errors"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"
)

// DAMilestones is the ladder of DR thresholds worth celebrating
var DAMilestones = []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

// MilestoneService guarantees each (domain, threshold) crossing is
// celebrated exactly once. The (domain_id, da_value) uniqueness constraint
// on domain_milestones is the safeguard under concurrent refresh cycles.
type MilestoneService struct {
	db         *gorm.DB
	prefs      *PreferenceService
	email      *EmailService
	milestones []int
}

func NewMilestoneService(db *gorm.DB, prefs *PreferenceService, email *EmailService) *MilestoneService {
	return &MilestoneService{db: db, prefs: prefs, email: email, milestones: DAMilestones}
}

// achievedMilestones returns the thresholds newly crossed by moving from
// oldDA to newDA, in ascending order. A threshold counts only when the old
// value was strictly below it; a domain already sitting at or above a
// threshold does not re-achieve it.
func (s *MilestoneService) achievedMilestones(oldDA, newDA int) []int {
	var achieved []int
	for _, m := range s.milestones {
		if oldDA < m && newDA >= m {
			achieved = append(achieved, m)
		}
	}
	sort.Ints(achieved)
	return achieved
}

// CheckAndCelebrate records and celebrates any milestones newly achieved by
// the given DA change. Duplicate records from concurrent refreshes are
// absorbed silently; email failures are logged but never block later
// thresholds and never unmark a recorded celebration.
func (s *MilestoneService) CheckAndCelebrate(domain *models.Domain, userEmail string, userID uint, oldDA, newDA int) {
	achieved := s.achievedMilestones(oldDA, newDA)
	if len(achieved) == 0 {
		return
	}

	if !s.prefs.ShouldSendMilestoneCelebration(domain.ID) {
		log.Printf("[Milestone] Skipping celebrations for %s - disabled by user", domain.URL)
		return
	}

	var existing []models.DomainMilestone
	if err := s.db.Where("domain_id = ?", domain.ID).Find(&existing).Error; err != nil {
		log.Printf("[Milestone] Failed to load milestones for %s: %v", domain.URL, err)
		return
	}

	celebrated := make(map[int]bool, len(existing))
	for _, m := range existing {
		celebrated[m.DAValue] = m.Celebrated
	}

	for _, milestone := range achieved {
		if done, ok := celebrated[milestone]; ok && done {
			continue
		}

		now := time.Now()
		record := models.DomainMilestone{
			DomainID:     domain.ID,
			DAValue:      milestone,
			Celebrated:   true,
			CelebratedAt: &now,
		}

		if err := s.db.Create(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Lost the race to a concurrent refresh. If the winner
				// already celebrated, skip without a duplicate email.
				var winner models.DomainMilestone
				if ferr := s.db.Where("domain_id = ? AND da_value = ?", domain.ID, milestone).First(&winner).Error; ferr == nil && winner.Celebrated {
					log.Printf("[Milestone] DR %d already celebrated for %s", milestone, domain.URL)
					continue
				}
			}
			log.Printf("[Milestone] Failed to record DR %d for %s: %v", milestone, domain.URL, err)
			continue
		}

		log.Printf("[Milestone] Celebrating DR %d for %s", milestone, domain.URL)
		if result := s.email.SendMilestoneCelebration(userEmail, userID, domain, milestone); !result.Success {
			// The record stays celebrated: avoiding duplicate emails is
			// prioritized over guaranteed delivery.
			log.Printf("[Milestone] Email failed for DR %d %s: %s", milestone, domain.URL, result.Error)
		}
	}
}

package services

import (
	"dr-tracker-service/models"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"
)

// Inactivity warnings fire on exactly these days of inactivity
var inactivityWarningDays = []int{7, 9}

// DailyBatchStats reports one daily batch run
type DailyBatchStats struct {
	DomainsUpdated int `json:"domains_updated"`
	UsersProcessed int `json:"users_processed"`
	EmailsSent     int `json:"emails_sent"`
	EmailsSkipped  int `json:"emails_skipped"`
}

// WeeklyRecapStats reports one weekly recap run
type WeeklyRecapStats struct {
	Ran            bool `json:"ran"` // false when invoked on a day other than Monday
	UsersProcessed int  `json:"users_processed"`
	EmailsSent     int  `json:"emails_sent"`
	EmailsSkipped  int  `json:"emails_skipped"`
	EmailsFailed   int  `json:"emails_failed"`
}

// InactivityStats reports one inactivity check run
type InactivityStats struct {
	UsersProcessed   int `json:"users_processed"`
	WarningsSent7Day int `json:"warnings_sent_7_days"`
	WarningsSent9Day int `json:"warnings_sent_9_days"`
	WarningsSkipped  int `json:"warnings_skipped"`
}

// NotifierService runs the scheduled notification jobs that are not tied to
// a single refresh cycle: daily batches for free users, Monday recaps and
// inactivity warnings.
type NotifierService struct {
	db    *gorm.DB
	prefs *PreferenceService
	email *EmailService
}

func NewNotifierService(db *gorm.DB, prefs *PreferenceService, email *EmailService) *NotifierService {
	return &NotifierService{db: db, prefs: prefs, email: email}
}

// RunDailyBatch sends a summary of the last 24 hours of changes to each
// free user. Paid users are skipped since they get instant alerts.
func (s *NotifierService) RunDailyBatch(now time.Time) (*DailyBatchStats, error) {
	since := now.Add(-24 * time.Hour)

	var domains []models.Domain
	if err := s.db.Where("last_checked >= ?", since).Find(&domains).Error; err != nil {
		return nil, err
	}

	stats := &DailyBatchStats{DomainsUpdated: len(domains)}
	log.Printf("[Daily Batch] Found %d domains updated in the last 24 hours", len(domains))

	type userBatch struct {
		user        *models.User
		firstDomain uint
		changes     []DomainChange
	}
	batches := make(map[uint]*userBatch)

	for i := range domains {
		domain := &domains[i]

		batch, ok := batches[domain.UserID]
		if !ok {
			var user models.User
			if err := s.db.First(&user, domain.UserID).Error; err != nil {
				log.Printf("[Daily Batch] No user found for domain %d", domain.ID)
				continue
			}
			if user.Tier() == models.SubscriptionPaid {
				continue
			}
			batch = &userBatch{user: &user, firstDomain: domain.ID}
			batches[domain.UserID] = batch
		}

		batch.changes = append(batch.changes, DomainChange{
			URL:    domain.URL,
			OldDA:  domain.PreviousDA,
			NewDA:  domain.CurrentDA,
			Change: domain.DAChange,
		})
	}

	stats.UsersProcessed = len(batches)
	log.Printf("[Daily Batch] Processing %d free users", len(batches))

	for _, batch := range batches {
		if !s.prefs.ShouldSendDailyBatch(batch.firstDomain) {
			stats.EmailsSkipped++
			continue
		}

		changed := make([]DomainChange, 0, len(batch.changes))
		for _, ch := range batch.changes {
			if ch.Change != 0 {
				changed = append(changed, ch)
			}
		}
		if len(changed) == 0 {
			stats.EmailsSkipped++
			continue
		}

		if result := s.email.SendDailyBatch(batch.user, changed); result.Success {
			stats.EmailsSent++
		} else {
			stats.EmailsSkipped++
		}
	}

	return stats, nil
}

// RunWeeklyRecap sends each user a recap of the past week, computed from
// the earliest snapshot in the week versus the current value. Only runs on
// Mondays (UTC); other days report Ran=false.
func (s *NotifierService) RunWeeklyRecap(now time.Time) (*WeeklyRecapStats, error) {
	stats := &WeeklyRecapStats{}

	utc := now.UTC()
	if utc.Weekday() != time.Monday {
		return stats, nil
	}
	stats.Ran = true

	thisMonday := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	lastMonday := thisMonday.AddDate(0, 0, -7)

	var users []models.User
	if err := s.db.Find(&users).Error; err != nil {
		return nil, err
	}

	for i := range users {
		user := &users[i]

		var domains []models.Domain
		if err := s.db.Where("user_id = ?", user.ID).Find(&domains).Error; err != nil || len(domains) == 0 {
			continue
		}
		stats.UsersProcessed++

		if !s.prefs.ShouldSendWeeklyRecap(domains[0].ID) {
			stats.EmailsSkipped++
			continue
		}

		recap, ok := s.buildWeeklyStats(domains, lastMonday, thisMonday)
		if !ok {
			stats.EmailsSkipped++
			continue
		}

		if result := s.email.SendWeeklyRecap(user, recap); result.Success {
			stats.EmailsSent++
		} else {
			stats.EmailsFailed++
		}
	}

	return stats, nil
}

func (s *NotifierService) buildWeeklyStats(domains []models.Domain, weekStart, weekEnd time.Time) (WeeklyStats, bool) {
	domainIDs := make([]uint, len(domains))
	byID := make(map[uint]*models.Domain, len(domains))
	for i := range domains {
		domainIDs[i] = domains[i].ID
		byID[domains[i].ID] = &domains[i]
	}

	var snapshots []models.DRSnapshot
	if err := s.db.
		Where("domain_id IN ? AND recorded_at >= ? AND recorded_at < ?", domainIDs, weekStart, weekEnd).
		Order("recorded_at asc").
		Find(&snapshots).Error; err != nil || len(snapshots) == 0 {
		return WeeklyStats{}, false
	}

	// Earliest snapshot per domain marks the start-of-week value
	startDA := make(map[uint]int)
	for _, snap := range snapshots {
		if _, seen := startDA[snap.DomainID]; !seen {
			startDA[snap.DomainID] = snap.DAValue
		}
	}

	var changes []DomainChange
	totalDA := 0
	for id, start := range startDA {
		domain := byID[id]
		if domain == nil {
			continue
		}
		changes = append(changes, DomainChange{
			URL:    domain.URL,
			OldDA:  start,
			NewDA:  domain.CurrentDA,
			Change: domain.CurrentDA - start,
		})
		totalDA += domain.CurrentDA
	}
	if len(changes) == 0 {
		return WeeklyStats{}, false
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Change > changes[j].Change })

	return WeeklyStats{
		TotalDomains: len(changes),
		AverageDA:    float64(totalDA) / float64(len(changes)),
		TopPerformer: changes[0],
		BiggestLoser: changes[len(changes)-1],
		WeekStart:    weekStart.Format("2006-01-02"),
		WeekEnd:      weekEnd.Format("2006-01-02"),
	}, true
}

// RunInactivityCheck warns users whose domains have not been checked for
// exactly 7 or 9 days.
func (s *NotifierService) RunInactivityCheck(now time.Time) (*InactivityStats, error) {
	stats := &InactivityStats{}

	var users []models.User
	if err := s.db.Find(&users).Error; err != nil {
		return nil, err
	}

	for i := range users {
		user := &users[i]

		var domains []models.Domain
		if err := s.db.Where("user_id = ?", user.ID).Find(&domains).Error; err != nil || len(domains) == 0 {
			continue
		}
		stats.UsersProcessed++

		var lastActivity time.Time
		for _, domain := range domains {
			if domain.LastChecked.After(lastActivity) {
				lastActivity = domain.LastChecked
			}
		}
		if lastActivity.IsZero() {
			continue
		}

		daysInactive := int(now.Sub(lastActivity).Hours() / 24)
		warningDay := 0
		for _, d := range inactivityWarningDays {
			if daysInactive == d {
				warningDay = d
				break
			}
		}
		if warningDay == 0 {
			continue
		}

		if !s.prefs.ShouldSendInactivityWarning(domains[0].ID) {
			stats.WarningsSkipped++
			continue
		}

		log.Printf("[Inactivity] Sending %d-day warning to %s", warningDay, user.Email)
		if result := s.email.SendInactivityWarning(user, warningDay, len(domains)); result.Success {
			if warningDay == 7 {
				stats.WarningsSent7Day++
			} else {
				stats.WarningsSent9Day++
			}
		} else {
			stats.WarningsSkipped++
		}
	}

	return stats, nil
}

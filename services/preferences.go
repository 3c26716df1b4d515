package services

import (
	"dr-tracker-service/models"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"
)

// PreferenceService is the single source of truth for per-domain
// notification settings. Preferences are created lazily with defaults the
// first time any component asks for them, so domains added before the
// notification system existed still resolve correctly.
type PreferenceService struct {
	db *gorm.DB
}

func NewPreferenceService(db *gorm.DB) *PreferenceService {
	return &PreferenceService{db: db}
}

// Documented defaults: instant alerts are opt-in (paid feature), everything
// else is opt-out. Every defaulting decision lives here; callers must not
// hardcode their own fallbacks.
func defaultPreferences(domainID uint) models.NotificationPreferences {
	return models.NotificationPreferences{
		DomainID:              domainID,
		InstantAlerts:         false,
		DailyBatch:            true,
		WeeklyRecaps:          true,
		MilestoneCelebrations: true,
		InactivityWarnings:    true,
		DAThreshold:           1,
	}
}

// GetPreferences returns the domain's preferences, creating the default row
// if none exists yet. A lost creation race (another caller inserted first)
// is absorbed by re-fetching the winner's row.
func (s *PreferenceService) GetPreferences(domainID uint) (*models.NotificationPreferences, error) {
	var prefs models.NotificationPreferences
	err := s.db.Where("domain_id = ?", domainID).First(&prefs).Error
	if err == nil {
		return &prefs, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	prefs = defaultPreferences(domainID)
	if createErr := s.db.Create(&prefs).Error; createErr != nil {
		if errors.Is(createErr, gorm.ErrDuplicatedKey) {
			var existing models.NotificationPreferences
			if err := s.db.Where("domain_id = ?", domainID).First(&existing).Error; err != nil {
				return nil, err
			}
			return &existing, nil
		}
		return nil, createErr
	}

	log.Printf("[Preferences] Lazy-initialized preferences for domain %d", domainID)
	return &prefs, nil
}

// ShouldSendInstantAlert reports whether instant alerts are enabled.
// Defaults to false when preferences cannot be resolved.
func (s *PreferenceService) ShouldSendInstantAlert(domainID uint) bool {
	prefs, err := s.GetPreferences(domainID)
	if err != nil {
		return false
	}
	return prefs.InstantAlerts
}

// ShouldSendDailyBatch defaults to true
func (s *PreferenceService) ShouldSendDailyBatch(domainID uint) bool {
	prefs, err := s.GetPreferences(domainID)
	if err != nil {
		return true
	}
	return prefs.DailyBatch
}

// ShouldSendWeeklyRecap defaults to true
func (s *PreferenceService) ShouldSendWeeklyRecap(domainID uint) bool {
	prefs, err := s.GetPreferences(domainID)
	if err != nil {
		return true
	}
	return prefs.WeeklyRecaps
}

// ShouldSendMilestoneCelebration defaults to true
func (s *PreferenceService) ShouldSendMilestoneCelebration(domainID uint) bool {
	prefs, err := s.GetPreferences(domainID)
	if err != nil {
		return true
	}
	return prefs.MilestoneCelebrations
}

// ShouldSendInactivityWarning defaults to true
func (s *PreferenceService) ShouldSendInactivityWarning(domainID uint) bool {
	prefs, err := s.GetPreferences(domainID)
	if err != nil {
		return true
	}
	return prefs.InactivityWarnings
}

// GetChangeThreshold returns the minimum absolute DA change that triggers
// an instant alert. Defaults to 1.
func (s *PreferenceService) GetChangeThreshold(domainID uint) int {
	prefs, err := s.GetPreferences(domainID)
	if err != nil || prefs.DAThreshold < 1 {
		return 1
	}
	return prefs.DAThreshold
}

// PreferencesPatch is a partial preferences update. Nil fields are left
// untouched.
type PreferencesPatch struct {
	InstantAlerts         *bool `json:"instant_alerts"`
	DailyBatch            *bool `json:"daily_batch"`
	WeeklyRecaps          *bool `json:"weekly_recaps"`
	MilestoneCelebrations *bool `json:"milestone_celebrations"`
	InactivityWarnings    *bool `json:"inactivity_warnings"`
	DAThreshold           *int  `json:"da_threshold"`
}

// UpdatePreferences validates and applies a partial update, stamping
// updated_at. Returns the stored preferences after the update.
func (s *PreferenceService) UpdatePreferences(domainID uint, patch PreferencesPatch) (*models.NotificationPreferences, error) {
	if patch.DAThreshold != nil && (*patch.DAThreshold < 1 || *patch.DAThreshold > 100) {
		return nil, &ValidationError{Field: "da_threshold", Reason: "must be between 1 and 100"}
	}

	// Ensure the row exists before updating it
	if _, err := s.GetPreferences(domainID); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if patch.InstantAlerts != nil {
		updates["instant_alerts"] = *patch.InstantAlerts
	}
	if patch.DailyBatch != nil {
		updates["daily_batch"] = *patch.DailyBatch
	}
	if patch.WeeklyRecaps != nil {
		updates["weekly_recaps"] = *patch.WeeklyRecaps
	}
	if patch.InactivityWarnings != nil {
		updates["inactivity_warnings"] = *patch.InactivityWarnings
	}
	if patch.MilestoneCelebrations != nil {
		updates["milestone_celebrations"] = *patch.MilestoneCelebrations
	}
	if patch.DAThreshold != nil {
		updates["da_threshold"] = *patch.DAThreshold
	}

	if err := s.db.Model(&models.NotificationPreferences{}).
		Where("domain_id = ?", domainID).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	var prefs models.NotificationPreferences
	if err := s.db.Where("domain_id = ?", domainID).First(&prefs).Error; err != nil {
		return nil, err
	}
	return &prefs, nil
}

package services

import (
	"testing"
	"time"

	"dr-tracker-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMilestoneFixture(t *testing.T) (*MilestoneService, *fakeMailer, *models.Domain, *models.User, *PreferenceService) {
	t.Helper()

	db := newTestDB(t)
	mailer := &fakeMailer{}
	email := NewEmailService(db, mailer)
	prefs := NewPreferenceService(db)
	svc := NewMilestoneService(db, prefs, email)

	user := createTestUser(t, db, models.SubscriptionPaid)
	domain := createTestDomain(t, db, user.ID, "example.com", 0)

	return svc, mailer, domain, user, prefs
}

func TestAchievedMilestones(t *testing.T) {
	svc, _, _, _, _ := newMilestoneFixture(t)

	tests := []struct {
		name  string
		oldDA int
		newDA int
		want  []int
	}{
		{"crosses two thresholds", 8, 23, []int{10, 20}},
		{"no movement at threshold", 25, 25, nil},
		{"already at threshold", 30, 35, nil},
		{"single crossing", 9, 10, []int{10}},
		{"drop achieves nothing", 50, 20, nil},
		{"full sweep", 0, 100, []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.achievedMilestones(tt.oldDA, tt.newDA))
		})
	}
}

func TestCheckAndCelebrateRecordsAndEmails(t *testing.T) {
	svc, mailer, domain, user, _ := newMilestoneFixture(t)

	svc.CheckAndCelebrate(domain, user.Email, user.ID, 8, 23)

	var records []models.DomainMilestone
	require.NoError(t, svc.db.Where("domain_id = ?", domain.ID).Order("da_value asc").Find(&records).Error)
	require.Len(t, records, 2)
	assert.Equal(t, 10, records[0].DAValue)
	assert.Equal(t, 20, records[1].DAValue)
	for _, r := range records {
		assert.True(t, r.Celebrated)
		assert.NotNil(t, r.CelebratedAt)
	}

	assert.Len(t, mailer.Sent(), 2)
}

func TestCheckAndCelebrateIsIdempotent(t *testing.T) {
	svc, mailer, domain, user, _ := newMilestoneFixture(t)

	svc.CheckAndCelebrate(domain, user.Email, user.ID, 8, 23)
	svc.CheckAndCelebrate(domain, user.Email, user.ID, 8, 23)

	var count int64
	svc.db.Model(&models.DomainMilestone{}).Where("domain_id = ?", domain.ID).Count(&count)
	assert.EqualValues(t, 2, count)
	assert.Len(t, mailer.Sent(), 2)
}

func TestCheckAndCelebrateSkipsAlreadyCelebrated(t *testing.T) {
	svc, mailer, domain, user, _ := newMilestoneFixture(t)

	now := time.Now()
	require.NoError(t, svc.db.Create(&models.DomainMilestone{
		DomainID:     domain.ID,
		DAValue:      10,
		Celebrated:   true,
		CelebratedAt: &now,
	}).Error)

	svc.CheckAndCelebrate(domain, user.Email, user.ID, 8, 23)

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Subject, "DR 20")
}

func TestCheckAndCelebratePreferenceGate(t *testing.T) {
	svc, mailer, domain, user, prefs := newMilestoneFixture(t)

	disable := false
	_, err := prefs.UpdatePreferences(domain.ID, PreferencesPatch{MilestoneCelebrations: &disable})
	require.NoError(t, err)

	svc.CheckAndCelebrate(domain, user.Email, user.ID, 8, 55)

	var count int64
	svc.db.Model(&models.DomainMilestone{}).Where("domain_id = ?", domain.ID).Count(&count)
	assert.EqualValues(t, 0, count)
	assert.Empty(t, mailer.Sent())
}

func TestCheckAndCelebrateEmailFailureKeepsRecord(t *testing.T) {
	svc, mailer, domain, user, _ := newMilestoneFixture(t)
	mailer.fail = true

	svc.CheckAndCelebrate(domain, user.Email, user.ID, 8, 23)

	// Both thresholds were still recorded as celebrated
	var records []models.DomainMilestone
	require.NoError(t, svc.db.Where("domain_id = ?", domain.ID).Find(&records).Error)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.True(t, r.Celebrated)
	}

	// A later run does not retry the email
	mailer.fail = false
	svc.CheckAndCelebrate(domain, user.Email, user.ID, 8, 23)
	assert.Empty(t, mailer.Sent())
}

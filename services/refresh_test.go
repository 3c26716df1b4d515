package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"dr-tracker-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type refreshFixture struct {
	db       *gorm.DB
	svc      *RefreshService
	provider *fakeProvider
	mailer   *fakeMailer
	prefs    *PreferenceService
	single   *Limiter
	bulk     *Limiter
}

func newRefreshFixture(t *testing.T, singleMax, bulkMax int) *refreshFixture {
	t.Helper()

	db := newTestDB(t)
	provider := newFakeProvider()
	mailer := &fakeMailer{}
	email := NewEmailService(db, mailer)
	prefs := NewPreferenceService(db)
	milestones := NewMilestoneService(db, prefs, email)
	single := NewLimiter(singleMax, time.Hour)
	bulk := NewLimiter(bulkMax, 30*time.Minute)

	return &refreshFixture{
		db:       db,
		svc:      NewRefreshService(db, provider, prefs, milestones, email, single, bulk),
		provider: provider,
		mailer:   mailer,
		prefs:    prefs,
		single:   single,
		bulk:     bulk,
	}
}

func TestRefreshOneUpdatesDomainAndSnapshot(t *testing.T) {
	f := newRefreshFixture(t, 10, 50)

	user := createTestUser(t, f.db, models.SubscriptionPaid)
	domain := createTestDomain(t, f.db, user.ID, "example.com", 40)
	f.provider.set("example.com", 45)

	result, err := f.svc.RefreshOne(domain.ID, user.ID)
	require.NoError(t, err)

	assert.Equal(t, 40, result.PreviousDA)
	assert.Equal(t, 45, result.CurrentDA)
	assert.Equal(t, 5, result.DAChange)
	assert.Equal(t, result.DAChange, result.CurrentDA-result.PreviousDA)

	var stored models.Domain
	require.NoError(t, f.db.First(&stored, domain.ID).Error)
	assert.Equal(t, 45, stored.CurrentDA)
	assert.Equal(t, 40, stored.PreviousDA)
	assert.Equal(t, 5, stored.DAChange)
	assert.False(t, stored.LastChecked.IsZero())

	var snapshots []models.DRSnapshot
	require.NoError(t, f.db.Where("domain_id = ?", domain.ID).Find(&snapshots).Error)
	require.Len(t, snapshots, 1)
	assert.Equal(t, 45, snapshots[0].DAValue)

	// Usage ledger records the provider call
	var usage int64
	f.db.Model(&models.APIUsage{}).Count(&usage)
	assert.EqualValues(t, 1, usage)
}

func TestRefreshOneRequiresPaidPlan(t *testing.T) {
	f := newRefreshFixture(t, 10, 50)

	for _, status := range []string{models.SubscriptionFree, models.SubscriptionCancelled} {
		user := createTestUser(t, f.db, status)
		domain := createTestDomain(t, f.db, user.ID, fmt.Sprintf("%s.com", status), 10)

		_, err := f.svc.RefreshOne(domain.ID, user.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	}

	// No quota was consumed by rejected calls
	assert.EqualValues(t, 0, f.provider.calls)
}

func TestRefreshOneRateLimited(t *testing.T) {
	f := newRefreshFixture(t, 2, 50)

	user := createTestUser(t, f.db, models.SubscriptionPaid)
	domain := createTestDomain(t, f.db, user.ID, "example.com", 10)
	f.provider.set("example.com", 12)

	_, err := f.svc.RefreshOne(domain.ID, user.ID)
	require.NoError(t, err)
	_, err = f.svc.RefreshOne(domain.ID, user.ID)
	require.NoError(t, err)

	_, err = f.svc.RefreshOne(domain.ID, user.ID)
	var rateLimited *RateLimitedError
	require.ErrorAs(t, err, &rateLimited)
	assert.Equal(t, 2, rateLimited.Limit)
	assert.Equal(t, 0, rateLimited.Remaining)
	assert.False(t, rateLimited.ResetAt.IsZero())
}

func TestRefreshOneUnknownDomainReleasesQuota(t *testing.T) {
	f := newRefreshFixture(t, 1, 50)

	user := createTestUser(t, f.db, models.SubscriptionPaid)
	domain := createTestDomain(t, f.db, user.ID, "example.com", 10)
	f.provider.set("example.com", 12)

	_, err := f.svc.RefreshOne(99999, user.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The failed attempt did not burn the single quota unit
	_, err = f.svc.RefreshOne(domain.ID, user.ID)
	assert.NoError(t, err)
}

func TestRefreshOneProviderFailureLeavesDomainUntouched(t *testing.T) {
	f := newRefreshFixture(t, 10, 50)

	user := createTestUser(t, f.db, models.SubscriptionPaid)
	domain := createTestDomain(t, f.db, user.ID, "example.com", 40)
	f.provider.err = errors.New("provider down")

	_, err := f.svc.RefreshOne(domain.ID, user.ID)
	require.Error(t, err)

	var stored models.Domain
	require.NoError(t, f.db.First(&stored, domain.ID).Error)
	assert.Equal(t, 40, stored.CurrentDA)
	assert.True(t, stored.LastChecked.IsZero())

	var snapshots int64
	f.db.Model(&models.DRSnapshot{}).Count(&snapshots)
	assert.EqualValues(t, 0, snapshots)
}

func TestRefreshOneSkipsDeletedDomain(t *testing.T) {
	f := newRefreshFixture(t, 10, 50)

	user := createTestUser(t, f.db, models.SubscriptionPaid)
	domain := createTestDomain(t, f.db, user.ID, "example.com", 40)
	require.NoError(t, f.db.Delete(domain).Error)

	_, err := f.svc.RefreshOne(domain.ID, user.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInstantAlertGating(t *testing.T) {
	f := newRefreshFixture(t, 100, 50)

	user := createTestUser(t, f.db, models.SubscriptionPaid)
	domain := createTestDomain(t, f.db, user.ID, "example.com", 40)

	enable := true
	threshold := 5
	_, err := f.prefs.UpdatePreferences(domain.ID, PreferencesPatch{
		InstantAlerts: &enable,
		DAThreshold:   &threshold,
	})
	require.NoError(t, err)

	// Change of +3 is below the threshold of 5: no alert
	f.provider.set("example.com", 43)
	_, err = f.svc.RefreshOne(domain.ID, user.ID)
	require.NoError(t, err)
	assert.Empty(t, f.mailer.Sent())

	// No change at all: no alert regardless of threshold
	_, err = f.svc.RefreshOne(domain.ID, user.ID)
	require.NoError(t, err)
	assert.Empty(t, f.mailer.Sent())

	// Drop of 6 clears the threshold on absolute value
	f.provider.set("example.com", 37)
	_, err = f.svc.RefreshOne(domain.ID, user.ID)
	require.NoError(t, err)

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Subject, "-6")
}

func TestInstantAlertDisabledByDefault(t *testing.T) {
	f := newRefreshFixture(t, 100, 50)

	user := createTestUser(t, f.db, models.SubscriptionPaid)
	domain := createTestDomain(t, f.db, user.ID, "example.com", 1)
	f.provider.set("example.com", 9)

	_, err := f.svc.RefreshOne(domain.ID, user.ID)
	require.NoError(t, err)
	assert.Empty(t, f.mailer.Sent())
}

func TestBulkRefreshAllDomains(t *testing.T) {
	f := newRefreshFixture(t, 10, 50)

	user := createTestUser(t, f.db, models.SubscriptionPaid)
	for i := 0; i < 3; i++ {
		url := fmt.Sprintf("site%d.com", i)
		createTestDomain(t, f.db, user.ID, url, 10)
		f.provider.set(url, 15)
	}

	result, err := f.svc.BulkRefresh(user.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Summary.Total)
	assert.Equal(t, 3, result.Summary.Successful)
	assert.Equal(t, 0, result.Summary.Failed)
	assert.Len(t, result.Results, 3)
	assert.Equal(t, 3, result.RateLimit.Count)
}

func TestBulkRefreshAdmissionIsAllOrNothing(t *testing.T) {
	f := newRefreshFixture(t, 10, 5)

	user := createTestUser(t, f.db, models.SubscriptionPaid)
	for i := 0; i < 10; i++ {
		url := fmt.Sprintf("site%d.com", i)
		createTestDomain(t, f.db, user.ID, url, 10)
		f.provider.set(url, 15)
	}

	// 10 domains cannot fit a quota of 5: the whole batch is rejected
	_, err := f.svc.BulkRefresh(user.ID)
	var rateLimited *RateLimitedError
	require.ErrorAs(t, err, &rateLimited)
	assert.Equal(t, 5, rateLimited.Limit)

	// Nothing was processed and nothing was charged
	assert.EqualValues(t, 0, f.provider.calls)
	assert.Equal(t, 0, f.bulk.Check(refreshSubject(user.ID)).Count)
}

func TestBulkRefreshChargesOnlyPerformedWork(t *testing.T) {
	f := newRefreshFixture(t, 10, 50)

	user := createTestUser(t, f.db, models.SubscriptionPaid)
	createTestDomain(t, f.db, user.ID, "good.com", 10)
	createTestDomain(t, f.db, user.ID, "bad.com", 10)
	f.provider.set("good.com", 15)
	// bad.com has no metrics and will fail

	result, err := f.svc.BulkRefresh(user.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Summary.Successful)
	assert.Equal(t, 1, result.Summary.Failed)

	// Only the successful refresh stays on the counter
	assert.Equal(t, 1, f.bulk.Check(refreshSubject(user.ID)).Count)
}

func TestBulkRefreshRequiresPaidPlan(t *testing.T) {
	f := newRefreshFixture(t, 10, 50)

	user := createTestUser(t, f.db, models.SubscriptionFree)
	createTestDomain(t, f.db, user.ID, "example.com", 10)

	_, err := f.svc.BulkRefresh(user.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestBulkRefreshNoDomains(t *testing.T) {
	f := newRefreshFixture(t, 10, 50)

	user := createTestUser(t, f.db, models.SubscriptionPaid)

	_, err := f.svc.BulkRefresh(user.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunSweepRefreshesDueDomains(t *testing.T) {
	f := newRefreshFixture(t, 10, 50)

	paid := createTestUser(t, f.db, models.SubscriptionPaid)
	free := createTestUser(t, f.db, models.SubscriptionFree)

	// Paid, checked 7h ago: due (6h interval)
	duePaid := createTestDomain(t, f.db, paid.ID, "due-paid.com", 10)
	require.NoError(t, f.db.Model(duePaid).Update("last_checked", time.Now().Add(-7*time.Hour)).Error)
	f.provider.set("due-paid.com", 12)

	// Free, checked 7h ago: not due (24h interval)
	notDueFree := createTestDomain(t, f.db, free.ID, "fresh-free.com", 10)
	require.NoError(t, f.db.Model(notDueFree).Update("last_checked", time.Now().Add(-7*time.Hour)).Error)

	// Never checked: always due
	createTestDomain(t, f.db, free.ID, "never.com", 0)
	f.provider.set("never.com", 5)

	stats, err := f.svc.RunSweep()
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Refreshed)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Errors)
}

func TestRunSweepContinuesPastErrors(t *testing.T) {
	f := newRefreshFixture(t, 10, 50)

	user := createTestUser(t, f.db, models.SubscriptionPaid)
	createTestDomain(t, f.db, user.ID, "broken.com", 10)
	good := createTestDomain(t, f.db, user.ID, "good.com", 10)
	f.provider.set("good.com", 20)

	stats, err := f.svc.RunSweep()
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Refreshed)
	assert.Equal(t, 1, stats.Errors)

	var stored models.Domain
	require.NoError(t, f.db.First(&stored, good.ID).Error)
	assert.Equal(t, 20, stored.CurrentDA)
}

func TestRunSweepIgnoresDeletedDomains(t *testing.T) {
	f := newRefreshFixture(t, 10, 50)

	user := createTestUser(t, f.db, models.SubscriptionPaid)
	domain := createTestDomain(t, f.db, user.ID, "gone.com", 10)
	require.NoError(t, f.db.Delete(domain).Error)

	stats, err := f.svc.RunSweep()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestRunSweepDoesNotConsumeInteractiveQuota(t *testing.T) {
	f := newRefreshFixture(t, 1, 1)

	user := createTestUser(t, f.db, models.SubscriptionPaid)
	createTestDomain(t, f.db, user.ID, "a.com", 10)
	createTestDomain(t, f.db, user.ID, "b.com", 10)
	f.provider.set("a.com", 11)
	f.provider.set("b.com", 12)

	stats, err := f.svc.RunSweep()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Refreshed)

	assert.Equal(t, 0, f.single.Check(refreshSubject(user.ID)).Count)
	assert.Equal(t, 0, f.bulk.Check(refreshSubject(user.ID)).Count)
}

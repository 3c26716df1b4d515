package services

import (
	"testing"
	"time"

	"dr-tracker-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newBudgetFixture(t *testing.T, budget float64) (*BudgetService, *fakeMailer, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	mailer := &fakeMailer{}
	email := NewEmailService(db, mailer)
	svc := NewBudgetService(db, email, budget, "ops@example.com")

	return svc, mailer, db
}

func recordSpend(t *testing.T, db *gorm.DB, cost float64, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.APIUsage{
		Provider:  "karmalabs",
		Domain:    "example.com",
		Cost:      cost,
		CreatedAt: at,
	}).Error)
}

func TestBudgetStatusWithNoSpend(t *testing.T) {
	svc, _, _ := newBudgetFixture(t, 50)

	status := svc.CheckStatus(time.Now())
	assert.Equal(t, 0.0, status.TotalSpent)
	assert.Equal(t, 50.0, status.Budget)
	assert.Equal(t, 0.0, status.PercentUsed)
	assert.Equal(t, 50.0, status.Remaining)
	assert.False(t, status.IsOverBudget)
	assert.False(t, status.IsNearLimit)
}

func TestBudgetStatusCountsCurrentMonthOnly(t *testing.T) {
	svc, _, db := newBudgetFixture(t, 50)
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	recordSpend(t, db, 10, now.Add(-24*time.Hour))
	// Last month's spend must not count
	recordSpend(t, db, 30, time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC))

	status := svc.CheckStatus(now)
	assert.InDelta(t, 10.0, status.TotalSpent, 1e-9)
	assert.InDelta(t, 20.0, status.PercentUsed, 1e-9)
}

func TestBudgetCheckBelowThresholdNoAlert(t *testing.T) {
	svc, mailer, db := newBudgetFixture(t, 50)
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	recordSpend(t, db, 25, now.Add(-time.Hour))

	stats := svc.RunBudgetCheck(now)
	assert.False(t, stats.AlertSent)
	assert.Empty(t, mailer.Sent())
}

func TestBudgetCheckAlertsAtSeventyPercent(t *testing.T) {
	svc, mailer, db := newBudgetFixture(t, 50)
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	recordSpend(t, db, 35, now.Add(-time.Hour))

	stats := svc.RunBudgetCheck(now)
	assert.True(t, stats.AlertSent)
	assert.False(t, stats.Status.IsOverBudget)
	assert.False(t, stats.Status.IsNearLimit)

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ops@example.com", sent[0].To)
	assert.Equal(t, "API Budget Alert", sent[0].Subject)
}

func TestBudgetCheckOverBudget(t *testing.T) {
	svc, mailer, db := newBudgetFixture(t, 50)
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	recordSpend(t, db, 60, now.Add(-time.Hour))

	stats := svc.RunBudgetCheck(now)
	assert.True(t, stats.AlertSent)
	assert.True(t, stats.Status.IsOverBudget)
	assert.True(t, stats.Status.IsNearLimit)
	assert.Equal(t, 0.0, stats.Status.Remaining)

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Subject, "EXCEEDED")
}

func TestBudgetCheckAlertFailureReported(t *testing.T) {
	svc, mailer, db := newBudgetFixture(t, 50)
	mailer.fail = true
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	recordSpend(t, db, 40, now.Add(-time.Hour))

	stats := svc.RunBudgetCheck(now)
	assert.False(t, stats.AlertSent)
	assert.InDelta(t, 80.0, stats.Status.PercentUsed, 1e-9)
}

package services

import (
	"dr-tracker-service/models"
	"log"
	"time"

	"gorm.io/gorm"
)

// Budget thresholds as fractions of the monthly budget: alerts start at 70%
// spend, the near-limit flag trips at 80%.
const (
	budgetAlertThreshold = 0.7
	budgetWarnThreshold  = 0.8
)

// BudgetStatus describes the current month's metrics provider spend
type BudgetStatus struct {
	TotalSpent   float64 `json:"total_spent"`
	Budget       float64 `json:"budget"`
	PercentUsed  float64 `json:"percent_used"`
	Remaining    float64 `json:"remaining"`
	IsOverBudget bool    `json:"is_over_budget"`
	IsNearLimit  bool    `json:"is_near_limit"`
}

// BudgetCheckStats reports one budget monitor run
type BudgetCheckStats struct {
	Status    BudgetStatus `json:"budget"`
	AlertSent bool         `json:"alert_sent"`
}

// BudgetService watches the api_usage ledger and warns the operator when
// monthly provider spend approaches or exceeds the configured budget.
type BudgetService struct {
	db         *gorm.DB
	email      *EmailService
	budget     float64
	alertEmail string
}

func NewBudgetService(db *gorm.DB, email *EmailService, budget float64, alertEmail string) *BudgetService {
	return &BudgetService{db: db, email: email, budget: budget, alertEmail: alertEmail}
}

// monthlySpending sums the ledger from the first of the current month.
// Ledger read failures are absorbed as zero spend so the check never blocks
// other cron jobs.
func (s *BudgetService) monthlySpending(now time.Time) float64 {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var total float64
	if err := s.db.Model(&models.APIUsage{}).
		Where("created_at >= ?", monthStart).
		Select("COALESCE(SUM(cost), 0)").
		Scan(&total).Error; err != nil {
		log.Printf("[Budget Monitor] Error calculating spending: %v", err)
		return 0
	}
	return total
}

// CheckStatus computes the current month's budget position
func (s *BudgetService) CheckStatus(now time.Time) BudgetStatus {
	spent := s.monthlySpending(now)
	percentUsed := 0.0
	if s.budget > 0 {
		percentUsed = spent / s.budget * 100
	}
	remaining := s.budget - spent
	if remaining < 0 {
		remaining = 0
	}

	return BudgetStatus{
		TotalSpent:   spent,
		Budget:       s.budget,
		PercentUsed:  percentUsed,
		Remaining:    remaining,
		IsOverBudget: spent >= s.budget,
		IsNearLimit:  percentUsed >= budgetWarnThreshold*100,
	}
}

// RunBudgetCheck evaluates the monthly spend and alerts the operator once
// usage reaches the alert threshold. The alert is best-effort; a send
// failure is reported in the stats but does not fail the run.
func (s *BudgetService) RunBudgetCheck(now time.Time) *BudgetCheckStats {
	status := s.CheckStatus(now)
	stats := &BudgetCheckStats{Status: status}

	if status.PercentUsed < budgetAlertThreshold*100 {
		return stats
	}

	log.Printf("[Budget Monitor] Spend at %.1f%% of budget ($%.2f / $%.2f)",
		status.PercentUsed, status.TotalSpent, status.Budget)
	if result := s.email.SendBudgetAlert(s.alertEmail, status); result.Success {
		stats.AlertSent = true
	}

	return stats
}

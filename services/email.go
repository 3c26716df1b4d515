package services

import (
	"bytes"
	"dr-tracker-service/config"
	"dr-tracker-service/models"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Email type identifiers, recorded in the email audit log
const (
	EmailTypeDRChangeAlert        = "dr-change-alert"
	EmailTypeDailyBatch           = "daily-batch"
	EmailTypeWeeklyRecap          = "weekly-recap"
	EmailTypeMilestoneCelebration = "milestone-celebration"
	EmailTypeInactivityWarning    = "inactivity-warning"
	EmailTypeBudgetAlert          = "budget-alert"
)

// SendResult reports the outcome of a dispatch attempt. Mailers never
// return Go errors: alerting is best-effort and callers log and continue.
type SendResult struct {
	Success bool
	Error   string
}

// Mailer delivers a single email
type Mailer interface {
	Send(to, subject, body string) SendResult
}

// PlunkClient delivers email through the Plunk transactional API
type PlunkClient struct {
	apiKey     string
	httpClient *http.Client
}

func NewPlunkClient() *PlunkClient {
	return &PlunkClient{
		apiKey:     config.AppConfig.PlunkAPIKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

const plunkSendURL = "https://api.useplunk.com/v1/send"

func (p *PlunkClient) Send(to, subject, body string) SendResult {
	if p.apiKey == "" {
		return SendResult{Success: false, Error: "PLUNK_SECRET_API_KEY is not configured"}
	}

	payload, err := json.Marshal(map[string]string{
		"to":      to,
		"subject": subject,
		"body":    body,
	})
	if err != nil {
		return SendResult{Success: false, Error: err.Error()}
	}

	req, err := http.NewRequest(http.MethodPost, plunkSendURL, bytes.NewReader(payload))
	if err != nil {
		return SendResult{Success: false, Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return SendResult{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return SendResult{Success: false, Error: fmt.Sprintf("plunk API returned status %d: %s", resp.StatusCode, string(respBody))}
	}

	return SendResult{Success: true}
}

// EmailService renders notification emails, dispatches them through the
// configured Mailer and keeps a best-effort audit trail in email_logs.
type EmailService struct {
	db     *gorm.DB
	mailer Mailer
}

func NewEmailService(db *gorm.DB, mailer Mailer) *EmailService {
	return &EmailService{db: db, mailer: mailer}
}

func (s *EmailService) send(to, emailType string, userID, domainID uint, subject, body string) SendResult {
	result := s.mailer.Send(to, subject, body)

	status := "sent"
	if !result.Success {
		status = "failed"
		log.Printf("[Email] Failed to send %s to %s: %s", emailType, to, result.Error)
	}

	// Audit logging must never fail the send
	logEntry := models.EmailLog{
		UserID:       userID,
		DomainID:     domainID,
		EmailTo:      to,
		EmailType:    emailType,
		Status:       status,
		ErrorMessage: result.Error,
		SentAt:       time.Now(),
	}
	if err := s.db.Create(&logEntry).Error; err != nil {
		log.Printf("[Email Log] Failed to log email: %v", err)
	}

	return result
}

// SendDRChangeAlert dispatches an instant change alert
func (s *EmailService) SendDRChangeAlert(user *models.User, domain *models.Domain, oldDA, newDA, change int) SendResult {
	direction := "increased"
	if change < 0 {
		direction = "decreased"
	}

	subject := fmt.Sprintf("DR Change Alert: %s %+d", domain.URL, change)
	body := fmt.Sprintf(
		"<h2>Domain Rating %s</h2><p><strong>%s</strong> %s from DR %d to DR %d (%+d).</p>",
		direction, domain.URL, direction, oldDA, newDA, change,
	)

	return s.send(user.Email, EmailTypeDRChangeAlert, user.ID, domain.ID, subject, body)
}

// SendMilestoneCelebration dispatches a one-time milestone celebration
func (s *EmailService) SendMilestoneCelebration(email string, userID uint, domain *models.Domain, milestone int) SendResult {
	subject := fmt.Sprintf("Milestone Achieved: %s DR %d", domain.URL, milestone)
	body := fmt.Sprintf(
		"<h2>Congratulations!</h2><p><strong>%s</strong> has reached Domain Rating %d.</p>",
		domain.URL, milestone,
	)

	return s.send(email, EmailTypeMilestoneCelebration, userID, domain.ID, subject, body)
}

// DomainChange summarizes one domain's movement for batch emails
type DomainChange struct {
	URL    string
	OldDA  int
	NewDA  int
	Change int
}

// SendDailyBatch dispatches a daily summary of domain changes
func (s *EmailService) SendDailyBatch(user *models.User, changes []DomainChange) SendResult {
	plural := ""
	if len(changes) != 1 {
		plural = "s"
	}
	subject := fmt.Sprintf("Daily DR Update: %d domain%s updated", len(changes), plural)

	var sb strings.Builder
	sb.WriteString("<h2>Your daily Domain Rating summary</h2><ul>")
	for _, ch := range changes {
		fmt.Fprintf(&sb, "<li><strong>%s</strong>: DR %d &rarr; %d (%+d)</li>", ch.URL, ch.OldDA, ch.NewDA, ch.Change)
	}
	sb.WriteString("</ul>")

	return s.send(user.Email, EmailTypeDailyBatch, user.ID, 0, subject, sb.String())
}

// WeeklyStats carries the aggregates rendered into a weekly recap email
type WeeklyStats struct {
	TotalDomains int
	AverageDA    float64
	TopPerformer DomainChange
	BiggestLoser DomainChange
	WeekStart    string
	WeekEnd      string
}

// SendWeeklyRecap dispatches the Monday recap email
func (s *EmailService) SendWeeklyRecap(user *models.User, stats WeeklyStats) SendResult {
	subject := "Weekly DR Recap - Your Domain Rating Summary"
	body := fmt.Sprintf(
		"<h2>Week %s to %s</h2>"+
			"<p>Domains tracked: %d, average DR %.1f.</p>"+
			"<p>Top performer: <strong>%s</strong> at DR %d (%+d).</p>"+
			"<p>Biggest loser: <strong>%s</strong> at DR %d (%+d).</p>",
		stats.WeekStart, stats.WeekEnd,
		stats.TotalDomains, stats.AverageDA,
		stats.TopPerformer.URL, stats.TopPerformer.NewDA, stats.TopPerformer.Change,
		stats.BiggestLoser.URL, stats.BiggestLoser.NewDA, stats.BiggestLoser.Change,
	)

	return s.send(user.Email, EmailTypeWeeklyRecap, user.ID, 0, subject, body)
}

// SendBudgetAlert warns the operator about metrics provider spend
func (s *EmailService) SendBudgetAlert(to string, status BudgetStatus) SendResult {
	subject := "API Budget Alert"
	if status.IsOverBudget {
		subject = "API Budget EXCEEDED"
	}

	body := fmt.Sprintf(
		"<h2>%s</h2>"+
			"<p>Spent: $%.2f of $%.2f (%.1f%%), $%.2f remaining.</p>",
		subject, status.TotalSpent, status.Budget, status.PercentUsed, status.Remaining,
	)

	return s.send(to, EmailTypeBudgetAlert, 0, 0, subject, body)
}

// SendInactivityWarning nudges a user whose domains have not been checked recently
func (s *EmailService) SendInactivityWarning(user *models.User, daysInactive, domainsCount int) SendResult {
	subject := "We miss you! Check your domain rankings"
	body := fmt.Sprintf(
		"<p>It has been %d days since your %d tracked domain(s) were last checked. "+
			"Log in to see where your rankings stand.</p>",
		daysInactive, domainsCount,
	)

	return s.send(user.Email, EmailTypeInactivityWarning, user.ID, 0, subject, body)
}

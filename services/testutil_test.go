package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"dr-tracker-service/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory database with the full schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	return db
}

// sentEmail captures one dispatch through the fake mailer
type sentEmail struct {
	To      string
	Subject string
	Body    string
}

// fakeMailer records sends in memory and can be told to fail
type fakeMailer struct {
	mu   sync.Mutex
	sent []sentEmail
	fail bool
}

func (m *fakeMailer) Send(to, subject, body string) SendResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return SendResult{Success: false, Error: "mailer down"}
	}
	m.sent = append(m.sent, sentEmail{To: to, Subject: subject, Body: body})
	return SendResult{Success: true}
}

func (m *fakeMailer) Sent() []sentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentEmail, len(m.sent))
	copy(out, m.sent)
	return out
}

// fakeProvider serves canned metrics per domain; unknown domains fail
type fakeProvider struct {
	mu      sync.Mutex
	metrics map[string]*DomainMetrics
	err     error
	calls   int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{metrics: make(map[string]*DomainMetrics)}
}

func (p *fakeProvider) set(domain string, da int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics[domain] = &DomainMetrics{Domain: domain, DomainAuthority: da}
}

func (p *fakeProvider) GetDomainMetrics(domain string) (*DomainMetrics, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	m, ok := p.metrics[domain]
	if !ok {
		return nil, &UpstreamError{Op: "metrics fetch", Err: fmt.Errorf("no metrics for %s", domain)}
	}
	return m, nil
}

func createTestUser(t *testing.T, db *gorm.DB, status string) *models.User {
	t.Helper()

	limit := models.FreeDomainsLimit
	if status == models.SubscriptionPaid {
		limit = models.PaidDomainsLimit
	}
	user := &models.User{
		Username:           fmt.Sprintf("user_%d", time.Now().UnixNano()),
		Password:           "salt:hash",
		Email:              "user@example.com",
		SubscriptionStatus: status,
		DomainsLimit:       limit,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestDomain(t *testing.T, db *gorm.DB, userID uint, url string, currentDA int) *models.Domain {
	t.Helper()

	domain := &models.Domain{
		UserID:        userID,
		URL:           url,
		NormalizedURL: url,
		PublicID:      fmt.Sprintf("pub-%s-%d", url, time.Now().UnixNano()),
		CurrentDA:     currentDA,
	}
	require.NoError(t, db.Create(domain).Error)
	return domain
}

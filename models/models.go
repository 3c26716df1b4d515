package models

import (
	"time"

	"gorm.io/gorm"
)

// Subscription status values stored on User.
const (
	SubscriptionFree      = "free"
	SubscriptionPaid      = "paid"
	SubscriptionCancelled = "cancelled"
)

// Domain limits per subscription tier
const (
	FreeDomainsLimit = 3
	PaidDomainsLimit = 12
)

// User represents a user account
type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Password string `gorm:"not null" json:"-"`
	Email    string `gorm:"not null" json:"email"`

	SubscriptionStatus string     `gorm:"default:free" json:"subscription_status"`
	SubscriptionEndsAt *time.Time `json:"subscription_ends_at,omitempty"`
	DomainsLimit       int        `gorm:"default:3" json:"domains_limit"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tier maps the subscription status to a refresh tier. Cancelled
// subscriptions fall back to the free tier.
func (u *User) Tier() string {
	if u.SubscriptionStatus == SubscriptionPaid {
		return SubscriptionPaid
	}
	return SubscriptionFree
}

// Domain represents a tracked website
type Domain struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	UserID        uint   `gorm:"index;not null" json:"user_id"`
	URL           string `gorm:"not null" json:"url"`
	NormalizedURL string `gorm:"index;not null" json:"normalized_url"`
	PublicID      string `gorm:"uniqueIndex;not null" json:"public_id"` // UUIDv4, used for badge embeds

	CurrentDA  int `gorm:"default:0" json:"current_da"`
	PreviousDA int `gorm:"default:0" json:"previous_da"`
	DAChange   int `gorm:"default:0" json:"da_change"`

	LastChecked time.Time      `json:"last_checked"` // zero value means never checked
	CreatedAt   time.Time      `json:"created_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// DRSnapshot is an immutable historical record of a domain's DR value.
// Rows are append-only; nothing in the service updates or deletes them.
type DRSnapshot struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	DomainID         uint      `gorm:"index;not null" json:"domain_id"`
	DAValue          int       `gorm:"not null" json:"da_value"`
	Backlinks        *int      `json:"backlinks,omitempty"`
	ReferringDomains *int      `json:"referring_domains,omitempty"`
	RecordedAt       time.Time `gorm:"index;not null" json:"recorded_at"`
}

// TableName specifies the table name for DRSnapshot
func (DRSnapshot) TableName() string {
	return "dr_snapshots"
}

// NotificationPreferences holds per-domain email notification settings.
// Exactly one row per domain; created lazily with defaults on first access.
type NotificationPreferences struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	DomainID uint `gorm:"uniqueIndex;not null" json:"domain_id"`

	InstantAlerts         bool `json:"instant_alerts"`
	DailyBatch            bool `json:"daily_batch"`
	WeeklyRecaps          bool `json:"weekly_recaps"`
	MilestoneCelebrations bool `json:"milestone_celebrations"`
	InactivityWarnings    bool `json:"inactivity_warnings"`

	// Minimum absolute DA change required to trigger an instant alert (1-100)
	DAThreshold int `gorm:"default:1" json:"da_threshold"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate enforces the one-preferences-row-per-domain constraint
func (p *NotificationPreferences) BeforeCreate(tx *gorm.DB) error {
	var count int64
	tx.Model(&NotificationPreferences{}).Where("domain_id = ?", p.DomainID).Count(&count)
	if count > 0 {
		return gorm.ErrDuplicatedKey
	}
	return nil
}

// DomainMilestone records a DA threshold crossing for a domain. The
// (domain_id, da_value) pair is unique, which is what guarantees each
// milestone is celebrated at most once even under concurrent refreshes.
type DomainMilestone struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	DomainID uint `gorm:"uniqueIndex:idx_domain_milestone;not null" json:"domain_id"`
	DAValue  int  `gorm:"uniqueIndex:idx_domain_milestone;not null" json:"da_value"`

	Celebrated   bool       `gorm:"default:false" json:"celebrated"`
	CelebratedAt *time.Time `json:"celebrated_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TableName specifies the table name for DomainMilestone
func (DomainMilestone) TableName() string {
	return "domain_milestones"
}

// BeforeCreate enforces the (domain_id, da_value) uniqueness
func (m *DomainMilestone) BeforeCreate(tx *gorm.DB) error {
	var count int64
	tx.Model(&DomainMilestone{}).Where("domain_id = ? AND da_value = ?", m.DomainID, m.DAValue).Count(&count)
	if count > 0 {
		return gorm.ErrDuplicatedKey
	}
	return nil
}

// APIUsage tracks metrics provider calls for cost monitoring
type APIUsage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Provider  string    `gorm:"not null" json:"provider"`
	Domain    string    `gorm:"not null" json:"domain"`
	Cost      float64   `json:"cost"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for APIUsage
func (APIUsage) TableName() string {
	return "api_usage"
}

// EmailLog is an audit record of an email send attempt
type EmailLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index" json:"user_id"`
	DomainID     uint      `gorm:"index" json:"domain_id"`
	EmailTo      string    `gorm:"not null" json:"email_to"`
	EmailType    string    `gorm:"not null" json:"email_type"`
	Status       string    `gorm:"not null" json:"status"` // "sent" or "failed"
	ErrorMessage string    `json:"error_message,omitempty"`
	SentAt       time.Time `json:"sent_at"`
}

// RefreshToken stores refresh tokens for users
type RefreshToken struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	Token      string    `gorm:"uniqueIndex;not null" json:"-"`
	SessionID  string    `gorm:"index" json:"session_id"`
	DeviceInfo string    `json:"device_info"`
	IPAddress  string    `json:"ip_address"`
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AutoMigrate runs database migrations
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Domain{},
		&DRSnapshot{},
		&NotificationPreferences{},
		&DomainMilestone{},
		&APIUsage{},
		&EmailLog{},
		&RefreshToken{},
		&SystemStatistics{},
	)
}

package models

import "time"

// SystemStatistics holds aggregate service metrics, refreshed hourly by the
// statistics service. A single row is kept and updated in place.
type SystemStatistics struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	TotalUsers         int       `json:"total_users"`
	DomainsTracked     int       `json:"domains_tracked"`
	RefreshesLast7Days int64     `json:"refreshes_last7_days"`
	DatabaseSizeMB     float64   `json:"database_size_mb"`
	LastUpdatedAt      time.Time `json:"last_updated_at"`
}

// TableName specifies the table name for SystemStatistics
func (SystemStatistics) TableName() string {
	return "system_statistics"
}

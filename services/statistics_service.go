package services

import (
	"log"
	"os"
	"time"

	"dr-tracker-service/models"

	"gorm.io/gorm"
)

var globalStatsService *StatisticsService

type StatisticsService struct {
	db     *gorm.DB
	dbPath string
	ticker *time.Ticker
	done   chan bool
}

// SetGlobalStatsService sets the global statistics service instance
func SetGlobalStatsService(service *StatisticsService) {
	globalStatsService = service
}

// GetGlobalStatsService returns the global statistics service instance
func GetGlobalStatsService() *StatisticsService {
	return globalStatsService
}

func NewStatisticsService(db *gorm.DB, dbPath string) *StatisticsService {
	return &StatisticsService{
		db:     db,
		dbPath: dbPath,
		done:   make(chan bool),
	}
}

// Start begins hourly statistics updates
func (s *StatisticsService) Start() {
	log.Println("Statistics service started - updating every hour")

	s.UpdateStatistics()

	s.ticker = time.NewTicker(1 * time.Hour)

	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.UpdateStatistics()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop halts the statistics updates
func (s *StatisticsService) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.done <- true
	log.Println("Statistics service stopped")
}

// UpdateStatistics recomputes the aggregate service metrics
func (s *StatisticsService) UpdateStatistics() {
	log.Println("Updating system statistics...")

	var totalUsers int64
	if err := s.db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		log.Printf("Error counting users: %v", err)
		return
	}

	var domainsTracked int64
	if err := s.db.Model(&models.Domain{}).Count(&domainsTracked).Error; err != nil {
		log.Printf("Error counting domains: %v", err)
		return
	}

	// Metrics provider calls in the last 7 days double as refresh count
	sevenDaysAgo := time.Now().AddDate(0, 0, -7)
	var refreshCount int64
	if err := s.db.Model(&models.APIUsage{}).
		Where("created_at >= ?", sevenDaysAgo).
		Count(&refreshCount).Error; err != nil {
		log.Printf("Error counting refreshes: %v", err)
		return
	}

	var dbSizeMB float64
	if fileInfo, err := os.Stat(s.dbPath); err == nil {
		dbSizeMB = float64(fileInfo.Size()) / (1024 * 1024)
	} else {
		log.Printf("Error getting database file size: %v", err)
	}

	// Keep a single row, updated in place
	var stats models.SystemStatistics
	result := s.db.First(&stats)

	if result.Error == gorm.ErrRecordNotFound {
		stats = models.SystemStatistics{
			TotalUsers:         int(totalUsers),
			DomainsTracked:     int(domainsTracked),
			RefreshesLast7Days: refreshCount,
			DatabaseSizeMB:     dbSizeMB,
			LastUpdatedAt:      time.Now(),
		}
		if err := s.db.Create(&stats).Error; err != nil {
			log.Printf("Error creating statistics: %v", err)
			return
		}
	} else if result.Error == nil {
		if err := s.db.Model(&stats).Updates(map[string]interface{}{
			"total_users":          int(totalUsers),
			"domains_tracked":      int(domainsTracked),
			"refreshes_last7_days": refreshCount,
			"database_size_mb":     dbSizeMB,
			"last_updated_at":      time.Now(),
		}).Error; err != nil {
			log.Printf("Error updating statistics: %v", err)
			return
		}
	} else {
		log.Printf("Error querying statistics: %v", result.Error)
		return
	}

	log.Printf("Statistics updated: Users=%d, Domains=%d, Refreshes(7d)=%d, DB Size=%.2f MB",
		totalUsers, domainsTracked, refreshCount, dbSizeMB)
}

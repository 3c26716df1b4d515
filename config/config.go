package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                   string
	DBPath                 string
	JWTAccessSecret        string
	JWTRefreshSecret       string
	AccessTokenExpireHours int

	// Cron endpoints are protected with this bearer token. Empty disables the check.
	CronSecret string

	// SEO Intelligence (RapidAPI) credentials
	RapidAPIKey  string
	RapidAPIHost string

	// Plunk email delivery
	PlunkAPIKey string
	EmailFrom   string

	// Monthly metrics provider spend budget (USD) and the operator address
	// that receives budget alerts
	MonthlyAPIBudget float64
	AlertEmail       string

	// Manual refresh quota (per user)
	RefreshRateLimitMax    int
	RefreshRateLimitWindow time.Duration

	// Bulk refresh quota (per user)
	BulkRateLimitMax    int
	BulkRateLimitWindow time.Duration
}

var AppConfig *Config

func LoadConfig() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	accessExpire, _ := strconv.Atoi(getEnv("ACCESS_TOKEN_EXPIRE_HOURS", "1"))
	refreshMax, _ := strconv.Atoi(getEnv("REFRESH_RATE_LIMIT_MAX", "10"))
	refreshWindow, _ := strconv.Atoi(getEnv("REFRESH_RATE_LIMIT_WINDOW_MINUTES", "60"))
	bulkMax, _ := strconv.Atoi(getEnv("BULK_RATE_LIMIT_MAX", "50"))
	bulkWindow, _ := strconv.Atoi(getEnv("BULK_RATE_LIMIT_WINDOW_MINUTES", "30"))
	monthlyBudget, _ := strconv.ParseFloat(getEnv("MONTHLY_API_BUDGET", "50"), 64)

	// Get required secrets (no defaults)
	jwtAccessSecret := os.Getenv("JWT_ACCESS_SECRET")
	jwtRefreshSecret := os.Getenv("JWT_REFRESH_SECRET")

	AppConfig = &Config{
		Port:                   getEnv("PORT", "8080"),
		DBPath:                 getEnv("DB_PATH", "./data/dr-tracker.db"),
		JWTAccessSecret:        jwtAccessSecret,
		JWTRefreshSecret:       jwtRefreshSecret,
		AccessTokenExpireHours: accessExpire,
		CronSecret:             os.Getenv("CRON_SECRET"),
		RapidAPIKey:            os.Getenv("RAPIDAPI_KEY"),
		RapidAPIHost:           getEnv("RAPIDAPI_HOST", "seo-intelligence.p.rapidapi.com"),
		PlunkAPIKey:            os.Getenv("PLUNK_SECRET_API_KEY"),
		EmailFrom:              getEnv("EMAIL_FROM", "alerts@drtracker.app"),
		MonthlyAPIBudget:       monthlyBudget,
		AlertEmail:             getEnv("ALERT_EMAIL", "ops@drtracker.app"),
		RefreshRateLimitMax:    refreshMax,
		RefreshRateLimitWindow: time.Duration(refreshWindow) * time.Minute,
		BulkRateLimitMax:       bulkMax,
		BulkRateLimitWindow:    time.Duration(bulkWindow) * time.Minute,
	}

	// Validate critical configuration
	if err := validateConfig(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// validateConfig validates critical configuration at startup
func validateConfig() error {
	if AppConfig.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required but not set")
	}
	if AppConfig.JWTRefreshSecret == "" {
		return fmt.Errorf("JWT_REFRESH_SECRET is required but not set")
	}

	// Enforce minimum secret strength (at least 32 characters)
	if len(AppConfig.JWTAccessSecret) < 32 {
		return fmt.Errorf("JWT_ACCESS_SECRET must be at least 32 characters long for security")
	}
	if len(AppConfig.JWTRefreshSecret) < 32 {
		return fmt.Errorf("JWT_REFRESH_SECRET must be at least 32 characters long for security")
	}

	if AppConfig.RefreshRateLimitMax <= 0 || AppConfig.BulkRateLimitMax <= 0 {
		return fmt.Errorf("rate limit maximums must be positive")
	}
	if AppConfig.RefreshRateLimitWindow <= 0 || AppConfig.BulkRateLimitWindow <= 0 {
		return fmt.Errorf("rate limit windows must be positive")
	}
	if AppConfig.MonthlyAPIBudget <= 0 {
		return fmt.Errorf("monthly API budget must be positive")
	}

	return nil
}

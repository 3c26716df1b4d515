package handlers

import (
	"dr-tracker-service/config"
	"dr-tracker-service/services"
	"dr-tracker-service/utils"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CronAuthMiddleware guards the scheduled-job endpoints with the shared
// CRON_SECRET bearer token. An empty secret disables the check entirely.
func CronAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.AppConfig.CronSecret == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			utils.UnauthorizedResponse(c, "Missing cron authorization")
			c.Abort()
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token != config.AppConfig.CronSecret {
			utils.UnauthorizedResponse(c, "Invalid cron authorization")
			c.Abort()
			return
		}

		c.Next()
	}
}

// CronDomainMonitor refreshes every domain that is due per its owner's tier
func CronDomainMonitor(c *gin.Context) {
	log.Println("[Cron] Domain monitor triggered")

	stats, err := services.GetGlobalRefreshService().RunSweep()
	if err != nil {
		utils.InternalErrorResponse(c, "Domain monitor failed")
		return
	}

	utils.SuccessResponse(c, stats)
}

// CronDailyBatch sends daily change summaries to free users
func CronDailyBatch(c *gin.Context) {
	log.Println("[Cron] Daily batch triggered")

	stats, err := services.GetGlobalNotifierService().RunDailyBatch(time.Now())
	if err != nil {
		utils.InternalErrorResponse(c, "Daily batch failed")
		return
	}

	utils.SuccessResponse(c, stats)
}

// CronWeeklyRecap sends weekly recap emails. Outside Mondays it reports
// ran=false without doing any work.
func CronWeeklyRecap(c *gin.Context) {
	log.Println("[Cron] Weekly recap triggered")

	stats, err := services.GetGlobalNotifierService().RunWeeklyRecap(time.Now())
	if err != nil {
		utils.InternalErrorResponse(c, "Weekly recap failed")
		return
	}

	utils.SuccessResponse(c, stats)
}

// CronInactivityWarnings warns users whose domains have gone unchecked
func CronInactivityWarnings(c *gin.Context) {
	log.Println("[Cron] Inactivity check triggered")

	stats, err := services.GetGlobalNotifierService().RunInactivityCheck(time.Now())
	if err != nil {
		utils.InternalErrorResponse(c, "Inactivity check failed")
		return
	}

	utils.SuccessResponse(c, stats)
}

// CronBudgetMonitor checks monthly provider spend and alerts the operator
func CronBudgetMonitor(c *gin.Context) {
	log.Println("[Cron] Budget monitor triggered")

	stats := services.GetGlobalBudgetService().RunBudgetCheck(time.Now())
	utils.SuccessResponse(c, stats)
}

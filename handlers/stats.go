package handlers

import (
	"dr-tracker-service/database"
	"dr-tracker-service/models"
	"dr-tracker-service/utils"
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// GetStatistics returns the cached system statistics row
func GetStatistics(c *gin.Context) {
	var stats models.SystemStatistics
	if err := database.GetDB().First(&stats).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// First update hasn't run yet
			utils.SuccessResponse(c, models.SystemStatistics{})
			return
		}
		utils.InternalErrorResponse(c, "Failed to load statistics")
		return
	}

	utils.SuccessResponse(c, stats)
}

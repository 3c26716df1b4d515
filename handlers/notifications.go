package handlers

import (
	"dr-tracker-service/database"
	"dr-tracker-service/middleware"
	"dr-tracker-service/models"
	"dr-tracker-service/services"
	"dr-tracker-service/utils"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetNotificationPreferences returns the preferences for one of the user's
// domains, creating the default row on first access.
func GetNotificationPreferences(c *gin.Context) {
	userID := middleware.GetUserID(c)

	domainID, ok := parsePreferenceDomainID(c)
	if !ok {
		return
	}

	var domain models.Domain
	if err := database.GetDB().Where("id = ? AND user_id = ?", domainID, userID).First(&domain).Error; err != nil {
		utils.NotFoundResponse(c, "Domain not found")
		return
	}

	prefs, err := services.GetGlobalPreferenceService().GetPreferences(domain.ID)
	if err != nil {
		utils.InternalErrorResponse(c, "Failed to load preferences")
		return
	}

	utils.SuccessResponse(c, prefs)
}

// UpdateNotificationPreferences applies a partial preferences update
func UpdateNotificationPreferences(c *gin.Context) {
	userID := middleware.GetUserID(c)

	domainID, ok := parsePreferenceDomainID(c)
	if !ok {
		return
	}

	var domain models.Domain
	if err := database.GetDB().Where("id = ? AND user_id = ?", domainID, userID).First(&domain).Error; err != nil {
		utils.NotFoundResponse(c, "Domain not found")
		return
	}

	var patch services.PreferencesPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	prefs, err := services.GetGlobalPreferenceService().UpdatePreferences(domain.ID, patch)
	if err != nil {
		var validation *services.ValidationError
		if errors.As(err, &validation) {
			utils.BadRequestResponse(c, validation.Error())
			return
		}
		utils.InternalErrorResponse(c, "Failed to update preferences")
		return
	}

	utils.SuccessMessageResponse(c, "Preferences updated", prefs)
}

func parsePreferenceDomainID(c *gin.Context) (uint, bool) {
	raw := c.Query("domainId")
	if raw == "" {
		utils.BadRequestResponse(c, "Missing domainId query parameter")
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid domainId")
		return 0, false
	}
	return uint(id), true
}

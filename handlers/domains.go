package handlers

import (
	"dr-tracker-service/database"
	"dr-tracker-service/middleware"
	"dr-tracker-service/models"
	"dr-tracker-service/services"
	"dr-tracker-service/utils"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AddDomainRequest struct {
	URL string `json:"url" binding:"required"`
}

// AddDomain registers a new domain for the authenticated user
func AddDomain(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req AddDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	normalized := utils.NormalizeDomain(req.URL)
	if normalized == "" {
		utils.BadRequestResponse(c, "Invalid domain URL")
		return
	}

	db := database.GetDB()

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		utils.UnauthorizedResponse(c, "User not found")
		return
	}

	var count int64
	if err := db.Model(&models.Domain{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		utils.InternalErrorResponse(c, "Failed to count domains")
		return
	}
	if int(count) >= user.DomainsLimit {
		utils.ErrorDataResponse(c, http.StatusForbidden, "Domain limit reached for your plan", gin.H{
			"limit":            user.DomainsLimit,
			"upgrade_required": user.Tier() != models.SubscriptionPaid,
		})
		return
	}

	// Reject duplicates within the user's own list
	var existing models.Domain
	if err := db.Where("user_id = ? AND normalized_url = ?", userID, normalized).First(&existing).Error; err == nil {
		utils.BadRequestResponse(c, "Domain is already being tracked")
		return
	}

	domain := models.Domain{
		UserID:        userID,
		URL:           req.URL,
		NormalizedURL: normalized,
		PublicID:      uuid.NewString(),
	}
	if err := db.Create(&domain).Error; err != nil {
		utils.InternalErrorResponse(c, "Failed to create domain")
		return
	}

	// Seed the preference row so the first refresh doesn't have to
	if _, err := services.GetGlobalPreferenceService().GetPreferences(domain.ID); err != nil {
		utils.InternalErrorResponse(c, "Failed to initialize notification preferences")
		return
	}

	utils.SuccessMessageResponse(c, "Domain added", domain)
}

// ListDomains returns the authenticated user's active domains
func ListDomains(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var domains []models.Domain
	if err := database.GetDB().
		Where("user_id = ?", userID).
		Order("created_at asc").
		Find(&domains).Error; err != nil {
		utils.InternalErrorResponse(c, "Failed to list domains")
		return
	}

	utils.SuccessResponse(c, domains)
}

// GetDomainHistory returns the snapshot history for one of the user's domains
func GetDomainHistory(c *gin.Context) {
	userID := middleware.GetUserID(c)

	domainID, ok := parseDomainID(c)
	if !ok {
		return
	}

	db := database.GetDB()

	var domain models.Domain
	if err := db.Where("id = ? AND user_id = ?", domainID, userID).First(&domain).Error; err != nil {
		utils.NotFoundResponse(c, "Domain not found")
		return
	}

	days := 30
	if raw := c.Query("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 365 {
			days = parsed
		}
	}

	var snapshots []models.DRSnapshot
	if err := db.
		Where("domain_id = ? AND recorded_at >= ?", domain.ID, time.Now().AddDate(0, 0, -days)).
		Order("recorded_at asc").
		Find(&snapshots).Error; err != nil {
		utils.InternalErrorResponse(c, "Failed to load history")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"domain":    domain,
		"snapshots": snapshots,
	})
}

// DeleteDomain soft-deletes a domain, removing it from all queries and
// scheduled processing while keeping its history.
func DeleteDomain(c *gin.Context) {
	userID := middleware.GetUserID(c)

	domainID, ok := parseDomainID(c)
	if !ok {
		return
	}

	db := database.GetDB()

	var domain models.Domain
	if err := db.Where("id = ? AND user_id = ?", domainID, userID).First(&domain).Error; err != nil {
		utils.NotFoundResponse(c, "Domain not found")
		return
	}

	if err := db.Delete(&domain).Error; err != nil {
		utils.InternalErrorResponse(c, "Failed to delete domain")
		return
	}

	utils.SuccessMessageResponse(c, "Domain deleted", nil)
}

// RefreshDomain triggers an on-demand refresh of a single domain
func RefreshDomain(c *gin.Context) {
	userID := middleware.GetUserID(c)

	domainID, ok := parseDomainID(c)
	if !ok {
		return
	}

	result, err := services.GetGlobalRefreshService().RefreshOne(domainID, userID)
	if err != nil {
		writeRefreshError(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}

// BulkRefresh triggers an on-demand refresh of all the user's domains
func BulkRefresh(c *gin.Context) {
	userID := middleware.GetUserID(c)

	result, err := services.GetGlobalRefreshService().BulkRefresh(userID)
	if err != nil {
		writeRefreshError(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}

func parseDomainID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid domain ID")
		return 0, false
	}
	return uint(id), true
}

// writeRefreshError maps service-layer errors onto the HTTP surface
func writeRefreshError(c *gin.Context, err error) {
	var rateLimited *services.RateLimitedError
	var validation *services.ValidationError
	var upstream *services.UpstreamError

	switch {
	case errors.Is(err, services.ErrForbidden):
		utils.ErrorDataResponse(c, http.StatusForbidden, "Manual refresh requires a paid subscription", gin.H{
			"upgrade_required": true,
		})
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, "Domain not found")
	case errors.As(err, &rateLimited):
		utils.ErrorDataResponse(c, http.StatusTooManyRequests, "Refresh rate limit exceeded", gin.H{
			"limit":     rateLimited.Limit,
			"remaining": rateLimited.Remaining,
			"reset_at":  rateLimited.ResetAt,
		})
	case errors.As(err, &validation):
		utils.BadRequestResponse(c, validation.Error())
	case errors.As(err, &upstream):
		utils.BadGatewayResponse(c, "Metrics provider unavailable")
	default:
		utils.InternalErrorResponse(c, "Refresh failed")
	}
}

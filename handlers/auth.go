package handlers

import (
	"dr-tracker-service/config"
	"dr-tracker-service/database"
	"dr-tracker-service/models"
	"dr-tracker-service/utils"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Email    string `json:"email" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Register handles user registration
func Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	// Validate username (alphanumeric and underscore, 3-20 characters)
	if !regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`).MatchString(req.Username) {
		utils.BadRequestResponse(c, "Username must be 3-20 alphanumeric characters or underscore")
		return
	}

	if len(req.Password) < 6 {
		utils.BadRequestResponse(c, "Password must be at least 6 characters")
		return
	}

	if !emailPattern.MatchString(req.Email) {
		utils.BadRequestResponse(c, "Invalid email address")
		return
	}

	db := database.GetDB()

	// Check if username exists
	var existingUser models.User
	if err := db.Where("username = ?", req.Username).First(&existingUser).Error; err == nil {
		utils.BadRequestResponse(c, "Username already exists")
		return
	}

	// Generate salt and hash password
	salt, err := utils.GenerateSalt()
	if err != nil {
		utils.InternalErrorResponse(c, "Failed to generate salt")
		return
	}

	passwordHash := utils.HashPassword(req.Password, salt)

	user := models.User{
		Username:           req.Username,
		Password:           salt + ":" + passwordHash,
		Email:              req.Email,
		SubscriptionStatus: models.SubscriptionFree,
		DomainsLimit:       models.FreeDomainsLimit,
	}

	if err := db.Create(&user).Error; err != nil {
		utils.InternalErrorResponse(c, "Failed to create user")
		return
	}

	issueTokens(c, &user)
}

// Login handles user login
func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	db := database.GetDB()

	var user models.User
	if err := db.Where("username = ?", req.Username).First(&user).Error; err != nil {
		utils.UnauthorizedResponse(c, "Invalid username or password")
		return
	}

	parts := strings.SplitN(user.Password, ":", 2)
	if len(parts) != 2 {
		utils.InternalErrorResponse(c, "Invalid password format")
		return
	}

	salt, hash := parts[0], parts[1]
	if !utils.VerifyPassword(req.Password, salt, hash) {
		utils.UnauthorizedResponse(c, "Invalid username or password")
		return
	}

	issueTokens(c, &user)
}

// RefreshToken exchanges a refresh token for a new token pair
func RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	claims, err := utils.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		utils.UnauthorizedResponse(c, "Invalid or expired refresh token")
		return
	}

	db := database.GetDB()

	// The stored token must match; rotation invalidates the old one
	var stored models.RefreshToken
	if err := db.Where("user_id = ? AND token = ?", claims.UserID, utils.HashRefreshToken(req.RefreshToken)).First(&stored).Error; err != nil {
		utils.UnauthorizedResponse(c, "Refresh token not recognized")
		return
	}

	var user models.User
	if err := db.First(&user, claims.UserID).Error; err != nil {
		utils.UnauthorizedResponse(c, "User not found")
		return
	}

	db.Delete(&stored)
	issueTokens(c, &user)
}

// issueTokens generates a token pair, persists the hashed refresh token
// with session metadata and writes the token response.
func issueTokens(c *gin.Context, user *models.User) {
	sessionID := uuid.NewString()

	accessToken, err := utils.GenerateAccessToken(user.ID, sessionID)
	if err != nil {
		utils.InternalErrorResponse(c, "Failed to generate access token")
		return
	}
	refreshToken, err := utils.GenerateRefreshToken(user.ID)
	if err != nil {
		utils.InternalErrorResponse(c, "Failed to generate refresh token")
		return
	}

	refreshTokenModel := models.RefreshToken{
		UserID:     user.ID,
		Token:      utils.HashRefreshToken(refreshToken),
		SessionID:  sessionID,
		DeviceInfo: parseDeviceInfo(c.GetHeader("User-Agent")),
		IPAddress:  getRealIP(c),
		LastUsedAt: time.Now(),
	}
	database.GetDB().Create(&refreshTokenModel)

	utils.SuccessResponse(c, TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    config.AppConfig.AccessTokenExpireHours * 3600,
	})
}

// parseDeviceInfo trims the User-Agent to a storable length
func parseDeviceInfo(userAgent string) string {
	if len(userAgent) > 255 {
		return userAgent[:255]
	}
	return userAgent
}

// getRealIP extracts the real IP from request headers
func getRealIP(c *gin.Context) string {
	forwarded := c.GetHeader("X-Forwarded-For")
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	realIP := c.GetHeader("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	return c.ClientIP()
}

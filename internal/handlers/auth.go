package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/config"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(db *gorm.DB, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		authService: services.NewAuthService(db, &cfg.JWT),
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Login handles email/password login
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.authService.Login(&req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		services.LogWarning("auth", "login_failed", "Login failed for "+req.Email, nil, c.ClientIP(), c.Request.UserAgent(), nil)
		response.Error(c, err)
		return
	}

	services.LogInfo("auth", "login", "User logged in: "+result.User.Email, &result.User.ID, c.ClientIP(), c.Request.UserAgent(), nil)
	response.Success(c, gin.H{
		"token":             result.AccessToken,
		"expire_at":         result.AccessExpireAt,
		"refresh_token":     result.RefreshToken,
		"refresh_expire_at": result.RefreshExpireAt,
		"user":              result.User,
	})
}

// Refresh exchanges a refresh token for a new pair
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.authService.Refresh(req.RefreshToken, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{
		"token":             result.AccessToken,
		"expire_at":         result.AccessExpireAt,
		"refresh_token":     result.RefreshToken,
		"refresh_expire_at": result.RefreshExpireAt,
	})
}

// GetCurrentUser returns the current logged-in user
// GET /api/auth/me
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	userID := currentUserID(c)
	if userID == nil {
		response.Unauthorized(c, "Unauthorized")
		return
	}
	user, err := h.authService.GetUserByID(*userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, user)
}

// Logout revokes the refresh token if one is sent
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	if err := h.authService.RevokeRefreshToken(req.RefreshToken); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "logged out successfully"})
}

// ChangePassword updates the caller's password
// POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID := currentUserID(c)
	if userID == nil {
		response.Unauthorized(c, "Unauthorized")
		return
	}
	var req services.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.authService.ChangePassword(*userID, &req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "password changed"})
}

// CreateAdminIfNotExists creates default admin user
func (h *AuthHandler) CreateAdminIfNotExists() error {
	return h.authService.CreateAdminIfNotExists()
}

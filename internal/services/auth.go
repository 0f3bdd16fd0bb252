package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/huangang/reviewbuddy/backend/internal/config"
	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/internal/utils"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

const (
	ConfigAccessTokenHours  = "auth_access_token_expire_hours"
	ConfigRefreshTokenHours = "auth_refresh_token_expire_hours"

	defaultRefreshHours = 720
)

var (
	ErrInvalidCredentials  = response.NewUnauthorized("invalid email or password")
	ErrUserDisabled        = response.NewForbidden("user is disabled")
	ErrInvalidRefreshToken = response.NewUnauthorized("invalid refresh token")
)

type AuthService struct {
	db        *gorm.DB
	jwtConfig *config.JWTConfig
	configSvc *SystemConfigService
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig) *AuthService {
	return &AuthService{
		db:        db,
		jwtConfig: jwtCfg,
		configSvc: NewSystemConfigService(db),
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResult struct {
	AccessToken     string
	AccessExpireAt  time.Time
	RefreshToken    string
	RefreshExpireAt time.Time
	User            *models.User
}

type RefreshResult struct {
	AccessToken     string
	AccessExpireAt  time.Time
	RefreshToken    string
	RefreshExpireAt time.Time
}

// Login checks email and password and issues an access/refresh token pair.
func (s *AuthService) Login(req *LoginRequest, clientIP, userAgent string) (*LoginResult, error) {
	user, err := s.passwordAuth(req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	accessHours := s.getAccessTokenExpireHours()
	refreshHours := s.getRefreshTokenExpireHours()

	token, err := utils.GenerateToken(user.ID, user.Email, user.Role, accessHours)
	if err != nil {
		return nil, err
	}

	refreshToken, refreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}

	refreshExpireAt := time.Now().Add(time.Duration(refreshHours) * time.Hour)
	refreshRecord := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: refreshHash,
		ExpiresAt: refreshExpireAt,
	}
	if clientIP != "" {
		refreshRecord.CreatedByIP = clientIP
	}
	if userAgent != "" {
		refreshRecord.UserAgent = userAgent
	}
	if err := s.db.Create(&refreshRecord).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	user.LastLogin = &now
	if err := s.db.Model(user).Update("last_login", now).Error; err != nil {
		logger.Warn().Err(err).Uint("user_id", user.ID).Msg("[Auth] Failed to record last login")
	}

	return &LoginResult{
		AccessToken:     token,
		AccessExpireAt:  time.Now().Add(time.Duration(accessHours) * time.Hour),
		RefreshToken:    refreshToken,
		RefreshExpireAt: refreshExpireAt,
		User:            user,
	}, nil
}

func (s *AuthService) Refresh(refreshToken string, clientIP, userAgent string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, response.NewBadRequest("refresh token required")
	}

	hash := hashRefreshToken(refreshToken)

	var stored models.RefreshToken
	if err := s.db.Where("token_hash = ?", hash).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	if !stored.Usable(time.Now()) {
		return nil, ErrInvalidRefreshToken
	}

	var user models.User
	if err := s.db.First(&user, stored.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}

	accessHours := s.getAccessTokenExpireHours()
	refreshHours := s.getRefreshTokenExpireHours()

	newAccessToken, err := utils.GenerateToken(user.ID, user.Email, user.Role, accessHours)
	if err != nil {
		return nil, err
	}

	newRefreshToken, newRefreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	newRefresh := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: newRefreshHash,
		ExpiresAt: now.Add(time.Duration(refreshHours) * time.Hour),
	}
	if clientIP != "" {
		newRefresh.CreatedByIP = clientIP
	}
	if userAgent != "" {
		newRefresh.UserAgent = userAgent
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&newRefresh).Error; err != nil {
			return err
		}
		if err := tx.Model(&stored).Updates(map[string]interface{}{
			"revoked_at":           now,
			"replaced_by_token_id": newRefresh.ID,
		}).Error; err != nil {
			return err
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return &RefreshResult{
		AccessToken:     newAccessToken,
		AccessExpireAt:  time.Now().Add(time.Duration(accessHours) * time.Hour),
		RefreshToken:    newRefreshToken,
		RefreshExpireAt: newRefresh.ExpiresAt,
	}, nil
}

func (s *AuthService) RevokeRefreshToken(refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	hash := hashRefreshToken(refreshToken)
	now := time.Now()
	if err := s.db.Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hash).
		Update("revoked_at", now).Error; err != nil {
		return err
	}

	return nil
}

func (s *AuthService) getAccessTokenExpireHours() int {
	defaultHours := s.jwtConfig.ExpireHour
	value := s.configSvc.GetWithDefault(ConfigAccessTokenHours, strconv.Itoa(defaultHours))
	hours, err := strconv.Atoi(value)
	if err != nil || hours <= 0 {
		return defaultHours
	}
	return hours
}

func (s *AuthService) getRefreshTokenExpireHours() int {
	hours := s.configSvc.GetInt(ConfigRefreshTokenHours, defaultRefreshHours)
	if hours <= 0 {
		return defaultRefreshHours
	}
	return hours
}

func generateRefreshToken() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, 32)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(randomBytes)
	tokenHash = hashRefreshToken(token)
	return token, tokenHash, nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *AuthService) passwordAuth(email, password string) (*models.User, error) {
	var user models.User
	err := s.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !utils.CheckPassword(password, user.Password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}

	return &user, nil
}

func (s *AuthService) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	err := s.db.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, response.NewNotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateAdminIfNotExists seeds admin@reviewbuddy.local / admin when no admin exists.
func (s *AuthService) CreateAdminIfNotExists() error {
	var count int64
	if err := s.db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashedPassword, err := utils.HashPassword("admin")
	if err != nil {
		return err
	}

	admin := models.User{
		Email:    "admin@reviewbuddy.local",
		Password: hashedPassword,
		Name:     "Administrator",
		Role:     models.RoleAdmin,
		IsActive: true,
	}
	if err := s.db.Create(&admin).Error; err != nil {
		return err
	}
	logger.Warnf("[Auth] Created default admin %s, change its password", admin.Email)
	return nil
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

func (s *AuthService) ChangePassword(userID uint, req *ChangePasswordRequest) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}

	if !utils.CheckPassword(req.OldPassword, user.Password) {
		return response.NewBadRequest("incorrect old password")
	}

	hashedPassword, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}

	return s.db.Model(user).Update("password", hashedPassword).Error
}

package services

import (
	"net/http"
	"testing"
	"time"

	"github.com/huangang/reviewbuddy/backend/internal/config"
	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedUser(t *testing.T, db *gorm.DB, email, password, role string) *models.User {
	t.Helper()
	hash, err := utils.HashPassword(password)
	require.NoError(t, err)
	user := &models.User{Email: email, Password: hash, Name: "Test", Role: role, IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestAuthService_Login(t *testing.T) {
	utils.SetJWTSecret("auth-service-test")
	db := setupTestDB(t)
	svc := NewAuthService(db, &config.JWTConfig{ExpireHour: 2})
	user := seedUser(t, db, "ops@example.com", "s3cret!", models.RoleReviewer)

	result, err := svc.Login(&LoginRequest{Email: " OPS@example.com ", Password: "s3cret!"}, "10.0.0.1", "test")
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)
	assert.NotEmpty(t, result.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), result.AccessExpireAt, time.Minute)
	assert.WithinDuration(t, time.Now().Add(720*time.Hour), result.RefreshExpireAt, time.Minute)

	claims, err := utils.ParseToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Email)
	assert.Equal(t, models.RoleReviewer, claims.Role)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.NotNil(t, stored.LastLogin)

	_, err = svc.Login(&LoginRequest{Email: "ops@example.com", Password: "wrong"}, "", "")
	requireAppError(t, err, http.StatusUnauthorized, "invalid email or password")

	_, err = svc.Login(&LoginRequest{Email: "nobody@example.com", Password: "s3cret!"}, "", "")
	requireAppError(t, err, http.StatusUnauthorized, "invalid email or password")

	require.NoError(t, db.Model(user).Update("is_active", false).Error)
	_, err = svc.Login(&LoginRequest{Email: "ops@example.com", Password: "s3cret!"}, "", "")
	requireAppError(t, err, http.StatusForbidden, "user is disabled")
}

func TestAuthService_RefreshRotates(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAuthService(db, &config.JWTConfig{ExpireHour: 1})
	seedUser(t, db, "ops@example.com", "s3cret!", models.RoleAdmin)

	login, err := svc.Login(&LoginRequest{Email: "ops@example.com", Password: "s3cret!"}, "", "")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(login.RefreshToken, "", "")
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	_, err = svc.Refresh(login.RefreshToken, "", "")
	requireAppError(t, err, http.StatusUnauthorized, "invalid refresh token")

	require.NoError(t, svc.RevokeRefreshToken(refreshed.RefreshToken))
	_, err = svc.Refresh(refreshed.RefreshToken, "", "")
	requireAppError(t, err, http.StatusUnauthorized, "invalid refresh token")

	_, err = svc.Refresh("", "", "")
	requireAppError(t, err, http.StatusBadRequest, "")
}

func TestAuthService_TokenHoursFromSystemConfig(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAuthService(db, &config.JWTConfig{ExpireHour: 24})
	assert.Equal(t, 24, svc.getAccessTokenExpireHours())
	assert.Equal(t, 720, svc.getRefreshTokenExpireHours())

	require.NoError(t, svc.configSvc.Set(ConfigAccessTokenHours, "6"))
	require.NoError(t, svc.configSvc.Set(ConfigRefreshTokenHours, "-1"))
	assert.Equal(t, 6, svc.getAccessTokenExpireHours())
	assert.Equal(t, 720, svc.getRefreshTokenExpireHours())
}

func TestAuthService_AdminSeedAndPasswordChange(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAuthService(db, &config.JWTConfig{ExpireHour: 1})

	require.NoError(t, svc.CreateAdminIfNotExists())
	require.NoError(t, svc.CreateAdminIfNotExists())
	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.EqualValues(t, 1, count)

	var admin models.User
	require.NoError(t, db.Where("email = ?", "admin@reviewbuddy.local").First(&admin).Error)

	err := svc.ChangePassword(admin.ID, &ChangePasswordRequest{OldPassword: "nope", NewPassword: "changed1"})
	requireAppError(t, err, http.StatusBadRequest, "incorrect old password")

	require.NoError(t, svc.ChangePassword(admin.ID, &ChangePasswordRequest{OldPassword: "admin", NewPassword: "changed1"}))
	_, err = svc.Login(&LoginRequest{Email: admin.Email, Password: "changed1"}, "", "")
	assert.NoError(t, err)
}

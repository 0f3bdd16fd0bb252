package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/internal/utils"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

var validRoles = map[string]bool{
	models.RoleAdmin:    true,
	models.RoleReviewer: true,
	models.RoleViewer:   true,
}

type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

func (h *UserHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	search := c.Query("search")
	role := c.Query("role")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var users []models.User
	var total int64

	query := h.db.Model(&models.User{})

	if search != "" {
		query = query.Where("email LIKE ? OR name LIKE ?", "%"+search+"%", "%"+search+"%")
	}
	if role != "" {
		query = query.Where("role = ?", role)
	}

	if err := query.Count(&total).Error; err != nil {
		response.Error(c, err)
		return
	}
	if err := query.Order("id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&users).Error; err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, response.NewPage(users, total, page, pageSize))
}

type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role"`
}

func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Role == "" {
		req.Role = models.RoleReviewer
	}
	if !validRoles[req.Role] {
		response.BadRequest(c, "invalid role, must be 'admin', 'reviewer' or 'viewer'")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	var count int64
	h.db.Model(&models.User{}).Where("email = ?", email).Count(&count)
	if count > 0 {
		response.Error(c, response.NewConflict("email already registered"))
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	user := models.User{Email: email, Name: req.Name, Password: hash, Role: req.Role, IsActive: true}
	if err := h.db.Create(&user).Error; err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

type UpdateUserRequest struct {
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
	Name     *string `json:"name"`
}

func (h *UserHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "user")
	if !ok {
		return
	}

	if me := currentUserID(c); me != nil && *me == id {
		response.BadRequest(c, "cannot modify your own account")
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		response.NotFound(c, "user not found")
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	updates := make(map[string]interface{})
	if req.Role != nil {
		if !validRoles[*req.Role] {
			response.BadRequest(c, "invalid role, must be 'admin', 'reviewer' or 'viewer'")
			return
		}
		updates["role"] = *req.Role
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Name != nil {
		updates["name"] = *req.Name
	}

	if len(updates) == 0 {
		response.BadRequest(c, "no fields to update")
		return
	}

	if err := h.db.Model(&user).Updates(updates).Error; err != nil {
		response.Error(c, err)
		return
	}

	h.db.First(&user, id)
	response.Success(c, user)
}

func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "user")
	if !ok {
		return
	}

	if me := currentUserID(c); me != nil && *me == id {
		response.BadRequest(c, "cannot delete your own account")
		return
	}

	result := h.db.Delete(&models.User{}, id)
	if result.Error != nil {
		response.Error(c, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		response.NotFound(c, "user not found")
		return
	}

	response.Success(c, gin.H{"message": "user deleted"})
}

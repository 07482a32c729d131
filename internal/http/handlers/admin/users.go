package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/smileref/smileref/internal/http/response"
	"github.com/smileref/smileref/internal/repository"
	"github.com/smileref/smileref/internal/service"

	"github.com/gin-gonic/gin"
)

// UpdateUserRequest 管理员更新用户请求，缺省字段保持不变
type UpdateUserRequest struct {
	Name    *string `json:"name"`
	Phone   *string `json:"phone"`
	Staff   *string `json:"staff"`
	IsAdmin *bool   `json:"is_admin"`
}

// GetUsers 获取用户列表
func (h *Handler) GetUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.UserListFilter{
		Page:     page,
		PageSize: pageSize,
		Keyword:  strings.TrimSpace(c.Query("keyword")),
	}
	if isAdminRaw := strings.TrimSpace(c.Query("is_admin")); isAdminRaw != "" {
		isAdmin := isAdminRaw == "true" || isAdminRaw == "1"
		filter.IsAdmin = &isAdmin
	}

	createdFrom, err := parseTimeNullable(strings.TrimSpace(c.Query("created_from")))
	if err != nil {
		respondError(c, response.CodeBadRequest, "Invalid created_from", err)
		return
	}
	createdTo, err := parseTimeNullable(strings.TrimSpace(c.Query("created_to")))
	if err != nil {
		respondError(c, response.CodeBadRequest, "Invalid created_to", err)
		return
	}
	filter.CreatedFrom = createdFrom
	filter.CreatedTo = createdTo

	users, total, err := h.AdminService.ListUsers(c.Request.Context(), filter)
	if err != nil {
		respondError(c, response.CodeInternal, "Failed to load users", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, users, pagination)
}

// GetUser 获取用户详情
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	user, err := h.AdminService.GetUser(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "User not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "Failed to load user", err)
		return
	}

	response.Success(c, user)
}

// UpdateUser 更新用户资料与权限
func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Invalid request body", err)
		return
	}

	user, err := h.AdminService.UpdateUser(c.Request.Context(), id, service.UserUpdateInput{
		Name:    req.Name,
		Phone:   req.Phone,
		Staff:   req.Staff,
		IsAdmin: req.IsAdmin,
	})
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "User not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "Failed to update user", err)
		return
	}

	response.Success(c, user)
}

// DeleteUser 删除用户及其归属数据
func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.AdminService.DeleteUser(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "User not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "Failed to delete user", err)
		return
	}

	requestLog(c).Infow("admin_user_deleted", "user_id", id)
	response.Success(c, gin.H{"deleted": true})
}

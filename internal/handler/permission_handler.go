package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-merit-api/internal/dto"
	"github.com/noah-isme/sma-merit-api/internal/models"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
	"github.com/noah-isme/sma-merit-api/pkg/response"
)

type permissionService interface {
	List(ctx context.Context, claims *models.JWTClaims, query dto.PermissionQuery) ([]models.PermissionDetail, error)
	Grant(ctx context.Context, claims *models.JWTClaims, req dto.GrantPermissionRequest) (*models.PermissionDetail, error)
	Update(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdatePermissionRequest) (*models.PermissionDetail, error)
	Revoke(ctx context.Context, claims *models.JWTClaims, id string) error
	Check(ctx context.Context, claims *models.JWTClaims, studentID, classroomID string) (*dto.PermissionCheckResponse, error)
}

// PermissionHandler manages student event permissions.
type PermissionHandler struct {
	service permissionService
}

// NewPermissionHandler builds the handler.
func NewPermissionHandler(service permissionService) *PermissionHandler {
	return &PermissionHandler{service: service}
}

// List godoc
// @Summary List student event permissions
// @Tags Student Permissions
// @Produce json
// @Param student_id query string false "Student ID"
// @Param classroom_id query string false "Classroom ID"
// @Param is_active query bool false "Active flag"
// @Success 200 {object} response.Envelope
// @Router /student-permissions [get]
func (h *PermissionHandler) List(c *gin.Context) {
	query := dto.PermissionQuery{
		StudentID:   c.Query("student_id"),
		ClassroomID: c.Query("classroom_id"),
	}
	if raw := c.Query("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Validation("invalid permission filter", map[string]string{"is_active": "must be true or false"}))
			return
		}
		query.Active = &active
	}
	items, err := h.service.List(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	if items == nil {
		items = []models.PermissionDetail{}
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Grant godoc
// @Summary Grant a student permission to record events
// @Tags Student Permissions
// @Accept json
// @Produce json
// @Param payload body dto.GrantPermissionRequest true "Grant"
// @Success 201 {object} response.Envelope
// @Router /student-permissions [post]
func (h *PermissionHandler) Grant(c *gin.Context) {
	var req dto.GrantPermissionRequest
	if !bindJSON(c, &req, "invalid permission payload") {
		return
	}
	item, err := h.service.Grant(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Change a student event permission
// @Tags Student Permissions
// @Accept json
// @Produce json
// @Param id path string true "Permission ID"
// @Param payload body dto.UpdatePermissionRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /student-permissions/{id} [patch]
func (h *PermissionHandler) Update(c *gin.Context) {
	var req dto.UpdatePermissionRequest
	if !bindJSON(c, &req, "invalid permission payload") {
		return
	}
	item, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Revoke godoc
// @Summary Revoke a student event permission
// @Tags Student Permissions
// @Param id path string true "Permission ID"
// @Success 204
// @Router /student-permissions/{id} [delete]
func (h *PermissionHandler) Revoke(c *gin.Context) {
	if err := h.service.Revoke(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Check godoc
// @Summary Check whether a student may record events
// @Tags Student Permissions
// @Produce json
// @Param studentId path string true "Student ID"
// @Param classroom_id query string false "Classroom ID, defaults to the student's classroom"
// @Success 200 {object} response.Envelope
// @Router /student-permissions/check/{studentId} [get]
func (h *PermissionHandler) Check(c *gin.Context) {
	result, err := h.service.Check(c.Request.Context(), claimsFromContext(c), c.Param("studentId"), c.Query("classroom_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

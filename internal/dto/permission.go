package dto

import (
	"time"

	"github.com/noah-isme/sma-merit-api/internal/models"
)

// GrantPermissionRequest lets a student record events for a classroom.
type GrantPermissionRequest struct {
	Student   string     `json:"student" validate:"required,uuid"`
	Classroom string     `json:"classroom" validate:"required,uuid"`
	ExpiresAt *time.Time `json:"expires_at"`
	Notes     string     `json:"notes" validate:"max=1000"`
}

// UpdatePermissionRequest changes a grant. expires_at may be cleared with null.
type UpdatePermissionRequest struct {
	IsActive  *bool               `json:"is_active"`
	ExpiresAt Nullable[time.Time] `json:"expires_at"`
	Notes     *string             `json:"notes" validate:"omitempty,max=1000"`
}

// PermissionQuery mirrors the grant list filters.
type PermissionQuery struct {
	StudentID   string
	ClassroomID string
	Active      *bool
}

// PermissionCheckResponse answers whether a student may currently record events.
type PermissionCheckResponse struct {
	HasPermission bool                     `json:"has_permission"`
	Reason        string                   `json:"reason"`
	Permission    *models.PermissionDetail `json:"permission"`
}

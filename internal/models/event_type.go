package models

import "time"

// EventTypeAudience says which roles may record an event type.
type EventTypeAudience string

const (
	AudienceStudent EventTypeAudience = "student"
	AudienceTeacher EventTypeAudience = "teacher"
	AudienceBoth    EventTypeAudience = "both"
)

// EventType is a catalogue entry describing a kind of merit or demerit event.
type EventType struct {
	ID            string            `db:"id" json:"id"`
	Name          string            `db:"name" json:"name"`
	Category      string            `db:"category" json:"category"`
	AllowedRoles  EventTypeAudience `db:"allowed_roles" json:"allowed_roles"`
	DefaultPoints int               `db:"default_points" json:"default_points"`
	IsActive      bool              `db:"is_active" json:"is_active"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}

// Allows reports whether role may record events of this type. Admins may use any type.
func (t *EventType) Allows(role UserRole) bool {
	if role.IsAdmin() {
		return true
	}
	switch t.AllowedRoles {
	case AudienceBoth:
		return true
	case AudienceStudent:
		return role == RoleStudent
	case AudienceTeacher:
		return role == RoleTeacher
	default:
		return false
	}
}

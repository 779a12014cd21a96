package models

import "time"

// StudentEventPermission lets a student record events for a classroom.
type StudentEventPermission struct {
	ID          string     `db:"id" json:"id"`
	StudentID   string     `db:"student_id" json:"student_id"`
	ClassroomID string     `db:"classroom_id" json:"classroom_id"`
	GrantedBy   string     `db:"granted_by" json:"granted_by"`
	IsActive    bool       `db:"is_active" json:"is_active"`
	GrantedAt   time.Time  `db:"granted_at" json:"granted_at"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at"`
	Notes       string     `db:"notes" json:"notes"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// IsExpired reports whether the grant has passed its expiry at now.
func (p *StudentEventPermission) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// IsValid reports whether the grant is active and not expired at now.
func (p *StudentEventPermission) IsValid(now time.Time) bool {
	return p.IsActive && !p.IsExpired(now)
}

// PermissionDetail is the API projection of a grant.
type PermissionDetail struct {
	StudentEventPermission
	StudentName   string `db:"student_name" json:"student_name"`
	ClassroomName string `db:"classroom_name" json:"classroom_name"`
	GrantedByName string `db:"granted_by_name" json:"granted_by_name"`
	Expired       bool   `db:"-" json:"is_expired"`
	Valid         bool   `db:"-" json:"is_valid"`
}

// Derive fills the computed state fields at now.
func (p *PermissionDetail) Derive(now time.Time) {
	p.Expired = p.IsExpired(now)
	p.Valid = p.IsValid(now)
}

// PermissionFilter narrows permission listings.
type PermissionFilter struct {
	StudentID   string
	ClassroomID string
	Active      *bool
	// HomeroomTeacherID restricts results to classrooms led by this teacher.
	HomeroomTeacherID string
}

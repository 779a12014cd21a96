package models

import "time"

// Classroom is a homeroom class; its homeroom teacher anchors teacher-scoped access.
type Classroom struct {
	ID                string    `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	GradeID           string    `db:"grade_id" json:"grade_id"`
	GradeName         string    `db:"grade_name" json:"grade_name"`
	HomeroomTeacherID *string   `db:"homeroom_teacher_id" json:"homeroom_teacher_id,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// IsHomeroomOf reports whether userID is the classroom's homeroom teacher.
func (c *Classroom) IsHomeroomOf(userID string) bool {
	return c != nil && c.HomeroomTeacherID != nil && *c.HomeroomTeacherID == userID
}

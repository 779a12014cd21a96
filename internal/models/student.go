package models

import "time"

// Student represents a learner registered in the institution.
type Student struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	StudentCode string    `db:"student_code" json:"student_code"`
	ClassroomID string    `db:"classroom_id" json:"classroom_id"`
	FullName    string    `db:"full_name" json:"full_name"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

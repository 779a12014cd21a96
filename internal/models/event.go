package models

import "time"

// EventStatus is the review state of an event.
type EventStatus string

const (
	EventStatusPending  EventStatus = "pending"
	EventStatusApproved EventStatus = "approved"
	EventStatusRejected EventStatus = "rejected"
)

// Event is a merit or demerit record for a classroom or a single student.
// Date is stored as a calendar date and carried as YYYY-MM-DD.
type Event struct {
	ID             string      `db:"id" json:"id"`
	EventTypeID    string      `db:"event_type_id" json:"event_type_id"`
	ClassroomID    string      `db:"classroom_id" json:"classroom_id"`
	StudentID      *string     `db:"student_id" json:"student_id"`
	Date           string      `db:"date" json:"date"`
	Period         *int        `db:"period" json:"period"`
	Points         int         `db:"points" json:"points"`
	Description    *string     `db:"description" json:"description"`
	RecordedBy     string      `db:"recorded_by" json:"recorded_by"`
	Status         EventStatus `db:"status" json:"status"`
	ApprovedBy     *string     `db:"approved_by" json:"approved_by"`
	ApprovedAt     *time.Time  `db:"approved_at" json:"approved_at"`
	RejectionNotes *string     `db:"rejection_notes" json:"rejection_notes"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// Approve marks the event approved by reviewer at ts.
func (e *Event) Approve(reviewer string, ts time.Time) {
	e.Status = EventStatusApproved
	e.ApprovedBy = &reviewer
	e.ApprovedAt = &ts
	e.RejectionNotes = nil
}

// Reject marks the event rejected by reviewer at ts with the given notes.
func (e *Event) Reject(reviewer string, ts time.Time, notes string) {
	e.Status = EventStatusRejected
	e.ApprovedBy = &reviewer
	e.ApprovedAt = &ts
	e.RejectionNotes = &notes
}

// Reopen returns the event to pending and clears every review field.
func (e *Event) Reopen() {
	e.Status = EventStatusPending
	e.ApprovedBy = nil
	e.ApprovedAt = nil
	e.RejectionNotes = nil
}

// EventTypeRef is the embedded event type projection.
type EventTypeRef struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Category string `db:"category" json:"category"`
}

// EventDetail extends Event with the names of its related records.
type EventDetail struct {
	Event
	EventType      EventTypeRef `db:"event_type" json:"event_type"`
	ClassroomName  string       `db:"classroom_name" json:"classroom_name"`
	GradeName      string       `db:"grade_name" json:"grade_name"`
	StudentName    *string      `db:"student_name" json:"student_name"`
	RecordedByName string       `db:"recorded_by_name" json:"recorded_by_name"`
	ApprovedByName *string      `db:"approved_by_name" json:"approved_by_name"`
}

// EventFilter narrows event queries. Zero values mean "no constraint".
type EventFilter struct {
	IDs         []string
	ClassroomID string
	Date        string
	Period      *int
	Status      EventStatus
	// HomeroomTeacherID restricts results to classrooms led by this teacher.
	HomeroomTeacherID string
	// RecordedBy restricts results to events recorded by this user.
	RecordedBy string
}

// ClassroomDate identifies every event of a classroom on one day.
type ClassroomDate struct {
	ClassroomID string
	Date        string
}

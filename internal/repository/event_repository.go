package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-merit-api/internal/models"
)

const eventColumns = `e.id, e.event_type_id, e.classroom_id, e.student_id, e.date::text AS date, e.period, e.points,
	e.description, e.recorded_by, e.status, e.approved_by, e.approved_at, e.rejection_notes, e.created_at, e.updated_at`

const eventDetailSelect = `
SELECT ` + eventColumns + `,
	et.id AS "event_type.id",
	et.name AS "event_type.name",
	et.category AS "event_type.category",
	c.name AS classroom_name,
	g.name AS grade_name,
	su.full_name AS student_name,
	ru.full_name AS recorded_by_name,
	au.full_name AS approved_by_name
FROM events e
JOIN event_types et ON et.id = e.event_type_id
JOIN classrooms c ON c.id = e.classroom_id
JOIN grades g ON g.id = c.grade_id
JOIN users ru ON ru.id = e.recorded_by
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN users su ON su.id = s.user_id
LEFT JOIN users au ON au.id = e.approved_by`

// EventOrder selects a deterministic ordering for event listings.
type EventOrder int

const (
	// OrderByScope sorts by date, classroom, period and insertion.
	OrderByScope EventOrder = iota
	// OrderForReview sorts by date, grade, classroom, period and insertion.
	OrderForReview
)

func (o EventOrder) clause() string {
	switch o {
	case OrderForReview:
		return "ORDER BY e.date ASC, g.name ASC, c.name ASC, e.period ASC NULLS FIRST, e.created_at ASC, e.id ASC"
	default:
		return "ORDER BY e.date ASC, c.name ASC, e.period ASC NULLS FIRST, e.created_at ASC, e.id ASC"
	}
}

// EventRepository persists merit events.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts an event. ID and timestamps are assigned when empty.
func (r *EventRepository) Create(ctx context.Context, exec sqlx.ExtContext, event *models.Event) error {
	if event == nil {
		return fmt.Errorf("event payload is nil")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}

	const query = `
INSERT INTO events (id, event_type_id, classroom_id, student_id, date, period, points, description, recorded_by,
	status, approved_by, approved_at, rejection_notes, created_at, updated_at)
VALUES (:id, :event_type_id, :classroom_id, :student_id, :date, :period, :points, :description, :recorded_by,
	:status, :approved_by, :approved_at, :rejection_notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, event); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// FindByID loads an event. When lock is set the row is locked for the enclosing transaction.
func (r *EventRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string, lock bool) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e WHERE e.id = $1`
	if lock {
		query += " FOR UPDATE"
	}
	var event models.Event
	if err := sqlx.GetContext(ctx, r.exec(exec), &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// FindDetailByID loads an event with its related names.
func (r *EventRepository) FindDetailByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.EventDetail, error) {
	query := eventDetailSelect + "\nWHERE e.id = $1"
	var event models.EventDetail
	if err := sqlx.GetContext(ctx, r.exec(exec), &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// List returns events matching the filter in the requested order.
func (r *EventRepository) List(ctx context.Context, exec sqlx.ExtContext, filter models.EventFilter, order EventOrder) ([]models.EventDetail, error) {
	where, args := buildEventWhere("e.", filter, nil)
	query := eventDetailSelect + "\nWHERE " + where + "\n" + order.clause()

	events := make([]models.EventDetail, 0)
	if err := sqlx.SelectContext(ctx, r.exec(exec), &events, query, args...); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// ListByClassroomDates returns every event under the given (classroom, date) pairs,
// still subject to the filter's visibility constraints.
func (r *EventRepository) ListByClassroomDates(ctx context.Context, exec sqlx.ExtContext, pairs []models.ClassroomDate, filter models.EventFilter) ([]models.EventDetail, error) {
	events := make([]models.EventDetail, 0)
	if len(pairs) == 0 {
		return events, nil
	}

	var (
		args   []interface{}
		tuples = make([]string, 0, len(pairs))
	)
	for _, p := range pairs {
		args = append(args, p.ClassroomID, p.Date)
		tuples = append(tuples, fmt.Sprintf("($%d::uuid, $%d::date)", len(args)-1, len(args)))
	}
	where, args := buildEventWhere("e.", filter, args)
	query := eventDetailSelect + "\nWHERE (e.classroom_id, e.date) IN (" + strings.Join(tuples, ", ") + ") AND " + where + "\n" + OrderByScope.clause()

	if err := sqlx.SelectContext(ctx, r.exec(exec), &events, query, args...); err != nil {
		return nil, fmt.Errorf("list events by classroom dates: %w", err)
	}
	return events, nil
}

// LockScope returns the events of one (classroom, date, period) scope in insertion
// order, locking them for the enclosing transaction. A nil period matches events
// without a period. A non-empty recordedBy restricts the set to that recorder.
func (r *EventRepository) LockScope(ctx context.Context, exec sqlx.ExtContext, classroomID, date string, period *int, recordedBy string) ([]models.Event, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT ` + eventColumns + ` FROM events e WHERE e.classroom_id = $1 AND e.date = $2`)
	args := []interface{}{classroomID, date}
	if period != nil {
		args = append(args, *period)
		fmt.Fprintf(&query, " AND e.period = $%d", len(args))
	} else {
		query.WriteString(" AND e.period IS NULL")
	}
	if recordedBy != "" {
		args = append(args, recordedBy)
		fmt.Fprintf(&query, " AND e.recorded_by = $%d", len(args))
	}
	query.WriteString(" ORDER BY e.created_at ASC, e.id ASC FOR UPDATE")

	events := make([]models.Event, 0)
	if err := sqlx.SelectContext(ctx, r.exec(exec), &events, query.String(), args...); err != nil {
		return nil, fmt.Errorf("lock event scope: %w", err)
	}
	return events, nil
}

// Update writes every mutable column of the event.
func (r *EventRepository) Update(ctx context.Context, exec sqlx.ExtContext, event *models.Event) error {
	const query = `
UPDATE events SET
	event_type_id = :event_type_id,
	classroom_id = :classroom_id,
	student_id = :student_id,
	date = :date,
	period = :period,
	points = :points,
	description = :description,
	status = :status,
	approved_by = :approved_by,
	approved_at = :approved_at,
	rejection_notes = :rejection_notes,
	updated_at = :updated_at
WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, event)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("event rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteByIDs removes the given events and reports how many were deleted.
func (r *EventRepository) DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `DELETE FROM events WHERE id = ANY($1)`
	result, err := r.exec(exec).ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleted events rows affected: %w", err)
	}
	return affected, nil
}

// ReviewParams describes a bulk status change.
type ReviewParams struct {
	Filter         models.EventFilter
	Status         models.EventStatus
	ReviewerID     string
	ReviewedAt     time.Time
	RejectionNotes *string
}

// Review applies a status decision to every event matching the filter and
// returns the number of rows changed.
func (r *EventRepository) Review(ctx context.Context, exec sqlx.ExtContext, params ReviewParams) (int64, error) {
	args := []interface{}{params.Status, params.ReviewerID, params.ReviewedAt, params.RejectionNotes}
	where, args := buildEventWhere("", params.Filter, args)
	query := `UPDATE events SET status = $1, approved_by = $2, approved_at = $3, rejection_notes = $4, updated_at = $3 WHERE ` + where

	result, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("review events: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reviewed events rows affected: %w", err)
	}
	return affected, nil
}

// buildEventWhere renders the filter as a conjunction, appending its arguments to args.
func buildEventWhere(prefix string, filter models.EventFilter, args []interface{}) (string, []interface{}) {
	clauses := []string{"1=1"}
	add := func(format string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(format, prefix, len(args)))
	}

	if len(filter.IDs) > 0 {
		add("%sid = ANY($%d)", pq.Array(filter.IDs))
	}
	if filter.ClassroomID != "" {
		add("%sclassroom_id = $%d", filter.ClassroomID)
	}
	if filter.Date != "" {
		add("%sdate = $%d", filter.Date)
	}
	if filter.Period != nil {
		add("%speriod = $%d", *filter.Period)
	}
	if filter.Status != "" {
		add("%sstatus = $%d", filter.Status)
	}
	if filter.HomeroomTeacherID != "" {
		add("%sclassroom_id IN (SELECT id FROM classrooms WHERE homeroom_teacher_id = $%d)", filter.HomeroomTeacherID)
	}
	if filter.RecordedBy != "" {
		add("%srecorded_by = $%d", filter.RecordedBy)
	}
	return strings.Join(clauses, " AND "), args
}

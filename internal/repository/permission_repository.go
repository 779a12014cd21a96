package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-merit-api/internal/models"
)

const permissionColumns = `p.id, p.student_id, p.classroom_id, p.granted_by, p.is_active, p.granted_at, p.expires_at, p.notes, p.created_at, p.updated_at`

const permissionDetailSelect = `
SELECT ` + permissionColumns + `,
	su.full_name AS student_name,
	c.name AS classroom_name,
	gu.full_name AS granted_by_name
FROM student_event_permissions p
JOIN students s ON s.id = p.student_id
JOIN users su ON su.id = s.user_id
JOIN classrooms c ON c.id = p.classroom_id
JOIN users gu ON gu.id = p.granted_by`

// PermissionRepository persists student event permissions.
type PermissionRepository struct {
	db *sqlx.DB
}

// NewPermissionRepository constructs the repository.
func NewPermissionRepository(db *sqlx.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// List returns grants matching the filter, newest first.
func (r *PermissionRepository) List(ctx context.Context, filter models.PermissionFilter) ([]models.PermissionDetail, error) {
	query := strings.Builder{}
	query.WriteString(permissionDetailSelect)
	query.WriteString("\nWHERE 1=1")

	var args []interface{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		fmt.Fprintf(&query, " AND p.student_id = $%d", len(args))
	}
	if filter.ClassroomID != "" {
		args = append(args, filter.ClassroomID)
		fmt.Fprintf(&query, " AND p.classroom_id = $%d", len(args))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		fmt.Fprintf(&query, " AND p.is_active = $%d", len(args))
	}
	if filter.HomeroomTeacherID != "" {
		args = append(args, filter.HomeroomTeacherID)
		fmt.Fprintf(&query, " AND c.homeroom_teacher_id = $%d", len(args))
	}
	query.WriteString("\nORDER BY p.granted_at DESC, p.id ASC")

	items := make([]models.PermissionDetail, 0)
	if err := r.db.SelectContext(ctx, &items, query.String(), args...); err != nil {
		return nil, fmt.Errorf("list student event permissions: %w", err)
	}
	return items, nil
}

// FindByID returns sql.ErrNoRows when the grant does not exist.
func (r *PermissionRepository) FindByID(ctx context.Context, id string) (*models.PermissionDetail, error) {
	var item models.PermissionDetail
	if err := r.db.GetContext(ctx, &item, permissionDetailSelect+"\nWHERE p.id = $1", id); err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByStudentClassroom returns the grant for a student and classroom, if any.
func (r *PermissionRepository) FindByStudentClassroom(ctx context.Context, studentID, classroomID string) (*models.PermissionDetail, error) {
	var item models.PermissionDetail
	if err := r.db.GetContext(ctx, &item, permissionDetailSelect+"\nWHERE p.student_id = $1 AND p.classroom_id = $2", studentID, classroomID); err != nil {
		return nil, err
	}
	return &item, nil
}

// Upsert creates a grant or re-issues the existing one for the same student and classroom.
func (r *PermissionRepository) Upsert(ctx context.Context, permission *models.StudentEventPermission) error {
	now := time.Now().UTC()
	if permission.ID == "" {
		permission.ID = uuid.NewString()
	}
	if permission.GrantedAt.IsZero() {
		permission.GrantedAt = now
	}
	permission.CreatedAt = now
	permission.UpdatedAt = now

	const query = `
INSERT INTO student_event_permissions (id, student_id, classroom_id, granted_by, is_active, granted_at, expires_at, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (student_id, classroom_id) DO UPDATE SET
	granted_by = EXCLUDED.granted_by,
	is_active = EXCLUDED.is_active,
	granted_at = EXCLUDED.granted_at,
	expires_at = EXCLUDED.expires_at,
	notes = EXCLUDED.notes,
	updated_at = EXCLUDED.updated_at
RETURNING id, created_at`
	row := r.db.QueryRowxContext(ctx, query,
		permission.ID, permission.StudentID, permission.ClassroomID, permission.GrantedBy, permission.IsActive,
		permission.GrantedAt, permission.ExpiresAt, permission.Notes, permission.CreatedAt, permission.UpdatedAt)
	if err := row.Scan(&permission.ID, &permission.CreatedAt); err != nil {
		return fmt.Errorf("upsert student event permission: %w", err)
	}
	return nil
}

// Update writes the mutable fields of a grant.
func (r *PermissionRepository) Update(ctx context.Context, permission *models.StudentEventPermission) error {
	permission.UpdatedAt = time.Now().UTC()
	const query = `UPDATE student_event_permissions SET is_active = :is_active, expires_at = :expires_at, notes = :notes, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, permission)
	if err != nil {
		return fmt.Errorf("update student event permission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("student event permission rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a grant.
func (r *PermissionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM student_event_permissions WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete student event permission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("student event permission rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeactivateExpired switches off every active grant whose expiry is before now
// and returns the ids it changed.
func (r *PermissionRepository) DeactivateExpired(ctx context.Context, now time.Time) ([]string, error) {
	const query = `
UPDATE student_event_permissions SET is_active = FALSE, updated_at = $1
WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at < $1
RETURNING id`
	ids := make([]string, 0)
	if err := r.db.SelectContext(ctx, &ids, query, now); err != nil {
		return nil, fmt.Errorf("deactivate expired permissions: %w", err)
	}
	return ids, nil
}

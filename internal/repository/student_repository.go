package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-merit-api/internal/models"
)

const studentSelect = `
SELECT s.id, s.user_id, s.student_code, s.classroom_id, u.full_name, s.created_at, s.updated_at
FROM students s
JOIN users u ON u.id = s.user_id`

// StudentRepository reads student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns sql.ErrNoRows when the student does not exist.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, studentSelect+"\nWHERE s.id = $1", id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByUserID resolves the student record of a login account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, studentSelect+"\nWHERE s.user_id = $1", userID); err != nil {
		return nil, err
	}
	return &student, nil
}

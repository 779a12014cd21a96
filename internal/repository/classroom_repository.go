package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-merit-api/internal/models"
)

// ClassroomRepository reads classrooms and their homeroom teacher.
type ClassroomRepository struct {
	db *sqlx.DB
}

// NewClassroomRepository constructs the repository.
func NewClassroomRepository(db *sqlx.DB) *ClassroomRepository {
	return &ClassroomRepository{db: db}
}

// FindByID returns sql.ErrNoRows when the classroom does not exist.
func (r *ClassroomRepository) FindByID(ctx context.Context, id string) (*models.Classroom, error) {
	const query = `
SELECT c.id, c.name, c.grade_id, g.name AS grade_name, c.homeroom_teacher_id, c.created_at, c.updated_at
FROM classrooms c
JOIN grades g ON g.id = c.grade_id
WHERE c.id = $1`
	var classroom models.Classroom
	if err := r.db.GetContext(ctx, &classroom, query, id); err != nil {
		return nil, err
	}
	return &classroom, nil
}

package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-merit-api/internal/models"
)

// EventTypeRepository reads the event type catalogue.
type EventTypeRepository struct {
	db *sqlx.DB
}

// NewEventTypeRepository constructs the repository.
func NewEventTypeRepository(db *sqlx.DB) *EventTypeRepository {
	return &EventTypeRepository{db: db}
}

// FindByID returns sql.ErrNoRows when the event type does not exist.
func (r *EventTypeRepository) FindByID(ctx context.Context, id string) (*models.EventType, error) {
	const query = `SELECT id, name, category, allowed_roles, default_points, is_active, created_at FROM event_types WHERE id = $1`
	var eventType models.EventType
	if err := r.db.GetContext(ctx, &eventType, query, id); err != nil {
		return nil, err
	}
	return &eventType, nil
}

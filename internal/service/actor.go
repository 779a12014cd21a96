package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/sma-merit-api/internal/models"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

// Actor is the authenticated caller as the permission gate sees it.
type Actor struct {
	UserID string
	Role   models.UserRole
	// StudentID is the caller's student record, empty for staff and for
	// student accounts without one.
	StudentID string
}

// IsStudent reports whether the actor acts with student rights.
func (a Actor) IsStudent() bool {
	return a.Role == models.RoleStudent
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type actorResolver struct {
	students studentReader
}

func (r actorResolver) resolve(ctx context.Context, claims *models.JWTClaims) (Actor, error) {
	if claims == nil || claims.UserID == "" {
		return Actor{}, appErrors.ErrUnauthorized
	}
	actor := Actor{UserID: claims.UserID, Role: claims.Role}
	if actor.Role != models.RoleStudent || r.students == nil {
		return actor, nil
	}
	student, err := r.students.FindByUserID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return actor, nil
		}
		return Actor{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student account")
	}
	actor.StudentID = student.ID
	return actor, nil
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-merit-api/internal/dto"
	"github.com/noah-isme/sma-merit-api/internal/models"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

const (
	permissionReasonMissing  = "no permission"
	permissionReasonInactive = "permission inactive"
	permissionReasonExpired  = "permission expired"
	permissionReasonValid    = "valid permission"
)

type permissionStore interface {
	List(ctx context.Context, filter models.PermissionFilter) ([]models.PermissionDetail, error)
	FindByID(ctx context.Context, id string) (*models.PermissionDetail, error)
	FindByStudentClassroom(ctx context.Context, studentID, classroomID string) (*models.PermissionDetail, error)
	Upsert(ctx context.Context, permission *models.StudentEventPermission) error
	Update(ctx context.Context, permission *models.StudentEventPermission) error
	Delete(ctx context.Context, id string) error
	DeactivateExpired(ctx context.Context, now time.Time) ([]string, error)
}

// PermissionOptions carries the optional collaborators of PermissionService.
type PermissionOptions struct {
	Audit     auditRecorder
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	Now       func() time.Time
}

// PermissionService manages the grants that let students record events.
type PermissionService struct {
	store      permissionStore
	classrooms classroomReader
	students   studentReader
	actors     actorResolver
	gate       PermissionGate
	sanitizer  *textSanitizer
	audit      auditRecorder
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewPermissionService constructs the service.
func NewPermissionService(store permissionStore, classrooms classroomReader, students studentReader, opts PermissionOptions) *PermissionService {
	if opts.Validator == nil {
		opts.Validator = NewValidator()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Audit == nil {
		opts.Audit = noopAudit{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PermissionService{
		store:      store,
		classrooms: classrooms,
		students:   students,
		actors:     actorResolver{students: students},
		sanitizer:  newTextSanitizer(),
		audit:      opts.Audit,
		metrics:    opts.Metrics,
		validator:  opts.Validator,
		logger:     opts.Logger,
		now:        opts.Now,
	}
}

// List returns the grants visible to the caller.
func (s *PermissionService) List(ctx context.Context, claims *models.JWTClaims, query dto.PermissionQuery) ([]models.PermissionDetail, error) {
	actor, err := s.actors.resolve(ctx, claims)
	if err != nil {
		return nil, err
	}
	filter := models.PermissionFilter{StudentID: query.StudentID, ClassroomID: query.ClassroomID, Active: query.Active}
	switch {
	case actor.Role.IsAdmin():
	case actor.Role == models.RoleTeacher:
		filter.HomeroomTeacherID = actor.UserID
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers and administrators can list permissions")
	}

	details := map[string]string{}
	if query.StudentID != "" && s.validator.Var(query.StudentID, "uuid") != nil {
		details["student_id"] = "must be a valid id"
	}
	if query.ClassroomID != "" && s.validator.Var(query.ClassroomID, "uuid") != nil {
		details["classroom_id"] = "must be a valid id"
	}
	if len(details) > 0 {
		return nil, appErrors.Validation("invalid permission filter", details)
	}

	items, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list permissions")
	}
	now := s.now()
	for i := range items {
		items[i].Derive(now)
	}
	return items, nil
}

// Grant gives a student permission to record events for a classroom. Granting
// again re-issues the existing grant.
func (s *PermissionService) Grant(ctx context.Context, claims *models.JWTClaims, req dto.GrantPermissionRequest) (*models.PermissionDetail, error) {
	actor, err := s.actors.resolve(ctx, claims)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidator(err, "invalid permission payload")
	}

	classroom, err := s.classroom(ctx, req.Classroom)
	if err != nil {
		return nil, err
	}
	if err := s.gate.ManageGrant(actor, classroom).Err(); err != nil {
		return nil, err
	}

	student, err := s.students.FindByID(ctx, req.Student)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Validation("invalid permission payload", map[string]string{"student": "student not found"})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.ClassroomID != classroom.ID {
		return nil, appErrors.Validation("invalid permission payload", map[string]string{"student": "student does not belong to the classroom"})
	}

	now := s.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, appErrors.Validation("invalid permission payload", map[string]string{"expires_at": "must be in the future"})
	}

	grant := &models.StudentEventPermission{
		StudentID:   student.ID,
		ClassroomID: classroom.ID,
		GrantedBy:   actor.UserID,
		IsActive:    true,
		GrantedAt:   now.UTC(),
		ExpiresAt:   req.ExpiresAt,
		Notes:       s.sanitizer.Clean(req.Notes),
	}
	if err := s.store.Upsert(ctx, grant); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant permission")
	}

	s.audit.Record(ctx, newAuditEntry(actor.UserID, models.AuditActionPermissionGrant, "student_event_permission", grant.ID, nil, grant))
	return s.detail(ctx, grant.ID)
}

// Update toggles a grant or changes its expiry and notes.
func (s *PermissionService) Update(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdatePermissionRequest) (*models.PermissionDetail, error) {
	actor, err := s.actors.resolve(ctx, claims)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidator(err, "invalid permission payload")
	}
	current, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	updated := current.StudentEventPermission
	if req.IsActive != nil {
		updated.IsActive = *req.IsActive
	}
	if req.ExpiresAt.Set {
		if req.ExpiresAt.Value != nil && !req.ExpiresAt.Value.After(s.now()) {
			return nil, appErrors.Validation("invalid permission payload", map[string]string{"expires_at": "must be in the future"})
		}
		updated.ExpiresAt = req.ExpiresAt.Value
	}
	if req.Notes != nil {
		updated.Notes = s.sanitizer.Clean(*req.Notes)
	}

	if err := s.store.Update(ctx, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "permission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update permission")
	}

	s.audit.Record(ctx, newAuditEntry(actor.UserID, models.AuditActionPermissionUpdate, "student_event_permission", id, current.StudentEventPermission, updated))
	return s.detail(ctx, id)
}

// Revoke deletes a grant.
func (s *PermissionService) Revoke(ctx context.Context, claims *models.JWTClaims, id string) error {
	actor, err := s.actors.resolve(ctx, claims)
	if err != nil {
		return err
	}
	current, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "permission not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke permission")
	}
	s.audit.Record(ctx, newAuditEntry(actor.UserID, models.AuditActionPermissionRevoke, "student_event_permission", id, current.StudentEventPermission, nil))
	return nil
}

// Check reports whether a student may currently record events for a
// classroom, defaulting to the student's own classroom. Students may only
// check themselves.
func (s *PermissionService) Check(ctx context.Context, claims *models.JWTClaims, studentID, classroomID string) (*dto.PermissionCheckResponse, error) {
	actor, err := s.actors.resolve(ctx, claims)
	if err != nil {
		return nil, err
	}
	if s.validator.Var(studentID, "required,uuid") != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if actor.IsStudent() && actor.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only check their own permission")
	}
	if !actor.IsStudent() && !actor.Role.IsAdmin() && actor.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role cannot check permissions")
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if classroomID == "" {
		classroomID = student.ClassroomID
	} else if s.validator.Var(classroomID, "uuid") != nil {
		return nil, appErrors.Validation("invalid permission filter", map[string]string{"classroom_id": "must be a valid id"})
	}

	grant, err := s.store.FindByStudentClassroom(ctx, student.ID, classroomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &dto.PermissionCheckResponse{Reason: permissionReasonMissing}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load permission")
	}
	grant.Derive(s.now())

	resp := &dto.PermissionCheckResponse{HasPermission: grant.Valid, Permission: grant}
	switch {
	case !grant.IsActive:
		resp.Reason = permissionReasonInactive
	case grant.Expired:
		resp.Reason = permissionReasonExpired
	default:
		resp.Reason = permissionReasonValid
	}
	return resp, nil
}

// SweepExpired deactivates every grant past its expiry and returns how many changed.
func (s *PermissionService) SweepExpired(ctx context.Context) (int, error) {
	ids, err := s.store.DeactivateExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate expired permissions")
	}
	for _, id := range ids {
		s.audit.Record(ctx, newAuditEntry("", models.AuditActionPermissionExpire, "student_event_permission", id, nil, map[string]bool{"is_active": false}))
	}
	s.metrics.RecordExpiredGrants(len(ids))
	if len(ids) > 0 {
		s.logger.Info("expired permissions deactivated", zap.Int("count", len(ids)))
	}
	return len(ids), nil
}

// load fetches a grant and checks the caller manages its classroom.
func (s *PermissionService) load(ctx context.Context, actor Actor, id string) (*models.PermissionDetail, error) {
	if s.validator.Var(id, "required,uuid") != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "permission not found")
	}
	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "permission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load permission")
	}
	classroom, err := s.classrooms.FindByID(ctx, current.ClassroomID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}
	if err := s.gate.ManageGrant(actor, classroom).Err(); err != nil {
		return nil, err
	}
	return current, nil
}

func (s *PermissionService) classroom(ctx context.Context, id string) (*models.Classroom, error) {
	classroom, err := s.classrooms.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Validation("invalid permission payload", map[string]string{"classroom": "classroom not found"})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}
	return classroom, nil
}

func (s *PermissionService) detail(ctx context.Context, id string) (*models.PermissionDetail, error) {
	item, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load permission")
	}
	item.Derive(s.now())
	return item, nil
}

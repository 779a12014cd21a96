package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/sma-merit-api/internal/dto"
	"github.com/noah-isme/sma-merit-api/internal/models"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

type classroomReader interface {
	FindByID(ctx context.Context, id string) (*models.Classroom, error)
}

type eventTypeReader interface {
	FindByID(ctx context.Context, id string) (*models.EventType, error)
}

type grantReader interface {
	FindByStudentClassroom(ctx context.Context, studentID, classroomID string) (*models.PermissionDetail, error)
}

const invalidEventMessage = "invalid event payload"

func fieldPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func invalidField(field, message string) error {
	return appErrors.Validation(invalidEventMessage, map[string]string{field: message})
}

type grantKey struct {
	studentID   string
	classroomID string
}

// directory memoizes reference lookups for the duration of one call.
type directory struct {
	r *eventResolver

	classrooms map[string]*models.Classroom
	types      map[string]*models.EventType
	students   map[string]*models.Student
	grants     map[grantKey]*models.StudentEventPermission
}

func (d *directory) classroom(ctx context.Context, id, field string) (*models.Classroom, error) {
	if c, ok := d.classrooms[id]; ok {
		return c, nil
	}
	c, err := d.r.classrooms.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalidField(field, "classroom not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}
	d.classrooms[id] = c
	return c, nil
}

func (d *directory) eventType(ctx context.Context, id, field string) (*models.EventType, error) {
	if t, ok := d.types[id]; ok {
		return t, nil
	}
	t, err := d.r.types.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalidField(field, "event type not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event type")
	}
	if !t.IsActive {
		return nil, invalidField(field, "event type is inactive")
	}
	d.types[id] = t
	return t, nil
}

func (d *directory) student(ctx context.Context, id, field string) (*models.Student, error) {
	if s, ok := d.students[id]; ok {
		return s, nil
	}
	s, err := d.r.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalidField(field, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	d.students[id] = s
	return s, nil
}

// grant returns nil when the student holds no permission for the classroom.
func (d *directory) grant(ctx context.Context, studentID, classroomID string) (*models.StudentEventPermission, error) {
	key := grantKey{studentID: studentID, classroomID: classroomID}
	if g, ok := d.grants[key]; ok {
		return g, nil
	}
	var grant *models.StudentEventPermission
	detail, err := d.r.grants.FindByStudentClassroom(ctx, studentID, classroomID)
	switch {
	case err == nil:
		grant = &detail.StudentEventPermission
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student permission")
	}
	d.grants[key] = grant
	return grant, nil
}

// resolvedEvent is a validated and authorized event payload.
type resolvedEvent struct {
	Classroom   *models.Classroom
	EventType   *models.EventType
	StudentID   *string
	Date        string
	Period      *int
	Points      int
	Description *string
	Decision    Decision
}

// eventResolver turns client payloads into authorized event rows.
type eventResolver struct {
	classrooms classroomReader
	students   studentReader
	types      eventTypeReader
	grants     grantReader
	gate       PermissionGate
	sanitizer  *textSanitizer
	clock      *clock
}

func (r *eventResolver) directory() *directory {
	return &directory{
		r:          r,
		classrooms: make(map[string]*models.Classroom),
		types:      make(map[string]*models.EventType),
		students:   make(map[string]*models.Student),
		grants:     make(map[grantKey]*models.StudentEventPermission),
	}
}

// resolve checks the payload's references and the create rule. field prefixes
// the keys of any validation detail.
func (r *eventResolver) resolve(ctx context.Context, actor Actor, dir *directory, in dto.EventPayload, field string) (*resolvedEvent, error) {
	classroom, err := dir.classroom(ctx, in.Classroom, fieldPath(field, "classroom"))
	if err != nil {
		return nil, err
	}
	eventType, err := dir.eventType(ctx, in.EventType, fieldPath(field, "event_type"))
	if err != nil {
		return nil, err
	}

	var studentID *string
	if in.Student != nil && *in.Student != "" {
		student, err := dir.student(ctx, *in.Student, fieldPath(field, "student"))
		if err != nil {
			return nil, err
		}
		if actor.IsStudent() && student.ClassroomID != classroom.ID {
			return nil, invalidField(fieldPath(field, "student"), "student does not belong to the classroom")
		}
		studentID = &student.ID
	}

	var grant *models.StudentEventPermission
	if actor.IsStudent() && actor.StudentID != "" {
		if grant, err = dir.grant(ctx, actor.StudentID, classroom.ID); err != nil {
			return nil, err
		}
	}

	decision := r.gate.Create(actor, CreateFacts{EventType: eventType, StudentID: studentID, Grant: grant, Now: r.clock.now()})
	if err := decision.Err(); err != nil {
		return nil, err
	}

	points := eventType.DefaultPoints
	if in.Points != nil {
		points = *in.Points
	}

	return &resolvedEvent{
		Classroom:   classroom,
		EventType:   eventType,
		StudentID:   studentID,
		Date:        in.Date,
		Period:      in.Period,
		Points:      points,
		Description: r.sanitizer.CleanOptional(in.Description),
		Decision:    decision,
	}, nil
}

// build creates the row for a resolved payload recorded by actor.
func (r *eventResolver) build(actor Actor, ev *resolvedEvent) *models.Event {
	now := r.clock.Now()
	event := &models.Event{
		EventTypeID: ev.EventType.ID,
		ClassroomID: ev.Classroom.ID,
		StudentID:   ev.StudentID,
		Date:        ev.Date,
		Period:      ev.Period,
		Points:      ev.Points,
		Description: ev.Description,
		RecordedBy:  actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if ev.Decision.ForcePending {
		event.Reopen()
	} else {
		event.Approve(actor.UserID, now)
	}
	return event
}

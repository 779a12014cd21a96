package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-merit-api/internal/dto"
	"github.com/noah-isme/sma-merit-api/internal/models"
	"github.com/noah-isme/sma-merit-api/internal/repository"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

type eventStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, event *models.Event) error
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string, lock bool) (*models.Event, error)
	FindDetailByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.EventDetail, error)
	List(ctx context.Context, exec sqlx.ExtContext, filter models.EventFilter, order repository.EventOrder) ([]models.EventDetail, error)
	ListByClassroomDates(ctx context.Context, exec sqlx.ExtContext, pairs []models.ClassroomDate, filter models.EventFilter) ([]models.EventDetail, error)
	LockScope(ctx context.Context, exec sqlx.ExtContext, classroomID, date string, period *int, recordedBy string) ([]models.Event, error)
	Update(ctx context.Context, exec sqlx.ExtContext, event *models.Event) error
	DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (int64, error)
	Review(ctx context.Context, exec sqlx.ExtContext, params repository.ReviewParams) (int64, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// EventStores groups the persistence collaborators of the event services.
type EventStores struct {
	Events     eventStore
	Classrooms classroomReader
	Students   studentReader
	EventTypes eventTypeReader
	Grants     grantReader
	Tx         txProvider
}

// EventOptions carries the optional collaborators of the event services.
type EventOptions struct {
	Cache      *CacheService
	Metrics    *MetricsService
	Audit      auditRecorder
	Validator  *validator.Validate
	Logger     *zap.Logger
	PendingTTL time.Duration
	Now        func() time.Time
}

// eventCore holds what the lifecycle service and the sync engine share.
type eventCore struct {
	events    eventStore
	tx        txProvider
	resolver  *eventResolver
	actors    actorResolver
	gate      PermissionGate
	cache     *CacheService
	metrics   *MetricsService
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

func newEventCore(stores EventStores, opts EventOptions) eventCore {
	if opts.Validator == nil {
		opts.Validator = NewValidator()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Audit == nil {
		opts.Audit = noopAudit{}
	}
	return eventCore{
		events: stores.Events,
		tx:     stores.Tx,
		resolver: &eventResolver{
			classrooms: stores.Classrooms,
			students:   stores.Students,
			types:      stores.EventTypes,
			grants:     stores.Grants,
			sanitizer:  newTextSanitizer(),
			clock:      newClock(opts.Now),
		},
		actors:    actorResolver{students: stores.Students},
		cache:     opts.Cache,
		metrics:   opts.Metrics,
		audit:     opts.Audit,
		validator: opts.Validator,
		logger:    opts.Logger,
	}
}

// inTx runs fn inside one transaction. Any error from fn rolls everything back.
func (c *eventCore) inTx(ctx context.Context, operation string, fn func(tx *sqlx.Tx) error) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveTransaction(operation, time.Since(start), err)
	}()
	if c.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	tx, err := c.tx.BeginTxx(ctx, nil)
	if err != nil {
		return txFailure(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return txFailure(err, "failed to commit transaction")
	}
	return nil
}

func txFailure(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrTransaction.Code, appErrors.ErrTransaction.Status, message)
}

// afterWrite refreshes derived state once event rows changed.
func (c *eventCore) afterWrite(ctx context.Context, source string, created, updated, deleted int) {
	c.metrics.RecordEventChanges(source, created, updated, deleted)
	c.cache.InvalidatePending(ctx)
}

func (c *eventCore) detail(ctx context.Context, id string) (*models.EventDetail, error) {
	event, err := c.events.FindDetailByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

// missingOrForbidden explains why id was not reachable: absent or out of scope.
func (c *eventCore) missingOrForbidden(ctx context.Context, id, reason string) error {
	if _, err := c.events.FindByID(ctx, nil, id, false); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return appErrors.Clone(appErrors.ErrForbidden, reason)
}

func (c *eventCore) validID(id string) error {
	if err := c.validator.Var(id, "required,uuid"); err != nil {
		return appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	return nil
}

// EventService implements the single-event lifecycle and the review workflow.
type EventService struct {
	eventCore
	pendingTTL time.Duration
}

// NewEventService wires the lifecycle service.
func NewEventService(stores EventStores, opts EventOptions) *EventService {
	return &EventService{eventCore: newEventCore(stores, opts), pendingTTL: opts.PendingTTL}
}

// Create records one event. Staff events are approved immediately; student
// events wait for review.
func (s *EventService) Create(ctx context.Context, claims *models.JWTClaims, req dto.EventPayload) (*models.EventDetail, error) {
	actor, err := s.actors.resolve(ctx, claims)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidator(err, invalidEventMessage)
	}

	resolved, err := s.resolver.resolve(ctx, actor, s.resolver.directory(), req, "")
	if err != nil {
		return nil, err
	}
	event := s.resolver.build(actor, resolved)
	if err := s.events.Create(ctx, nil, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}

	s.afterWrite(ctx, "api", 1, 0, 0)
	s.audit.Record(ctx, newAuditEntry(actor.UserID, models.AuditActionEventCreate, "event", event.ID, nil, event))
	return s.detail(ctx, event.ID)
}

// CreateBatch records several events atomically. Every item passes the create rule.
func (s *EventService) CreateBatch(ctx context.Context, claims *models.JWTClaims, req dto.BulkCreateEventsRequest) (*dto.BulkCreateEventsResponse, error) {
	actor, err := s.actors.resolve(ctx, claims)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidator(err, invalidEventMessage)
	}

	dir := s.resolver.directory()
	rows := make([]*models.Event, 0, len(req.Events))
	for i, item := range req.Events {
		resolved, err := s.resolver.resolve(ctx, actor, dir, item, fmt.Sprintf("events[%d]", i))
		if err != nil {
			return nil, err
		}
		rows = append(rows, s.resolver.build(actor, resolved))
	}

	ids := make([]string, 0, len(rows))
	var created []models.EventDetail
	err = s.inTx(ctx, "bulk_create", func(tx *sqlx.Tx) error {
		for _, row := range rows {
			if err := s.events.Create(ctx, tx, row); err != nil {
				return txFailure(err, "failed to create events")
			}
			ids = append(ids, row.ID)
		}
		var err error
		created, err = s.events.List(ctx, tx, models.EventFilter{IDs: ids}, repository.OrderByScope)
		if err != nil {
			return txFailure(err, "failed to load created events")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, "bulk", len(rows), 0, 0)
	s.audit.Record(ctx, newAuditEntry(actor.UserID, models.AuditActionEventCreate, "event", "", nil, map[string]interface{}{"event_ids": ids}))
	s.logger.Info("events bulk created", zap.String("actor_id", actor.UserID), zap.Int("created", len(rows)))

	return &dto.BulkCreateEventsResponse{
		Message:      fmt.Sprintf("%d events created", len(rows)),
		CreatedCount: len(rows),
		Events:       created,
	}, nil
}

// Get returns one event visible to the caller.
func (s *EventService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.EventDetail, error) {
	actor, err := s.actors.resolve(ctx, claims)
	if err != nil {
		return nil, err
	}
	if err := s.validID(id); err != nil {
		return nil, err
	}
	decision := s.gate.Query(actor)
	if err := decision.Err(); err != nil {
		return nil, err
	}

	items, err := s.events.List(ctx, nil, decision.Narrow(models.EventFilter{IDs: []string{id}}), repository.OrderByScope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	if len(items) == 0 {
		return nil, s.missingOrForbidden(ctx, id, "event is outside your scope")
	}
	return &items[0], nil
}

// Update applies a partial change. A student's change sends the event back to review.
func (s *EventService) Update(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdateEventRequest) (*models.EventDetail, error) {
	actor, err := s.actors.resolve(ctx, claims)
	if err != nil {
		return nil, err
	}
	if err := s.validID(id); err != nil {
		return nil, err
	}
	if err := s.validateUpdate(req); err != nil {
		return nil, err
	}

	var before, after models.Event
	err = s.inTx(ctx, "update", func(tx *sqlx.Tx) error {
		current, err := s.events.FindByID(ctx, tx, id, true)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "event not found")
			}
			return txFailure(err, "failed to load event")
		}

		updated, facts, err := s.applyUpdate(ctx, actor, current, req)
		if err != nil {
			return err
		}
		decision := s.gate.Update(actor, facts)
		if err := decision.Err(); err != nil {
			return err
		}
		if decision.ForcePending {
			updated.Reopen()
		}
		updated.UpdatedAt = s.resolver.clock.Now()
		if err := s.events.Update(ctx, tx, updated); err != nil {
			return txFailure(err, "failed to update event")
		}
		before, after = *current, *updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, "api", 0, 1, 0)
	s.audit.Record(ctx, newAuditEntry(actor.UserID, models.AuditActionEventUpdate, "event", id, before, after))
	return s.detail(ctx, id)
}

func (s *EventService) validateUpdate(req dto.UpdateEventRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.FromValidator(err, invalidEventMessage)
	}
	details := map[string]string{}
	if req.Student.Value != nil && *req.Student.Value != "" {
		if err := s.validator.Var(*req.Student.Value, "uuid"); err != nil {
			details["student"] = "must be a valid id"
		}
	}
	if req.Period.Value != nil && !validPeriod(*req.Period.Value) {
		details["period"] = fmt.Sprintf("must be between %d and %d", minPeriod, maxPeriod)
	}
	if req.Description.Value != nil && len(*req.Description.Value) > 2000 {
		details["description"] = "must be at most 2000"
	}
	if len(details) > 0 {
		return appErrors.Validation(invalidEventMessage, details)
	}
	return nil
}

// applyUpdate returns the changed copy of current together with the facts the
// update rule needs.
func (s *EventService) applyUpdate(ctx context.Context, actor Actor, current *models.Event, req dto.UpdateEventRequest) (*models.Event, UpdateFacts, error) {
	dir := s.resolver.directory()
	facts := UpdateFacts{Event: current}

	classroom, err := dir.classroom(ctx, current.ClassroomID, "classroom")
	if err != nil {
		return nil, facts, err
	}
	facts.Classroom = classroom
	facts.Target = classroom

	updated := *current
	if req.Classroom != nil && *req.Classroom != current.ClassroomID {
		target, err := dir.classroom(ctx, *req.Classroom, "classroom")
		if err != nil {
			return nil, facts, err
		}
		facts.Target = target
		updated.ClassroomID = target.ID
	}
	if req.EventType != nil && *req.EventType != current.EventTypeID {
		eventType, err := dir.eventType(ctx, *req.EventType, "event_type")
		if err != nil {
			return nil, facts, err
		}
		if actor.IsStudent() && !eventType.Allows(actor.Role) {
			return nil, facts, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("event type %q cannot be recorded by %s", eventType.Name, roleLabel(actor.Role)))
		}
		updated.EventTypeID = eventType.ID
	}
	if req.Student.Set {
		updated.StudentID = nil
		if req.Student.Value != nil && *req.Student.Value != "" {
			id := *req.Student.Value
			updated.StudentID = &id
		}
	}
	if updated.StudentID != nil && (req.Student.Set || updated.ClassroomID != current.ClassroomID) {
		student, err := dir.student(ctx, *updated.StudentID, "student")
		if err != nil {
			return nil, facts, err
		}
		if actor.IsStudent() && student.ClassroomID != updated.ClassroomID {
			return nil, facts, invalidField("student", "student does not belong to the classroom")
		}
	}
	if req.Date != nil {
		updated.Date = *req.Date
	}
	if req.Period.Set {
		updated.Period = req.Period.Value
	}
	if req.Points != nil {
		updated.Points = *req.Points
	}
	if req.Description.Set {
		updated.Description = s.resolver.sanitizer.CleanOptional(req.Description.Value)
	}
	facts.StudentID = updated.StudentID
	return &updated, facts, nil
}

// Delete removes an event under the same rule as an update.
func (s *EventService) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	actor, err := s.actors.resolve(ctx, claims)
	if err != nil {
		return err
	}
	if err := s.validID(id); err != nil {
		return err
	}

	var removed models.Event
	err = s.inTx(ctx, "delete", func(tx *sqlx.Tx) error {
		current, err := s.events.FindByID(ctx, tx, id, true)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "event not found")
			}
			return txFailure(err, "failed to load event")
		}
		classroom, err := s.resolver.directory().classroom(ctx, current.ClassroomID, "classroom")
		if err != nil {
			return err
		}
		decision := s.gate.Update(actor, UpdateFacts{Event: current, Classroom: classroom, StudentID: current.StudentID})
		if err := decision.Err(); err != nil {
			return err
		}
		if _, err := s.events.DeleteByIDs(ctx, tx, []string{id}); err != nil {
			return txFailure(err, "failed to delete event")
		}
		removed = *current
		return nil
	})
	if err != nil {
		return err
	}

	s.afterWrite(ctx, "api", 0, 0, 1)
	s.audit.Record(ctx, newAuditEntry(actor.UserID, models.AuditActionEventDelete, "event", id, removed, nil))
	return nil
}

// Review approves or rejects a single event.
func (s *EventService) Review(ctx context.Context, claims *models.JWTClaims, id string, req dto.ReviewEventRequest) (*models.EventDetail, error) {
	actor, err := s.actors.resolve(ctx, claims)
	if err != nil {
		return nil, err
	}
	if err := s.validID(id); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidator(err, "invalid review payload")
	}
	decision := s.gate.Moderate(actor)
	if err := decision.Err(); err != nil {
		return nil, err
	}

	params := s.reviewParams(actor, decision.Narrow(models.EventFilter{IDs: []string{id}}), req.RejectionNotes)
	affected, err := s.applyReview(ctx, params)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, s.missingOrForbidden(ctx, id, "only the homeroom teacher can review events of this classroom")
	}

	s.audit.Record(ctx, newAuditEntry(actor.UserID, models.AuditActionEventReview, "event", id, nil, map[string]interface{}{
		"status":          params.Status,
		"rejection_notes": params.RejectionNotes,
	}))
	return s.detail(ctx, id)
}

// ApproveOrReject reviews events selected by id, or the pending events of a
// classroom and date. Teachers only reach their homeroom classrooms.
func (s *EventService) ApproveOrReject(ctx context.Context, claims *models.JWTClaims, req dto.ApproveEventsRequest) (*dto.ApproveEventsResponse, error) {
	actor, err := s.actors.resolve(ctx, claims)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidator(err, "invalid approval payload")
	}
	decision := s.gate.Moderate(actor)
	if err := decision.Err(); err != nil {
		return nil, err
	}

	filter := models.EventFilter{}
	switch {
	case len(req.EventIDs) > 0:
		filter.IDs = req.EventIDs
	case req.Classroom != nil && req.Date != nil:
		filter.ClassroomID = *req.Classroom
		filter.Date = *req.Date
		filter.Period = req.Period
		filter.Status = models.EventStatusPending
	default:
		return nil, appErrors.Validation("invalid approval payload", map[string]string{
			"event_ids": "provide event_ids, or classroom and date",
		})
	}

	params := s.reviewParams(actor, decision.Narrow(filter), req.RejectionNotes)
	affected, err := s.applyReview(ctx, params)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, newAuditEntry(actor.UserID, models.AuditActionEventReview, "event", "", nil, map[string]interface{}{
		"status":        params.Status,
		"event_ids":     req.EventIDs,
		"classroom":     req.Classroom,
		"date":          req.Date,
		"period":        req.Period,
		"updated_count": affected,
	}))
	s.logger.Info("events reviewed",
		zap.String("actor_id", actor.UserID),
		zap.String("status", string(params.Status)),
		zap.Int64("updated", affected),
	)

	return &dto.ApproveEventsResponse{
		Message:      fmt.Sprintf("%d events %s", affected, params.Status),
		UpdatedCount: int(affected),
	}, nil
}

// reviewParams chooses approve or reject from the presence of rejection notes.
func (s *EventService) reviewParams(actor Actor, filter models.EventFilter, rawNotes *string) repository.ReviewParams {
	params := repository.ReviewParams{
		Filter:     filter,
		Status:     models.EventStatusApproved,
		ReviewerID: actor.UserID,
		ReviewedAt: s.resolver.clock.Now(),
	}
	if notes := s.resolver.sanitizer.CleanOptional(rawNotes); notes != nil {
		params.Status = models.EventStatusRejected
		params.RejectionNotes = notes
	}
	return params
}

func (s *EventService) applyReview(ctx context.Context, params repository.ReviewParams) (int64, error) {
	var affected int64
	err := s.inTx(ctx, "review", func(tx *sqlx.Tx) error {
		var err error
		affected, err = s.events.Review(ctx, tx, params)
		if err != nil {
			return txFailure(err, "failed to review events")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		s.metrics.RecordReview(string(params.Status), int(affected))
		s.afterWrite(ctx, "review", 0, int(affected), 0)
	}
	return affected, nil
}

// ListPending returns the pending events visible to the caller in review order.
// The boolean reports a cache hit.
func (s *EventService) ListPending(ctx context.Context, claims *models.JWTClaims, query dto.PendingEventsQuery) ([]models.EventDetail, bool, error) {
	actor, err := s.actors.resolve(ctx, claims)
	if err != nil {
		return nil, false, err
	}
	decision := s.gate.Query(actor)
	if err := decision.Err(); err != nil {
		return nil, false, err
	}
	if err := s.validatePendingQuery(query); err != nil {
		return nil, false, err
	}

	key := PendingKey(actor, query.ClassroomID, query.Date, query.Period)
	var cached []models.EventDetail
	if s.cache.Get(ctx, key, &cached) {
		return cached, true, nil
	}
	generation := s.cache.PendingGeneration()

	filter := decision.Narrow(models.EventFilter{
		ClassroomID: query.ClassroomID,
		Date:        query.Date,
		Period:      query.Period,
		Status:      models.EventStatusPending,
	})
	items, err := s.events.List(ctx, nil, filter, repository.OrderForReview)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending events")
	}
	s.cache.SetPending(ctx, key, items, s.pendingTTL, generation)
	return items, false, nil
}

func (s *EventService) validatePendingQuery(query dto.PendingEventsQuery) error {
	details := map[string]string{}
	if query.ClassroomID != "" {
		if err := s.validator.Var(query.ClassroomID, "uuid"); err != nil {
			details["classroom_id"] = "must be a valid id"
		}
	}
	if query.Date != "" && !validDate(query.Date) {
		details["date"] = "must be a date formatted as YYYY-MM-DD"
	}
	if query.Period != nil && !validPeriod(*query.Period) {
		details["period"] = fmt.Sprintf("must be between %d and %d", minPeriod, maxPeriod)
	}
	if len(details) > 0 {
		return appErrors.Validation("invalid pending filter", details)
	}
	return nil
}

package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-merit-api/internal/dto"
	"github.com/noah-isme/sma-merit-api/internal/models"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

const defaultMaxSyncItems = 500

// scopePlan is one authorized scope and the desired events that fall into it.
type scopePlan struct {
	key       scopeKey
	classroom *models.Classroom
	desired   []*resolvedEvent
	decision  Decision
}

// syncCounts aggregates the writes of one sync call.
type syncCounts struct {
	created int
	updated int
	deleted int
}

// EventSyncService reconciles the persisted events of whole scopes against a
// desired list in a single transaction.
type EventSyncService struct {
	eventCore
	maxItems int
}

// NewEventSyncService shares the collaborators and clock of events.
func NewEventSyncService(events *EventService, maxItems int) *EventSyncService {
	if maxItems <= 0 {
		maxItems = defaultMaxSyncItems
	}
	return &EventSyncService{eventCore: events.eventCore, maxItems: maxItems}
}

// Sync makes every scope named by req match its desired events. Validation and
// authorization of all scopes happen before the first write; any failure
// afterwards rolls the whole call back.
func (s *EventSyncService) Sync(ctx context.Context, claims *models.JWTClaims, req dto.SyncEventsRequest) (*dto.SyncEventsResponse, error) {
	actor, err := s.actors.resolve(ctx, claims)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidator(err, invalidEventMessage)
	}
	if len(req.Events) > s.maxItems {
		return nil, invalidField("events", fmt.Sprintf("must contain at most %d items", s.maxItems))
	}

	plans, err := s.plan(ctx, actor, req)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, invalidField("events", "provide events, or classroom and date")
	}

	visibility := s.gate.Query(actor)
	var (
		counts syncCounts
		events []models.EventDetail
	)
	err = s.inTx(ctx, "sync", func(tx *sqlx.Tx) error {
		for _, plan := range plans {
			if err := s.applyScope(ctx, tx, actor, plan, &counts); err != nil {
				return err
			}
		}
		var err error
		events, err = s.events.ListByClassroomDates(ctx, tx, touchedPairs(plans), visibility.Narrow(models.EventFilter{}))
		if err != nil {
			return txFailure(err, "failed to load synced events")
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("event sync rolled back", zap.String("actor_id", actor.UserID), zap.Int("scopes", len(plans)), zap.Error(err))
		return nil, err
	}
	if events == nil {
		events = []models.EventDetail{}
	}

	s.afterWrite(ctx, "sync", counts.created, counts.updated, counts.deleted)
	s.audit.Record(ctx, newAuditEntry(actor.UserID, models.AuditActionEventSync, "event", "", nil, map[string]interface{}{
		"scopes":        scopeSummary(plans),
		"created_count": counts.created,
		"updated_count": counts.updated,
		"deleted_count": counts.deleted,
	}))
	s.logger.Info("events synced",
		zap.String("actor_id", actor.UserID),
		zap.String("role", string(actor.Role)),
		zap.Int("scopes", len(plans)),
		zap.Int("created", counts.created),
		zap.Int("updated", counts.updated),
		zap.Int("deleted", counts.deleted),
	)

	return &dto.SyncEventsResponse{
		Message:      fmt.Sprintf("Sync completed: %d created, %d updated, %d deleted", counts.created, counts.updated, counts.deleted),
		CreatedCount: counts.created,
		UpdatedCount: counts.updated,
		DeletedCount: counts.deleted,
		Events:       events,
	}, nil
}

// plan resolves the desired events, groups them by scope in order of first
// appearance and authorizes every scope.
func (s *EventSyncService) plan(ctx context.Context, actor Actor, req dto.SyncEventsRequest) ([]*scopePlan, error) {
	dir := s.resolver.directory()
	index := make(map[scopeKey]*scopePlan)
	var plans []*scopePlan

	scopeFor := func(classroom *models.Classroom, date string, period *int) *scopePlan {
		key := scopeKey{classroomID: classroom.ID, date: date, period: periodOf(period)}
		if p, ok := index[key]; ok {
			return p
		}
		p := &scopePlan{key: key, classroom: classroom}
		index[key] = p
		plans = append(plans, p)
		return p
	}

	for i, item := range req.Events {
		resolved, err := s.resolver.resolve(ctx, actor, dir, item, fmt.Sprintf("events[%d]", i))
		if err != nil {
			return nil, err
		}
		p := scopeFor(resolved.Classroom, resolved.Date, resolved.Period)
		p.desired = append(p.desired, resolved)
	}

	if req.Classroom != nil && req.Date != nil {
		classroom, err := dir.classroom(ctx, *req.Classroom, "classroom")
		if err != nil {
			return nil, err
		}
		scopeFor(classroom, *req.Date, req.Period)
	}

	for _, p := range plans {
		var grant *models.StudentEventPermission
		if actor.IsStudent() && actor.StudentID != "" {
			var err error
			if grant, err = dir.grant(ctx, actor.StudentID, p.classroom.ID); err != nil {
				return nil, err
			}
		}
		p.decision = s.gate.Sync(actor, SyncFacts{Classroom: p.classroom, Grant: grant, Now: s.resolver.clock.now()})
		if err := p.decision.Err(); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

// applyScope locks the scope's existing rows and writes the diff.
func (s *EventSyncService) applyScope(ctx context.Context, tx *sqlx.Tx, actor Actor, plan *scopePlan, counts *syncCounts) error {
	existing, err := s.events.LockScope(ctx, tx, plan.key.classroomID, plan.key.date, plan.key.period.ptr(), plan.decision.Scope.RecordedBy)
	if err != nil {
		return txFailure(err, "failed to load scope events")
	}

	changes := reconcile(existing, plan.desired)

	for _, row := range changes.Updates {
		if plan.decision.ForcePending {
			row.Reopen()
		}
		row.UpdatedAt = s.resolver.clock.Now()
		if err := s.events.Update(ctx, tx, row); err != nil {
			return txFailure(err, "failed to update event")
		}
	}
	for _, item := range changes.Creates {
		row := s.resolver.build(actor, item)
		if plan.decision.ForcePending {
			row.Reopen()
		}
		if err := s.events.Create(ctx, tx, row); err != nil {
			return txFailure(err, "failed to create event")
		}
	}
	if len(changes.Deletes) > 0 {
		if _, err := s.events.DeleteByIDs(ctx, tx, changes.Deletes); err != nil {
			return txFailure(err, "failed to delete events")
		}
	}

	counts.updated += len(changes.Updates)
	counts.created += len(changes.Creates)
	counts.deleted += len(changes.Deletes)
	return nil
}

// touchedPairs lists the distinct classroom and date pairs of plans.
func touchedPairs(plans []*scopePlan) []models.ClassroomDate {
	seen := make(map[models.ClassroomDate]struct{}, len(plans))
	pairs := make([]models.ClassroomDate, 0, len(plans))
	for _, p := range plans {
		pair := p.key.classroomDate()
		if _, ok := seen[pair]; ok {
			continue
		}
		seen[pair] = struct{}{}
		pairs = append(pairs, pair)
	}
	return pairs
}

func scopeSummary(plans []*scopePlan) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(plans))
	for _, p := range plans {
		out = append(out, map[string]interface{}{
			"classroom": p.key.classroomID,
			"date":      p.key.date,
			"period":    p.key.period.ptr(),
			"desired":   len(p.desired),
		})
	}
	return out
}

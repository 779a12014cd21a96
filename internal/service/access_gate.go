package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/sma-merit-api/internal/models"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

// Verdict is the outcome class of a gate decision.
type Verdict int

const (
	VerdictDeny Verdict = iota
	VerdictAllow
	// VerdictNarrow allows the operation over a reduced set of events.
	VerdictNarrow
)

// EventScope restricts which events an allowed operation may see or touch.
type EventScope struct {
	HomeroomTeacherID string
	RecordedBy        string
}

// Decision is the typed answer of the permission gate.
type Decision struct {
	Verdict Verdict
	Scope   EventScope
	Reason  string
	// ForcePending marks writes that must go back to review.
	ForcePending bool
}

func allow() Decision { return Decision{Verdict: VerdictAllow} }

func narrow(scope EventScope) Decision { return Decision{Verdict: VerdictNarrow, Scope: scope} }

func deny(format string, args ...interface{}) Decision {
	return Decision{Verdict: VerdictDeny, Reason: fmt.Sprintf(format, args...)}
}

// Allowed reports whether the operation may proceed.
func (d Decision) Allowed() bool {
	return d.Verdict != VerdictDeny
}

// Err returns a PermissionDenied error for a deny verdict and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed() {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, d.Reason)
}

// Narrow applies the decision's scope to filter.
func (d Decision) Narrow(filter models.EventFilter) models.EventFilter {
	if d.Verdict != VerdictNarrow {
		return filter
	}
	if d.Scope.HomeroomTeacherID != "" {
		filter.HomeroomTeacherID = d.Scope.HomeroomTeacherID
	}
	if d.Scope.RecordedBy != "" {
		filter.RecordedBy = d.Scope.RecordedBy
	}
	return filter
}

// CreateFacts are the records a create decision depends on.
type CreateFacts struct {
	EventType *models.EventType
	StudentID *string
	// Grant is the student's permission for the event's classroom, if any.
	Grant *models.StudentEventPermission
	Now   time.Time
}

// UpdateFacts are the records an update decision depends on.
type UpdateFacts struct {
	Event *models.Event
	// Classroom is the event's current classroom, Target the one after the change.
	Classroom *models.Classroom
	Target    *models.Classroom
	// StudentID is the event's student after the change.
	StudentID *string
}

// SyncFacts are the records a scope authorization depends on.
type SyncFacts struct {
	Classroom *models.Classroom
	Grant     *models.StudentEventPermission
	Now       time.Time
}

// PermissionGate decides what an actor may do with events. Every method is a
// pure function of its inputs.
type PermissionGate struct{}

// Create decides whether actor may record an event. Staff may record any
// type and are approved on creation; student records start pending.
func (PermissionGate) Create(actor Actor, facts CreateFacts) Decision {
	switch {
	case actor.Role.IsAdmin(), actor.Role == models.RoleTeacher:
		return allow()
	case actor.IsStudent():
		if actor.StudentID == "" {
			return deny("student profile not found")
		}
		if facts.EventType != nil && !facts.EventType.Allows(actor.Role) {
			return deny("event type %q cannot be recorded by %s", facts.EventType.Name, roleLabel(actor.Role))
		}
		if facts.StudentID == nil || *facts.StudentID != actor.StudentID {
			return deny("students may only record events for themselves")
		}
		if facts.Grant == nil || !facts.Grant.IsValid(facts.Now) {
			return deny("no valid permission to record events for this classroom")
		}
		d := allow()
		d.ForcePending = true
		return d
	default:
		return deny("role %s cannot record events", roleLabel(actor.Role))
	}
}

// Update decides whether actor may change or delete an existing event.
func (PermissionGate) Update(actor Actor, facts UpdateFacts) Decision {
	switch {
	case actor.Role.IsAdmin():
		return allow()
	case actor.Role == models.RoleTeacher:
		if !facts.Classroom.IsHomeroomOf(actor.UserID) {
			return deny("only the homeroom teacher can modify events of this classroom")
		}
		if facts.Target != nil && !facts.Target.IsHomeroomOf(actor.UserID) {
			return deny("only the homeroom teacher can move events into the target classroom")
		}
		return allow()
	case actor.IsStudent():
		if facts.Event == nil || facts.Event.RecordedBy != actor.UserID {
			return deny("students may only modify events they recorded")
		}
		if facts.StudentID == nil || *facts.StudentID != actor.StudentID {
			return deny("students may only record events for themselves")
		}
		d := allow()
		d.ForcePending = true
		return d
	default:
		return deny("role %s cannot modify events", roleLabel(actor.Role))
	}
}

// Moderate decides whether actor may approve or reject events. Teachers are
// narrowed to their homeroom classrooms instead of being refused.
func (PermissionGate) Moderate(actor Actor) Decision {
	switch {
	case actor.Role.IsAdmin():
		return allow()
	case actor.Role == models.RoleTeacher:
		return narrow(EventScope{HomeroomTeacherID: actor.UserID})
	default:
		return deny("only teachers and administrators can review events")
	}
}

// Query returns the visibility scope of actor over events.
func (PermissionGate) Query(actor Actor) Decision {
	switch {
	case actor.Role.IsAdmin():
		return allow()
	case actor.Role == models.RoleTeacher:
		return narrow(EventScope{HomeroomTeacherID: actor.UserID})
	case actor.IsStudent():
		return narrow(EventScope{RecordedBy: actor.UserID})
	default:
		return deny("role %s cannot view events", roleLabel(actor.Role))
	}
}

// Sync authorizes one reconciliation scope. Students reconcile only the
// events they recorded and their writes go back to review.
func (PermissionGate) Sync(actor Actor, facts SyncFacts) Decision {
	switch {
	case actor.Role.IsAdmin():
		return allow()
	case actor.Role == models.RoleTeacher:
		if !facts.Classroom.IsHomeroomOf(actor.UserID) {
			return deny("you are not the homeroom teacher of classroom %s", classroomLabel(facts.Classroom))
		}
		return allow()
	case actor.IsStudent():
		if facts.Grant == nil || !facts.Grant.IsValid(facts.Now) {
			return deny("no valid permission to record events for classroom %s", classroomLabel(facts.Classroom))
		}
		d := narrow(EventScope{RecordedBy: actor.UserID})
		d.ForcePending = true
		return d
	default:
		return deny("role %s cannot sync events", roleLabel(actor.Role))
	}
}

// ManageGrant decides whether actor may grant or change student permissions
// for classroom.
func (PermissionGate) ManageGrant(actor Actor, classroom *models.Classroom) Decision {
	switch {
	case actor.Role.IsAdmin():
		return allow()
	case actor.Role == models.RoleTeacher && classroom.IsHomeroomOf(actor.UserID):
		return allow()
	case actor.Role == models.RoleTeacher:
		return deny("only the homeroom teacher can manage permissions for classroom %s", classroomLabel(classroom))
	default:
		return deny("only teachers and administrators can manage permissions")
	}
}

func roleLabel(role models.UserRole) string {
	if role == "" {
		return "UNKNOWN"
	}
	return string(role)
}

func classroomLabel(c *models.Classroom) string {
	if c == nil {
		return "unknown"
	}
	if c.GradeName != "" {
		return c.GradeName + " " + c.Name
	}
	return c.Name
}

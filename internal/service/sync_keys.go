package service

import "github.com/noah-isme/sma-merit-api/internal/models"

// optionalPeriod is a lesson slot that may be absent. The zero value is "none".
type optionalPeriod struct {
	value int
	set   bool
}

func periodOf(p *int) optionalPeriod {
	if p == nil {
		return optionalPeriod{}
	}
	return optionalPeriod{value: *p, set: true}
}

func (p optionalPeriod) ptr() *int {
	if !p.set {
		return nil
	}
	v := p.value
	return &v
}

// optionalStudent is a student reference that may be absent for classroom-wide events.
type optionalStudent struct {
	id  string
	set bool
}

func studentOf(id *string) optionalStudent {
	if id == nil {
		return optionalStudent{}
	}
	return optionalStudent{id: *id, set: true}
}

// scopeKey identifies one reconciliation scope.
type scopeKey struct {
	classroomID string
	date        string
	period      optionalPeriod
}

func (k scopeKey) classroomDate() models.ClassroomDate {
	return models.ClassroomDate{ClassroomID: k.classroomID, Date: k.date}
}

// bucketKey correlates desired and existing events inside a scope.
type bucketKey struct {
	eventTypeID string
	student     optionalStudent
	period      optionalPeriod
}

func existingBucket(e *models.Event) bucketKey {
	return bucketKey{eventTypeID: e.EventTypeID, student: studentOf(e.StudentID), period: periodOf(e.Period)}
}

func desiredBucket(r *resolvedEvent) bucketKey {
	return bucketKey{eventTypeID: r.EventType.ID, student: studentOf(r.StudentID), period: periodOf(r.Period)}
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventReviewTransitions(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	e := &Event{Status: EventStatusPending}

	e.Reject("teacher-1", now, "wrong student")
	assert.Equal(t, EventStatusRejected, e.Status)
	require.NotNil(t, e.RejectionNotes)
	require.NotNil(t, e.ApprovedBy)

	e.Approve("teacher-1", now)
	assert.Equal(t, EventStatusApproved, e.Status)
	assert.Nil(t, e.RejectionNotes)
	assert.Equal(t, "teacher-1", *e.ApprovedBy)

	e.Reopen()
	assert.Equal(t, EventStatusPending, e.Status)
	assert.Nil(t, e.ApprovedBy)
	assert.Nil(t, e.ApprovedAt)
	assert.Nil(t, e.RejectionNotes)
}

func TestPermissionValidity(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, (&StudentEventPermission{IsActive: true}).IsValid(now))
	assert.True(t, (&StudentEventPermission{IsActive: true, ExpiresAt: &future}).IsValid(now))
	assert.False(t, (&StudentEventPermission{IsActive: true, ExpiresAt: &past}).IsValid(now))
	assert.True(t, (&StudentEventPermission{IsActive: true, ExpiresAt: &past}).IsExpired(now))
	assert.False(t, (&StudentEventPermission{IsActive: false}).IsValid(now))
}

func TestEventTypeAllows(t *testing.T) {
	studentOnly := &EventType{AllowedRoles: AudienceStudent}
	assert.True(t, studentOnly.Allows(RoleStudent))
	assert.False(t, studentOnly.Allows(RoleTeacher))
	assert.True(t, studentOnly.Allows(RoleAdmin))

	both := &EventType{AllowedRoles: AudienceBoth}
	assert.True(t, both.Allows(RoleTeacher))
	assert.True(t, both.Allows(RoleStudent))
}

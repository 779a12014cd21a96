package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-merit-api/internal/dto"
	"github.com/noah-isme/sma-merit-api/internal/models"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

type memoryPermissions struct {
	items      map[string]*models.PermissionDetail
	lastFilter models.PermissionFilter
	expired    []string
	sweepErr   error
}

func newMemoryPermissions() *memoryPermissions {
	return &memoryPermissions{items: map[string]*models.PermissionDetail{}}
}

func (m *memoryPermissions) List(ctx context.Context, filter models.PermissionFilter) ([]models.PermissionDetail, error) {
	m.lastFilter = filter
	var out []models.PermissionDetail
	for _, item := range m.items {
		out = append(out, *item)
	}
	return out, nil
}

func (m *memoryPermissions) FindByID(ctx context.Context, id string) (*models.PermissionDetail, error) {
	if item, ok := m.items[id]; ok {
		out := *item
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryPermissions) FindByStudentClassroom(ctx context.Context, studentID, classroomID string) (*models.PermissionDetail, error) {
	for _, item := range m.items {
		if item.StudentID == studentID && item.ClassroomID == classroomID {
			out := *item
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryPermissions) Upsert(ctx context.Context, permission *models.StudentEventPermission) error {
	if existing, err := m.FindByStudentClassroom(ctx, permission.StudentID, permission.ClassroomID); err == nil {
		permission.ID = existing.ID
	} else if permission.ID == "" {
		permission.ID = "eeeeeeee-eeee-4eee-8eee-eeeeeeeeeeee"
	}
	m.items[permission.ID] = &models.PermissionDetail{StudentEventPermission: *permission}
	return nil
}

func (m *memoryPermissions) Update(ctx context.Context, permission *models.StudentEventPermission) error {
	item, ok := m.items[permission.ID]
	if !ok {
		return sql.ErrNoRows
	}
	item.StudentEventPermission = *permission
	return nil
}

func (m *memoryPermissions) Delete(ctx context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

func (m *memoryPermissions) DeactivateExpired(ctx context.Context, now time.Time) ([]string, error) {
	return m.expired, m.sweepErr
}

func newPermissionFixture() (*PermissionService, *memoryPermissions, *auditStoreStub) {
	store := newMemoryPermissions()
	classrooms := classroomStub{
		classroomA: {ID: classroomA, Name: "A", HomeroomTeacherID: strPtr(teacherID)},
		classroomB: {ID: classroomB, Name: "B", HomeroomTeacherID: strPtr(otherTeacherID)},
	}
	students := studentStub{
		studentID: {ID: studentID, UserID: studentUserID, ClassroomID: classroomA},
	}
	audit := &auditStoreStub{}
	svc := NewPermissionService(store, classrooms, students, PermissionOptions{
		Audit: NewAuditService(audit, AuditConfig{}, nil),
		Now:   func() time.Time { return fixedNow },
	})
	return svc, store, audit
}

func TestPermissionServiceGrant(t *testing.T) {
	svc, store, audit := newPermissionFixture()
	expires := fixedNow.Add(48 * time.Hour)

	_, err := svc.Grant(context.Background(), claimsFor(otherTeacherID, models.RoleTeacher), dto.GrantPermissionRequest{Student: studentID, Classroom: classroomA})
	requireAppError(t, err, appErrors.ErrForbidden.Code)

	_, err = svc.Grant(context.Background(), claimsFor(otherTeacherID, models.RoleTeacher), dto.GrantPermissionRequest{Student: studentID, Classroom: classroomB})
	appErr := requireAppError(t, err, appErrors.ErrValidation.Code)
	assert.Equal(t, "student does not belong to the classroom", appErr.Details["student"])

	past := fixedNow.Add(-time.Hour)
	_, err = svc.Grant(context.Background(), claimsFor(teacherID, models.RoleTeacher), dto.GrantPermissionRequest{Student: studentID, Classroom: classroomA, ExpiresAt: &past})
	appErr = requireAppError(t, err, appErrors.ErrValidation.Code)
	assert.Contains(t, appErr.Details, "expires_at")

	grant, err := svc.Grant(context.Background(), claimsFor(teacherID, models.RoleTeacher), dto.GrantPermissionRequest{
		Student: studentID, Classroom: classroomA, ExpiresAt: &expires, Notes: "<b>class duty</b>",
	})
	require.NoError(t, err)
	assert.True(t, grant.Valid)
	assert.False(t, grant.Expired)
	assert.Equal(t, "class duty", grant.Notes)
	assert.Equal(t, teacherID, grant.GrantedBy)

	again, err := svc.Grant(context.Background(), claimsFor(adminID, models.RoleAdmin), dto.GrantPermissionRequest{Student: studentID, Classroom: classroomA})
	require.NoError(t, err)
	assert.Equal(t, grant.ID, again.ID, "granting twice re-issues the same grant")
	assert.Len(t, store.items, 1)

	require.Len(t, audit.all(), 2)
	assert.Equal(t, models.AuditActionPermissionGrant, audit.all()[0].Action)
}

func TestPermissionServiceUpdateAndRevoke(t *testing.T) {
	svc, store, _ := newPermissionFixture()
	grant, err := svc.Grant(context.Background(), claimsFor(teacherID, models.RoleTeacher), dto.GrantPermissionRequest{Student: studentID, Classroom: classroomA})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), claimsFor(teacherID, models.RoleTeacher), grant.ID, dto.UpdatePermissionRequest{IsActive: new(bool)})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.False(t, updated.Valid)

	_, err = svc.Update(context.Background(), claimsFor(otherTeacherID, models.RoleTeacher), grant.ID, dto.UpdatePermissionRequest{})
	requireAppError(t, err, appErrors.ErrForbidden.Code)

	_, err = svc.Update(context.Background(), claimsFor(adminID, models.RoleAdmin), "ffffffff-ffff-4fff-8fff-ffffffffffff", dto.UpdatePermissionRequest{})
	requireAppError(t, err, appErrors.ErrNotFound.Code)

	require.NoError(t, svc.Revoke(context.Background(), claimsFor(adminID, models.RoleAdmin), grant.ID))
	assert.Empty(t, store.items)
	requireAppError(t, svc.Revoke(context.Background(), claimsFor(adminID, models.RoleAdmin), grant.ID), appErrors.ErrNotFound.Code)
}

func TestPermissionServiceListScopesTeachers(t *testing.T) {
	svc, store, _ := newPermissionFixture()

	_, err := svc.List(context.Background(), claimsFor(teacherID, models.RoleTeacher), dto.PermissionQuery{})
	require.NoError(t, err)
	assert.Equal(t, teacherID, store.lastFilter.HomeroomTeacherID)

	_, err = svc.List(context.Background(), claimsFor(adminID, models.RoleAdmin), dto.PermissionQuery{ClassroomID: classroomA})
	require.NoError(t, err)
	assert.Empty(t, store.lastFilter.HomeroomTeacherID)
	assert.Equal(t, classroomA, store.lastFilter.ClassroomID)

	_, err = svc.List(context.Background(), claimsFor(studentUserID, models.RoleStudent), dto.PermissionQuery{})
	requireAppError(t, err, appErrors.ErrForbidden.Code)
}

func TestPermissionServiceCheck(t *testing.T) {
	expired := fixedNow.Add(-time.Minute)

	tests := []struct {
		name   string
		grant  *models.StudentEventPermission
		has    bool
		reason string
	}{
		{"missing", nil, false, permissionReasonMissing},
		{"inactive", &models.StudentEventPermission{IsActive: false}, false, permissionReasonInactive},
		{"expired", &models.StudentEventPermission{IsActive: true, ExpiresAt: &expired}, false, permissionReasonExpired},
		{"valid", &models.StudentEventPermission{IsActive: true}, true, permissionReasonValid},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, store, _ := newPermissionFixture()
			if tc.grant != nil {
				grant := *tc.grant
				grant.ID = "eeeeeeee-eeee-4eee-8eee-eeeeeeeeeeee"
				grant.StudentID = studentID
				grant.ClassroomID = classroomA
				store.items[grant.ID] = &models.PermissionDetail{StudentEventPermission: grant}
			}

			resp, err := svc.Check(context.Background(), claimsFor(studentUserID, models.RoleStudent), studentID, "")
			require.NoError(t, err)
			assert.Equal(t, tc.has, resp.HasPermission)
			assert.Equal(t, tc.reason, resp.Reason)
		})
	}
}

func TestPermissionServiceCheckAccess(t *testing.T) {
	svc, _, _ := newPermissionFixture()

	_, err := svc.Check(context.Background(), claimsFor(studentUserID, models.RoleStudent), classmateID, "")
	requireAppError(t, err, appErrors.ErrForbidden.Code)

	_, err = svc.Check(context.Background(), claimsFor(teacherID, models.RoleTeacher), classmateID, "")
	requireAppError(t, err, appErrors.ErrNotFound.Code)

	_, err = svc.Check(context.Background(), claimsFor(teacherID, models.RoleTeacher), studentID, "nope")
	requireAppError(t, err, appErrors.ErrValidation.Code)
}

func TestPermissionServiceSweepExpired(t *testing.T) {
	svc, store, audit := newPermissionFixture()
	store.expired = []string{"p1", "p2"}

	n, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	entries := audit.all()
	require.Len(t, entries, 2)
	assert.Equal(t, models.AuditActionPermissionExpire, entries[1].Action)
	assert.Nil(t, entries[1].UserID)

	store.sweepErr = errors.New("db down")
	_, err = svc.SweepExpired(context.Background())
	requireAppError(t, err, appErrors.ErrInternal.Code)
}

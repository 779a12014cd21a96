package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-merit-api/internal/models"
	"github.com/noah-isme/sma-merit-api/internal/repository"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

const (
	classroomA     = "11111111-1111-4111-8111-111111111111"
	classroomB     = "22222222-2222-4222-8222-222222222222"
	typeLate       = "33333333-3333-4333-8333-333333333333"
	typeHelpful    = "44444444-4444-4444-8444-444444444444"
	typeSelfReport = "45454545-4545-4545-8545-454545454545"
	teacherID      = "55555555-5555-4555-8555-555555555555"
	otherTeacherID = "66666666-6666-4666-8666-666666666666"
	adminID        = "77777777-7777-4777-8777-777777777777"
	studentUserID  = "88888888-8888-4888-8888-888888888888"
	studentID      = "99999999-9999-4999-8999-999999999999"
	classmateID    = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
)

var fixedNow = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func strPtr(v string) *string { return &v }

func intPtr(v int) *int { return &v }

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type classroomStub map[string]*models.Classroom

func (s classroomStub) FindByID(ctx context.Context, id string) (*models.Classroom, error) {
	if c, ok := s[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type studentStub map[string]*models.Student

func (s studentStub) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if st, ok := s[id]; ok {
		return st, nil
	}
	return nil, sql.ErrNoRows
}

func (s studentStub) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	for _, st := range s {
		if st.UserID == userID {
			return st, nil
		}
	}
	return nil, sql.ErrNoRows
}

type eventTypeStub map[string]*models.EventType

func (s eventTypeStub) FindByID(ctx context.Context, id string) (*models.EventType, error) {
	if et, ok := s[id]; ok {
		return et, nil
	}
	return nil, sql.ErrNoRows
}

type grantStub map[grantKey]*models.PermissionDetail

func (s grantStub) FindByStudentClassroom(ctx context.Context, studentID, classroomID string) (*models.PermissionDetail, error) {
	if g, ok := s[grantKey{studentID: studentID, classroomID: classroomID}]; ok {
		return g, nil
	}
	return nil, sql.ErrNoRows
}

// memoryEvents is an eventStore over a slice. It ignores the executor, so
// rolled back writes stay visible.
type memoryEvents struct {
	rows      []models.Event
	homeroom  map[string]string
	nextID    int
	createErr error
	// onList runs inside List, before the rows are read.
	onList func()
}

func (m *memoryEvents) Create(ctx context.Context, exec sqlx.ExtContext, event *models.Event) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	event.ID = fmt.Sprintf("00000000-0000-4000-8000-%012d", m.nextID)
	m.rows = append(m.rows, *event)
	return nil
}

func (m *memoryEvents) FindByID(ctx context.Context, exec sqlx.ExtContext, id string, lock bool) (*models.Event, error) {
	for _, row := range m.rows {
		if row.ID == id {
			out := row
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryEvents) FindDetailByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.EventDetail, error) {
	row, err := m.FindByID(ctx, exec, id, false)
	if err != nil {
		return nil, err
	}
	return &models.EventDetail{Event: *row}, nil
}

func (m *memoryEvents) List(ctx context.Context, exec sqlx.ExtContext, filter models.EventFilter, order repository.EventOrder) ([]models.EventDetail, error) {
	if m.onList != nil {
		m.onList()
	}
	var out []models.EventDetail
	for _, row := range m.rows {
		if m.matches(row, filter) {
			out = append(out, models.EventDetail{Event: row})
		}
	}
	return out, nil
}

func (m *memoryEvents) ListByClassroomDates(ctx context.Context, exec sqlx.ExtContext, pairs []models.ClassroomDate, filter models.EventFilter) ([]models.EventDetail, error) {
	var out []models.EventDetail
	for _, row := range m.rows {
		for _, pair := range pairs {
			if row.ClassroomID == pair.ClassroomID && row.Date == pair.Date && m.matches(row, filter) {
				out = append(out, models.EventDetail{Event: row})
				break
			}
		}
	}
	return out, nil
}

func (m *memoryEvents) LockScope(ctx context.Context, exec sqlx.ExtContext, classroomID, date string, period *int, recordedBy string) ([]models.Event, error) {
	var out []models.Event
	for _, row := range m.rows {
		if row.ClassroomID != classroomID || row.Date != date || periodOf(row.Period) != periodOf(period) {
			continue
		}
		if recordedBy != "" && row.RecordedBy != recordedBy {
			continue
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryEvents) Update(ctx context.Context, exec sqlx.ExtContext, event *models.Event) error {
	for i := range m.rows {
		if m.rows[i].ID == event.ID {
			m.rows[i] = *event
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memoryEvents) DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (int64, error) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.rows[:0]
	var n int64
	for _, row := range m.rows {
		if drop[row.ID] {
			n++
			continue
		}
		kept = append(kept, row)
	}
	m.rows = kept
	return n, nil
}

func (m *memoryEvents) Review(ctx context.Context, exec sqlx.ExtContext, params repository.ReviewParams) (int64, error) {
	var n int64
	for i := range m.rows {
		if !m.matches(m.rows[i], params.Filter) {
			continue
		}
		m.rows[i].Status = params.Status
		m.rows[i].ApprovedBy = &params.ReviewerID
		ts := params.ReviewedAt
		m.rows[i].ApprovedAt = &ts
		m.rows[i].RejectionNotes = params.RejectionNotes
		n++
	}
	return n, nil
}

func (m *memoryEvents) matches(row models.Event, f models.EventFilter) bool {
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			found = found || id == row.ID
		}
		if !found {
			return false
		}
	}
	switch {
	case f.ClassroomID != "" && row.ClassroomID != f.ClassroomID:
		return false
	case f.Date != "" && row.Date != f.Date:
		return false
	case f.Period != nil && periodOf(row.Period) != periodOf(f.Period):
		return false
	case f.Status != "" && row.Status != f.Status:
		return false
	case f.HomeroomTeacherID != "" && m.homeroom[row.ClassroomID] != f.HomeroomTeacherID:
		return false
	case f.RecordedBy != "" && row.RecordedBy != f.RecordedBy:
		return false
	}
	return true
}

func (m *memoryEvents) seed(t *testing.T, rows ...models.Event) []string {
	t.Helper()
	ids := make([]string, 0, len(rows))
	for i := range rows {
		row := rows[i]
		if row.CreatedAt.IsZero() {
			row.CreatedAt = fixedNow.Add(-time.Hour).Add(time.Duration(len(m.rows)) * time.Second)
		}
		require.NoError(t, m.Create(context.Background(), nil, &row))
		ids = append(ids, row.ID)
	}
	return ids
}

type eventFixture struct {
	events *memoryEvents
	grants grantStub
	types  eventTypeStub
	mock   sqlmock.Sqlmock
	svc    *EventService
	sync   *EventSyncService
}

func newEventFixture(t *testing.T) *eventFixture {
	return newEventFixtureWith(t, EventOptions{})
}

func newEventFixtureWith(t *testing.T, opts EventOptions) *eventFixture {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	provider, mock := newTxProviderMock(t)

	events := &memoryEvents{homeroom: map[string]string{classroomA: teacherID, classroomB: otherTeacherID}}
	grants := grantStub{}
	types := eventTypeStub{
		typeLate:    {ID: typeLate, Name: "Late", AllowedRoles: models.AudienceBoth, DefaultPoints: -2, IsActive: true},
		typeHelpful: {ID: typeHelpful, Name: "Helpful", AllowedRoles: models.AudienceTeacher, DefaultPoints: 5, IsActive: true},
	}
	stores := EventStores{
		Events: events,
		Classrooms: classroomStub{
			classroomA: {ID: classroomA, Name: "A", GradeName: "X", HomeroomTeacherID: strPtr(teacherID)},
			classroomB: {ID: classroomB, Name: "B", GradeName: "X", HomeroomTeacherID: strPtr(otherTeacherID)},
		},
		Students: studentStub{
			studentID:   {ID: studentID, UserID: studentUserID, ClassroomID: classroomA},
			classmateID: {ID: classmateID, UserID: "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb", ClassroomID: classroomA},
		},
		EventTypes: types,
		Grants:     grants,
		Tx:         provider,
	}
	svc := NewEventService(stores, opts)
	return &eventFixture{
		events: events,
		grants: grants,
		types:  types,
		mock:   mock,
		svc:    svc,
		sync:   NewEventSyncService(svc, 0),
	}
}

func (f *eventFixture) grantStudent(expiresAt *time.Time, active bool) {
	f.grants[grantKey{studentID: studentID, classroomID: classroomA}] = &models.PermissionDetail{
		StudentEventPermission: models.StudentEventPermission{
			ID:          "cccccccc-cccc-4ccc-8ccc-cccccccccccc",
			StudentID:   studentID,
			ClassroomID: classroomA,
			GrantedBy:   teacherID,
			IsActive:    active,
			ExpiresAt:   expiresAt,
		},
	}
}

func requireAppError(t *testing.T, err error, code string) *appErrors.Error {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, code, appErr.Code, appErr.Error())
	return appErr
}

// requireApprovalInvariant checks the review fields of every row against its status.
func requireApprovalInvariant(t *testing.T, rows []models.Event) {
	t.Helper()
	for _, row := range rows {
		switch row.Status {
		case models.EventStatusApproved:
			require.NotNil(t, row.ApprovedBy, row.ID)
			require.NotNil(t, row.ApprovedAt, row.ID)
			require.Nil(t, row.RejectionNotes, row.ID)
		case models.EventStatusRejected:
			require.NotNil(t, row.ApprovedBy, row.ID)
			require.NotNil(t, row.RejectionNotes, row.ID)
		case models.EventStatusPending:
			require.Nil(t, row.ApprovedBy, row.ID)
			require.Nil(t, row.ApprovedAt, row.ID)
			require.Nil(t, row.RejectionNotes, row.ID)
		default:
			t.Fatalf("unexpected status %q", row.Status)
		}
	}
}

func claimsFor(userID string, role models.UserRole) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: role}
}

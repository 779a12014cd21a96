package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-merit-api/internal/dto"
	"github.com/noah-isme/sma-merit-api/internal/middleware"
	"github.com/noah-isme/sma-merit-api/internal/models"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

type eventServiceMock struct {
	created     *models.EventDetail
	err         error
	lastPayload dto.EventPayload
	lastUpdate  dto.UpdateEventRequest
	lastID      string
	lastQuery   dto.PendingEventsQuery
	lastClaims  *models.JWTClaims
	pending     []models.EventDetail
	pendingHit  bool
	deleted     bool
}

func (m *eventServiceMock) Create(ctx context.Context, claims *models.JWTClaims, req dto.EventPayload) (*models.EventDetail, error) {
	m.lastClaims = claims
	m.lastPayload = req
	return m.created, m.err
}

func (m *eventServiceMock) CreateBatch(ctx context.Context, claims *models.JWTClaims, req dto.BulkCreateEventsRequest) (*dto.BulkCreateEventsResponse, error) {
	return &dto.BulkCreateEventsResponse{CreatedCount: len(req.Events)}, m.err
}

func (m *eventServiceMock) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.EventDetail, error) {
	m.lastID = id
	return m.created, m.err
}

func (m *eventServiceMock) Update(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdateEventRequest) (*models.EventDetail, error) {
	m.lastID = id
	m.lastUpdate = req
	return m.created, m.err
}

func (m *eventServiceMock) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	m.lastID = id
	m.deleted = m.err == nil
	return m.err
}

func (m *eventServiceMock) Review(ctx context.Context, claims *models.JWTClaims, id string, req dto.ReviewEventRequest) (*models.EventDetail, error) {
	m.lastID = id
	return m.created, m.err
}

func (m *eventServiceMock) ApproveOrReject(ctx context.Context, claims *models.JWTClaims, req dto.ApproveEventsRequest) (*dto.ApproveEventsResponse, error) {
	return &dto.ApproveEventsResponse{UpdatedCount: len(req.EventIDs)}, m.err
}

func (m *eventServiceMock) ListPending(ctx context.Context, claims *models.JWTClaims, query dto.PendingEventsQuery) ([]models.EventDetail, bool, error) {
	m.lastQuery = query
	return m.pending, m.pendingHit, m.err
}

type syncerMock struct {
	resp *dto.SyncEventsResponse
	err  error
	last dto.SyncEventsRequest
}

func (m *syncerMock) Sync(ctx context.Context, claims *models.JWTClaims, req dto.SyncEventsRequest) (*dto.SyncEventsResponse, error) {
	m.last = req
	return m.resp, m.err
}

func newEventContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})
	return c, w
}

func TestEventHandlerCreate(t *testing.T) {
	svc := &eventServiceMock{created: &models.EventDetail{Event: models.Event{ID: "evt-1", Status: models.EventStatusApproved}}}
	h := NewEventHandler(svc, &syncerMock{})

	c, w := newEventContext(http.MethodPost, "/events", `{"event_type":"t","classroom":"c","date":"2024-03-01","period":2}`)
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "teacher-1", svc.lastClaims.UserID)
	assert.Equal(t, 2, *svc.lastPayload.Period)
	assert.Nil(t, svc.lastPayload.Points)

	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "evt-1", body["data"]["id"])
}

func TestEventHandlerCreateInvalidBody(t *testing.T) {
	h := NewEventHandler(&eventServiceMock{}, &syncerMock{})

	c, w := newEventContext(http.MethodPost, "/events", `{"event_type":`)
	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), appErrors.ErrValidation.Code)
}

func TestEventHandlerUpdateDistinguishesNull(t *testing.T) {
	svc := &eventServiceMock{created: &models.EventDetail{}}
	h := NewEventHandler(svc, &syncerMock{})

	c, w := newEventContext(http.MethodPatch, "/events/evt-1", `{"student":null,"points":3}`)
	c.Params = gin.Params{{Key: "id", Value: "evt-1"}}
	h.Update(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "evt-1", svc.lastID)
	assert.True(t, svc.lastUpdate.Student.Set)
	assert.Nil(t, svc.lastUpdate.Student.Value)
	assert.False(t, svc.lastUpdate.Description.Set)
	assert.Equal(t, 3, *svc.lastUpdate.Points)
}

func TestEventHandlerSyncForbidden(t *testing.T) {
	syncer := &syncerMock{err: appErrors.Clone(appErrors.ErrForbidden, "you are not the homeroom teacher of classroom X B")}
	h := NewEventHandler(&eventServiceMock{}, syncer)

	c, w := newEventContext(http.MethodPost, "/events/sync", `{"classroom":"c","date":"2024-03-01","events":[]}`)
	h.Sync(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "2024-03-01", *syncer.last.Date)
	assert.Contains(t, w.Body.String(), "homeroom teacher")
}

func TestEventHandlerSync(t *testing.T) {
	syncer := &syncerMock{resp: &dto.SyncEventsResponse{CreatedCount: 1, Events: []models.EventDetail{}}}
	h := NewEventHandler(&eventServiceMock{}, syncer)

	c, w := newEventContext(http.MethodPost, "/events/sync", `{"events":[{"event_type":"t","classroom":"c","date":"2024-03-01"}]}`)
	h.Sync(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"created_count":1`)
	require.Len(t, syncer.last.Events, 1)
}

func TestEventHandlerPending(t *testing.T) {
	svc := &eventServiceMock{pendingHit: true}
	h := NewEventHandler(svc, &syncerMock{})

	c, w := newEventContext(http.MethodGet, "/events/pending?classroom_id=c-1&date=2024-03-01&period=3", "")
	middleware.ResponseMeta()(c)
	h.Pending(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c-1", svc.lastQuery.ClassroomID)
	assert.Equal(t, 3, *svc.lastQuery.Period)
	assert.Contains(t, w.Body.String(), `"data":[]`)
	assert.Contains(t, w.Body.String(), `"cache_hit":true`)

	c, w = newEventContext(http.MethodGet, "/events/pending?period=first", "")
	h.Pending(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventHandlerDeleteAndReview(t *testing.T) {
	svc := &eventServiceMock{created: &models.EventDetail{}}
	h := NewEventHandler(svc, &syncerMock{})

	c, w := newEventContext(http.MethodDelete, "/events/evt-2", "")
	c.Params = gin.Params{{Key: "id", Value: "evt-2"}}
	h.Delete(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.True(t, svc.deleted)
	_ = w

	svc.err = appErrors.Clone(appErrors.ErrNotFound, "event not found")
	c, w = newEventContext(http.MethodPost, "/events/evt-3/review", "")
	c.Request.ContentLength = 0
	c.Params = gin.Params{{Key: "id", Value: "evt-3"}}
	h.Review(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "evt-3", svc.lastID)
}

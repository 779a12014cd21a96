package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-merit-api/internal/dto"
	"github.com/noah-isme/sma-merit-api/internal/middleware"
	"github.com/noah-isme/sma-merit-api/internal/models"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
	"github.com/noah-isme/sma-merit-api/pkg/response"
)

type eventService interface {
	Create(ctx context.Context, claims *models.JWTClaims, req dto.EventPayload) (*models.EventDetail, error)
	CreateBatch(ctx context.Context, claims *models.JWTClaims, req dto.BulkCreateEventsRequest) (*dto.BulkCreateEventsResponse, error)
	Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.EventDetail, error)
	Update(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdateEventRequest) (*models.EventDetail, error)
	Delete(ctx context.Context, claims *models.JWTClaims, id string) error
	Review(ctx context.Context, claims *models.JWTClaims, id string, req dto.ReviewEventRequest) (*models.EventDetail, error)
	ApproveOrReject(ctx context.Context, claims *models.JWTClaims, req dto.ApproveEventsRequest) (*dto.ApproveEventsResponse, error)
	ListPending(ctx context.Context, claims *models.JWTClaims, query dto.PendingEventsQuery) ([]models.EventDetail, bool, error)
}

type eventSyncer interface {
	Sync(ctx context.Context, claims *models.JWTClaims, req dto.SyncEventsRequest) (*dto.SyncEventsResponse, error)
}

// EventHandler exposes the event lifecycle and sync endpoints.
type EventHandler struct {
	events eventService
	syncer eventSyncer
}

// NewEventHandler builds the handler.
func NewEventHandler(events eventService, syncer eventSyncer) *EventHandler {
	return &EventHandler{events: events, syncer: syncer}
}

// Create godoc
// @Summary Record an event
// @Description Staff events are approved immediately. Student events need a valid permission and start pending.
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body dto.EventPayload true "Event"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	var req dto.EventPayload
	if !bindJSON(c, &req, "invalid event payload") {
		return
	}
	event, err := h.events.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// CreateBatch godoc
// @Summary Record several events atomically
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body dto.BulkCreateEventsRequest true "Events"
// @Success 201 {object} response.Envelope
// @Router /events/bulk [post]
func (h *EventHandler) CreateBatch(c *gin.Context) {
	var req dto.BulkCreateEventsRequest
	if !bindJSON(c, &req, "invalid event payload") {
		return
	}
	result, err := h.events.CreateBatch(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Sync godoc
// @Summary Reconcile the events of whole scopes
// @Description Makes every (classroom, date, period) scope in the payload match the desired events. Runs in one transaction.
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body dto.SyncEventsRequest true "Desired events"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /events/sync [post]
func (h *EventHandler) Sync(c *gin.Context) {
	var req dto.SyncEventsRequest
	if !bindJSON(c, &req, "invalid sync payload") {
		return
	}
	result, err := h.syncer.Sync(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Approve godoc
// @Summary Approve or reject events
// @Description Selects events by id or by classroom and date. Non-empty rejection_notes rejects instead of approving.
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body dto.ApproveEventsRequest true "Selection"
// @Success 200 {object} response.Envelope
// @Router /events/approve [post]
func (h *EventHandler) Approve(c *gin.Context) {
	var req dto.ApproveEventsRequest
	if !bindJSON(c, &req, "invalid approval payload") {
		return
	}
	result, err := h.events.ApproveOrReject(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Pending godoc
// @Summary List events awaiting review
// @Tags Events
// @Produce json
// @Param classroom_id query string false "Classroom ID"
// @Param date query string false "Date (YYYY-MM-DD)"
// @Param period query int false "Period"
// @Success 200 {object} response.Envelope
// @Router /events/pending [get]
func (h *EventHandler) Pending(c *gin.Context) {
	query := dto.PendingEventsQuery{
		ClassroomID: c.Query("classroom_id"),
		Date:        c.Query("date"),
	}
	if raw := c.Query("period"); raw != "" {
		period, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Validation("invalid pending filter", map[string]string{"period": "must be a number"}))
			return
		}
		query.Period = &period
	}

	items, hit, err := h.events.ListPending(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	if items == nil {
		items = []models.EventDetail{}
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get an event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.events.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Update godoc
// @Summary Update an event
// @Description Student edits send the event back to review.
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.UpdateEventRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /events/{id} [put]
func (h *EventHandler) Update(c *gin.Context) {
	var req dto.UpdateEventRequest
	if !bindJSON(c, &req, "invalid event payload") {
		return
	}
	event, err := h.events.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Delete godoc
// @Summary Delete an event
// @Tags Events
// @Param id path string true "Event ID"
// @Success 204
// @Router /events/{id} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	if err := h.events.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Review godoc
// @Summary Approve or reject a single event
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.ReviewEventRequest false "Rejection notes"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/review [post]
func (h *EventHandler) Review(c *gin.Context) {
	var req dto.ReviewEventRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid review payload") {
		return
	}
	event, err := h.events.Review(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

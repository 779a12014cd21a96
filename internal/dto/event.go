package dto

import "github.com/noah-isme/sma-merit-api/internal/models"

// EventPayload describes a single event as submitted by a client.
// Points falls back to the event type's default when omitted.
type EventPayload struct {
	EventType   string  `json:"event_type" validate:"required,uuid"`
	Classroom   string  `json:"classroom" validate:"required,uuid"`
	Student     *string `json:"student" validate:"omitempty,uuid"`
	Date        string  `json:"date" validate:"required,event_date"`
	Period      *int    `json:"period" validate:"omitempty,period"`
	Points      *int    `json:"points"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// BulkCreateEventsRequest creates several events in one transaction.
type BulkCreateEventsRequest struct {
	Events []EventPayload `json:"events" validate:"required,min=1,dive"`
}

// BulkCreateEventsResponse reports the created events.
type BulkCreateEventsResponse struct {
	Message      string               `json:"message"`
	CreatedCount int                  `json:"created_count"`
	Events       []models.EventDetail `json:"events"`
}

// UpdateEventRequest is a partial update. Nullable fields may be cleared with null.
type UpdateEventRequest struct {
	EventType   *string          `json:"event_type" validate:"omitempty,uuid"`
	Classroom   *string          `json:"classroom" validate:"omitempty,uuid"`
	Student     Nullable[string] `json:"student"`
	Date        *string          `json:"date" validate:"omitempty,event_date"`
	Period      Nullable[int]    `json:"period"`
	Points      *int             `json:"points"`
	Description Nullable[string] `json:"description"`
}

// SyncEventsRequest carries the desired state of one or more scopes.
// Classroom and Date together name a scope that is reconciled even when
// no desired event falls into it, which clears that scope.
type SyncEventsRequest struct {
	Classroom *string        `json:"classroom" validate:"omitempty,uuid"`
	Date      *string        `json:"date" validate:"omitempty,event_date"`
	Period    *int           `json:"period" validate:"omitempty,period"`
	Events    []EventPayload `json:"events" validate:"dive"`
}

// SyncEventsResponse reports what a sync changed and the resulting events.
type SyncEventsResponse struct {
	Message      string               `json:"message"`
	CreatedCount int                  `json:"created_count"`
	UpdatedCount int                  `json:"updated_count"`
	DeletedCount int                  `json:"deleted_count"`
	Events       []models.EventDetail `json:"events"`
}

// ApproveEventsRequest selects events by id or by scope. A non-empty
// rejection_notes turns the approval into a rejection.
type ApproveEventsRequest struct {
	EventIDs       []string `json:"event_ids" validate:"omitempty,dive,uuid"`
	Classroom      *string  `json:"classroom" validate:"omitempty,uuid"`
	Date           *string  `json:"date" validate:"omitempty,event_date"`
	Period         *int     `json:"period" validate:"omitempty,period"`
	RejectionNotes *string  `json:"rejection_notes" validate:"omitempty,max=2000"`
}

// ApproveEventsResponse reports how many events changed state.
type ApproveEventsResponse struct {
	Message      string `json:"message"`
	UpdatedCount int    `json:"updated_count"`
}

// ReviewEventRequest approves a single event, or rejects it when notes are given.
type ReviewEventRequest struct {
	RejectionNotes *string `json:"rejection_notes" validate:"omitempty,max=2000"`
}

// PendingEventsQuery mirrors the pending list filters.
type PendingEventsQuery struct {
	ClassroomID string
	Date        string
	Period      *int
}

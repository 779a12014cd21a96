package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Merit API",
        "description": "Merit and demerit events for classrooms and students",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Events", "description": "Event recording, sync and review"},
        {"name": "Student Permissions", "description": "Grants that let students record events"}
    ],
    "paths": {
        "/events": {
            "post": {
                "tags": ["Events"],
                "summary": "Record an event",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EventPayload"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/events/bulk": {
            "post": {
                "tags": ["Events"],
                "summary": "Record several events atomically",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkCreateEventsRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/events/sync": {
            "post": {
                "tags": ["Events"],
                "summary": "Reconcile the events of whole scopes",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SyncEventsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Rolled back", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/events/approve": {
            "post": {
                "tags": ["Events"],
                "summary": "Approve or reject events",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApproveEventsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/events/pending": {
            "get": {
                "tags": ["Events"],
                "summary": "List pending events",
                "parameters": [
                    {"name": "classroom_id", "in": "query", "type": "string"},
                    {"name": "date", "in": "query", "type": "string"},
                    {"name": "period", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/events/{id}": {
            "get": {
                "tags": ["Events"],
                "summary": "Get an event",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Events"],
                "summary": "Update an event",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateEventRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["Events"],
                "summary": "Update an event",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateEventRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Events"],
                "summary": "Delete an event",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/events/{id}/review": {
            "post": {
                "tags": ["Events"],
                "summary": "Approve or reject one event",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ReviewEventRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Outside your classrooms", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/student-permissions": {
            "get": {
                "tags": ["Student Permissions"],
                "summary": "List grants",
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "classroom_id", "in": "query", "type": "string"},
                    {"name": "is_active", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Student Permissions"],
                "summary": "Grant a student permission",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GrantPermissionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/student-permissions/{id}": {
            "patch": {
                "tags": ["Student Permissions"],
                "summary": "Update a grant",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdatePermissionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Student Permissions"],
                "summary": "Revoke a grant",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Revoked"}
                }
            }
        },
        "/student-permissions/check/{studentId}": {
            "get": {
                "tags": ["Student Permissions"],
                "summary": "Check whether a student may record events",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "classroom_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "EventPayload": {
            "type": "object",
            "required": ["event_type", "classroom", "date"],
            "properties": {
                "event_type": {"type": "string", "format": "uuid"},
                "classroom": {"type": "string", "format": "uuid"},
                "student": {"type": "string", "format": "uuid"},
                "date": {"type": "string", "format": "date"},
                "period": {"type": "integer", "minimum": 1, "maximum": 10},
                "points": {"type": "integer"},
                "description": {"type": "string"}
            }
        },
        "BulkCreateEventsRequest": {
            "type": "object",
            "properties": {
                "events": {"type": "array", "items": {"$ref": "#/definitions/EventPayload"}}
            }
        },
        "UpdateEventRequest": {
            "type": "object",
            "properties": {
                "event_type": {"type": "string", "format": "uuid"},
                "classroom": {"type": "string", "format": "uuid"},
                "student": {"type": "string", "format": "uuid"},
                "date": {"type": "string", "format": "date"},
                "period": {"type": "integer"},
                "points": {"type": "integer"},
                "description": {"type": "string"}
            }
        },
        "SyncEventsRequest": {
            "type": "object",
            "properties": {
                "classroom": {"type": "string", "format": "uuid"},
                "date": {"type": "string", "format": "date"},
                "period": {"type": "integer"},
                "events": {"type": "array", "items": {"$ref": "#/definitions/EventPayload"}}
            }
        },
        "ApproveEventsRequest": {
            "type": "object",
            "properties": {
                "event_ids": {"type": "array", "items": {"type": "string", "format": "uuid"}},
                "classroom": {"type": "string", "format": "uuid"},
                "date": {"type": "string", "format": "date"},
                "period": {"type": "integer"},
                "rejection_notes": {"type": "string"}
            }
        },
        "ReviewEventRequest": {
            "type": "object",
            "properties": {
                "rejection_notes": {"type": "string"}
            }
        },
        "GrantPermissionRequest": {
            "type": "object",
            "required": ["student", "classroom"],
            "properties": {
                "student": {"type": "string", "format": "uuid"},
                "classroom": {"type": "string", "format": "uuid"},
                "expires_at": {"type": "string", "format": "date-time"},
                "notes": {"type": "string"}
            }
        },
        "UpdatePermissionRequest": {
            "type": "object",
            "properties": {
                "is_active": {"type": "boolean"},
                "expires_at": {"type": "string", "format": "date-time"},
                "notes": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}

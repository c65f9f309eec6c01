package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "ScoreHub API",
        "description": "Collaborative music transcription backend: revision ledger, derivative pipeline, aggregation, and engagement",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and identity"},
        {"name": "Works", "description": "Catalogued works and their aggregates"},
        {"name": "Sources", "description": "Source uploads, moderation, deletion"},
        {"name": "Revisions", "description": "Revision ledger, approvals, diffs"},
        {"name": "Engagement", "description": "Ratings, comments, votes"},
        {"name": "Progress", "description": "Pipeline progress streaming"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Get current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/users": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Provision a new account (admin)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateUserRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/works": {
            "get": {
                "tags": ["Works"],
                "summary": "List catalogued works",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/works/{workId}": {
            "get": {
                "tags": ["Works"],
                "summary": "Get one work by id or catalogue id",
                "parameters": [
                    {"name": "workId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["Works"],
                "summary": "Edit catalogue metadata (admin)",
                "parameters": [
                    {"name": "workId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateWorkRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Works"],
                "summary": "Delete an empty work (admin)",
                "parameters": [
                    {"name": "workId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/works/{workId}/sources": {
            "get": {
                "tags": ["Works"],
                "summary": "List a work's sources",
                "parameters": [
                    {"name": "workId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/works/{workId}/export": {
            "get": {
                "tags": ["Works"],
                "summary": "Export the work's source overview as CSV or PDF",
                "parameters": [
                    {"name": "workId", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/sources": {
            "post": {
                "tags": ["Sources"],
                "summary": "Upload a new source with its first revision",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "catalogueId", "in": "formData", "required": true, "type": "string"},
                    {"name": "label", "in": "formData", "required": true, "type": "string"},
                    {"name": "title", "in": "formData", "type": "string"},
                    {"name": "composer", "in": "formData", "type": "string"},
                    {"name": "sourceType", "in": "formData", "type": "string"},
                    {"name": "branch", "in": "formData", "type": "string"},
                    {"name": "correlationId", "in": "formData", "type": "string"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "202": {"description": "Accepted; pipeline continues in the background"}
                }
            }
        },
        "/sources/{sourceId}": {
            "get": {
                "tags": ["Sources"],
                "summary": "Get source metadata",
                "parameters": [
                    {"name": "sourceId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Sources"],
                "summary": "Delete a source with its revisions, diffs, and artifacts",
                "parameters": [
                    {"name": "sourceId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/sources/{sourceId}/verified": {
            "put": {
                "tags": ["Sources"],
                "summary": "Set or clear the admin verification mark",
                "parameters": [
                    {"name": "sourceId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/VerifySourceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sources/{sourceId}/flag": {
            "post": {
                "tags": ["Sources"],
                "summary": "Flag a source for moderation",
                "parameters": [
                    {"name": "sourceId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FlagSourceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Sources"],
                "summary": "Clear a moderation flag",
                "parameters": [
                    {"name": "sourceId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sources/{sourceId}/revisions": {
            "get": {
                "tags": ["Revisions"],
                "summary": "List revisions visible to the viewer",
                "parameters": [
                    {"name": "sourceId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Revisions"],
                "summary": "Upload a new revision",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "sourceId", "in": "path", "required": true, "type": "string"},
                    {"name": "branch", "in": "formData", "type": "string"},
                    {"name": "correlationId", "in": "formData", "type": "string"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "202": {"description": "Accepted; pipeline continues in the background"}
                }
            }
        },
        "/sources/{sourceId}/revisions/{revisionId}": {
            "get": {
                "tags": ["Revisions"],
                "summary": "Get one revision",
                "parameters": [
                    {"name": "sourceId", "in": "path", "required": true, "type": "string"},
                    {"name": "revisionId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sources/{sourceId}/revisions/{revisionId}/approve": {
            "post": {
                "tags": ["Revisions"],
                "summary": "Approve a pending revision",
                "parameters": [
                    {"name": "sourceId", "in": "path", "required": true, "type": "string"},
                    {"name": "revisionId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already decided the other way"}
                }
            }
        },
        "/sources/{sourceId}/revisions/{revisionId}/reject": {
            "post": {
                "tags": ["Revisions"],
                "summary": "Reject a pending revision",
                "parameters": [
                    {"name": "sourceId", "in": "path", "required": true, "type": "string"},
                    {"name": "revisionId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already decided the other way"}
                }
            }
        },
        "/sources/{sourceId}/revisions/{revisionId}/diff": {
            "get": {
                "tags": ["Revisions"],
                "summary": "Get the cached diff between two revisions",
                "parameters": [
                    {"name": "sourceId", "in": "path", "required": true, "type": "string"},
                    {"name": "revisionId", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["json", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/revisions/{revisionId}/ratings": {
            "get": {
                "tags": ["Engagement"],
                "summary": "Get the dense per-star rating histogram",
                "parameters": [
                    {"name": "revisionId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Engagement"],
                "summary": "Rate a revision with 1-5 stars",
                "parameters": [
                    {"name": "revisionId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RateRevisionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already rated by this user"}
                }
            }
        },
        "/revisions/{revisionId}/comments": {
            "get": {
                "tags": ["Engagement"],
                "summary": "List comment threads",
                "parameters": [
                    {"name": "revisionId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Engagement"],
                "summary": "Post a comment or a single-level reply",
                "parameters": [
                    {"name": "revisionId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateCommentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/comments/{commentId}": {
            "delete": {
                "tags": ["Engagement"],
                "summary": "Soft-delete a comment",
                "parameters": [
                    {"name": "commentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/comments/{commentId}/votes": {
            "post": {
                "tags": ["Engagement"],
                "summary": "Toggle an up or down vote",
                "parameters": [
                    {"name": "commentId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/VoteRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/progress/{correlationId}": {
            "get": {
                "tags": ["Progress"],
                "summary": "Stream pipeline progress events over a websocket",
                "parameters": [
                    {"name": "correlationId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "CreateUserRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "displayName": {"type": "string"},
                "password": {"type": "string"},
                "role": {"type": "string", "enum": ["ADMIN", "CONTRIBUTOR"]}
            },
            "required": ["email", "displayName", "password", "role"]
        },
        "UpdateWorkRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "composer": {"type": "string"},
                "catalogueNumber": {"type": "string"}
            },
            "required": ["title", "composer"]
        },
        "VerifySourceRequest": {
            "type": "object",
            "properties": {
                "verified": {"type": "boolean"}
            }
        },
        "FlagSourceRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            },
            "required": ["reason"]
        },
        "RateRevisionRequest": {
            "type": "object",
            "properties": {
                "stars": {"type": "integer", "minimum": 1, "maximum": 5}
            },
            "required": ["stars"]
        },
        "CreateCommentRequest": {
            "type": "object",
            "properties": {
                "body": {"type": "string"},
                "parentCommentId": {"type": "string"}
            },
            "required": ["body"]
        },
        "VoteRequest": {
            "type": "object",
            "properties": {
                "direction": {"type": "string", "enum": ["up", "down"]}
            },
            "required": ["direction"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "limit": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
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

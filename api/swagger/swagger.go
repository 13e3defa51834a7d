package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Thesis Lifecycle API",
        "description": "Thesis application and conclusion workflow",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "ThesisApplications", "description": "Application submission, cancellation and history"},
        {"name": "ThesisConclusion", "description": "Conclusion requests with documents"},
        {"name": "ThesisDocuments", "description": "Signed links to committed documents"},
        {"name": "Students", "description": "Student policy lookups"}
    ],
    "paths": {
        "/thesis-applications": {
            "get": {
                "tags": ["ThesisApplications"],
                "summary": "List thesis applications (staff)",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["ThesisApplications"],
                "summary": "Submit a thesis application",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateApplicationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Not eligible", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/thesis-applications/last": {
            "get": {
                "tags": ["ThesisApplications"],
                "summary": "Latest application of the caller",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/thesis-applications/eligibility": {
            "get": {
                "tags": ["ThesisApplications"],
                "summary": "Whether the caller may submit an application",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/thesis-applications/{id}/cancel": {
            "post": {
                "tags": ["ThesisApplications"],
                "summary": "Cancel a pending application",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/thesis-applications/{id}/status-history": {
            "get": {
                "tags": ["ThesisApplications"],
                "summary": "Status history in chronological order",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/thesis-applications/{id}/status-history/export": {
            "get": {
                "tags": ["ThesisApplications"],
                "summary": "Export the status history",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}}
                }
            }
        },
        "/thesis-conclusion": {
            "post": {
                "tags": ["ThesisConclusion"],
                "summary": "Request thesis conclusion",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "title", "in": "formData", "required": true, "type": "string"},
                    {"name": "titleEng", "in": "formData", "type": "string"},
                    {"name": "abstract", "in": "formData", "required": true, "type": "string"},
                    {"name": "abstractEng", "in": "formData", "type": "string"},
                    {"name": "language", "in": "formData", "type": "string", "enum": ["it", "en"]},
                    {"name": "licenseId", "in": "formData", "type": "integer"},
                    {"name": "coSupervisors", "in": "formData", "type": "string", "description": "JSON array of teacher ids"},
                    {"name": "keywords", "in": "formData", "type": "string", "description": "JSON array of keyword ids or free text"},
                    {"name": "sdgs", "in": "formData", "type": "string", "description": "JSON array of {goal_id, level}"},
                    {"name": "embargo", "in": "formData", "type": "string", "description": "JSON {duration, motivations}"},
                    {"name": "thesisFile", "in": "formData", "required": true, "type": "file"},
                    {"name": "thesisResume", "in": "formData", "type": "file"},
                    {"name": "additionalZip", "in": "formData", "type": "file"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation or document error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No active thesis", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/me/required-resume": {
            "get": {
                "tags": ["Students"],
                "summary": "Whether the caller's conclusion request needs a resume",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/thesis/documents/{kind}/link": {
            "get": {
                "tags": ["ThesisDocuments"],
                "summary": "Signed download link",
                "parameters": [
                    {"name": "kind", "in": "path", "required": true, "type": "string", "enum": ["thesis", "resume", "additional"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No such document", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/thesis/documents/download": {
            "get": {
                "tags": ["ThesisDocuments"],
                "summary": "Download through a signed token",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "EntityRef": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}
            },
            "required": ["id"]
        },
        "CreateApplicationRequest": {
            "type": "object",
            "properties": {
                "topic": {"type": "string", "maxLength": 500},
                "supervisor": {"$ref": "#/definitions/EntityRef"},
                "coSupervisors": {"type": "array", "items": {"$ref": "#/definitions/EntityRef"}},
                "thesisProposal": {"$ref": "#/definitions/EntityRef"},
                "company": {"$ref": "#/definitions/EntityRef"}
            },
            "required": ["topic", "supervisor"]
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

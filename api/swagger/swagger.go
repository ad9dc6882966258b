package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Essay Correction API",
        "description": "Essay submission, rubric grading and corrected PDF delivery",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "security": [
        {"BearerAuth": []}
    ],
    "tags": [
        {"name": "Rubrics", "description": "Rubric catalog"},
        {"name": "Essays", "description": "Essay lifecycle"},
        {"name": "Highlights", "description": "Annotations anchored to essay pages"},
        {"name": "Delivery", "description": "Corrected PDF generation and email"},
        {"name": "AI", "description": "AI-assisted correction suggestions"}
    ],
    "paths": {
        "/rubrics/enem": {
            "get": {
                "tags": ["Rubrics"],
                "summary": "ENEM 2024 rubric catalog",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/essays": {
            "post": {
                "tags": ["Essays"],
                "summary": "Submit an essay",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "type", "in": "formData", "required": true, "type": "string", "enum": ["ENEM", "PAS"]},
                    {"name": "studentId", "in": "formData", "type": "string"},
                    {"name": "classId", "in": "formData", "type": "string"},
                    {"name": "themeId", "in": "formData", "type": "string"},
                    {"name": "themeText", "in": "formData", "type": "string"},
                    {"name": "bimester", "in": "formData", "type": "integer"},
                    {"name": "countInBimester", "in": "formData", "type": "boolean"},
                    {"name": "pages", "in": "formData", "type": "integer"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "File too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/essays/{id}": {
            "get": {
                "tags": ["Essays"],
                "summary": "Get an essay",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/essays/{id}/correction": {
            "put": {
                "tags": ["Essays"],
                "summary": "Open or continue a correction draft",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/OpenCorrectionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid state", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/essays/{id}/highlights": {
            "get": {
                "tags": ["Highlights"],
                "summary": "List highlights in order",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Highlights"],
                "summary": "Add a highlight",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AddHighlightRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Order number conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/essays/{id}/grade": {
            "post": {
                "tags": ["Essays"],
                "summary": "Submit the final grade",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitGradeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Incomplete justification", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid state", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/essays/{id}/send-email": {
            "post": {
                "tags": ["Delivery"],
                "summary": "Generate (once) and email the corrected PDF",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DeliverRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Missing annotations", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Render or dispatch failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/essays/{id}/file-token": {
            "post": {
                "tags": ["Essays"],
                "summary": "Issue a short-lived token for the original file",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/essays/{id}/file": {
            "get": {
                "tags": ["Essays"],
                "summary": "Stream the original essay file",
                "security": [],
                "produces": ["application/pdf", "image/jpeg", "image/png"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "401": {"description": "Invalid token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/essays/{id}/corrected-pdf": {
            "get": {
                "tags": ["Delivery"],
                "summary": "Download the corrected PDF via signed link",
                "security": [],
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF"},
                    "401": {"description": "Expired or invalid link", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ai/correction-suggestion": {
            "post": {
                "tags": ["AI"],
                "summary": "Generate a correction suggestion",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AISuggestionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Disabled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "Raw text too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ai/suggestions/{id}/apply": {
            "post": {
                "tags": ["AI"],
                "summary": "Mark suggestion parts as applied",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApplySuggestionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the owner", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "RubricSelection": {
            "type": "object",
            "properties": {
                "level": {"type": "integer", "minimum": 0, "maximum": 5},
                "reasonIds": {"type": "array", "items": {"type": "string"}}
            }
        },
        "OpenCorrectionRequest": {
            "type": "object",
            "properties": {
                "generalComments": {"type": "string"},
                "rubricSelections": {"type": "object", "additionalProperties": {"$ref": "#/definitions/RubricSelection"}}
            }
        },
        "SubmitGradeRequest": {
            "type": "object",
            "properties": {
                "rubricSelections": {"type": "object", "additionalProperties": {"$ref": "#/definitions/RubricSelection"}},
                "competencyScores": {"type": "object", "additionalProperties": {"type": "integer"}},
                "pas": {
                    "type": "object",
                    "properties": {
                        "NC": {"type": "number"},
                        "NE": {"type": "number"},
                        "NL": {"type": "number"}
                    }
                },
                "annulment": {
                    "type": "object",
                    "properties": {
                        "active": {"type": "boolean"},
                        "reasons": {"type": "array", "items": {"type": "string"}}
                    }
                }
            }
        },
        "Rect": {
            "type": "object",
            "properties": {
                "x": {"type": "number"},
                "y": {"type": "number"},
                "w": {"type": "number"},
                "h": {"type": "number"}
            }
        },
        "AddHighlightRequest": {
            "type": "object",
            "required": ["page", "rects", "color", "category"],
            "properties": {
                "page": {"type": "integer"},
                "rects": {"type": "array", "items": {"$ref": "#/definitions/Rect"}},
                "color": {"type": "string"},
                "category": {"type": "string", "enum": ["formal", "grammar", "argumentation", "cohesion", "presentation", "comment"]},
                "comment": {"type": "string"},
                "globalOrderNumber": {"type": "integer"}
            }
        },
        "DeliverRequest": {
            "type": "object",
            "properties": {
                "finalComments": {"type": "string"}
            }
        },
        "AISuggestionRequest": {
            "type": "object",
            "required": ["essayId", "type"],
            "properties": {
                "essayId": {"type": "string"},
                "type": {"type": "string", "enum": ["ENEM", "PAS"]},
                "themeText": {"type": "string"},
                "rawText": {"type": "string", "maxLength": 12000},
                "currentScores": {"type": "object", "additionalProperties": {"type": "number"}}
            }
        },
        "ApplySuggestionRequest": {
            "type": "object",
            "properties": {
                "applyFeedback": {"type": "boolean"},
                "applyScores": {"type": "boolean"}
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

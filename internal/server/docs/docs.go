// Package docs holds the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "webaudit maintainers",
            "url": "https://github.com/raysh454/webaudit"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/run-tests": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Start a scan",
                "parameters": [
                    {
                        "description": "Target page",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/server.RunTestsRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/app.Job"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/results": {
            "get": {
                "produces": ["application/json"],
                "summary": "Live results of the current scan",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.ResultSnapshot"}}
                }
            }
        },
        "/summary": {
            "get": {
                "produces": ["application/json"],
                "summary": "Plain-language summary of the live results",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.SummaryResponse"}}
                }
            }
        },
        "/jobs": {
            "get": {
                "produces": ["application/json"],
                "summary": "List jobs",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/app.Job"}}}
                }
            }
        },
        "/jobs/{jobID}": {
            "get": {
                "produces": ["application/json"],
                "summary": "Get a job",
                "parameters": [{"type": "string", "name": "jobID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/app.Job"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            },
            "delete": {
                "summary": "Cancel a job",
                "parameters": [{"type": "string", "name": "jobID", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/scans": {
            "get": {
                "produces": ["application/json"],
                "summary": "List stored scans, newest first",
                "parameters": [{"type": "integer", "name": "limit", "in": "query"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/store.Scan"}}}
                }
            }
        },
        "/scans/{scanID}": {
            "get": {
                "produces": ["application/json"],
                "summary": "Get a stored scan",
                "parameters": [{"type": "string", "name": "scanID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/store.Scan"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/scans/{scanID}/diff": {
            "get": {
                "produces": ["application/json"],
                "summary": "Diff a scan against the previous scan of the same page",
                "parameters": [{"type": "string", "name": "scanID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/app.ScanDiff"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/schedules": {
            "get": {
                "produces": ["application/json"],
                "summary": "Scheduled rescans",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "server.RunTestsRequest": {
            "type": "object",
            "properties": {"url": {"type": "string", "example": "http://localhost:9999/good"}}
        },
        "server.SummaryResponse": {
            "type": "object",
            "properties": {"summary": {"type": "string"}}
        },
        "server.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string", "example": "not found"}}
        },
        "model.TestStepResult": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "status": {"type": "string", "example": "passed"},
                "error": {"type": "string"}
            }
        },
        "model.ResultSnapshot": {
            "type": "object",
            "properties": {
                "summary": {
                    "type": "object",
                    "properties": {"passed": {"type": "integer"}, "failed": {"type": "integer"}}
                },
                "details": {
                    "type": "object",
                    "properties": {
                        "tests": {"type": "array", "items": {"$ref": "#/definitions/model.TestStepResult"}},
                        "url": {"type": "string"},
                        "scan_id": {"type": "string"},
                        "status": {"type": "string"},
                        "total": {"type": "integer"}
                    }
                }
            }
        },
        "app.Job": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "url": {"type": "string"},
                "canonical_url": {"type": "string"},
                "plan": {"type": "string"},
                "status": {"type": "string", "example": "running"},
                "error": {"type": "string"},
                "completed": {"type": "integer"},
                "total": {"type": "integer"},
                "started_at": {"type": "string"},
                "ended_at": {"type": "string"}
            }
        },
        "app.ScanDiff": {
            "type": "object",
            "properties": {
                "base_id": {"type": "string"},
                "head_id": {"type": "string"},
                "changed": {"type": "boolean"},
                "chunks": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {"type": {"type": "string"}, "content": {"type": "string"}}
                    }
                },
                "text": {"type": "string"}
            }
        },
        "store.Scan": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "url": {"type": "string"},
                "canonical_url": {"type": "string"},
                "plan": {"type": "string"},
                "status": {"type": "string"},
                "passed": {"type": "integer"},
                "failed": {"type": "integer"},
                "total": {"type": "integer"},
                "error": {"type": "string"},
                "started_at": {"type": "string"},
                "ended_at": {"type": "string"},
                "steps": {"type": "array", "items": {"$ref": "#/definitions/model.TestStepResult"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "webaudit API",
	Description:      "Starts website scans and serves their live results.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

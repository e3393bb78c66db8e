// Package docs is the OpenAPI document served under /docs.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/runs": {
            "post": {
                "description": "Runs fetch, normalize and aggregate (or the selected subset) synchronously and returns per-stage counters",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Runs"],
                "summary": "Run the pipeline over a window",
                "parameters": [
                    {
                        "description": "Run window",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/fiber.RunRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/fiber.RunResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/fiber.ErrorResponse"}},
                    "422": {"description": "Run failed, counters still reported", "schema": {"$ref": "#/definitions/fiber.RunResponse"}}
                }
            }
        },
        "/tenants/{tenantId}/metrics": {
            "get": {
                "description": "Returns daily per-event-type counts and amount sums, newest date first",
                "produces": ["application/json"],
                "tags": ["Metrics"],
                "summary": "Query daily metrics of a tenant",
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "tenantId", "in": "path", "required": true},
                    {"type": "string", "description": "From date (YYYY-MM-DD, inclusive)", "name": "from", "in": "query"},
                    {"type": "string", "description": "To date (YYYY-MM-DD, inclusive)", "name": "to", "in": "query"},
                    {"type": "array", "items": {"type": "string"}, "collectionFormat": "multi", "description": "Event types", "name": "event_type", "in": "query"},
                    {"type": "integer", "description": "Page index, starting at 0", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Page size (1..100, default 20)", "name": "size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/fiber.MetricsPageResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/fiber.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/fiber.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/fiber.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "fiber.DailyMetricResponse": {
            "type": "object",
            "properties": {
                "amount_sum": {"type": "string", "example": "120.00"},
                "event_count": {"type": "integer", "example": 2},
                "event_date": {"type": "string", "example": "2025-01-01"},
                "event_type": {"type": "string", "example": "PURCHASE"},
                "tenant_id": {"type": "string", "example": "1"}
            }
        },
        "fiber.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "invalid_request"},
                "message": {"type": "string"}
            }
        },
        "fiber.MetricsPageResponse": {
            "type": "object",
            "properties": {
                "content": {"type": "array", "items": {"$ref": "#/definitions/fiber.DailyMetricResponse"}},
                "page": {"type": "integer"},
                "size": {"type": "integer"},
                "total_elements": {"type": "integer"},
                "total_pages": {"type": "integer"}
            }
        },
        "fiber.RunRequest": {
            "type": "object",
            "properties": {
                "from": {"type": "string", "example": "2025-01-01T00:00:00Z"},
                "stages": {"type": "array", "items": {"type": "string"}},
                "to": {"type": "string", "example": "2025-01-02T00:00:00Z"}
            }
        },
        "fiber.RunResponse": {
            "type": "object",
            "properties": {
                "duration_ms": {"type": "integer"},
                "error": {"type": "string"},
                "from": {"type": "string"},
                "run_id": {"type": "string"},
                "stages": {"type": "array", "items": {"$ref": "#/definitions/fiber.StageReportResponse"}},
                "status": {"type": "string", "example": "COMPLETED"},
                "to": {"type": "string"}
            }
        },
        "fiber.StageReportResponse": {
            "type": "object",
            "properties": {
                "duration_ms": {"type": "integer"},
                "error": {"type": "string"},
                "failures": {"type": "integer"},
                "read": {"type": "integer"},
                "skipped": {"type": "integer"},
                "stage": {"type": "string", "example": "normalize"},
                "written": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "LogForge API",
	Description:      "Multi-tenant log ingestion pipeline: run trigger and daily metric queries.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// Package docs holds the OpenAPI document served under /swagger when the
// server is built with -tags=swagger. Regenerate with `swag init`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/models": {
            "get": {
                "produces": ["application/json"],
                "summary": "List model files",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}}}
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "summary": "Session and queue status",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}
            }
        },
        "/generate": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/x-ndjson"],
                "summary": "Run one conversational turn",
                "description": "Streams {\"token\":...} lines followed by a final line with done=true.",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.GenerateRequest"}}],
                "responses": {
                    "200": {"description": "NDJSON stream"},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Model not found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "409": {"description": "Context overflow", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "422": {"description": "Tokenization failed", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too busy", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "No model loaded", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/clear": {
            "post": {"summary": "Drop the conversation", "responses": {"204": {"description": "Cleared"}}}
        },
        "/switch": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Load another model in the background",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.SwitchRequest"}}],
                "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/types.OpResponse"}}}
            }
        },
        "/download": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Download a model file",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.DownloadRequest"}}],
                "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/types.OpResponse"}}}
            }
        },
        "/download/{id}": {
            "get": {
                "produces": ["application/json"],
                "summary": "Download progress",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Unknown id"}}
            }
        },
        "/settings": {
            "get": {"produces": ["application/json"], "summary": "Generation settings", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.Settings"}}}},
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Change generation settings",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.SettingsUpdate"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.Settings"}}}
            }
        },
        "/transcript": {
            "get": {
                "produces": ["application/json"],
                "summary": "Messages of the current conversation",
                "parameters": [{"in": "query", "name": "limit", "type": "integer"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.TranscriptResponse"}}}
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}, "code": {"type": "integer"}}},
        "types.GenerateRequest": {"type": "object", "properties": {"model": {"type": "string"}, "prompt": {"type": "string"}}},
        "types.SwitchRequest": {"type": "object", "properties": {"model": {"type": "string"}}},
        "types.OpResponse": {"type": "object", "properties": {"op_id": {"type": "string"}}},
        "types.DownloadRequest": {"type": "object", "properties": {"url": {"type": "string"}, "name": {"type": "string"}}},
        "types.Model": {"type": "object", "properties": {"id": {"type": "string"}, "name": {"type": "string"}, "path": {"type": "string"}, "quant": {"type": "string"}, "size_bytes": {"type": "integer"}}},
        "types.ModelsResponse": {"type": "object", "properties": {"models": {"type": "array", "items": {"$ref": "#/definitions/types.Model"}}}},
        "types.Settings": {"type": "object", "properties": {"max_tokens": {"type": "integer"}, "temperature": {"type": "number"}, "top_k": {"type": "integer"}, "top_p": {"type": "number"}, "use_prompt_format": {"type": "boolean"}, "prompt_format": {"type": "string"}}},
        "types.SettingsUpdate": {"type": "object", "properties": {"max_tokens": {"type": "integer"}, "temperature": {"type": "number"}, "top_k": {"type": "integer"}, "top_p": {"type": "number"}, "use_prompt_format": {"type": "boolean"}, "prompt_format": {"type": "string"}}},
        "types.StatusResponse": {"type": "object", "properties": {"state": {"type": "string"}, "model": {"type": "string"}, "last_error": {"type": "string"}, "context_used": {"type": "integer"}, "context_capacity": {"type": "integer"}, "template_active": {"type": "boolean"}, "queue_len": {"type": "integer"}, "inflight": {"type": "integer"}, "conversation": {"type": "string"}}},
        "types.TranscriptResponse": {"type": "object", "properties": {"conversation": {"type": "string"}, "messages": {"type": "array", "items": {"type": "object"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "chatd API",
	Description:      "HTTP API for a local LLM chat session.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// Package docs registers the gateway's OpenAPI document with swag.
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
        "/": {
            "get": {
                "description": "Service name, version, voices, features, endpoints and usage totals",
                "produces": ["application/json"],
                "tags": ["Service"],
                "summary": "Service information",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/speak": {
            "get": {
                "description": "Synthesize text with a voice. Parameters may also be sent as a form or JSON body with POST.",
                "produces": ["audio/wav", "audio/mpeg", "application/json"],
                "tags": ["Speech"],
                "summary": "Text to speech",
                "parameters": [
                    {"type": "string", "description": "Text to speak", "name": "text", "in": "query", "required": true},
                    {"type": "string", "default": "en-NG-EzinneNeural", "description": "Voice ID", "name": "voice", "in": "query"},
                    {"type": "string", "default": "wav", "enum": ["wav", "mp3"], "description": "Audio format", "name": "format", "in": "query"},
                    {"type": "string", "description": "API key (or X-API-Key header)", "name": "api_key", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Audio bytes"},
                    "400": {"description": "Invalid request or unknown voice", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "401": {"description": "Unknown API key", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "402": {"description": "Quota exceeded", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "503": {"description": "Engine unavailable", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            },
            "post": {
                "description": "Same as GET /speak with parameters in a form or JSON body",
                "consumes": ["application/json", "application/x-www-form-urlencoded", "multipart/form-data"],
                "produces": ["audio/wav", "audio/mpeg", "application/json"],
                "tags": ["Speech"],
                "summary": "Text to speech",
                "parameters": [
                    {"description": "Speak request", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/speech.speakParams"}}
                ],
                "responses": {
                    "200": {"description": "Audio bytes"}
                }
            }
        },
        "/test": {
            "get": {
                "produces": ["audio/wav"],
                "tags": ["Speech"],
                "summary": "Speak a fixed test sentence with the default voice",
                "responses": {"200": {"description": "Audio bytes"}}
            }
        },
        "/voices": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Voices"],
                "summary": "List available voices",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}}
            }
        },
        "/clone-voice": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Voices"],
                "summary": "Submit a voice cloning job",
                "parameters": [
                    {"type": "file", "description": "Reference sample (wav or mp3)", "name": "audio", "in": "formData", "required": true},
                    {"type": "string", "description": "New voice ID", "name": "voice_id", "in": "formData", "required": true},
                    {"type": "string", "description": "Voice to derive from", "name": "base_voice", "in": "formData"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "400": {"description": "Invalid upload", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/clone-voice/{job_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Voices"],
                "summary": "Clone job status",
                "parameters": [
                    {"type": "string", "description": "Job ID", "name": "job_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "404": {"description": "Unknown job", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Service"],
                "summary": "Engine readiness, cache and host status",
                "responses": {
                    "200": {"description": "ready", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "503": {"description": "degraded", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Usage"],
                "summary": "Usage of the calling API key",
                "parameters": [
                    {"type": "string", "description": "API key (or X-API-Key header)", "name": "api_key", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}},
                    "401": {"description": "Unknown API key", "schema": {"$ref": "#/definitions/httptransport.APIResponse"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "produces": ["text/plain"],
                "tags": ["Service"],
                "summary": "Prometheus metrics",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "httptransport.APIResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "data": {},
                "message": {"type": "string"},
                "success": {"type": "boolean"}
            }
        },
        "speech.speakParams": {
            "type": "object",
            "properties": {
                "text": {"type": "string"},
                "voice": {"type": "string"},
                "format": {"type": "string"},
                "api_key": {"type": "string"}
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
	Title:            "ODIADEV TTS API",
	Description:      "Nigerian-English and Nigerian-language speech synthesis gateway.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

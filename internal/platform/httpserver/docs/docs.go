// Package docs registers the OpenAPI document served under /swagger/.
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
        "/api/health": {
            "get": {"tags": ["ops"], "summary": "Liveness probe", "responses": {"200": {"description": "OK"}}}
        },
        "/api/orientation/submit": {
            "post": {
                "tags": ["votes"],
                "summary": "Submit an orientation vote and evaluate consensus",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitVoteRequest"}}],
                "responses": {
                    "200": {"description": "Vote stored", "schema": {"$ref": "#/definitions/SubmitVoteResponse"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "404": {"description": "Unknown block", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/blocks/{block_id}": {
            "get": {
                "tags": ["blocks"],
                "summary": "Get a block",
                "parameters": [{"in": "path", "name": "block_id", "required": true, "type": "integer"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Unknown block"}}
            }
        },
        "/api/blocks/{block_id}/consensus": {
            "post": {
                "tags": ["blocks"],
                "summary": "Re-evaluate consensus for a block",
                "parameters": [{"in": "path", "name": "block_id", "required": true, "type": "integer"}],
                "responses": {"200": {"description": "Outcome"}}
            },
            "delete": {
                "tags": ["blocks"],
                "summary": "Clear the stored consensus of a block",
                "parameters": [{"in": "path", "name": "block_id", "required": true, "type": "integer"}],
                "responses": {"204": {"description": "Reset"}}
            }
        },
        "/api/blocks/incomplete/next": {
            "get": {"tags": ["blocks"], "summary": "Random block without consensus", "responses": {"200": {"description": "OK"}}}
        },
        "/api/blocks/recrop": {
            "get": {"tags": ["recrop"], "summary": "Blocks flagged for recrop", "responses": {"200": {"description": "OK"}}}
        },
        "/api/blocks/{block_id}/recrop": {
            "patch": {"tags": ["recrop"], "summary": "Override the recrop flag", "responses": {"200": {"description": "OK"}}}
        },
        "/api/blocks/{block_id}/nonstandard": {
            "patch": {"tags": ["nonstandard"], "summary": "Override and confirm the non-standard flag", "responses": {"200": {"description": "OK"}}}
        },
        "/api/blocks/nonstandard": {
            "get": {"tags": ["nonstandard"], "summary": "Confirmed non-standard blocks", "responses": {"200": {"description": "OK"}}}
        },
        "/api/blocks/nonstandard/pending": {
            "get": {"tags": ["nonstandard"], "summary": "Blocks with non-standard votes and no consensus", "responses": {"200": {"description": "OK"}}}
        },
        "/api/block/recrop/next": {
            "get": {"tags": ["recrop"], "summary": "Next block awaiting recrop", "responses": {"200": {"description": "OK"}}}
        },
        "/api/recrop/preview": {
            "post": {"tags": ["recrop"], "summary": "Compute crop bounds without saving", "responses": {"200": {"description": "OK"}}}
        },
        "/api/recrop/accept": {
            "post": {"tags": ["recrop"], "summary": "Store crop bounds and queue the recrop job", "responses": {"200": {"description": "OK"}}}
        },
        "/api/recrop/stats": {"get": {"tags": ["stats"], "responses": {"200": {"description": "OK"}}}},
        "/api/nonstandard/stats": {"get": {"tags": ["stats"], "responses": {"200": {"description": "OK"}}}},
        "/api/stats/total": {"get": {"tags": ["stats"], "responses": {"200": {"description": "OK"}}}},
        "/api/stats/completed": {"get": {"tags": ["stats"], "responses": {"200": {"description": "OK"}}}},
        "/api/stats/voting": {"get": {"tags": ["stats"], "responses": {"200": {"description": "OK"}}}}
    },
    "definitions": {
        "ErrorResponse": {
            "type": "object",
            "properties": {"code": {"type": "string"}, "message": {"type": "string"}}
        },
        "SubmitVoteRequest": {
            "type": "object",
            "required": ["block_id"],
            "properties": {
                "block_id": {"type": "integer"},
                "orientation_data": {"type": "string", "example": "[1,2,3,4,5,6,7,8]"},
                "needs_recrop": {"type": "boolean"},
                "not_8_panel": {"type": "boolean"},
                "user_session": {"type": "string"}
            }
        },
        "SubmitVoteResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "vote_id": {"type": "integer"},
                "block_id": {"type": "integer"},
                "consensus_skipped": {"type": "boolean"},
                "consensus_error": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "quiltqc consensus API",
	Description:      "Volunteer orientation votes and quilt-block consensus.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// Package docs registers the OpenAPI document served under /swagger/.
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
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/healthz": {
            "get": {"tags": ["ops"], "summary": "Liveness", "responses": {"200": {"description": "OK"}}}
        },
        "/v1/proposals": {
            "get": {
                "tags": ["proposals"],
                "summary": "List proposals",
                "parameters": [
                    {"type": "string", "name": "author", "in": "query"},
                    {"type": "string", "name": "subject", "in": "query"},
                    {"type": "string", "enum": ["open", "expired", "closed"], "name": "status", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ProposalListResponse"}}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["proposals"],
                "summary": "Create a proposal",
                "parameters": [
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateProposalRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ProposalResponse"}},
                    "400": {"description": "Invalid input", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "401": {"description": "Unauthenticated", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/v1/proposals/{proposal_id}": {
            "get": {
                "tags": ["proposals"],
                "summary": "Get a proposal with tallies",
                "parameters": [{"type": "string", "name": "proposal_id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ProposalResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/v1/proposals/{proposal_id}/ballots/{voter_id}": {
            "get": {
                "tags": ["proposals"],
                "summary": "Get one voter's ballot",
                "parameters": [
                    {"type": "string", "name": "proposal_id", "in": "path", "required": true},
                    {"type": "string", "name": "voter_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/BallotResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/v1/proposals/{proposal_id}/votes": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["proposals"],
                "summary": "Cast or switch a ballot",
                "parameters": [
                    {"type": "string", "name": "proposal_id", "in": "path", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/VoteRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/VoteResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/v1/proposals/{proposal_id}/close": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["proposals"],
                "summary": "Close a proposal and record its outcome",
                "parameters": [
                    {"type": "string", "name": "proposal_id", "in": "path", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/CloseProposalResponse"}},
                    "403": {"description": "Not the author", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "409": {"description": "Already closed", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/v1/instructions": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["instructions"],
                "summary": "Execute a tagged ledger instruction",
                "parameters": [
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/InstructionRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/InstructionResponse"}}}
            }
        }
    },
    "definitions": {
        "ErrorResponse": {
            "type": "object",
            "properties": {"code": {"type": "string"}, "message": {"type": "string"}}
        },
        "CreateProposalRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string", "maxLength": 100},
                "description": {"type": "string", "maxLength": 500},
                "subject_id": {"type": "string"},
                "expiration_time": {"type": "string", "format": "date-time"}
            }
        },
        "VoteRequest": {
            "type": "object",
            "properties": {"direction": {"type": "string", "enum": ["yes", "no"]}}
        },
        "InstructionRequest": {
            "type": "object",
            "properties": {
                "op": {"type": "string", "enum": ["create", "vote", "close"]},
                "proposal_id": {"type": "string"},
                "direction": {"type": "string", "enum": ["yes", "no"]},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "subject_id": {"type": "string"},
                "expiration_time": {"type": "string", "format": "date-time"}
            }
        },
        "BallotResponse": {
            "type": "object",
            "properties": {
                "proposal_id": {"type": "string"},
                "voter_id": {"type": "string"},
                "direction": {"type": "string"},
                "voted_yes": {"type": "boolean"},
                "voted_no": {"type": "boolean"}
            }
        },
        "ProposalResponse": {
            "type": "object",
            "properties": {
                "proposal_id": {"type": "string"},
                "author_id": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "subject_id": {"type": "string"},
                "created_at": {"type": "string", "format": "date-time"},
                "expiration_time": {"type": "string", "format": "date-time"},
                "status": {"type": "string", "enum": ["open", "expired", "closed"]},
                "yes_votes": {"type": "integer"},
                "no_votes": {"type": "integer"},
                "unique_voters": {"type": "integer"},
                "closed": {"type": "boolean"},
                "outcome": {"type": "string", "enum": ["yes_wins", "no_wins", "tied"]},
                "confidence": {"type": "integer"},
                "yes_percentage": {"type": "integer"},
                "no_percentage": {"type": "integer"},
                "remaining_capacity": {"type": "integer"},
                "voters": {"type": "array", "items": {"$ref": "#/definitions/BallotResponse"}},
                "replayed": {"type": "boolean"}
            }
        },
        "ProposalListResponse": {
            "type": "object",
            "properties": {"items": {"type": "array", "items": {"$ref": "#/definitions/ProposalResponse"}}}
        },
        "VoteResponse": {
            "type": "object",
            "properties": {
                "proposal": {"$ref": "#/definitions/ProposalResponse"},
                "ballot_change": {"type": "string", "enum": ["new", "switched"]},
                "direction": {"type": "string"},
                "previous_direction": {"type": "string"},
                "confidence": {"type": "integer"},
                "replayed": {"type": "boolean"}
            }
        },
        "CloseProposalResponse": {
            "type": "object",
            "properties": {
                "proposal": {"$ref": "#/definitions/ProposalResponse"},
                "outcome": {"type": "string"},
                "replayed": {"type": "boolean"}
            }
        },
        "InstructionResponse": {
            "type": "object",
            "properties": {
                "op": {"type": "string"},
                "proposal": {"$ref": "#/definitions/ProposalResponse"},
                "vote": {"$ref": "#/definitions/VoteResponse"},
                "close": {"$ref": "#/definitions/CloseProposalResponse"}
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
	Title:            "Proposal Ledger API",
	Description:      "Create proposals, cast yes/no ballots and close proposals with a recorded outcome.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

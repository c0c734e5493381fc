package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "RideMart Auth API",
        "description": "Authentication and abuse-control gateway: rotating sessions, login throttling, suspicious-login detection and settlement enforcement",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Authentication", "description": "Login, token rotation and logout"},
        {"name": "Security", "description": "Security alerts, blocks and the admin overview"},
        {"name": "Settlement", "description": "Negative-balance ledger and restriction administration"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}},
                    {"name": "X-Device-ID", "in": "header", "type": "string"},
                    {"name": "X-Device-Fingerprint", "in": "header", "type": "string"},
                    {"name": "X-Country-Code", "in": "header", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Throttled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Rotate refresh token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid refresh token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Logout current session",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LogoutRequest"}}
                ],
                "responses": {
                    "204": {"description": "Logged out"}
                }
            }
        },
        "/auth/logout-all": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Logout all sessions",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/security/alerts": {
            "get": {
                "tags": ["Security"],
                "summary": "List security alerts",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "alert_type", "in": "query", "type": "string"},
                    {"name": "severity", "in": "query", "type": "string"},
                    {"name": "acknowledged", "in": "query", "type": "boolean"},
                    {"name": "since", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/security/alerts/{id}/acknowledge": {
            "post": {
                "tags": ["Security"],
                "summary": "Acknowledge an alert",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Acknowledged"}
                }
            }
        },
        "/security/alerts/{id}/review": {
            "post": {
                "tags": ["Security"],
                "summary": "Review an alert",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReviewAlertRequest"}}
                ],
                "responses": {
                    "204": {"description": "Reviewed"}
                }
            }
        },
        "/security/alerts/export/{format}": {
            "get": {
                "tags": ["Security"],
                "summary": "Export security alerts",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "format", "in": "path", "required": true, "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/security/overview": {
            "get": {
                "tags": ["Security"],
                "summary": "Security overview",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/security/blocks/clear": {
            "post": {
                "tags": ["Security"],
                "summary": "Clear login blocks",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ClearBlocksRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/settlement/balance": {
            "get": {
                "tags": ["Settlement"],
                "summary": "Current balance",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/settlement/accrue": {
            "post": {
                "tags": ["Settlement"],
                "summary": "Accrue cash commission",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CashAccrual"}}
                ],
                "responses": {
                    "204": {"description": "Accrued"}
                }
            }
        },
        "/settlement/credit": {
            "post": {
                "tags": ["Settlement"],
                "summary": "Credit online settlement",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SettlementCredit"}}
                ],
                "responses": {
                    "204": {"description": "Credited"}
                }
            }
        },
        "/settlement/balances/{owner_type}/{owner_id}": {
            "get": {
                "tags": ["Settlement"],
                "summary": "Inspect a ledger",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "owner_type", "in": "path", "required": true, "type": "string", "enum": ["driver", "restaurant"]},
                    {"name": "owner_id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/settlement/balances/{owner_type}/{owner_id}/restriction": {
            "delete": {
                "tags": ["Settlement"],
                "summary": "Clear a settlement restriction",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "owner_type", "in": "path", "required": true, "type": "string", "enum": ["driver", "restaurant"]},
                    {"name": "owner_id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Cleared"}
                }
            }
        },
        "/settlement/thresholds": {
            "get": {
                "tags": ["Settlement"],
                "summary": "List settlement thresholds",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Settlement"],
                "summary": "Set a settlement threshold",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ThresholdRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
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
        "RefreshRequest": {
            "type": "object",
            "properties": {
                "refresh_token": {"type": "string"}
            },
            "required": ["refresh_token"]
        },
        "LogoutRequest": {
            "type": "object",
            "properties": {
                "refresh_token": {"type": "string"}
            },
            "required": ["refresh_token"]
        },
        "ReviewAlertRequest": {
            "type": "object",
            "properties": {
                "notes": {"type": "string"}
            },
            "required": ["notes"]
        },
        "ClearBlocksRequest": {
            "type": "object",
            "properties": {
                "identifier": {"type": "string"}
            },
            "required": ["identifier"]
        },
        "CashAccrual": {
            "type": "object",
            "properties": {
                "owner_type": {"type": "string", "enum": ["driver", "restaurant"]},
                "owner_id": {"type": "string"},
                "country_code": {"type": "string"},
                "cash_collected": {"type": "number"},
                "commission": {"type": "number"}
            },
            "required": ["owner_type", "owner_id", "country_code", "commission"]
        },
        "SettlementCredit": {
            "type": "object",
            "properties": {
                "owner_type": {"type": "string", "enum": ["driver", "restaurant"]},
                "owner_id": {"type": "string"},
                "amount": {"type": "number"}
            },
            "required": ["owner_type", "owner_id", "amount"]
        },
        "ThresholdRequest": {
            "type": "object",
            "properties": {
                "owner_type": {"type": "string", "enum": ["driver", "restaurant"]},
                "threshold_type": {"type": "string"},
                "threshold_value": {"type": "number"},
                "is_active": {"type": "boolean"}
            },
            "required": ["owner_type", "threshold_type", "threshold_value"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
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

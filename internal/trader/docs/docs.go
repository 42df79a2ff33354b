// Package docs holds the swagger document for the trader HTTP API.
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
		"/trades": {
			"get": {
				"summary": "List trades",
				"tags": [
					"trades"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "array",
							"items": {
								"type": "object"
							}
						}
					}
				},
				"parameters": [
					{
						"type": "string",
						"description": "Trade status",
						"name": "status",
						"in": "query"
					},
					{
						"type": "string",
						"description": "Ticker symbol",
						"name": "symbol",
						"in": "query"
					},
					{
						"type": "integer",
						"description": "Page size",
						"name": "limit",
						"in": "query"
					},
					{
						"type": "integer",
						"description": "Page offset",
						"name": "offset",
						"in": "query"
					}
				]
			}
		},
		"/trades/summary": {
			"get": {
				"summary": "Trade statistics",
				"tags": [
					"trades"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object"
						}
					}
				}
			}
		},
		"/trades/{id}": {
			"get": {
				"summary": "Get a trade by ID",
				"tags": [
					"trades"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object"
						}
					}
				},
				"parameters": [
					{
						"type": "integer",
						"description": "Trade ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/trades/{id}/close": {
			"post": {
				"summary": "Close an open trade",
				"tags": [
					"trades"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "integer",
						"description": "Trade ID",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"description": "Close reason",
						"name": "request",
						"in": "body",
						"schema": {
							"type": "object"
						}
					}
				]
			}
		},
		"/trades/{id}/cancel": {
			"post": {
				"summary": "Cancel a pending entry",
				"tags": [
					"trades"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "integer",
						"description": "Trade ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/trades/{id}/cancel-close": {
			"post": {
				"summary": "Cancel an outstanding close order",
				"tags": [
					"trades"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "integer",
						"description": "Trade ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				]
			}
		},
		"/trades/{id}/adjust": {
			"post": {
				"summary": "Apply the one-time level adjustment",
				"tags": [
					"trades"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "integer",
						"description": "Trade ID",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"description": "Adjustment",
						"name": "request",
						"in": "body",
						"schema": {
							"type": "object"
						}
					}
				]
			}
		},
		"/trades/close-all": {
			"post": {
				"summary": "Close every open trade",
				"tags": [
					"trades"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Close reason",
						"name": "request",
						"in": "body",
						"schema": {
							"type": "object"
						}
					}
				]
			}
		},
		"/signals": {
			"post": {
				"summary": "Submit a trading signal",
				"tags": [
					"signals"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Trading signal",
						"name": "request",
						"in": "body",
						"schema": {
							"type": "object"
						}
					}
				]
			}
		},
		"/ops/reconcile": {
			"post": {
				"summary": "Run a full reconciliation pass",
				"tags": [
					"ops"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "boolean",
						"description": "Report without writing",
						"name": "dry_run",
						"in": "query"
					}
				]
			}
		},
		"/ops/dedupe": {
			"post": {
				"summary": "Collapse duplicate active trades",
				"tags": [
					"ops"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "boolean",
						"description": "Report without writing",
						"name": "dry_run",
						"in": "query"
					}
				]
			}
		},
		"/ops/sync-broker": {
			"post": {
				"summary": "Align local trades with broker positions",
				"tags": [
					"ops"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"type": "boolean",
						"description": "Report without writing",
						"name": "dry_run",
						"in": "query"
					}
				]
			}
		},
		"/ops/monitor-tick": {
			"post": {
				"summary": "Run one position monitor tick",
				"tags": [
					"ops"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object"
						}
					}
				},
				"consumes": [
					"application/json"
				]
			}
		},
		"/ops/sync-orders": {
			"post": {
				"summary": "Confirm pending entry and close orders",
				"tags": [
					"ops"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object"
						}
					}
				},
				"consumes": [
					"application/json"
				]
			}
		},
		"/activities": {
			"get": {
				"summary": "List recent activity",
				"tags": [
					"activities"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "array",
							"items": {
								"type": "object"
							}
						}
					}
				},
				"parameters": [
					{
						"type": "integer",
						"description": "Page size",
						"name": "limit",
						"in": "query"
					}
				]
			}
		},
		"/config/active": {
			"get": {
				"summary": "Get the active trading config",
				"tags": [
					"config"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object"
						}
					}
				}
			}
		},
		"/config/bot": {
			"post": {
				"summary": "Enable or disable the bot",
				"tags": [
					"config"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Enabled flag",
						"name": "request",
						"in": "body",
						"schema": {
							"type": "object"
						}
					}
				]
			}
		},
		"/config/trading": {
			"post": {
				"summary": "Enable or disable order placement",
				"tags": [
					"config"
				],
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"type": "object"
						}
					}
				},
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Enabled flag",
						"name": "request",
						"in": "body",
						"schema": {
							"type": "object"
						}
					}
				]
			}
		}
	}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "News Trader API",
	Description:      "Position management and reconciliation for the news-driven trading bot.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

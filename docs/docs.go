// Package docs holds the OpenAPI document served under /swagger. It follows
// the layout `swag init -g cmd/api/main.go` produces; keep it in step with the
// handler annotations.
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
        "/api/v1/billing/pricing": {
            "get": {
                "description": "All subscription tiers with their monthly credit allowance",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Billing"
                ],
                "summary": "Get pricing tiers",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/models.PricingResponse"
                        }
                    }
                }
            }
        },
        "/api/v1/billing/status": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Current plan, status and credit balance of the authenticated user",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Billing"
                ],
                "summary": "Get billing status",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/models.BillingStatusResponse"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/models.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/functions/v1/stripe-webhook": {
            "post": {
                "description": "Verify a Stripe delivery and reconcile subscription and credits records",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Billing"
                ],
                "summary": "Handle Stripe webhook",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Stripe webhook signature for verification",
                        "name": "Stripe-Signature",
                        "in": "header",
                        "required": true
                    },
                    {
                        "description": "Stripe webhook event payload",
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Delivery acknowledged",
                        "schema": {
                            "$ref": "#/definitions/models.AckResponse"
                        }
                    },
                    "400": {
                        "description": "Invalid signature or malformed event",
                        "schema": {
                            "$ref": "#/definitions/models.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Configuration or database error, Stripe will retry",
                        "schema": {
                            "$ref": "#/definitions/models.ErrorResponse"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "models.AckResponse": {
            "type": "object",
            "properties": {
                "received": {
                    "type": "boolean"
                }
            }
        },
        "models.BillingStatusResponse": {
            "type": "object",
            "properties": {
                "credits": {
                    "$ref": "#/definitions/models.Credits"
                },
                "subscription": {
                    "$ref": "#/definitions/models.Subscription"
                },
                "user_id": {
                    "type": "string"
                }
            }
        },
        "models.Credits": {
            "type": "object",
            "properties": {
                "balance": {
                    "type": "integer"
                },
                "last_reset_at": {
                    "type": "string"
                },
                "monthly_allowance": {
                    "type": "integer"
                },
                "tier": {
                    "$ref": "#/definitions/models.Tier"
                },
                "updated_at": {
                    "type": "string"
                },
                "user_id": {
                    "type": "string"
                }
            }
        },
        "models.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                }
            }
        },
        "models.PricingResponse": {
            "type": "object",
            "properties": {
                "tiers": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/models.PricingTier"
                    }
                }
            }
        },
        "models.PricingTier": {
            "type": "object",
            "properties": {
                "description": {
                    "type": "string"
                },
                "features": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "monthly_credits": {
                    "type": "integer"
                },
                "name": {
                    "type": "string"
                }
            }
        },
        "models.Subscription": {
            "type": "object",
            "properties": {
                "cancel_at_period_end": {
                    "type": "boolean"
                },
                "current_period_end": {
                    "type": "string"
                },
                "current_period_start": {
                    "type": "string"
                },
                "status": {
                    "$ref": "#/definitions/models.SubscriptionStatus"
                },
                "stripe_customer_id": {
                    "type": "string"
                },
                "stripe_subscription_id": {
                    "type": "string"
                },
                "tier": {
                    "$ref": "#/definitions/models.Tier"
                },
                "updated_at": {
                    "type": "string"
                },
                "user_id": {
                    "type": "string"
                }
            }
        },
        "models.SubscriptionStatus": {
            "type": "string",
            "enum": [
                "active",
                "past_due",
                "canceled"
            ],
            "x-enum-varnames": [
                "StatusActive",
                "StatusPastDue",
                "StatusCanceled"
            ]
        },
        "models.Tier": {
            "type": "string",
            "enum": [
                "free",
                "starter",
                "pro",
                "enterprise"
            ],
            "x-enum-varnames": [
                "TierFree",
                "TierStarter",
                "TierPro",
                "TierEnterprise"
            ]
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and a Supabase access token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Studio Billing API",
	Description:      "Stripe webhook reconciler and billing status for the media studio.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

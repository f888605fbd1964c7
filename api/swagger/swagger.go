package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "MediTrace API",
        "description": "Traceability ledger for serialized medical products",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Lots", "description": "Production registration and code minting"},
        {"name": "Products", "description": "Manufacturer product catalog"},
        {"name": "Organizations", "description": "Supply chain parties and approval"},
        {"name": "Transfers", "description": "Shipments, treatments, disposals"},
        {"name": "Reversals", "description": "Recalls and returns"},
        {"name": "Inventory", "description": "Materialized availability projection"},
        {"name": "History", "description": "Ledger queries and export"},
        {"name": "Reports", "description": "Traceability certificates"}
    ],
    "paths": {
        "/lots": {
            "post": {
                "tags": ["Lots"],
                "summary": "Register a manufacturing lot and mint its codes",
                "responses": {"201": {"description": "Created"}}
            },
            "get": {
                "tags": ["Lots"],
                "summary": "List lots",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/lots/{id}": {
            "get": {
                "tags": ["Lots"],
                "summary": "Get a lot",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/products": {
            "post": {
                "tags": ["Products"],
                "summary": "Register a catalog product",
                "responses": {"201": {"description": "Created"}}
            },
            "get": {
                "tags": ["Products"],
                "summary": "List products",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/products/{id}/deactivate": {
            "patch": {
                "tags": ["Products"],
                "summary": "Deactivate a product",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/organizations": {
            "get": {
                "tags": ["Organizations"],
                "summary": "List organizations",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/organizations/{id}/status": {
            "patch": {
                "tags": ["Organizations"],
                "summary": "Apply an approval decision",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/transfers/shipments": {
            "post": {
                "tags": ["Transfers"],
                "summary": "Ship units to another organization",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/transfers/treatments": {
            "post": {
                "tags": ["Transfers"],
                "summary": "Apply units to a patient",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/transfers/disposals": {
            "post": {
                "tags": ["Transfers"],
                "summary": "Remove units from circulation",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/recalls/{batchId}": {
            "post": {
                "tags": ["Reversals"],
                "summary": "Recall a treatment batch",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/returns/{batchId}": {
            "post": {
                "tags": ["Reversals"],
                "summary": "Return a shipment batch to its sender",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/inventory": {
            "get": {
                "tags": ["Inventory"],
                "summary": "Available quantity of a product",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/inventory/summary": {
            "get": {
                "tags": ["Inventory"],
                "summary": "Per-lot availability in FIFO order",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/history": {
            "get": {
                "tags": ["History"],
                "summary": "List ledger events",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/history/export": {
            "get": {
                "tags": ["History"],
                "summary": "Export filtered ledger events as CSV",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/codes/{code}/history": {
            "get": {
                "tags": ["History"],
                "summary": "Full custody chain for one code",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/reports/traceability": {
            "post": {
                "tags": ["Reports"],
                "summary": "Request a traceability certificate",
                "responses": {"202": {"description": "Accepted"}}
            }
        },
        "/reports/{id}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Report status and signed download link",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/reports/download": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a generated report via signed token",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
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

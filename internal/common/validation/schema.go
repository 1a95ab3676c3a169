// Package validation checks inbound quote requests and filter payloads
// against JSON schemas before any external budget is spent on them.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	errs "ichra-quotes/internal/common/errors"
)

// quoteRequestSchema guards the POST /quotes payload. Member and class
// shapes are validated structurally; business rules (class references,
// FPL years) are enforced by the engine.
const quoteRequestSchema = `{
	"type": "object",
	"required": ["group", "filters"],
	"properties": {
		"group": {
			"type": "object",
			"required": ["id", "effectiveDate", "planYear", "members"],
			"properties": {
				"id": {"type": "string", "minLength": 1},
				"externalId": {"type": "string"},
				"name": {"type": "string"},
				"effectiveDate": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
				"planYear": {"type": "integer", "minimum": 2023, "maximum": 2030},
				"contactEmail": {"type": "string"},
				"contactPhone": {"type": "string"},
				"members": {
					"type": "array",
					"minItems": 1,
					"items": {
						"type": "object",
						"required": ["id", "age", "zip"],
						"properties": {
							"id": {"type": "string", "minLength": 1},
							"age": {"type": "integer", "minimum": 0, "maximum": 120},
							"tobaccoUse": {"type": "boolean"},
							"zip": {"type": "string", "pattern": "^\\d{5}$"},
							"dependentsCount": {"type": "integer", "minimum": 0},
							"classId": {"type": "string"},
							"householdIncome": {"type": ["string", "number"]},
							"familySize": {"type": "integer", "minimum": 1, "maximum": 20}
						}
					}
				},
				"classes": {"type": "array"}
			}
		},
		"filters": {"$ref": "#/definitions/filters"}
	},
	"definitions": {
		"filters": {
			"type": "object",
			"properties": {
				"onMarket": {"type": "boolean"},
				"offMarket": {"type": "boolean"},
				"metalLevel": {"type": "string", "enum": ["", "bronze", "silver", "gold", "platinum"]},
				"carrier": {"type": "string"},
				"hsaEligible": {"type": "boolean"},
				"page": {"type": "integer", "minimum": 0},
				"pageSize": {"type": "integer", "minimum": 0, "maximum": 500}
			}
		}
	}
}`

const filterSchema = `{
	"type": "object",
	"properties": {
		"onMarket": {"type": "boolean"},
		"offMarket": {"type": "boolean"},
		"metalLevel": {"type": "string", "enum": ["", "bronze", "silver", "gold", "platinum"]},
		"carrier": {"type": "string"},
		"hsaEligible": {"type": "boolean"},
		"page": {"type": "integer", "minimum": 0},
		"pageSize": {"type": "integer", "minimum": 0, "maximum": 500}
	}
}`

var (
	quoteRequestLoader = gojsonschema.NewStringLoader(quoteRequestSchema)
	filterLoader       = gojsonschema.NewStringLoader(filterSchema)
)

// ValidateQuoteRequest validates a raw quote-request JSON document.
func ValidateQuoteRequest(payload []byte) error {
	return validate(quoteRequestLoader, payload)
}

// ValidateFilters validates a raw filter JSON document.
func ValidateFilters(payload []byte) error {
	return validate(filterLoader, payload)
}

func validate(schema gojsonschema.JSONLoader, payload []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return errs.NewInvalidFilterInputError(fmt.Sprintf("malformed request: %v", err))
	}
	if !result.Valid() {
		details := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			details[i] = desc.String()
		}
		return errs.NewInvalidFilterInputError(strings.Join(details, "; "))
	}
	return nil
}

// ValidateEmail validates email format
func ValidateEmail(email string) bool {
	emailPattern := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	return emailPattern.MatchString(email)
}

// ValidatePhone validates basic phone number format
func ValidatePhone(phone string) bool {
	phonePattern := regexp.MustCompile(`^\+?[\d\s\-\(\)]{10,}$`)
	return phonePattern.MatchString(phone)
}

package schemas

import (
	"context"
)

// -- Reasoning Service --

// SchemaType is the JSON type of a response schema node.
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeString  SchemaType = "string"
	TypeInteger SchemaType = "integer"
	TypeNumber  SchemaType = "number"
	TypeBoolean SchemaType = "boolean"
	TypeArray   SchemaType = "array"
)

// Schema describes the shape the reasoning service must answer with. It is a
// provider-neutral subset of JSON Schema; adapters translate it to their own
// structured-output format.
type Schema struct {
	Type        SchemaType         `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

// Extractor is the single operation consumed from the reasoning service: turn
// a prompt into data shaped by schema, decoded into out. Implementations must
// be safe for concurrent use by independent runs.
type Extractor interface {
	Extract(ctx context.Context, prompt string, schema *Schema, out interface{}) error
}

// ModelTier selects between a cheaper and a stronger model.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierPowerful ModelTier = "powerful"
)

// Package schema defines the subset of JSON Schema used to describe tool
// parameters. Transports convert these into their provider specific
// declaration formats.
package schema

// SchemaType is a JSON Schema primitive type name.
type SchemaType string

const (
	Object  SchemaType = "object"
	Array   SchemaType = "array"
	String  SchemaType = "string"
	Number  SchemaType = "number"
	Integer SchemaType = "integer"
	Boolean SchemaType = "boolean"
	Null    SchemaType = "null"
)

// Schema describes the structure of a JSON object.
type Schema struct {
	Type                 SchemaType           `json:"type"`
	Properties           map[string]*Property `json:"properties,omitempty"`
	Required             []string             `json:"required,omitempty"`
	AdditionalProperties *bool                `json:"additionalProperties,omitempty"`
}

// Property of a schema.
type Property struct {
	Type        SchemaType           `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
}

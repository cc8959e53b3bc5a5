// Package tool holds the function dispatch registry: the set of local
// functions the model may call during a design session, their parameter
// shapes, and the execution wrapper that turns every outcome (including
// unknown names, bad arguments and panics) into a JSON result for the
// conversation.
package tool

import (
	"context"
	"encoding/json"
)

// Function is a locally executed capability offered to the model.
type Function interface {
	// Name is the unique identifier the model calls.
	Name() string

	// Description tells the model when to use the function.
	Description() string

	// Parameters describes the accepted arguments. It must be an object.
	Parameters() Param

	// Execute runs the function. args has already been checked against
	// Parameters. The result is marshalled to JSON.
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// Schema is the public description of a registered function.
type Schema struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Param  `json:"parameters"`
}

// ParamType is a JSON value type.
type ParamType string

// Supported parameter types.
const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

// Param is a small JSON-schema subset: typed properties, a required list
// and string enums. Unknown properties are accepted.
type Param struct {
	Type        ParamType        `json:"type,omitempty"`
	Description string           `json:"description,omitempty"`
	Enum        []string         `json:"enum,omitempty"`
	Properties  map[string]Param `json:"properties,omitempty"`
	Required    []string         `json:"required,omitempty"`
	Items       *Param           `json:"items,omitempty"`
}

// Object is shorthand for an object Param.
func Object(props map[string]Param, required ...string) Param {
	return Param{Type: TypeObject, Properties: props, Required: required}
}

// MarshalJSON always emits "properties" for objects; several providers
// reject object schemas without it.
func (p Param) MarshalJSON() ([]byte, error) {
	type plain Param
	out := struct {
		plain
		Properties *map[string]Param `json:"properties,omitempty"`
	}{plain: plain(p)}

	if p.Properties != nil || p.Type == TypeObject {
		props := p.Properties
		if props == nil {
			props = map[string]Param{}
		}
		out.Properties = &props
	}
	return json.Marshal(out)
}

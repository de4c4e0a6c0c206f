// Package schema derives shape-only descriptions of JSON values. They are
// used to decide whether two captured bodies have the same structure and
// as the basis of generated documentation schemas.
package schema

import (
	"encoding/json"
	"sort"
)

// Type is a JSON value kind.
type Type string

const (
	Object  Type = "object"
	Array   Type = "array"
	Number  Type = "number"
	Boolean Type = "boolean"
	Null    Type = "null"
	String  Type = "string"
)

// Schema describes the shape of a JSON value. Example and Description are
// carried for documentation only and never affect Equal.
type Schema struct {
	Type        Type               `json:"type"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Example     any                `json:"example,omitempty"`
	Description string             `json:"description,omitempty"`
}

// Build returns the schema of a decoded JSON value.
func Build(v any) *Schema {
	return BuildDescribed(v, nil)
}

// BuildDescribed is Build with property descriptions looked up by name at
// every nesting level.
func BuildDescribed(v any, descriptions map[string]string) *Schema {
	switch t := v.(type) {
	case map[string]any:
		s := &Schema{Type: Object}
		if len(t) > 0 {
			s.Properties = make(map[string]*Schema, len(t))
		}
		for name, value := range t {
			prop := BuildDescribed(value, descriptions)
			if desc, ok := descriptions[name]; ok {
				prop.Description = desc
			}
			s.Properties[name] = prop
		}
		return s
	case []any:
		// The first element stands for the whole list
		if len(t) == 0 {
			return &Schema{Type: Array, Items: &Schema{Type: Null}}
		}
		return &Schema{Type: Array, Items: BuildDescribed(t[0], descriptions)}
	case bool:
		return &Schema{Type: Boolean, Example: t}
	case json.Number, float64, float32, int, int64, int32, uint, uint64, uint32:
		return &Schema{Type: Number, Example: t}
	case nil:
		return &Schema{Type: Null}
	case string:
		return &Schema{Type: String, Example: t}
	default:
		return &Schema{Type: String, Example: t}
	}
}

// Equal reports whether a and b describe the same shape: same types, same
// object keys with equal property shapes, equal item shapes.
func Equal(a, b *Schema) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type != b.Type {
		return false
	}
	if len(a.Properties) != len(b.Properties) {
		return false
	}
	for name, pa := range a.Properties {
		pb, ok := b.Properties[name]
		if !ok || !Equal(pa, pb) {
			return false
		}
	}
	return Equal(a.Items, b.Items)
}

// PropertyNames returns the object keys in sorted order.
func (s *Schema) PropertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

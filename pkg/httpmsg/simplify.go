package httpmsg

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
)

// DefaultKeep is the number of list items kept when simplifying bodies.
const DefaultKeep = 3

// Simplify truncates every array inside v to its first keep elements,
// recursing into objects and retained elements. Objects keep all their keys
// and scalars are returned as is. Maps and slices are modified in place.
func Simplify(v any, keep int) any {
	if keep < 0 {
		keep = 0
	}
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = Simplify(val, keep)
		}
		return t
	case []any:
		if len(t) > keep {
			t = t[:keep]
		}
		for i := range t {
			t[i] = Simplify(t[i], keep)
		}
		return t
	default:
		return v
	}
}

// SimplifyBody simplifies a JSON document held in text. Text that is not
// JSON (HTML, form data, plain text) comes back unchanged.
func SimplifyBody(text string, keep int) string {
	v, ok := ParseJSON(text)
	if !ok {
		return text
	}
	return EncodeJSON(Simplify(v, keep))
}

// ParseJSON decodes text as a single JSON value, keeping numbers verbatim.
func ParseJSON(text string) (any, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	// Trailing garbage means it was not one JSON document
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return v, true
}

// EncodeJSON renders v with sorted keys and a two space indent, without
// escaping HTML characters.
func EncodeJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// Package emit renders captured sessions and endpoint corpora as
// documentation: a plain text viewer, API Blueprint, OpenAPI 3 and Postman
// collections, plus an OpenAPI generator driven by hand-written YAML.
package emit

import (
	"encoding/json"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/httpseal/apiseal/pkg/httpmsg"
	"github.com/httpseal/apiseal/pkg/session"
)

// DefaultHost is used when no API base URL is given.
const DefaultHost = "http://{host}"

// Options shared by the corpus emitters.
type Options struct {
	Title string
	// Host is the API base URL prefixed to request targets.
	Host string
	// Keep is the number of list items kept in sample bodies.
	Keep int
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = "API"
	}
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.Keep < 0 {
		o.Keep = httpmsg.DefaultKeep
	}
	return o
}

func (o Options) baseURL() string {
	return strings.TrimRight(o.Host, "/")
}

// GuessValueType names the OpenAPI type a query or form value looks like:
// integer, number, boolean or string.
func GuessValueType(value string) string {
	v := strings.TrimSpace(value)
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return "integer"
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return "number"
	}
	if strings.EqualFold(v, "true") || strings.EqualFold(v, "false") {
		return "boolean"
	}
	return "string"
}

// folderName names a corpus group relative to the corpus root.
func folderName(g *session.Group) string {
	if g.Dir == "." || g.Dir == "" {
		return "/"
	}
	return g.Dir
}

// groupPath is the group directory including the corpus root.
func groupPath(c *session.Corpus, g *session.Group) string {
	return filepath.Join(c.Root, filepath.FromSlash(g.Dir))
}

// indent prefixes every non-blank line of text.
func indent(text, prefix string) string {
	lines := strings.SplitAfter(text, "\n")
	var b strings.Builder
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			b.WriteString(prefix)
		}
		b.WriteString(line)
	}
	return b.String()
}

// exampleValue turns decoded JSON numbers into float64 so they encode and
// validate as plain numbers.
func exampleValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// typedValue converts a query or form value to the Go value of its
// guessed type.
func typedValue(value, typ string) any {
	v := strings.TrimSpace(value)
	switch typ {
	case "integer", "number":
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	case "boolean":
		return strings.EqualFold(v, "true")
	}
	return value
}

// WriteJSON writes v with a two space indent and unescaped HTML characters.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

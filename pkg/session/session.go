// Package session pairs captured requests with their responses, decides
// when two sessions of one endpoint are alike, and reads and writes the
// on-disk session file format.
package session

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/ohler55/ojg/jp"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/httpseal/apiseal/pkg/httpmsg"
	"github.com/httpseal/apiseal/pkg/schema"
)

// DefaultStatusPath locates the business status code in JSON responses.
const DefaultStatusPath = "$.code"

// Parameters maps query parameter names to their values, in order of first appearance.
type Parameters = orderedmap.OrderedMap[string, []string]

// Session is one observed call.
type Session struct {
	Request    *httpmsg.Request
	Response   *httpmsg.Response
	Parameters *Parameters
}

// Pair builds a session and extracts the request's query parameters.
func Pair(req *httpmsg.Request, resp *httpmsg.Response) *Session {
	return &Session{
		Request:    req,
		Response:   resp,
		Parameters: ParseQuery(req.Query),
	}
}

// Method returns the request method.
func (s *Session) Method() string {
	return s.Request.Method
}

// String renders the request and status lines.
func (s *Session) String() string {
	return s.Request.StartLine + " - " + s.Response.StartLine
}

// ParseQuery parses a query string keeping every value of repeated names.
// Pairs without '=' or with an empty value are dropped.
func ParseQuery(query string) *Parameters {
	params := orderedmap.New[string, []string]()
	for _, part := range strings.Split(query, "&") {
		name, value, ok := strings.Cut(part, "=")
		if !ok || name == "" || value == "" {
			continue
		}
		name, value = unescape(name), unescape(value)
		values, _ := params.Get(name)
		params.Set(name, append(values, value))
	}
	return params
}

func unescape(s string) string {
	if out, err := url.QueryUnescape(s); err == nil {
		return out
	}
	return s
}

// Policy decides when two sessions are alike.
type Policy struct {
	// Keep is the number of list items kept when simplifying bodies.
	Keep int
	// StatusPath is a JSONPath into JSON object responses whose value tells
	// business outcomes apart. Empty disables the check.
	StatusPath string

	status jp.Expr
}

// NewPolicy compiles a policy.
func NewPolicy(keep int, statusPath string) (*Policy, error) {
	p := &Policy{Keep: keep, StatusPath: statusPath}
	if statusPath != "" {
		expr, err := jp.ParseString(statusPath)
		if err != nil {
			return nil, fmt.Errorf("invalid status path %q: %w", statusPath, err)
		}
		p.status = expr
	}
	return p, nil
}

// DefaultPolicy keeps three list items and compares "$.code".
func DefaultPolicy() *Policy {
	p, _ := NewPolicy(httpmsg.DefaultKeep, DefaultStatusPath)
	return p
}

// Alike reports whether a and b show the same behaviour: alike requests and
// alike responses. The relation is symmetric.
func (p *Policy) Alike(a, b *Session) bool {
	return p.RequestsAlike(a.Request, b.Request) && p.ResponsesAlike(a.Response, b.Response)
}

// RequestsAlike compares methods and body shapes.
func (p *Policy) RequestsAlike(x, y *httpmsg.Request) bool {
	return x.Method == y.Method && BodiesAlike(x.Body(p.Keep), y.Body(p.Keep))
}

// ResponsesAlike compares status lines, business status values and body shapes.
func (p *Policy) ResponsesAlike(x, y *httpmsg.Response) bool {
	if x.StartLine != y.StartLine {
		return false
	}
	bx, by := x.Body(p.Keep), y.Body(p.Keep)
	if !p.sameStatus(bx, by) {
		return false
	}
	return BodiesAlike(bx, by)
}

// sameStatus is false only when both bodies are JSON objects carrying a
// status value and the values differ.
func (p *Policy) sameStatus(x, y *httpmsg.Body) bool {
	if p.status == nil || !x.IsJSON() || !y.IsJSON() {
		return true
	}
	ox, okx := x.Value.(map[string]any)
	oy, oky := y.Value.(map[string]any)
	if !okx || !oky {
		return true
	}
	vx, vy := p.status.Get(ox), p.status.Get(oy)
	if len(vx) == 0 || len(vy) == 0 {
		return true
	}
	return reflect.DeepEqual(normalize(vx[0]), normalize(vy[0]))
}

// normalize makes 0 and 0.0 compare equal.
func normalize(v any) any {
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}

// BodiesAlike compares schemas when both bodies are JSON and the simplified
// text otherwise.
func BodiesAlike(x, y *httpmsg.Body) bool {
	if x.Schema != nil && y.Schema != nil {
		return schema.Equal(x.Schema, y.Schema)
	}
	return x.Simplified == y.Simplified
}

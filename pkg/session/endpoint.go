package session

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Endpoint collects the distinct sessions observed for one API.
type Endpoint struct {
	Name     string
	Path     string
	Sessions []*Session
	// Parameters is the union of query parameters of retained sessions.
	// The first value seen for a name wins.
	Parameters *Parameters

	policy *Policy
}

// NewEndpoint creates an empty endpoint compared under policy.
func NewEndpoint(name string, policy *Policy) *Endpoint {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Endpoint{
		Name:       name,
		Parameters: orderedmap.New[string, []string](),
		policy:     policy,
	}
}

// Add keeps s unless an alike session is already present. It reports
// whether s was kept.
func (e *Endpoint) Add(s *Session) bool {
	for _, existing := range e.Sessions {
		if e.policy.Alike(existing, s) {
			return false
		}
	}

	e.Sessions = append(e.Sessions, s)
	if e.Path == "" {
		e.Path = s.Request.Path
	}
	for pair := s.Parameters.Oldest(); pair != nil; pair = pair.Next() {
		if _, seen := e.Parameters.Get(pair.Key); !seen {
			e.Parameters.Set(pair.Key, pair.Value)
		}
	}
	return true
}

// ParameterNames returns the parameter names in order of first appearance.
func (e *Endpoint) ParameterNames() []string {
	names := make([]string, 0, e.Parameters.Len())
	for pair := e.Parameters.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// URLTemplate renders the path with an RFC 6570 query expansion, as used
// by API Blueprint.
func (e *Endpoint) URLTemplate() string {
	if e.Parameters.Len() == 0 {
		return e.Path
	}
	return e.Path + "{?" + strings.Join(e.ParameterNames(), ",") + "}"
}

// Methods returns the distinct methods of the retained sessions in order.
func (e *Endpoint) Methods() []string {
	var methods []string
	seen := make(map[string]bool)
	for _, s := range e.Sessions {
		if !seen[s.Method()] {
			seen[s.Method()] = true
			methods = append(methods, s.Method())
		}
	}
	return methods
}

package capture

import (
	"fmt"

	"github.com/gobwas/glob"

	"github.com/httpseal/apiseal/pkg/httpmsg"
)

// Rejection tells which allow-list turned a request away.
type Rejection int

const (
	RejectNone Rejection = iota
	RejectHost
	RejectURL
)

func (r Rejection) String() string {
	switch r {
	case RejectHost:
		return "host does not match"
	case RejectURL:
		return "url does not match"
	default:
		return "admitted"
	}
}

// Filter holds the host and URL allow-lists. Patterns use shell wildcards
// (*, ?, [...]) matched case-sensitively against the whole value; '*' also
// matches '/'. An empty list allows everything.
type Filter struct {
	Hosts []string
	URLs  []string

	hosts []glob.Glob
	urls  []glob.Glob
}

// NewFilter compiles the patterns.
func NewFilter(hosts, urls []string) (*Filter, error) {
	f := &Filter{Hosts: hosts, URLs: urls}
	var err error
	if f.hosts, err = compile(hosts); err != nil {
		return nil, err
	}
	if f.urls, err = compile(urls); err != nil {
		return nil, err
	}
	return f, nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Check tests the host first, then the request target.
func (f *Filter) Check(req *httpmsg.Request) Rejection {
	if f == nil {
		return RejectNone
	}
	if !anyMatch(f.hosts, req.Host) {
		return RejectHost
	}
	if !anyMatch(f.urls, req.URL) {
		return RejectURL
	}
	return RejectNone
}

func anyMatch(globs []glob.Glob, s string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

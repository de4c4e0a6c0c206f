package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointAddDedup(t *testing.T) {
	e := NewEndpoint("users", nil)

	first := newSession(t, "GET", "/users?id=1", "200 OK", `{"code":0,"data":{"name":"x"}}`)
	second := newSession(t, "GET", "/users?id=2", "200 OK", `{"code":0,"data":{"name":"y"}}`)

	assert.True(t, e.Add(first))
	assert.False(t, e.Add(second))
	require.Len(t, e.Sessions, 1)
	assert.Same(t, first, e.Sessions[0])
	assert.Equal(t, "/users", e.Path)

	// Parameters come from retained sessions only.
	id, ok := e.Parameters.Get("id")
	require.True(t, ok)
	assert.Equal(t, []string{"1"}, id)
	assert.Equal(t, []string{"id"}, e.ParameterNames())
}

func TestEndpointAddIdempotent(t *testing.T) {
	e := NewEndpoint("users", nil)
	s := newSession(t, "GET", "/users", "200 OK", `{"code":0}`)

	assert.True(t, e.Add(s))
	assert.False(t, e.Add(s))
	assert.Len(t, e.Sessions, 1)
}

func TestEndpointParameterUnion(t *testing.T) {
	e := NewEndpoint("users", nil)

	require.True(t, e.Add(newSession(t, "GET", "/users?id=1&page=2", "200 OK", `{"code":0}`)))
	require.True(t, e.Add(newSession(t, "GET", "/users?id=7&sort=asc", "200 OK", `{"code":1}`)))
	require.True(t, e.Add(newSession(t, "POST", "/users?debug=1", "201 Created", `{"code":0}`)))

	assert.Equal(t, []string{"id", "page", "sort", "debug"}, e.ParameterNames())
	id, _ := e.Parameters.Get("id")
	assert.Equal(t, []string{"1"}, id, "first value seen wins")

	assert.Equal(t, "/users{?id,page,sort,debug}", e.URLTemplate())
	assert.Equal(t, []string{"GET", "POST"}, e.Methods())
}

func TestEndpointURLTemplateWithoutParameters(t *testing.T) {
	e := NewEndpoint("users", nil)
	require.True(t, e.Add(newSession(t, "GET", "/users", "200 OK", `{}`)))
	assert.Equal(t, "/users", e.URLTemplate())
}

func TestEndpointNeverHoldsAlikePair(t *testing.T) {
	policy := DefaultPolicy()
	e := NewEndpoint("orders", policy)

	bodies := []string{
		`{"code":0,"items":[]}`,
		`{"code":0,"items":[]}`,
		`{"code":0,"items":[{"id":1}]}`,
		`{"code":2,"items":[]}`,
		`{"code":0,"items":[{"id":5}]}`,
		`{"code":2,"items":[]}`,
	}
	for _, body := range bodies {
		e.Add(newSession(t, "GET", "/orders", "200 OK", body))
	}

	require.Len(t, e.Sessions, 3)
	for i := range e.Sessions {
		for j := i + 1; j < len(e.Sessions); j++ {
			assert.False(t, policy.Alike(e.Sessions[i], e.Sessions[j]))
		}
	}
}

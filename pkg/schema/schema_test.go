package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, text string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	require.NoError(t, dec.Decode(&v))
	return v
}

func TestBuild(t *testing.T) {
	s := Build(decode(t, `{"code":0,"ok":true,"name":"x","tags":["a","b"],"empty":[],"none":null}`))

	require.Equal(t, Object, s.Type)
	assert.Equal(t, []string{"code", "empty", "name", "none", "ok", "tags"}, s.PropertyNames())
	assert.Equal(t, Number, s.Properties["code"].Type)
	assert.Equal(t, json.Number("0"), s.Properties["code"].Example)
	assert.Equal(t, Boolean, s.Properties["ok"].Type)
	assert.Equal(t, String, s.Properties["name"].Type)
	assert.Equal(t, Null, s.Properties["none"].Type)
	assert.Equal(t, Array, s.Properties["tags"].Type)
	assert.Equal(t, String, s.Properties["tags"].Items.Type)
	assert.Equal(t, Null, s.Properties["empty"].Items.Type)
}

func TestBuildDescribed(t *testing.T) {
	s := BuildDescribed(decode(t, `{"user":{"id":1}}`), map[string]string{"id": "user id"})
	assert.Equal(t, "user id", s.Properties["user"].Properties["id"].Description)
	assert.Empty(t, s.Properties["user"].Description)
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"same shape different data", `{"code":0,"data":{"name":"x"}}`, `{"code":1,"data":{"name":"y"}}`, true},
		{"key order", `{"a":1,"b":"x"}`, `{"b":"y","a":2}`, true},
		{"missing key", `{"a":1}`, `{"a":1,"b":2}`, false},
		{"type change", `{"a":1}`, `{"a":"1"}`, false},
		{"nested array items", `[{"id":1}]`, `[{"id":"x"}]`, false},
		{"empty vs filled array", `[]`, `[1]`, false},
		{"scalars", `1`, `2.5`, true},
		{"null vs object", `null`, `{}`, false},
		{"empty objects", `{}`, `{}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := Build(decode(t, tt.a)), Build(decode(t, tt.b))
			assert.Equal(t, tt.want, Equal(a, b))
			assert.Equal(t, tt.want, Equal(b, a), "Equal must be symmetric")
		})
	}
}

func TestEqualNil(t *testing.T) {
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, &Schema{Type: Null}))
}

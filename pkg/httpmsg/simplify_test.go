package httpmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimplify(t *testing.T) {
	for _, keep := range []int{0, 1, 2, 5} {
		v, ok := ParseJSON(`{"list":[1,2,3,4],"nested":{"inner":[[1,2,3],[4],[5,6]]},"n":1,"s":"x","b":false,"z":null}`)
		require.True(t, ok)

		out := Simplify(v, keep).(map[string]any)
		assert.Len(t, out, 6, "object key set is unchanged")
		assert.Len(t, out["list"], min(4, keep))

		inner := out["nested"].(map[string]any)["inner"].([]any)
		assert.Len(t, inner, min(3, keep))
		for _, item := range inner {
			assert.LessOrEqual(t, len(item.([]any)), keep)
		}

		assert.EqualValues(t, "1", out["n"])
		assert.Equal(t, "x", out["s"])
		assert.Equal(t, false, out["b"])
		assert.Nil(t, out["z"])
	}
}

func TestSimplifyScalarsAndNegativeKeep(t *testing.T) {
	assert.Equal(t, "x", Simplify("x", 1))
	assert.Nil(t, Simplify(nil, 1))
	assert.Equal(t, []any{}, Simplify([]any{1, 2}, -1))
}

func TestSimplifyBody(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		got := SimplifyBody(`{"b":[1,2,3],"a":"<x>","big":12345678901234567890}`, 1)
		want := "{\n  \"a\": \"<x>\",\n  \"b\": [\n    1\n  ],\n  \"big\": 12345678901234567890\n}"
		assert.Equal(t, want, got)
	})

	t.Run("keep zero", func(t *testing.T) {
		assert.Equal(t, "[]", SimplifyBody(`[1,2]`, 0))
	})

	t.Run("non json passes through", func(t *testing.T) {
		for _, text := range []string{"<html></html>", "", "a=1&b=2", `{"a":1} trailing`} {
			assert.Equal(t, text, SimplifyBody(text, 1))
		}
	})
}

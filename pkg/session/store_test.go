package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreSave(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "apis"))
	require.NoError(t, err)

	s := newSession(t, "GET", "/api/users/list?page=1", "200 OK", `{"code":0}`)

	first, err := store.Save(s)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "apis", "api", "users", "20240301_100000-list.api"), first)

	second, err := store.Save(s)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "apis", "api", "users", "20240301_100000_1-list.api"), second)

	back, err := ReadFilePath(second, 1)
	require.NoError(t, err)
	assert.Equal(t, s.Request.Payload, back.Request.Payload)
}

func TestSafeRelPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/", "index"},
		{"", "index"},
		{"/api/users", "api/users"},
		{"/api/users/", "api/users"},
		{"/../../etc/passwd", "etc/passwd"},
		{"/a//b/./c", "a/b/c"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, safeRelPath(tt.in))
		})
	}
}

package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileStore saves sessions under a directory tree mirroring request paths:
// GET /api/users/list captured at 2024-03-01 10:00:00 is written to
// <dir>/api/users/20240301_100000-list.api.
type FileStore struct {
	dir string
}

// NewFileStore creates the root directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, fmt.Errorf("failed to create save directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory.
func (st *FileStore) Dir() string {
	return st.dir
}

// Save writes s and returns the file path. A file captured in the same
// second for the same path gets a numeric suffix instead of being replaced.
func (st *FileStore) Save(s *Session) (string, error) {
	rel := safeRelPath(s.Request.Path)
	dir := filepath.Join(st.dir, filepath.FromSlash(path.Dir(rel)))
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	stamp := s.Request.Timestamp.Format("20060102_150405")
	base := path.Base(rel)

	for i := 0; ; i++ {
		name := fmt.Sprintf("%s-%s%s", stamp, base, FileExt)
		if i > 0 {
			name = fmt.Sprintf("%s_%d-%s%s", stamp, i, base, FileExt)
		}
		filename := filepath.Join(dir, name)

		f, err := os.OpenFile(filename, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}

		if err := WriteFile(f, s.Request, s.Response); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to write %s: %w", filename, err)
		}
		return filename, f.Close()
	}
}

// safeRelPath turns a request path into a relative slash path that cannot
// escape the store. The root path maps to "index".
func safeRelPath(p string) string {
	rel := strings.TrimPrefix(path.Clean("/"+p), "/")
	if rel == "" {
		return "index"
	}
	return rel
}

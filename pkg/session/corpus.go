package session

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
)

var apiNamePattern = regexp.MustCompile(`^[\d_]+-(.*?)\.api$`)

// APIName strips the capture time prefix and extension off a session file name.
func APIName(filename string) string {
	if m := apiNamePattern.FindStringSubmatch(filename); m != nil {
		return m[1]
	}
	return filename
}

// Group holds the endpoints found in one directory of a corpus.
type Group struct {
	Dir       string
	Endpoints []*Endpoint
}

// Corpus is a loaded directory of session files.
type Corpus struct {
	Root   string
	Groups []*Group
	// Errors lists the files that were skipped.
	Errors []error
	// Files is the number of session files found.
	Files int
	// Discarded counts sessions dropped as alike an earlier one.
	Discarded int
}

// LoadCorpus reads every session file below root. Files are parsed by up to
// workers goroutines; sessions are then folded into their endpoint in file
// name order so the earliest capture of each shape is the one kept.
func LoadCorpus(ctx context.Context, root string, policy *Policy, workers int) (*Corpus, error) {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	files, err := doublestar.Glob(os.DirFS(root), "**/*"+FileExt, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	sort.Strings(files)

	sessions := make([]*Session, len(files))
	errs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, name := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sessions[i], errs[i] = ReadFilePath(filepath.Join(root, filepath.FromSlash(name)), policy.Keep)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	corpus := &Corpus{Root: root, Files: len(files)}
	groups := make(map[string]*Group)
	endpoints := make(map[string]*Endpoint)

	for i, name := range files {
		if errs[i] != nil {
			corpus.Errors = append(corpus.Errors, errs[i])
			continue
		}

		dir := path.Dir(name)
		group, ok := groups[dir]
		if !ok {
			group = &Group{Dir: dir}
			groups[dir] = group
			corpus.Groups = append(corpus.Groups, group)
		}

		apiName := APIName(path.Base(name))
		key := dir + "\x00" + apiName
		endpoint, ok := endpoints[key]
		if !ok {
			endpoint = NewEndpoint(apiName, policy)
			endpoints[key] = endpoint
			group.Endpoints = append(group.Endpoints, endpoint)
		}

		if !endpoint.Add(sessions[i]) {
			corpus.Discarded++
		}
	}

	return corpus, nil
}

// Sessions returns the number of retained sessions.
func (c *Corpus) Sessions() int {
	n := 0
	for _, g := range c.Groups {
		for _, e := range g.Endpoints {
			n += len(e.Sessions)
		}
	}
	return n
}

package transformer

import (
	"fmt"
	"iter"
	"path/filepath"
	"slices"

	"github.com/buildingsync/bsync-migrate/pkg/utils"
)

// Source is a finite, restartable sequence of document paths. Each call to
// Paths starts a fresh pass.
type Source interface {
	Paths() iter.Seq[string]
}

// PathList is a fixed list of paths.
type PathList []string

// Paths yields the paths in list order.
func (l PathList) Paths() iter.Seq[string] {
	return slices.Values(l)
}

// GlobSource discovers the files in Dir matching Pattern. Discovery happens
// lazily, on each pass.
type GlobSource struct {
	Dir     string
	Pattern string

	// Sorted yields paths in lexical order rather than directory order.
	Sorted bool
}

// NewGlobSource creates a sorted GlobSource, checking the pattern up front.
// An empty pattern means "*.xml".
func NewGlobSource(dir, pattern string) (GlobSource, error) {
	if pattern == "" {
		pattern = utils.DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return GlobSource{}, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return GlobSource{Dir: dir, Pattern: pattern, Sorted: true}, nil
}

// Paths yields the matching files. A malformed pattern yields nothing.
func (s GlobSource) Paths() iter.Seq[string] {
	return func(yield func(string) bool) {
		files, err := utils.NewFileManager(s.Dir, "").DiscoverInputFiles(s.Pattern, s.Sorted)
		if err != nil {
			return
		}
		for _, file := range files {
			if !yield(file) {
				return
			}
		}
	}
}

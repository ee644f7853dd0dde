package prompt

import (
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
)

const storeCacheSize = 64

// Store loads raw template text by name from a directory. Template names
// resolve to file paths relative to the directory. Loaded text is held in
// a small LRU cache; templates are immutable for a run's duration, so a
// cache hit never changes observable results.
type Store struct {
	fs    afero.Fs
	dir   string
	cache *lru.Cache[string, string]
}

// NewStore returns a Store reading templates from dir on the host
// filesystem.
func NewStore(dir string) *Store {
	return NewStoreWithFs(afero.NewOsFs(), dir)
}

// NewStoreWithFs returns a Store reading templates from dir on fs.
func NewStoreWithFs(fs afero.Fs, dir string) *Store {
	cache, _ := lru.New[string, string](storeCacheSize)
	return &Store{fs: fs, dir: dir, cache: cache}
}

// Load returns the raw text of the named template, or a NotFoundError if
// no file exists under that name.
func (s *Store) Load(name string) (string, error) {
	if text, ok := s.cache.Get(name); ok {
		return text, nil
	}

	data, err := afero.ReadFile(s.fs, filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", &NotFoundError{Name: name}
		}
		return "", fmt.Errorf("loading template %q: %w", name, err)
	}

	text := string(data)
	s.cache.Add(name, text)
	return text, nil
}

package prompt

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, files map[string]string) *Store {
	fs := afero.NewMemMapFs()
	for name, content := range files {
		err := afero.WriteFile(fs, "prompts/"+name, []byte(content), 0644)
		require.NoError(t, err)
	}
	return NewStoreWithFs(fs, "prompts")
}

func TestStoreLoad(t *testing.T) {
	store := newTestStore(t, map[string]string{
		"greeting.yaml": "- role: user\n  content: hi\n",
	})

	text, err := store.Load("greeting.yaml")
	assert.NoError(t, err)
	assert.Equal(t, "- role: user\n  content: hi\n", text)
}

func TestStoreLoadSubdirectory(t *testing.T) {
	store := newTestStore(t, map[string]string{
		"arc/solve.yaml": "- role: user\n  content: solve\n",
	})

	text, err := store.Load("arc/solve.yaml")
	assert.NoError(t, err)
	assert.Contains(t, text, "solve")
}

func TestStoreLoadNotFound(t *testing.T) {
	store := newTestStore(t, nil)

	_, err := store.Load("missing.yaml")
	require.Error(t, err)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing.yaml", notFound.Name)
}

func TestStoreLoadCacheHit(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "prompts/a.yaml", []byte("first"), 0644))
	store := NewStoreWithFs(fs, "prompts")

	text, err := store.Load("a.yaml")
	require.NoError(t, err)
	assert.Equal(t, "first", text)

	// Templates are immutable for a run; a second Load is served from cache.
	require.NoError(t, fs.Remove("prompts/a.yaml"))
	text, err = store.Load("a.yaml")
	assert.NoError(t, err)
	assert.Equal(t, "first", text)
}

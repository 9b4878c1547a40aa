package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Version uint64
	Names   []string
}

func TestSaveAndLoadGob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "corpus.gob")
	in := snapshot{Version: 3, Names: []string{"Martin", "Dubois"}}

	require.NoError(t, SaveGob(path, in))

	var out snapshot
	require.NoError(t, LoadGob(path, &out))
	assert.Equal(t, in, out)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestLoadGob_MissingFile(t *testing.T) {
	var out snapshot
	err := LoadGob(filepath.Join(t.TempDir(), "absent.gob"), &out)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadGob_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.gob")
	require.NoError(t, os.WriteFile(path, []byte("not gob"), 0o600))

	var out snapshot
	err := LoadGob(path, &out)
	require.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrNotExist))
}

package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRunAllocatesSequentialNames(t *testing.T) {
	reg, err := OpenRegistry(t.TempDir())
	require.NoError(t, err)
	defer reg.Close()

	first, err := reg.CreateRun("shell-a")
	require.NoError(t, err)
	second, err := reg.CreateRun("shell-a")
	require.NoError(t, err)

	assert.Equal(t, "run-1", first.Name)
	assert.Equal(t, "run-2", second.Name)
	assert.DirExists(t, first.Path)
	assert.DirExists(t, second.Path)
}

func TestMostRecentIsPerShell(t *testing.T) {
	reg, err := OpenRegistry(t.TempDir())
	require.NoError(t, err)
	defer reg.Close()

	a, err := reg.CreateRun("shell-a")
	require.NoError(t, err)
	_, err = reg.CreateRun("shell-b")
	require.NoError(t, err)

	got, err := reg.MostRecent("shell-a")
	require.NoError(t, err)
	assert.Equal(t, a.Name, got.Name)

	_, err = reg.MostRecent("shell-c")
	assert.ErrorIs(t, err, ErrNoRun)
}

func TestTouchMovesPointer(t *testing.T) {
	reg, err := OpenRegistry(t.TempDir())
	require.NoError(t, err)
	defer reg.Close()

	first, err := reg.CreateRun("shell-a")
	require.NoError(t, err)
	_, err = reg.CreateRun("shell-a")
	require.NoError(t, err)

	// second is most recent until the first run is touched again
	require.NoError(t, reg.Touch(first.Path))
	got, err := reg.MostRecent("shell-a")
	require.NoError(t, err)
	assert.Equal(t, first.Name, got.Name)
}

func TestAdoptExplicitDirectory(t *testing.T) {
	top := t.TempDir()
	reg, err := OpenRegistry(top)
	require.NoError(t, err)
	defer reg.Close()

	custom := filepath.Join(top, "my-pipeline")
	run, err := reg.Adopt(custom, "shell-a")
	require.NoError(t, err)
	assert.DirExists(t, custom)

	// adopting again re-points rather than duplicating
	again, err := reg.Adopt(custom, "shell-b")
	require.NoError(t, err)
	assert.Equal(t, run.Path, again.Path)

	got, err := reg.MostRecent("shell-b")
	require.NoError(t, err)
	assert.Equal(t, custom, got.Path)
}

func TestOpenRegistryIsIdempotent(t *testing.T) {
	top := t.TempDir()
	reg, err := OpenRegistry(top)
	require.NoError(t, err)
	_, err = reg.CreateRun("shell-a")
	require.NoError(t, err)
	require.NoError(t, reg.Close())

	reg2, err := OpenRegistry(top)
	require.NoError(t, err)
	defer reg2.Close()
	runs, err := reg2.List(0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager_CreateMakesIsolatedDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	m := New(root, "wavforce", zap.NewNop())

	path, err := m.Create("01890000-0000-7000-8000-000000000001")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.True(t, info.IsDir())
	require.Equal(t, root, filepath.Dir(path))
	require.True(t, strings.HasPrefix(filepath.Base(path), "wavforce_"))
}

func TestManager_CreateDistinctPathsForSameJobID(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	m := New(root, "wavforce", zap.NewNop())

	a, err := m.Create("same-id")
	require.NoError(t, err)
	b, err := m.Create("same-id")
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	for _, p := range []string{a, b} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}

func TestManager_DestroyRemovesDirectoryAndContents(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	m := New(root, "wavforce", zap.NewNop())

	path, err := m.Create("job-1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(path, "audio.wav"), []byte("RIFF"), 0o600))

	m.Destroy(path)
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestManager_DestroyIgnoresMissingDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	m := New(root, "wavforce", zap.NewNop())

	// Double destroy must be harmless; jobs finalize on every terminal path.
	path, err := m.Create("job-2")
	require.NoError(t, err)
	m.Destroy(path)
	m.Destroy(path)
}

func TestManager_DestroyRefusesPathsOutsideRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	outside := t.TempDir()
	m := New(root, "wavforce", zap.NewNop())

	victim := filepath.Join(outside, "wavforce_not_ours")
	require.NoError(t, os.Mkdir(victim, 0o750))

	m.Destroy(victim)
	_, err := os.Stat(victim)
	require.NoError(t, err)
}

func TestManager_DestroyRefusesUnprefixedSiblings(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	m := New(root, "wavforce", zap.NewNop())

	sibling := filepath.Join(root, "unrelated")
	require.NoError(t, os.Mkdir(sibling, 0o750))

	m.Destroy(sibling)
	_, err := os.Stat(sibling)
	require.NoError(t, err)
}

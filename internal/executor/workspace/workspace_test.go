package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/compiler-playground/internal/apperror"
	"github.com/sakif/compiler-playground/internal/config"
	"github.com/sakif/compiler-playground/internal/logging"
)

func newTestManager(t *testing.T, sideProducts ...string) (*Manager, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scratch")
	tc := config.ToolchainConfig{
		SourceExt:    ".rs",
		ArtifactExt:  ".bin",
		SideProducts: sideProducts,
		ScratchDir:   dir,
	}
	return NewManager(tc, logging.NewNop()), dir
}

func TestPrepare_DerivesPathsFromID(t *testing.T) {
	m, dir := newTestManager(t, ".pdb")

	ws, err := m.Prepare()
	require.NoError(t, err)

	// Scratch dir is created on demand.
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	base := filepath.Join(dir, "temp_"+ws.ID.String())
	assert.Equal(t, base+".rs", ws.SourcePath)
	assert.Equal(t, base+".bin", ws.ArtifactPath)
	assert.Equal(t, []string{base + ".pdb"}, ws.SideProducts)
	assert.True(t, filepath.IsAbs(ws.ArtifactPath))
}

func TestPrepare_UniqueUnderConcurrency(t *testing.T) {
	m, _ := newTestManager(t)

	const n = 64
	var (
		mu   sync.Mutex
		seen = make(map[string]bool, n)
		wg   sync.WaitGroup
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ws, err := m.Prepare()
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, p := range ws.Paths() {
				assert.False(t, seen[p], "path reused: %s", p)
				seen[p] = true
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 2*n)
}

func TestPrepare_ScratchDirUnavailable(t *testing.T) {
	// A regular file where the directory should be makes MkdirAll fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	m := NewManager(config.ToolchainConfig{ScratchDir: filepath.Join(blocker, "scratch")}, logging.NewNop())

	ws, err := m.Prepare()
	assert.Nil(t, ws)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrIO))
	assert.True(t, strings.HasPrefix(err.Error(), "Failed to create scratch directory"))
}

func TestTeardown_RemovesEveryFile(t *testing.T) {
	m, dir := newTestManager(t, ".pdb")

	ws, err := m.Prepare()
	require.NoError(t, err)
	for _, p := range ws.Paths() {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	m.Teardown(ws)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTeardown_MissingFilesAndRepeatCalls(t *testing.T) {
	m, dir := newTestManager(t, ".pdb")

	ws, err := m.Prepare()
	require.NoError(t, err)
	// Only the source exists, as after a failed compile.
	require.NoError(t, os.WriteFile(ws.SourcePath, []byte("fn main() {}"), 0o644))

	assert.NotPanics(t, func() {
		m.Teardown(ws)
		m.Teardown(ws)
		m.Teardown(nil)
	})

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

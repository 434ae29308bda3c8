// Package workspace owns the scratch files of one execution session.
//
// A Workspace is created by Prepare and destroyed by Teardown. Paths are
// derived from a fresh UUID, so concurrent sessions sharing the scratch
// directory never touch each other's files:
//
//	temp/temp_<uuid>.rs     source
//	temp/temp_<uuid>        compiled artifact (".exe" on Windows)
//	temp/temp_<uuid>.pdb    side products left by the compiler
package workspace

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/sakif/compiler-playground/internal/apperror"
	"github.com/sakif/compiler-playground/internal/config"
)

const filePrefix = "temp_"

// Workspace is the set of paths reserved for one session.
type Workspace struct {
	ID           uuid.UUID
	Dir          string
	SourcePath   string
	ArtifactPath string
	SideProducts []string

	once sync.Once
}

// Paths returns every file the workspace may own, source first.
func (w *Workspace) Paths() []string {
	paths := make([]string, 0, 2+len(w.SideProducts))
	paths = append(paths, w.SourcePath, w.ArtifactPath)
	return append(paths, w.SideProducts...)
}

// Manager creates and removes workspaces inside one scratch directory.
type Manager struct {
	dir          string
	sourceExt    string
	artifactExt  string
	sideProducts []string
	logger       *slog.Logger
}

func NewManager(tc config.ToolchainConfig, logger *slog.Logger) *Manager {
	return &Manager{
		dir:          tc.ScratchDir,
		sourceExt:    tc.SourceExt,
		artifactExt:  tc.ArtifactExt,
		sideProducts: tc.SideProducts,
		logger:       logger,
	}
}

// Prepare reserves a new workspace. The scratch directory is created on
// demand; failing to create it is an IO error.
//
// Paths are absolute so the artifact can be executed directly without
// relying on the process working directory.
func (m *Manager) Prepare() (*Workspace, error) {
	dir, err := filepath.Abs(m.dir)
	if err != nil {
		return nil, apperror.IOFailed("Failed to resolve scratch directory", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperror.IOFailed("Failed to create scratch directory", err)
	}

	id := uuid.New()
	base := filepath.Join(dir, filePrefix+id.String())

	ws := &Workspace{
		ID:           id,
		Dir:          dir,
		SourcePath:   base + m.sourceExt,
		ArtifactPath: base + m.artifactExt,
	}
	for _, suffix := range m.sideProducts {
		ws.SideProducts = append(ws.SideProducts, base+suffix)
	}

	m.logger.Debug("workspace prepared",
		slog.String("workspace_id", id.String()),
		slog.String("source", ws.SourcePath),
	)
	return ws, nil
}

// Teardown removes every file of the workspace. Files that were never
// created are skipped. Other failures are logged and swallowed: cleanup
// must never change the outcome a client already received.
//
// Safe to call more than once; only the first call does any work.
func (m *Manager) Teardown(ws *Workspace) {
	if ws == nil {
		return
	}
	ws.once.Do(func() {
		for _, path := range ws.Paths() {
			err := os.Remove(path)
			if err == nil || errors.Is(err, fs.ErrNotExist) {
				continue
			}
			m.logger.Warn("failed to remove workspace file",
				slog.String("workspace_id", ws.ID.String()),
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	})
}

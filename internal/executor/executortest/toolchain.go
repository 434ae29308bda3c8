// Package executortest provides a stand-in toolchain for tests.
//
// Running rustc in unit tests is slow and not always installed, so tests use
// /bin/sh as the "compiler": it copies a shell script from the source path to
// the artifact path and marks it executable. Programs are therefore written
// as shell scripts with a #!/bin/sh shebang.
package executortest

import (
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sakif/compiler-playground/internal/config"
)

// CompileErrorMarker makes the stand-in compiler fail when present in the source.
const CompileErrorMarker = "COMPILE_ERROR"

// compileScript receives the source as $0 and the artifact as $1.
const compileScript = `if grep -q ` + CompileErrorMarker + ` "$0"; then
  echo "error: unexpected token" >&2
  echo " --> $0:1:1" >&2
  exit 1
fi
cp "$0" "$1" && chmod +x "$1"`

// Toolchain returns a toolchain config whose scratch directory lives in a
// per-test temp dir. Tests are skipped on platforms without /bin/sh.
func Toolchain(t *testing.T) config.ToolchainConfig {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stand-in toolchain requires /bin/sh")
	}
	return config.ToolchainConfig{
		Compiler:   "/bin/sh",
		Args:       []string{"-c", compileScript, config.SourcePlaceholder, config.ArtifactPlaceholder},
		SourceExt:  ".sh",
		ScratchDir: filepath.Join(t.TempDir(), "temp"),
	}
}

// Execution returns execution settings with short timers for tests.
func Execution() config.ExecutionConfig {
	return config.ExecutionConfig{
		ChunkSize:     1024,
		Heartbeat:     time.Second,
		DrainTimeout:  2 * time.Second,
		ReapGrace:     500 * time.Millisecond,
		InboundBuffer: 16,
		MaxCodeBytes:  100000,
	}
}

// Script turns shell lines into a program for the stand-in toolchain.
func Script(lines ...string) string {
	src := "#!/bin/sh\n"
	for _, l := range lines {
		src += l + "\n"
	}
	return src
}

package shell

import (
	"context"
	"os"
	"os/exec"
	"strings"
)

// ExecutableExists reports whether candidate can be launched. Path-qualified
// candidates are checked on disk; bare names are resolved against PATH.
func ExecutableExists(ctx context.Context, candidate string) bool {
	if candidate == "" {
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	if strings.ContainsRune(candidate, os.PathSeparator) || strings.ContainsRune(candidate, '/') {
		info, err := os.Stat(candidate)
		return err == nil && !info.IsDir()
	}

	_, err := exec.LookPath(candidate)
	return err == nil
}

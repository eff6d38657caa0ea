package paths

import (
	"path/filepath"
	"strings"
)

// Workspace layout
const (
	// MetaDir is the per-workspace settings directory
	MetaDir = ".melius"

	// ExtensionsDir holds one subdirectory per extension, relative to MetaDir
	ExtensionsDir = "extensions"

	// ManifestFile is the extension manifest name
	ManifestFile = "extension.json"

	// DefaultMain is the activation module used when a manifest declares none
	DefaultMain = "main.js"

	// ReadmeFile is written next to the manifest by the baseplate generator
	ReadmeFile = "README.md"
)

// Normalize cleans a path without touching the filesystem.
// The empty string stays empty so callers can detect a missing argument.
func Normalize(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Clean(path)
}

// IsWithin reports whether candidate equals root or lives below it.
// Both paths are normalized first; an empty argument is never within anything.
func IsWithin(root, candidate string) bool {
	normalizedRoot := Normalize(root)
	normalizedCandidate := Normalize(candidate)

	if normalizedRoot == "" || normalizedCandidate == "" {
		return false
	}

	if normalizedCandidate == normalizedRoot {
		return true
	}

	prefix := normalizedRoot
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(normalizedCandidate, prefix)
}

// ExtensionsRoot returns <workspace>/.melius/extensions
func ExtensionsRoot(workspace string) string {
	return filepath.Join(workspace, MetaDir, ExtensionsDir)
}

// ExtensionDir returns the directory of a single extension in a workspace
func ExtensionDir(workspace, extensionID string) string {
	return filepath.Join(ExtensionsRoot(workspace), extensionID)
}

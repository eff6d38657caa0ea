// Package paths provides path normalization and containment helpers shared by
// the watcher, terminal and extension components.
//
// Containment is purely lexical: IsWithin never resolves symlinks, so callers
// that walk the filesystem must skip symlinked entries themselves.
//
// Workspace layout:
//
//	<workspace>/.melius/extensions/<dir>/extension.json
//	<workspace>/.melius/extensions/<dir>/main.js
//	<workspace>/.melius/extensions/<dir>/README.md
package paths

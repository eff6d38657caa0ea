// Package filesystem provides the "fs" bridge operations.
//
// Files are treated as UTF-8 text. Directory listings put directories
// first and order names case-insensitively with embedded numbers compared
// by value, using golang.org/x/text/collate. Symlinks never appear in a
// listing and are never followed by Search.
//
// Example Usage:
//
//	ops := filesystem.NewOps()
//	entries, err := ops.ListDirectory("/tmp/proj")
//	found, err := ops.Search(ctx, "/tmp/proj", "**/*.go", 0)
package filesystem

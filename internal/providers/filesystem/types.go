package filesystem

import (
	"errors"

	"github.com/thecatthatflies/melius/internal/shared/types"
)

// Entry types reported by ListDirectory
const (
	TypeDirectory = "directory"
	TypeFile      = "file"
)

// DefaultSearchLimit caps Search results when no limit is given
const DefaultSearchLimit = 500

var (
	ErrDirectoryRequired = errors.New("Directory path is required.")
	ErrFileRequired      = errors.New("File path is required.")
	ErrSavePathRequired  = errors.New("A file path is required to save content.")
	ErrSearchRequired    = errors.New("search root and pattern are required")
)

// Entry is one directory listing row
type Entry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// SearchResult is returned by Search
type SearchResult struct {
	Root      string   `json:"root"`
	Pattern   string   `json:"pattern"`
	Matches   []string `json:"matches"`
	Truncated bool     `json:"truncated"`
}

// Ops groups the filesystem operations behind the provider
type Ops struct {
	// SkipDirs are directory names never descended into by Search
	SkipDirs map[string]struct{}
}

// NewOps creates filesystem operations with the default search exclusions
func NewOps() *Ops {
	return &Ops{
		SkipDirs: map[string]struct{}{
			".git":         {},
			"node_modules": {},
		},
	}
}

// Success helper
func Success(data interface{}) (*types.Result, error) {
	return types.Success(data)
}

// Failure helper
func Failure(message string) (*types.Result, error) {
	return types.Failure(message)
}

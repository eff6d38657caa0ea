package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
)

// Search walks root and returns the root-relative, slash-separated paths of
// files matching a doublestar pattern such as "**/*.go". Results are sorted
// and capped at limit (DefaultSearchLimit when limit <= 0).
func (o *Ops) Search(ctx context.Context, root, pattern string, limit int) (SearchResult, error) {
	if root == "" || pattern == "" {
		return SearchResult{}, ErrSearchRequired
	}
	if !doublestar.ValidatePattern(pattern) {
		return SearchResult{}, fmt.Errorf("invalid pattern: %q", pattern)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var (
		mu      sync.Mutex
		matches = []string{}
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			// Entries that vanish or deny access mid-walk are skipped.
			return nil
		}
		if d.IsDir() {
			if _, skip := o.SkipDirs[d.Name()]; skip && p != root {
				return fastwalk.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(pattern, rel); ok {
			mu.Lock()
			matches = append(matches, rel)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return SearchResult{}, fmt.Errorf("search failed: %w", err)
	}

	sort.Strings(matches)
	result := SearchResult{Root: root, Pattern: pattern, Matches: matches}
	if len(matches) > limit {
		result.Matches = matches[:limit]
		result.Truncated = true
	}
	return result, nil
}

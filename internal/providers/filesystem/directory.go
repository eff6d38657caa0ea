package filesystem

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ListDirectory lists dir with directories first, then files, each group in
// case-insensitive natural order ("file2" before "file10"). Symlinks are
// left out.
func (o *Ops) ListDirectory(dir string) ([]Entry, error) {
	if dir == "" {
		return nil, ErrDirectoryRequired
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.Type()&os.ModeSymlink != 0 {
			continue
		}
		kind := TypeFile
		if de.IsDir() {
			kind = TypeDirectory
		}
		entries = append(entries, Entry{
			Name: de.Name(),
			Path: filepath.Join(dir, de.Name()),
			Type: kind,
		})
	}

	sortEntries(entries)
	return entries, nil
}

// sortEntries orders directories before files, then by name.
// A collator is not safe for concurrent use, so each call builds its own.
func sortEntries(entries []Entry) {
	col := collate.New(language.Und, collate.IgnoreCase, collate.Numeric)
	var buf collate.Buffer
	keys := make(map[string][]byte, len(entries))
	for _, e := range entries {
		keys[e.Name] = append([]byte(nil), col.KeyFromString(&buf, e.Name)...)
		buf.Reset()
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if (entries[i].Type == TypeDirectory) != (entries[j].Type == TypeDirectory) {
			return entries[i].Type == TypeDirectory
		}
		if c := bytes.Compare(keys[entries[i].Name], keys[entries[j].Name]); c != 0 {
			return c < 0
		}
		return entries[i].Name < entries[j].Name
	})
}

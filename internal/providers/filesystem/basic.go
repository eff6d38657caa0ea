package filesystem

import (
	"os"
	"strings"
)

// ReadFile returns the file as UTF-8 text. Invalid sequences become U+FFFD.
func (o *Ops) ReadFile(path string) (string, error) {
	if path == "" {
		return "", ErrFileRequired
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// WriteFile replaces the file with content, creating it if needed
func (o *Ops) WriteFile(path, content string) error {
	if path == "" {
		return ErrSavePathRequired
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

package extension

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Manifest defaults
const (
	DefaultVersion         = "0.0.1"
	InvalidManifestVersion = "0.0.0"
)

var (
	disallowedIDRun = regexp.MustCompile(`[^a-z0-9._-]+`)
	nameSeparators  = regexp.MustCompile(`[-_.]+`)
	titleCaser      = cases.Title(language.Und, cases.NoLower)
)

// Manifest is the on-disk extension.json written by the baseplate generator
type Manifest struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Version     string        `json:"version"`
	Description string        `json:"description"`
	Main        string        `json:"main"`
	Commands    []CommandInfo `json:"commands"`
}

// CommandInfo is a command as shown to the UI
type CommandInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SanitizeID lowercases raw and collapses every run of characters outside
// [a-z0-9._-] into one hyphen, trimming hyphens at both ends. The result may be empty.
func SanitizeID(raw string) string {
	id := strings.ToLower(strings.TrimSpace(raw))
	id = disallowedIDRun.ReplaceAllString(id, "-")
	return strings.Trim(id, "-")
}

// FormatName title-cases the hyphen, underscore or dot separated segments of id
func FormatName(id string) string {
	var words []string
	for _, segment := range nameSeparators.Split(id, -1) {
		if segment != "" {
			words = append(words, titleCaser.String(segment))
		}
	}
	if len(words) == 0 {
		return id
	}
	return strings.Join(words, " ")
}

// rawManifest is a leniently decoded extension.json
type rawManifest map[string]interface{}

func parseManifest(data []byte) (rawManifest, error) {
	var value interface{}
	if err := sonic.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	obj, ok := value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("manifest must be a JSON object")
	}
	return rawManifest(obj), nil
}

// text returns the trimmed string at key, or "" when absent or not a string
func (m rawManifest) text(key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

// commands coerces the declared command list. Entries may be a bare id
// string or an {id, title} object; anything else is skipped.
func (m rawManifest) commands() []CommandInfo {
	list, _ := m["commands"].([]interface{})
	out := make([]CommandInfo, 0, len(list))
	for _, entry := range list {
		if cmd, ok := coerceCommand(entry); ok {
			out = append(out, cmd)
		}
	}
	return out
}

func coerceCommand(entry interface{}) (CommandInfo, bool) {
	switch v := entry.(type) {
	case string:
		id := strings.TrimSpace(v)
		if id == "" {
			return CommandInfo{}, false
		}
		return CommandInfo{ID: id, Title: id}, true
	case map[string]interface{}:
		id, _ := v["id"].(string)
		id = strings.TrimSpace(id)
		if id == "" {
			return CommandInfo{}, false
		}
		title, _ := v["title"].(string)
		title = strings.TrimSpace(title)
		if title == "" {
			title = id
		}
		return CommandInfo{ID: id, Title: title}, true
	default:
		return CommandInfo{}, false
	}
}

package extension

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/thecatthatflies/melius/internal/shared/paths"
)

var (
	// ErrWorkspaceRequired is returned when no workspace path is given
	ErrWorkspaceRequired = errors.New("A workspace path is required.")

	// ErrAlreadyExists is returned when the extension directory is taken
	ErrAlreadyExists = errors.New("extension already exists")
)

// ExistsError reports a baseplate id that is already taken
type ExistsError struct {
	ExtensionID string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("Extension %q already exists.", e.ExtensionID)
}

// Is matches ErrAlreadyExists
func (e *ExistsError) Is(target error) bool { return target == ErrAlreadyExists }

// Baseplate describes a freshly scaffolded extension
type Baseplate struct {
	ExtensionID   string   `json:"extensionId"`
	ExtensionPath string   `json:"extensionPath"`
	Manifest      Manifest `json:"manifest"`
}

const mainTemplate = `module.exports.activate = (api) => {
  api.log("Activated");

  // Register commands with api.registerCommand("your.command", handler)
  // and declare them in extension.json.
};

module.exports.deactivate = () => {
  // Clean up resources here if needed.
};
`

const readmeTemplate = "# %s\n" +
	"\n" +
	"Generated by Melius extension baseplate.\n" +
	"\n" +
	"## Files\n" +
	"- `extension.json`: extension manifest\n" +
	"- `main.js`: extension activation script\n" +
	"\n" +
	"## Next Steps\n" +
	"1. Add command metadata in `extension.json`\n" +
	"2. Register command handlers in `main.js`\n"

// CreateBaseplate scaffolds <workspace>/.melius/extensions/<id> with a
// manifest, a stub main.js and a README. An id that sanitizes to nothing
// is replaced by a time-based one.
func CreateBaseplate(workspacePath, requestedID string) (Baseplate, error) {
	return createBaseplate(workspacePath, requestedID, time.Now())
}

func createBaseplate(workspacePath, requestedID string, now time.Time) (Baseplate, error) {
	if workspacePath == "" {
		return Baseplate{}, ErrWorkspaceRequired
	}

	extensionID := SanitizeID(requestedID)
	if extensionID == "" {
		extensionID = "extension-" + strconv.FormatInt(now.UnixMilli(), 36)
	}

	root := paths.ExtensionsRoot(workspacePath)
	dir := filepath.Join(root, extensionID)

	if err := os.MkdirAll(root, 0o755); err != nil {
		return Baseplate{}, fmt.Errorf("create extensions directory: %w", err)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return Baseplate{}, &ExistsError{ExtensionID: extensionID}
		}
		return Baseplate{}, fmt.Errorf("create extension directory: %w", err)
	}

	name := FormatName(extensionID)
	manifest := Manifest{
		ID:          extensionID,
		Name:        name,
		Version:     DefaultVersion,
		Description: name + " extension for Melius.",
		Main:        paths.DefaultMain,
		Commands:    []CommandInfo{},
	}

	encoded, err := sonic.ConfigDefault.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Baseplate{}, fmt.Errorf("encode manifest: %w", err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{paths.ManifestFile, append(encoded, '\n')},
		{paths.DefaultMain, []byte(mainTemplate)},
		{paths.ReadmeFile, []byte(fmt.Sprintf(readmeTemplate, name))},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, 0o644); err != nil {
			return Baseplate{}, fmt.Errorf("write %s: %w", f.name, err)
		}
	}

	return Baseplate{ExtensionID: extensionID, ExtensionPath: dir, Manifest: manifest}, nil
}

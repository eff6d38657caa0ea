package extension

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thecatthatflies/melius/internal/shared/id"
	"github.com/thecatthatflies/melius/internal/shared/paths"
)

func TestCreateBaseplateFiles(t *testing.T) {
	workspace := t.TempDir()

	created, err := CreateBaseplate(workspace, "  Hello World ")
	require.NoError(t, err)

	assert.Equal(t, "hello-world", created.ExtensionID)
	assert.Equal(t, paths.ExtensionDir(workspace, "hello-world"), created.ExtensionPath)
	assert.Equal(t, Manifest{
		ID:          "hello-world",
		Name:        "Hello World",
		Version:     "0.0.1",
		Description: "Hello World extension for Melius.",
		Main:        "main.js",
		Commands:    []CommandInfo{},
	}, created.Manifest)

	manifest, err := os.ReadFile(filepath.Join(created.ExtensionPath, paths.ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, `{
  "id": "hello-world",
  "name": "Hello World",
  "version": "0.0.1",
  "description": "Hello World extension for Melius.",
  "main": "main.js",
  "commands": []
}
`, string(manifest))

	main, err := os.ReadFile(filepath.Join(created.ExtensionPath, paths.DefaultMain))
	require.NoError(t, err)
	assert.Equal(t, mainTemplate, string(main))
	assert.True(t, strings.HasPrefix(string(main), "module.exports.activate = (api) => {\n  api.log(\"Activated\");\n"))

	readme, err := os.ReadFile(filepath.Join(created.ExtensionPath, paths.ReadmeFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(readme), "# Hello World\n\nGenerated by Melius extension baseplate.\n"))
	assert.True(t, strings.HasSuffix(string(readme), "2. Register command handlers in `main.js`\n"))
}

func TestCreateBaseplateErrors(t *testing.T) {
	_, err := CreateBaseplate("", "x")
	assert.ErrorIs(t, err, ErrWorkspaceRequired)

	workspace := t.TempDir()
	_, err = CreateBaseplate(workspace, "dup")
	require.NoError(t, err)

	_, err = CreateBaseplate(workspace, "DUP")
	require.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, `Extension "dup" already exists.`, err.Error())
}

func TestCreateBaseplateFallbackID(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	created, err := createBaseplate(t.TempDir(), "!!!", now)
	require.NoError(t, err)
	assert.Equal(t, "extension-loyw3v28", created.ExtensionID)
	assert.Equal(t, "Extension Loyw3v28", created.Manifest.Name)
}

func TestBaseplateActivates(t *testing.T) {
	rt, logs := newScriptRuntime(t, DefaultConfig())
	workspace := t.TempDir()

	_, err := CreateBaseplate(workspace, "starter")
	require.NoError(t, err)

	snap, err := rt.Load(context.Background(), id.NewClientID(), workspace)
	require.NoError(t, err)
	require.Len(t, snap.Extensions, 1)
	assert.Equal(t, StatusLoaded, snap.Extensions[0].Status, snap.Extensions[0].Error)
	assert.Equal(t, "Starter", snap.Extensions[0].Name)
	assert.Contains(t, messages(logs), "Activated")
}

package extension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"Hello World", "hello-world"},
		{"  --My_Ext.v2!!  ", "my_ext.v2"},
		{"a///b", "a-b"},
		{"日本", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeID(tt.in))
		})
	}
}

func TestFormatName(t *testing.T) {
	assert.Equal(t, "Hello World", FormatName("hello-world"))
	assert.Equal(t, "My Ext V2", FormatName("my_ext.v2"))
	assert.Equal(t, "GitHub Tools", FormatName("gitHub--tools"))
	assert.Equal(t, "---", FormatName("---"))
}

func TestParseManifestCommands(t *testing.T) {
	m, err := parseManifest([]byte(`{
		"commands": [
			"plain.id",
			{"id": "with.title", "title": "  Nice Title "},
			{"id": "no.title"},
			{"title": "missing id"},
			"   ",
			42
		]
	}`))
	require.NoError(t, err)

	assert.Equal(t, []CommandInfo{
		{ID: "plain.id", Title: "plain.id"},
		{ID: "with.title", Title: "Nice Title"},
		{ID: "no.title", Title: "no.title"},
	}, m.commands())
}

func TestParseManifestRejectsNonObjects(t *testing.T) {
	_, err := parseManifest([]byte(`[1, 2]`))
	assert.Error(t, err)

	_, err = parseManifest([]byte(`{not json`))
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadYAML_MixedEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.yaml")
	doc := `
keys:
  - sk-plain-1
  - key: sk-weighted
    weight: 2.5
    provider: openai
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	inputs, err := LoadYAML(path)
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	require.Equal(t, "sk-plain-1", inputs[0].Key)
	require.Equal(t, 0.0, inputs[0].Weight)
	require.Equal(t, "sk-weighted", inputs[1].Key)
	require.Equal(t, 2.5, inputs[1].Weight)
	require.Equal(t, "openai", inputs[1].Provider)
}

func TestLoadYAML_MissingFile(t *testing.T) {
	_, err := LoadYAML("/nonexistent/path.yaml")
	require.Error(t, err)
}

// Package config loads a key roster from YAML as a convenience for callers
// who keep their key list in a file rather than building it in code. Kept
// separate from manager construction so pulling in gopkg.in/yaml.v3 is
// opt-in.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/keyrotate/keyrotate/keystate"
)

// keyDocument is the on-disk shape: a flat list of keys, each either a
// bare string or a record with an optional weight/provider override.
type keyDocument struct {
	Keys []keyEntry `yaml:"keys"`
}

type keyEntry struct {
	Key      string  `yaml:"key"`
	Weight   float64 `yaml:"weight"`
	Provider string  `yaml:"provider"`
}

// UnmarshalYAML accepts either a bare scalar ("- sk-abc123") or a mapping
// ("- key: sk-abc123\n  weight: 2").
func (e *keyEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Key = node.Value
		return nil
	}
	type plain keyEntry
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = keyEntry(p)
	return nil
}

// LoadYAML reads a key roster file and returns it as keystate.Input
// records ready to pass to keystate.NewRegistry. A bare-string YAML list
// entry (`- sk-abc123`) unmarshals with only Key set; a mapping entry
// (`- key: sk-abc123\n  weight: 2\n  provider: openai`) carries the
// overrides through.
func LoadYAML(path string) ([]keystate.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc keyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	out := make([]keystate.Input, 0, len(doc.Keys))
	for _, e := range doc.Keys {
		out = append(out, keystate.Input{Key: e.Key, Weight: e.Weight, Provider: e.Provider})
	}
	return out, nil
}

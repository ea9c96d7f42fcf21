package signature

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileSignature is one entry of a signature file:
//
//	- name: React
//	  patterns: ["(?i)react"]
//
// JSON arrays of the same shape parse as well, JSON being valid YAML.
type fileSignature struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

// Parse decodes an ordered signature list.
func Parse(data []byte) (*Table, error) {
	var entries []fileSignature
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode signatures: %w", err)
	}
	sigs := make([]Signature, 0, len(entries))
	for i, entry := range entries {
		sig, err := Compile(entry.Name, entry.Patterns...)
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
		sigs = append(sigs, sig)
	}
	return NewTable(sigs...)
}

// Load reads and parses a signature file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signatures: %w", err)
	}
	table, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

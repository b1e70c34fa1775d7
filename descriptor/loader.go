package descriptor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// file is the on-disk shape of the descriptor configuration.
type file struct {
	Entities []*Entity `yaml:"entities"`
}

// LoadFile reads a YAML descriptor file and builds a validated registry.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor file: %w", err)
	}
	return Load(data)
}

// Load parses YAML descriptor data and builds a validated registry.
func Load(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse descriptor file: %w", err)
	}
	if len(f.Entities) == 0 {
		return nil, fmt.Errorf("descriptor file declares no entities")
	}
	return NewRegistry(f.Entities)
}

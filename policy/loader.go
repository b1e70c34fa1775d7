package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fleetrent/admin-gateway/descriptor"
)

// file is the on-disk shape of the policy configuration.
type file struct {
	Policies []Rule `yaml:"policies"`
}

// LoadFile reads a YAML policy file and builds a validated registry. Rules
// referencing entities absent from the descriptor registry are a boot error.
func LoadFile(path string, entities *descriptor.Registry) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Load(data, entities)
}

// Load parses YAML policy data and builds a validated registry.
func Load(data []byte, entities *descriptor.Registry) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	for _, rule := range f.Policies {
		if _, ok := entities.Get(rule.Entity); !ok {
			return nil, fmt.Errorf("policy rule for (%s, %s, %s) references unknown entity", rule.Service, rule.Entity, rule.Operation)
		}
	}

	return NewRegistry(f.Policies)
}

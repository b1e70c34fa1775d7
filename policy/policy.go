// Package policy holds the boot-loaded permission rules. A rule is keyed by
// (service, entity, operation); the registry is immutable after Load and safe
// for unsynchronized concurrent reads. The absence of a rule is a distinct
// observable state (ErrNotFound); the access engine decides the default.
package policy

import (
	"errors"
	"fmt"
)

// Operation is one of the four CRUD verbs. The set is closed and validated
// at load time.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpRead, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Rule is the permission predicate for one (service, entity, operation)
// tuple.
type Rule struct {
	Service   string    `yaml:"service"`
	Entity    string    `yaml:"entity"`
	Operation Operation `yaml:"operation"`
	// Roles the principal must hold one of. Empty means any authenticated
	// principal.
	Roles []string `yaml:"roles"`
	// Tenants the principal must belong to. Empty means any tenant.
	Tenants []string `yaml:"tenants"`
	// RequireOwner demands that the target instance is owned by the
	// principal (checked via the storage adapter's ownership lookup).
	RequireOwner bool `yaml:"require_owner"`
}

// ErrNotFound is returned by Resolve when no rule is registered for a tuple.
var ErrNotFound = errors.New("no policy registered")

type ruleKey struct {
	service   string
	entity    string
	operation Operation
}

// Registry is the immutable rule table.
type Registry struct {
	rules map[ruleKey]Rule
}

// NewRegistry builds a registry from the given rules. At most one rule may
// apply per (service, entity, operation) tuple; a duplicate is a boot error.
func NewRegistry(rules []Rule) (*Registry, error) {
	r := &Registry{rules: make(map[ruleKey]Rule, len(rules))}
	for _, rule := range rules {
		if err := r.register(rule); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(rule Rule) error {
	if rule.Service == "" || rule.Entity == "" {
		return fmt.Errorf("policy rule needs service and entity")
	}
	if !rule.Operation.Valid() {
		return fmt.Errorf("policy rule for %s/%s has unknown operation %q", rule.Service, rule.Entity, rule.Operation)
	}
	key := ruleKey{rule.Service, rule.Entity, rule.Operation}
	if _, dup := r.rules[key]; dup {
		return fmt.Errorf("duplicate policy rule for (%s, %s, %s)", rule.Service, rule.Entity, rule.Operation)
	}
	r.rules[key] = rule
	return nil
}

// Resolve returns the rule for a tuple, or ErrNotFound.
func (r *Registry) Resolve(service, entity string, operation Operation) (Rule, error) {
	rule, ok := r.rules[ruleKey{service, entity, operation}]
	if !ok {
		return Rule{}, ErrNotFound
	}
	return rule, nil
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	return len(r.rules)
}

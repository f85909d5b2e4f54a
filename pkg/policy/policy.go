// Package policy implements the Policy Registry (C3): a process-wide,
// read-only-after-init map from policy name to an ordered list of step
// names. It is the registry.Registry idiom (RWMutex guarding a map,
// narrow typed errors) retargeted at ordered string slices instead of
// manifest bundles, since a policy has no rollout/canary concept.
package policy

import (
	"errors"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrPolicyNotFound is returned by Get for an unregistered name.
var ErrPolicyNotFound = errors.New("policy not found")

// ErrDuplicateStep is returned by Register when a step name appears
// more than once in the ordered list.
var ErrDuplicateStep = errors.New("duplicate step name in policy")

// DefaultPolicyName is the built-in policy every Registry is seeded
// with (§4.3).
const DefaultPolicyName = "default"

// DefaultSteps is the step order used when no policy_profile is given.
var DefaultSteps = []string{
	"normalize",
	"decompose",
	"acquire_evidence",
	"compute",
	"verify",
	"synthesize",
	"audit",
}

// Registry is a thread-safe, named collection of ordered step lists.
// Writes are expected only during process startup (Register / LoadYAML);
// reads happen concurrently from request-handling goroutines.
type Registry struct {
	mu       sync.RWMutex
	policies map[string][]string
}

// New returns a Registry pre-seeded with DefaultPolicyName.
func New() *Registry {
	r := &Registry{policies: make(map[string][]string)}
	// Safe to ignore: DefaultSteps has no duplicates.
	_ = r.Register(DefaultPolicyName, DefaultSteps)
	return r
}

// Register adds or replaces the named policy's step order. Step names
// within a single policy must be unique (§4.3, §9): a policy cannot
// visit the same step twice, so there is never an ambiguous record to
// chain against in the trace.
func (r *Registry) Register(name string, steps []string) error {
	if err := validateUnique(steps); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]string, len(steps))
	copy(cp, steps)
	r.policies[name] = cp
	return nil
}

// Get returns the ordered step list for name.
func (r *Registry) Get(name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	steps, ok := r.policies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPolicyNotFound, name)
	}
	cp := make([]string, len(steps))
	copy(cp, steps)
	return cp, nil
}

// Names returns the registered policy names, unordered.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.policies))
	for n := range r.policies {
		names = append(names, n)
	}
	return names
}

// yamlPolicyFile is the optional on-disk seeding format: a flat map of
// policy name to ordered step list, e.g.
//
//	default: [normalize, decompose, acquire_evidence, compute, verify, synthesize, audit]
//	fast:    [normalize, compute, audit]
type yamlPolicyFile map[string][]string

// LoadYAML registers every policy defined in raw, a YAML document in
// the yamlPolicyFile shape. It is additive: existing policies not
// named in raw are left untouched, and policies named in raw overwrite
// any existing registration of the same name (including "default").
func (r *Registry) LoadYAML(raw []byte) error {
	var doc yamlPolicyFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("policy: parse yaml: %w", err)
	}
	for name, steps := range doc {
		if err := r.Register(name, steps); err != nil {
			return fmt.Errorf("policy %q: %w", name, err)
		}
	}
	return nil
}

func validateUnique(steps []string) error {
	seen := make(map[string]struct{}, len(steps))
	for _, s := range steps {
		if _, ok := seen[s]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateStep, s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

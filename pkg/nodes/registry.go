package nodes

import (
	"fmt"
	"sort"

	"github.com/sandboxws/rankdsl/engine/pkg/plan"
)

// Registry maps op names to their factory and NodeSpec. It is populated at
// startup and immutable afterwards; tests receive it as an explicit
// parameter.
type Registry struct {
	factories map[string]Factory
	specs     map[string]*NodeSpec
}

// NewRegistry creates an empty operator registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		specs:     make(map[string]*NodeSpec),
	}
}

// Register installs an op. Registering the same op twice panics: it is a
// wiring bug, not a runtime condition.
func (r *Registry) Register(spec *NodeSpec, factory Factory) {
	if _, ok := r.factories[spec.Op]; ok {
		panic(fmt.Sprintf("op %q registered twice", spec.Op))
	}
	r.factories[spec.Op] = factory
	r.specs[spec.Op] = spec
}

// HasOp reports whether an op is registered.
func (r *Registry) HasOp(op string) bool {
	_, ok := r.factories[op]
	return ok
}

// Create instantiates a runner for the op.
func (r *Registry) Create(op string) (Runner, error) {
	factory, ok := r.factories[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", plan.ErrUnknownOp, op)
	}
	return factory(), nil
}

// Spec returns the NodeSpec for an op.
func (r *Registry) Spec(op string) (*NodeSpec, bool) {
	s, ok := r.specs[op]
	return s, ok
}

// Ops returns all registered op names, sorted.
func (r *Registry) Ops() []string {
	out := make([]string, 0, len(r.factories))
	for op := range r.factories {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// Resolve implements plan.OpResolver.
func (r *Registry) Resolve(op string) (plan.OpInfo, bool) {
	spec, ok := r.specs[op]
	if !ok {
		return plan.OpInfo{}, false
	}
	return plan.OpInfo{
		NamespacePath: spec.NamespacePath,
		Stable:        spec.Stability == StabilityStable,
	}, true
}

package plan

import (
	"errors"
	"fmt"

	"github.com/sandboxws/rankdsl/engine/pkg/keys"
	"github.com/sandboxws/rankdsl/engine/pkg/trace"
)

var (
	ErrDuplicateNodeID    = errors.New("duplicate node id")
	ErrGraphCycle         = errors.New("plan contains a cycle")
	ErrUnknownOp          = errors.New("unknown op")
	ErrExperimentalInProd = errors.New("experimental op in prod plan")
	ErrPlanTooComplex     = errors.New("plan too complex")
	ErrInvalidTraceKey    = errors.New("invalid trace_key")
)

// OpInfo is the compiler's view of a registered operator.
type OpInfo struct {
	NamespacePath string
	Stable        bool
}

// OpResolver answers whether an op exists and how stable it is. The operator
// registry implements this.
type OpResolver interface {
	Resolve(op string) (OpInfo, bool)
}

// CompiledPlan is a validated plan with its execution order and complexity
// measurements. It owns all of its data; nothing borrows from the input
// JSON.
type CompiledPlan struct {
	Plan       *Plan
	TopoOrder  []string
	Complexity Metrics
}

// Compiler validates and prepares plans for execution.
type Compiler struct {
	registry *keys.Registry
	ops      OpResolver
	tracer   *trace.Tracer

	budget          Budget
	complexityCheck bool
}

// NewCompiler creates a compiler with the default complexity budget.
func NewCompiler(registry *keys.Registry, ops OpResolver) *Compiler {
	return &Compiler{
		registry:        registry,
		ops:             ops,
		budget:          DefaultBudget(),
		complexityCheck: true,
	}
}

// SetBudget overrides the complexity budget.
func (c *Compiler) SetBudget(b Budget) { c.budget = b }

// SetTracer routes soft-limit warnings to a tracer.
func (c *Compiler) SetTracer(t *trace.Tracer) { c.tracer = t }

// DisableComplexityCheck turns off budget enforcement. Metrics are still
// computed and stored on the compiled plan.
func (c *Compiler) DisableComplexityCheck() { c.complexityCheck = false }

// Compile runs the validation pipeline and stops at the first failure:
// unique ids and trace keys, topological sort, known ops, environment
// gating, complexity metrics, budget enforcement.
func (c *Compiler) Compile(p *Plan) (*CompiledPlan, error) {
	if err := c.validateNodes(p); err != nil {
		return nil, err
	}

	topo, err := topoSort(p)
	if err != nil {
		return nil, err
	}

	if err := c.validateOps(p); err != nil {
		return nil, err
	}

	if err := c.validateEnv(p); err != nil {
		return nil, err
	}

	metrics := ComputeMetrics(p, 5)

	if c.complexityCheck {
		check := CheckBudget(metrics, c.budget)
		for _, w := range check.Warnings {
			c.tracer.CompileWarning(p.Name, w)
		}
		if !check.Passed {
			return nil, fmt.Errorf("%w\n%s", ErrPlanTooComplex, check.Diagnostics)
		}
	}

	return &CompiledPlan{Plan: p, TopoOrder: topo, Complexity: metrics}, nil
}

func (c *Compiler) validateNodes(p *Plan) error {
	seen := make(map[string]bool, len(p.Nodes))
	for _, n := range p.Nodes {
		if seen[n.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateNodeID, n.ID)
		}
		seen[n.ID] = true
		if n.TraceKey != "" {
			if err := ValidateTraceKey(n.TraceKey); err != nil {
				return fmt.Errorf("node %s: %w", n.ID, err)
			}
		}
	}
	return nil
}

// topoSort runs Kahn's algorithm over the inputs edges. Inputs referencing
// unknown nodes keep their dependents unreachable, which surfaces as a
// cycle.
func topoSort(p *Plan) ([]string, error) {
	adj := make(map[string][]string)
	inDegree := make(map[string]int, len(p.Nodes))
	for _, n := range p.Nodes {
		inDegree[n.ID] = len(n.Inputs)
		for _, input := range n.Inputs {
			adj[input] = append(adj[input], n.ID)
		}
	}

	var queue []string
	for _, n := range p.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order := make([]string, 0, len(p.Nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)
		for _, dep := range adj[current] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(p.Nodes) {
		return nil, ErrGraphCycle
	}
	return order, nil
}

func (c *Compiler) validateOps(p *Plan) error {
	for _, n := range p.Nodes {
		if _, ok := c.ops.Resolve(n.Op); !ok {
			return fmt.Errorf("%w: %s (node %s)", ErrUnknownOp, n.Op, n.ID)
		}
	}
	return nil
}

func (c *Compiler) validateEnv(p *Plan) error {
	if p.Meta.Env != "prod" {
		return nil
	}
	for _, n := range p.Nodes {
		info, _ := c.ops.Resolve(n.Op)
		if !info.Stable {
			return fmt.Errorf("%w: node %s uses %s (namespace %s)",
				ErrExperimentalInProd, n.ID, n.Op, info.NamespacePath)
		}
	}
	return nil
}

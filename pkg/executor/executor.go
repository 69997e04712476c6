// Package executor walks a compiled plan in topological order, one node at
// a time, feeding each node its predecessors' outputs and recording tracing
// spans. All per-invocation state lives on the call's stack; concurrent
// executions over the same registries are safe.
package executor

import (
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/sandboxws/rankdsl/engine/pkg/batch"
	"github.com/sandboxws/rankdsl/engine/pkg/keys"
	"github.com/sandboxws/rankdsl/engine/pkg/metrics"
	"github.com/sandboxws/rankdsl/engine/pkg/nodes"
	"github.com/sandboxws/rankdsl/engine/pkg/plan"
	"github.com/sandboxws/rankdsl/engine/pkg/trace"
)

// Executor runs compiled plans.
type Executor struct {
	registry *keys.Registry
	ops      *nodes.Registry
	policy   nodes.GuestPolicy
	tracer   *trace.Tracer
	logger   *slog.Logger
}

// New creates an executor over the given registries.
func New(registry *keys.Registry, ops *nodes.Registry) *Executor {
	return &Executor{
		registry: registry,
		ops:      ops,
		logger:   slog.Default(),
	}
}

// SetPolicy installs the guest-module IO policy (default deny when unset).
func (e *Executor) SetPolicy(p nodes.GuestPolicy) { e.policy = p }

// SetTracer routes node spans to a tracer.
func (e *Executor) SetTracer(t *trace.Tracer) { e.tracer = t }

// Execute runs the plan's nodes in topological order and returns the last
// node's output. Empty plans return an empty batch. A node failure stops
// execution; its output is discarded and downstream nodes do not run.
func (e *Executor) Execute(cp *plan.CompiledPlan) (*batch.ColumnBatch, error) {
	invocationID := uuid.NewString()
	logger := e.logger.With("plan", cp.Plan.Name, "invocation", invocationID)

	nodeByID := make(map[string]*plan.Node, len(cp.Plan.Nodes))
	for i := range cp.Plan.Nodes {
		nodeByID[cp.Plan.Nodes[i].ID] = &cp.Plan.Nodes[i]
	}

	outputs := make(map[string]*batch.ColumnBatch, len(cp.TopoOrder))
	for _, nodeID := range cp.TopoOrder {
		spec := nodeByID[nodeID]
		if spec == nil {
			return nil, fmt.Errorf("node not found: %s", nodeID)
		}

		runner, err := e.ops.Create(spec.Op)
		if err != nil {
			return nil, err
		}

		input, err := gatherInput(spec, outputs)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nodeID, err)
		}

		tc := guestTraceContext(spec)
		e.tracer.NodeStart(cp.Plan.Name, nodeID, spec.Op, spec.TraceKey, tc)

		ctx := &nodes.ExecContext{
			Registry:     e.registry,
			Policy:       e.policy,
			Tracer:       e.tracer,
			Logger:       logger.With("node", nodeID, "op", spec.Op),
			PlanName:     cp.Plan.Name,
			NodeID:       nodeID,
			TraceKey:     spec.TraceKey,
			InvocationID: invocationID,
		}

		start := time.Now()
		output, runErr := runner.Run(ctx, input, spec.Params)
		duration := time.Since(start)

		errStr := ""
		if runErr != nil {
			errStr = runErr.Error()
		}
		e.tracer.NodeEnd(cp.Plan.Name, nodeID, spec.Op, spec.TraceKey, tc,
			float64(duration)/float64(time.Millisecond),
			input.RowCount(), rowCountOf(output), errStr)

		metrics.NodeDuration.WithLabelValues(cp.Plan.Name, nodeID, spec.Op).Observe(duration.Seconds())
		metrics.NodeRowsIn.WithLabelValues(cp.Plan.Name, nodeID, spec.Op).Add(float64(input.RowCount()))
		if runErr != nil {
			metrics.NodeErrors.WithLabelValues(cp.Plan.Name, nodeID, spec.Op).Inc()
			return nil, fmt.Errorf("node %s (%s): %w", nodeID, spec.Op, runErr)
		}
		metrics.NodeRowsOut.WithLabelValues(cp.Plan.Name, nodeID, spec.Op).Add(float64(output.RowCount()))

		outputs[nodeID] = output
	}

	if len(cp.TopoOrder) == 0 {
		return batch.New(0), nil
	}
	return outputs[cp.TopoOrder[len(cp.TopoOrder)-1]], nil
}

// gatherInput assembles a node's input batch: none yields an empty batch,
// one passes the predecessor's output through, several concatenate
// row-wise.
func gatherInput(spec *plan.Node, outputs map[string]*batch.ColumnBatch) (*batch.ColumnBatch, error) {
	switch len(spec.Inputs) {
	case 0:
		return batch.New(0), nil
	case 1:
		in, ok := outputs[spec.Inputs[0]]
		if !ok {
			return nil, fmt.Errorf("input %s has no output", spec.Inputs[0])
		}
		return in, nil
	default:
		ins := make([]*batch.ColumnBatch, 0, len(spec.Inputs))
		for _, id := range spec.Inputs {
			in, ok := outputs[id]
			if !ok {
				return nil, fmt.Errorf("input %s has no output", id)
			}
			ins = append(ins, in)
		}
		return batch.Concat(ins)
	}
}

// guestTraceContext attributes guest-module spans with the module file and
// its stem-derived trace prefix.
func guestTraceContext(spec *plan.Node) *trace.Context {
	if spec.Op != "star:module" || len(spec.Params) == 0 {
		return nil
	}
	var p struct {
		Module string `json:"module"`
	}
	if err := json.Unmarshal(spec.Params, &p); err != nil || p.Module == "" {
		return nil
	}
	return &trace.Context{
		TracePrefix: trace.DeriveTracePrefix(p.Module),
		ModuleFile:  p.Module,
	}
}

func rowCountOf(b *batch.ColumnBatch) int {
	if b == nil {
		return 0
	}
	return b.RowCount()
}

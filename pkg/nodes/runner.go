// Package nodes defines the operator contract: the Runner interface, the
// NodeSpec metadata describing each registered op, and the operator
// registry keyed by op name.
package nodes

import (
	"log/slog"

	json "github.com/goccy/go-json"

	"github.com/sandboxws/rankdsl/engine/pkg/batch"
	"github.com/sandboxws/rankdsl/engine/pkg/keys"
	"github.com/sandboxws/rankdsl/engine/pkg/trace"
)

// GuestPolicy gates guest-module IO. Implemented by the star package's
// policy file loader; nil means default-deny.
type GuestPolicy interface {
	// AllowIoCsvRead reports whether the (name, version) module pair may
	// read CSV assets.
	AllowIoCsvRead(name, version string) bool

	// CSVAssetsDir is the directory CSV resources resolve under.
	CSVAssetsDir() string
}

// ExecContext is the per-invocation environment handed to every runner.
// All fields are read-only during a node's execution.
type ExecContext struct {
	Registry *keys.Registry
	Policy   GuestPolicy
	Tracer   *trace.Tracer
	Logger   *slog.Logger

	// PlanName and NodeID identify the running node for tracing.
	PlanName string
	NodeID   string

	// TraceKey is the node's trace key from the plan, if any.
	TraceKey string

	// InvocationID is unique per plan execution.
	InvocationID string
}

// Log returns the context logger, falling back to the process default.
func (c *ExecContext) Log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Runner executes one node over an input batch. Runners never mutate their
// input; the output becomes read-only as soon as Run returns.
type Runner interface {
	Run(ctx *ExecContext, input *batch.ColumnBatch, params json.RawMessage) (*batch.ColumnBatch, error)
}

// Factory creates a fresh runner per node execution.
type Factory func() Runner

package star

import (
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/sandboxws/rankdsl/engine/pkg/batch"
	"github.com/sandboxws/rankdsl/engine/pkg/keys"
	"github.com/sandboxws/rankdsl/engine/pkg/metrics"
	"github.com/sandboxws/rankdsl/engine/pkg/nodes"
)

// maxExecutionSteps caps one module invocation. Starlark counts abstract
// execution steps at interpreter back-edges, so cancellation is cooperative.
const maxExecutionSteps = 1_000_000

// Runner executes one Starlark guest module per node invocation. Every
// invocation gets a fresh thread and a fresh set of globals; nothing leaks
// between nodes. The interpreter environment contains only what the host
// installs: Keys/KeyInfo constants, ctx.batch, and (when capability and
// policy agree) ctx.io.
type Runner struct{}

type moduleParams struct {
	Module string `json:"module"`
}

func (Runner) Run(ctx *nodes.ExecContext, input *batch.ColumnBatch, params json.RawMessage) (*batch.ColumnBatch, error) {
	var p moduleParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
	}
	if p.Module == "" {
		return nil, fmt.Errorf("%w: node %s has no 'module' param", ErrMissingModule, ctx.NodeID)
	}

	src, err := os.ReadFile(p.Module)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingModule, p.Module, err)
	}

	if input.RowCount() == 0 {
		return input, nil
	}

	thread := &starlark.Thread{Name: "star:" + ctx.InvocationID + ":" + ctx.NodeID}
	thread.SetMaxExecutionSteps(maxExecutionSteps)

	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, p.Module, src, predeclared(ctx.Registry))
	if err != nil {
		if isStepLimit(err) {
			return nil, fmt.Errorf("%w: %s", ErrInstructionLimit, p.Module)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrModuleLoad, p.Module, err)
	}

	metaVal, ok := globals["meta"]
	if !ok {
		return nil, fmt.Errorf("%w: %s does not export meta", ErrModuleLoad, p.Module)
	}
	meta, err := parseMeta(metaVal)
	if err != nil {
		return nil, err
	}

	runBatch, ok := globals["run_batch"].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not export run_batch", ErrModuleLoad, p.Module)
	}

	builder := batch.NewBuilder(input)
	bc := NewBatchContext(input, builder, ctx.Registry, meta.Writes, meta.Budget)
	host := &hostState{}
	bv := &batchValue{bc: bc, host: host}

	ctxFields := starlark.StringDict{"batch": bv}
	if meta.Capabilities.IoCsvRead && ctx.Policy != nil && ctx.Policy.AllowIoCsvRead(meta.Name, meta.Version) {
		ctxFields["io"] = &ioValue{
			io:   &ioContext{assetsDir: ctx.Policy.CSVAssetsDir(), budget: meta.Budget},
			host: host,
		}
	}
	ctxVal := starlarkstruct.FromStringDict(starlarkstruct.Default, ctxFields)

	paramsVal, err := paramsToStarlark(params)
	if err != nil {
		return nil, err
	}

	// rows is a reserved placeholder for row-level APIs.
	rows := starlark.NewList(nil)

	if _, err := starlark.Call(thread, runBatch, starlark.Tuple{rows, ctxVal, paramsVal}, nil); err != nil {
		if isStepLimit(err) {
			return nil, fmt.Errorf("%w: %s", ErrInstructionLimit, p.Module)
		}
		if host.err != nil {
			return nil, host.err
		}
		// ctx.io exists only when capability and policy agree; a module
		// reaching for it otherwise trips the struct attribute lookup.
		if strings.Contains(err.Error(), "no .io attribute") {
			return nil, fmt.Errorf("%w: module %s", ErrIoNotEnabled, meta.Name)
		}
		return nil, fmt.Errorf("guest run_batch failed: %s: %v", p.Module, err)
	}

	if err := bv.commitTrackedWrites(); err != nil {
		return nil, err
	}
	if bc.HasColumnWrites() {
		if err := bc.Commit(); err != nil {
			return nil, err
		}
		metrics.GuestWriteCells.WithLabelValues(meta.Name).Add(float64(bc.CellsWritten()))
	}

	return builder.Build(), nil
}

func isStepLimit(err error) bool {
	return strings.Contains(err.Error(), "too many steps")
}

// predeclared builds the guest's constant environment: Keys.<NAME> = id and
// KeyInfo.<NAME> = {id, name, type} for every registered key.
func predeclared(reg *keys.Registry) starlark.StringDict {
	keysDict := starlark.StringDict{}
	infoDict := starlark.StringDict{}
	if reg != nil {
		for _, k := range reg.All() {
			constName := constantName(k.Name)
			keysDict[constName] = starlark.MakeInt(int(k.ID))
			infoDict[constName] = starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
				"id":   starlark.MakeInt(int(k.ID)),
				"name": starlark.String(k.Name),
				"type": starlark.String(k.Type.String()),
			})
		}
	}
	return starlark.StringDict{
		"Keys":    starlarkstruct.FromStringDict(starlarkstruct.Default, keysDict),
		"KeyInfo": starlarkstruct.FromStringDict(starlarkstruct.Default, infoDict),
	}
}

// constantName maps "score.base" to "SCORE_BASE".
func constantName(keyName string) string {
	out := make([]byte, len(keyName))
	for i := 0; i < len(keyName); i++ {
		c := keyName[i]
		switch {
		case c == '.':
			out[i] = '_'
		case c >= 'a' && c <= 'z':
			out[i] = c - 'a' + 'A'
		default:
			out[i] = c
		}
	}
	return string(out)
}

// Register installs the guest-module op. Guest modules stay experimental:
// prod plans cannot reference them until a module review process exists.
func Register(r *nodes.Registry) {
	r.Register(&nodes.NodeSpec{
		Op:            "star:module",
		NamespacePath: "star.module",
		Stability:     nodes.StabilityExperimental,
		Doc:           "Runs a sandboxed Starlark guest module; reads, writes, and budgets come from the module's meta.",
		ParamsSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"module": {"type": "string", "description": "path to the .star module source"}
			},
			"required": ["module"]
		}`),
		Writes: nodes.StaticWrites(),
		Budgets: json.RawMessage(`{
			"max_write_bytes": 1048576,
			"max_write_cells": 100000,
			"max_set_per_obj": 10,
			"max_io_read_bytes": 0,
			"max_io_read_rows": 0
		}`),
		Capabilities: json.RawMessage(`{"io": {"csv_read": false}}`),
	}, func() nodes.Runner { return Runner{} })
}

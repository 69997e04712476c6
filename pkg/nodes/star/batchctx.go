package star

import (
	"fmt"

	"github.com/sandboxws/rankdsl/engine/pkg/batch"
	"github.com/sandboxws/rankdsl/engine/pkg/keys"
	"github.com/sandboxws/rankdsl/engine/pkg/value"
)

// BatchContext is the gated host side of ctx.batch. Reads come straight off
// the input batch; writer allocations are checked against the module's
// declared write set and budget before they are accepted, and committed
// through a BatchBuilder so the output shares unchanged columns.
type BatchContext struct {
	input    *batch.ColumnBatch
	builder  *batch.Builder
	registry *keys.Registry
	allowed  map[int32]bool
	budget   Budget

	bytesWritten int64
	cellsWritten int64

	allocated []allocatedColumn
}

type allocatedColumn struct {
	keyID int32
	col   batch.Column
}

// NewBatchContext builds the gated context for one module invocation.
func NewBatchContext(input *batch.ColumnBatch, builder *batch.Builder,
	registry *keys.Registry, allowedWrites map[int32]bool, budget Budget) *BatchContext {
	return &BatchContext{
		input:    input,
		builder:  builder,
		registry: registry,
		allowed:  allowedWrites,
		budget:   budget,
	}
}

// RowCount returns the input batch's row count.
func (bc *BatchContext) RowCount() int { return bc.input.RowCount() }

// F32 returns the f32 column's data, or nil when missing.
func (bc *BatchContext) F32(keyID int32) []float32 {
	col, ok := bc.input.F32(keyID)
	if !ok {
		return nil
	}
	return col.Data()
}

// I64 returns the i64 column's data, or nil when missing.
func (bc *BatchContext) I64(keyID int32) []int64 {
	col, ok := bc.input.I64(keyID)
	if !ok {
		return nil
	}
	return col.Data()
}

// F32Vec returns the f32vec column, or nil when missing. The column's
// contiguous N×D data plus dim and row count form the guest view.
func (bc *BatchContext) F32Vec(keyID int32) *batch.F32VecColumn {
	col, ok := bc.input.F32Vec(keyID)
	if !ok {
		return nil
	}
	return col
}

// AllocateF32 allocates a writable f32 column for the key.
func (bc *BatchContext) AllocateF32(keyID int32) (*batch.F32Column, error) {
	if err := bc.checkWrite(keyID, value.TypeF32); err != nil {
		return nil, err
	}
	n := bc.RowCount()
	if err := bc.chargeBudget(int64(n)*4, int64(n)); err != nil {
		return nil, err
	}
	col := batch.NewF32Column(n)
	bc.allocated = append(bc.allocated, allocatedColumn{keyID: keyID, col: col})
	return col, nil
}

// AllocateI64 allocates a writable i64 column for the key.
func (bc *BatchContext) AllocateI64(keyID int32) (*batch.I64Column, error) {
	if err := bc.checkWrite(keyID, value.TypeI64); err != nil {
		return nil, err
	}
	n := bc.RowCount()
	if err := bc.chargeBudget(int64(n)*8, int64(n)); err != nil {
		return nil, err
	}
	col := batch.NewI64Column(n)
	bc.allocated = append(bc.allocated, allocatedColumn{keyID: keyID, col: col})
	return col, nil
}

func (bc *BatchContext) checkWrite(keyID int32, want value.Type) error {
	if !bc.allowed[keyID] {
		name := fmt.Sprintf("%d", keyID)
		if info, ok := bc.registry.ByID(keyID); ok {
			name = info.Name
		}
		return fmt.Errorf("%w: key %s", ErrWriteNotDeclared, name)
	}
	info, ok := bc.registry.ByID(keyID)
	if !ok {
		return fmt.Errorf("%w: id %d", keys.ErrUnknownKey, keyID)
	}
	if info.Type != want {
		return fmt.Errorf("%w: key %q declared %s, writer is %s",
			batch.ErrTypeMismatch, info.Name, info.Type, want)
	}
	return nil
}

// chargeBudget accrues an allocation, failing before the write is accepted.
func (bc *BatchContext) chargeBudget(bytes, cells int64) error {
	if bc.budget.MaxWriteBytes > 0 && bc.bytesWritten+bytes > bc.budget.MaxWriteBytes {
		return fmt.Errorf("%w: %d bytes over max_write_bytes=%d",
			ErrBudgetExceeded, bc.bytesWritten+bytes, bc.budget.MaxWriteBytes)
	}
	if bc.budget.MaxWriteCells > 0 && bc.cellsWritten+cells > bc.budget.MaxWriteCells {
		return fmt.Errorf("%w: %d cells over max_write_cells=%d",
			ErrBudgetExceeded, bc.cellsWritten+cells, bc.budget.MaxWriteCells)
	}
	bc.bytesWritten += bytes
	bc.cellsWritten += cells
	return nil
}

// HasColumnWrites reports whether any writer was allocated.
func (bc *BatchContext) HasColumnWrites() bool { return len(bc.allocated) > 0 }

// Commit installs every allocated column into the builder.
func (bc *BatchContext) Commit() error {
	for _, a := range bc.allocated {
		if err := bc.builder.AddColumn(a.keyID, a.col); err != nil {
			return err
		}
	}
	return nil
}

// CellsWritten reports the accrued cell count (for metrics).
func (bc *BatchContext) CellsWritten() int64 { return bc.cellsWritten }

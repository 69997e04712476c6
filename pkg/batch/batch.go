package batch

import (
	"fmt"
	"sort"

	"github.com/sandboxws/rankdsl/engine/pkg/value"
)

// ColumnBatch is a row count plus a mapping from key id to a shared column
// handle. Every contained column has at least RowCount rows.
//
// Batches are immutable once they leave their creating operator: sharing is
// by handle and read-only. Use a Builder to derive a modified batch.
type ColumnBatch struct {
	rows int
	cols map[int32]Column
}

// New creates a batch with the given row count and no columns.
func New(rows int) *ColumnBatch {
	return &ColumnBatch{rows: rows, cols: make(map[int32]Column)}
}

// NewWithColumns creates a batch from existing column handles.
func NewWithColumns(rows int, cols map[int32]Column) *ColumnBatch {
	if cols == nil {
		cols = make(map[int32]Column)
	}
	return &ColumnBatch{rows: rows, cols: cols}
}

// RowCount returns the number of rows.
func (b *ColumnBatch) RowCount() int { return b.rows }

// ColumnCount returns the number of columns.
func (b *ColumnBatch) ColumnCount() int { return len(b.cols) }

// HasColumn reports whether a column exists for the key.
func (b *ColumnBatch) HasColumn(keyID int32) bool {
	_, ok := b.cols[keyID]
	return ok
}

// Column returns the shared column handle for the key, or nil.
func (b *ColumnBatch) Column(keyID int32) Column { return b.cols[keyID] }

// ValueAt returns the boxed value at (row, keyID). Missing columns and
// out-of-range rows yield null.
func (b *ColumnBatch) ValueAt(row int, keyID int32) value.Value {
	col, ok := b.cols[keyID]
	if !ok || row < 0 || row >= col.Len() {
		return value.Null()
	}
	return col.Value(row)
}

// Keys returns the column key ids in ascending order.
func (b *ColumnBatch) Keys() []int32 {
	out := make([]int32, 0, len(b.cols))
	for k := range b.cols {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetColumn installs a column handle. The column must cover the batch's rows.
func (b *ColumnBatch) SetColumn(keyID int32, col Column) error {
	if col.Len() < b.rows {
		return fmt.Errorf("%w: key %d has %d rows, batch has %d", ErrRowCountMismatch, keyID, col.Len(), b.rows)
	}
	b.cols[keyID] = col
	return nil
}

// F32 returns the column as an *F32Column if it is one.
func (b *ColumnBatch) F32(keyID int32) (*F32Column, bool) {
	c, ok := b.cols[keyID].(*F32Column)
	return c, ok
}

// I64 returns the column as an *I64Column if it is one.
func (b *ColumnBatch) I64(keyID int32) (*I64Column, bool) {
	c, ok := b.cols[keyID].(*I64Column)
	return c, ok
}

// F32Vec returns the column as an *F32VecColumn if it is one.
func (b *ColumnBatch) F32Vec(keyID int32) (*F32VecColumn, bool) {
	c, ok := b.cols[keyID].(*F32VecColumn)
	return c, ok
}

// Concat concatenates batches row-wise. Same-keyed columns are unioned;
// rows from inputs that lack a key are null in the output. The same key
// appearing with different column types is an ErrColumnConflict.
func Concat(batches []*ColumnBatch) (*ColumnBatch, error) {
	if len(batches) == 0 {
		return New(0), nil
	}
	if len(batches) == 1 {
		return batches[0], nil
	}

	total := 0
	type colInfo struct {
		typ value.Type
		dim int
	}
	infos := make(map[int32]colInfo)
	for _, in := range batches {
		total += in.RowCount()
		for _, k := range in.Keys() {
			col := in.Column(k)
			info := colInfo{typ: col.Type()}
			if vc, ok := col.(*F32VecColumn); ok {
				info.dim = vc.Dim()
			}
			if prev, seen := infos[k]; seen {
				if prev.typ != info.typ || prev.dim != info.dim {
					return nil, fmt.Errorf("%w: key %d is %s then %s", ErrColumnConflict, k, prev.typ, info.typ)
				}
				continue
			}
			infos[k] = info
		}
	}

	out := New(total)
	for k, info := range infos {
		col, err := NewColumn(info.typ, total, info.dim)
		if err != nil {
			return nil, err
		}
		offset := 0
		for _, in := range batches {
			src := in.Column(k)
			if src != nil {
				for i := 0; i < in.RowCount(); i++ {
					if src.IsNull(i) {
						continue
					}
					if err := col.SetValue(offset+i, src.Value(i)); err != nil {
						return nil, fmt.Errorf("concat key %d: %w", k, err)
					}
				}
			}
			offset += in.RowCount()
		}
		out.cols[k] = col
	}
	return out, nil
}

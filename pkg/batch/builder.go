package batch

import (
	"errors"
	"fmt"

	"github.com/sandboxws/rankdsl/engine/pkg/keys"
	"github.com/sandboxws/rankdsl/engine/pkg/value"
)

// ErrBuilderConsumed is returned by builder operations after Build.
var ErrBuilderConsumed = errors.New("batch builder already built")

// Builder derives a new ColumnBatch from a source with copy-on-write
// semantics: the first write to a key clones its source column (or allocates
// a fresh all-null one); untouched columns are shared by handle into the
// built batch.
//
// A Builder is the only mutable view on its columns and must not be shared
// between goroutines. After Build it is consumed.
type Builder struct {
	source   *ColumnBatch // nil when building from scratch
	rows     int
	modified map[int32]Column
	built    bool
}

// NewBuilder creates a builder over a source batch. The source is never
// modified.
func NewBuilder(source *ColumnBatch) *Builder {
	return &Builder{source: source, rows: source.RowCount(), modified: make(map[int32]Column)}
}

// NewBuilderSized creates a builder for a fresh batch of the given row count.
func NewBuilderSized(rows int) *Builder {
	return &Builder{rows: rows, modified: make(map[int32]Column)}
}

// RowCount returns the target row count.
func (b *Builder) RowCount() int { return b.rows }

// Modified reports whether the key has been touched.
func (b *Builder) Modified(keyID int32) bool {
	_, ok := b.modified[keyID]
	return ok
}

// Set writes a value at (row, keyID), cloning the source column on first
// touch. When a registry is supplied the key must exist and the value's
// runtime type must equal its declared type (null always accepted).
func (b *Builder) Set(row int, keyID int32, v value.Value, reg *keys.Registry) error {
	if b.built {
		return ErrBuilderConsumed
	}
	if row < 0 || row >= b.rows {
		return fmt.Errorf("%w: row %d of %d", ErrOutOfBounds, row, b.rows)
	}

	var declared value.Type
	haveDeclared := false
	if reg != nil {
		info, ok := reg.ByID(keyID)
		if !ok {
			return fmt.Errorf("%w: id %d", keys.ErrUnknownKey, keyID)
		}
		declared = info.Type
		haveDeclared = true
		if !v.IsNull() && v.Type() != declared {
			return fmt.Errorf("%w: key %q declared %s, got %s",
				ErrTypeMismatch, info.Name, declared, v.Type())
		}
	}

	col, err := b.writable(keyID, v, declared, haveDeclared)
	if err != nil {
		return err
	}
	return col.SetValue(row, v)
}

// writable returns the owned column for keyID, allocating it on first touch.
func (b *Builder) writable(keyID int32, v value.Value, declared value.Type, haveDeclared bool) (Column, error) {
	if col, ok := b.modified[keyID]; ok {
		return col, nil
	}
	if b.source != nil {
		if src := b.source.Column(keyID); src != nil {
			col := src.Clone()
			b.modified[keyID] = col
			return col, nil
		}
	}

	typ := v.Type()
	if haveDeclared {
		typ = declared
	}
	if typ == value.TypeNull {
		return nil, fmt.Errorf("cannot infer column type for key %d from a null write", keyID)
	}
	dim := 0
	if vec, ok := v.AsF32Vec(); ok {
		dim = len(vec)
	}
	col, err := NewColumn(typ, b.rows, dim)
	if err != nil {
		return nil, err
	}
	b.modified[keyID] = col
	return col, nil
}

// AddColumn installs an owned column for the key, replacing any prior
// modification. The column must cover the builder's row count.
func (b *Builder) AddColumn(keyID int32, col Column) error {
	if b.built {
		return ErrBuilderConsumed
	}
	if col.Len() < b.rows {
		return fmt.Errorf("%w: key %d has %d rows, builder has %d", ErrRowCountMismatch, keyID, col.Len(), b.rows)
	}
	b.modified[keyID] = col
	return nil
}

// Build produces the final batch: untouched source columns by shared handle,
// touched keys by their modified columns. The builder is consumed.
func (b *Builder) Build() *ColumnBatch {
	cols := make(map[int32]Column, len(b.modified))
	if b.source != nil {
		for _, k := range b.source.Keys() {
			cols[k] = b.source.Column(k)
		}
	}
	for k, col := range b.modified {
		cols[k] = col
	}
	b.modified = nil
	b.built = true
	return NewWithColumns(b.rows, cols)
}

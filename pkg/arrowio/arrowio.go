// Package arrowio exports ColumnBatches as Arrow records for out-of-process
// tooling. Key names become field names; null masks carry over.
package arrowio

import (
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/sandboxws/rankdsl/engine/pkg/batch"
	"github.com/sandboxws/rankdsl/engine/pkg/keys"
)

// ToRecord converts a batch to an Arrow record. Columns appear in ascending
// key-id order; keys absent from the registry are named "key_<id>".
// The caller must Release() the returned record.
func ToRecord(b *batch.ColumnBatch, reg *keys.Registry, alloc memory.Allocator) (arrow.Record, error) {
	keyIDs := b.Keys()
	fields := make([]arrow.Field, 0, len(keyIDs))
	arrays := make([]arrow.Array, 0, len(keyIDs))

	release := func() {
		for _, a := range arrays {
			a.Release()
		}
	}

	for _, keyID := range keyIDs {
		col := b.Column(keyID)
		name := fmt.Sprintf("key_%d", keyID)
		if reg != nil {
			if info, ok := reg.ByID(keyID); ok {
				name = info.Name
			}
		}

		arr, err := columnToArray(col, b.RowCount(), alloc)
		if err != nil {
			release()
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		fields = append(fields, arrow.Field{Name: name, Type: arr.DataType(), Nullable: true})
		arrays = append(arrays, arr)
	}

	schema := arrow.NewSchema(fields, nil)
	rec := array.NewRecord(schema, arrays, int64(b.RowCount()))
	// NewRecord retains each array; release our references.
	release()
	return rec, nil
}

func columnToArray(col batch.Column, rows int, alloc memory.Allocator) (arrow.Array, error) {
	switch c := col.(type) {
	case *batch.F32Column:
		bldr := array.NewFloat32Builder(alloc)
		defer bldr.Release()
		for i := 0; i < rows; i++ {
			if c.IsNull(i) {
				bldr.AppendNull()
			} else {
				bldr.Append(c.At(i))
			}
		}
		return bldr.NewArray(), nil

	case *batch.I64Column:
		bldr := array.NewInt64Builder(alloc)
		defer bldr.Release()
		for i := 0; i < rows; i++ {
			if c.IsNull(i) {
				bldr.AppendNull()
			} else {
				bldr.Append(c.At(i))
			}
		}
		return bldr.NewArray(), nil

	case *batch.BoolColumn:
		bldr := array.NewBooleanBuilder(alloc)
		defer bldr.Release()
		for i := 0; i < rows; i++ {
			if c.IsNull(i) {
				bldr.AppendNull()
			} else {
				bldr.Append(c.At(i))
			}
		}
		return bldr.NewArray(), nil

	case *batch.StringColumn:
		bldr := array.NewStringBuilder(alloc)
		defer bldr.Release()
		for i := 0; i < rows; i++ {
			if c.IsNull(i) {
				bldr.AppendNull()
			} else {
				bldr.Append(c.At(i))
			}
		}
		return bldr.NewArray(), nil

	case *batch.BytesColumn:
		bldr := array.NewBinaryBuilder(alloc, arrow.BinaryTypes.Binary)
		defer bldr.Release()
		for i := 0; i < rows; i++ {
			if c.IsNull(i) {
				bldr.AppendNull()
			} else {
				bldr.Append(c.At(i))
			}
		}
		return bldr.NewArray(), nil

	case *batch.F32VecColumn:
		bldr := array.NewFixedSizeListBuilder(alloc, int32(c.Dim()), arrow.PrimitiveTypes.Float32)
		defer bldr.Release()
		values := bldr.ValueBuilder().(*array.Float32Builder)
		for i := 0; i < rows; i++ {
			if c.IsNull(i) {
				bldr.AppendNull()
				continue
			}
			bldr.Append(true)
			values.AppendValues(c.Row(i), nil)
		}
		return bldr.NewArray(), nil

	default:
		return nil, fmt.Errorf("unsupported column type %s", col.Type())
	}
}

// WriteIPCFile writes the batch as an Arrow IPC file at path.
func WriteIPCFile(path string, b *batch.ColumnBatch, reg *keys.Registry, alloc memory.Allocator) error {
	rec, err := ToRecord(b, reg, alloc)
	if err != nil {
		return err
	}
	defer rec.Release()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create arrow file %s: %w", path, err)
	}
	defer f.Close()

	writer, err := ipc.NewFileWriter(f, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(alloc))
	if err != nil {
		return fmt.Errorf("arrow writer: %w", err)
	}
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return fmt.Errorf("write arrow record: %w", err)
	}
	return writer.Close()
}

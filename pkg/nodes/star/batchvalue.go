package star

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/sandboxws/rankdsl/engine/pkg/batch"
)

// hostState carries enforcement outcomes across the interpreter boundary.
// Builtins record the first host failure here so the runner can surface the
// typed error rather than its guest-side rendering.
type hostState struct {
	err error
}

func (h *hostState) fail(err error) error {
	if h.err == nil {
		h.err = err
	}
	return err
}

type trackedKind uint8

const (
	trackedF32 trackedKind = iota
	trackedI64
)

// trackedWrite pairs a guest-side writer buffer with its host column so the
// buffer can be copied back at commit time.
type trackedWrite struct {
	keyID int32
	kind  trackedKind
	list  *starlark.List
	f32   *batch.F32Column
	i64   *batch.I64Column
}

// batchValue is the guest-visible ctx.batch object.
type batchValue struct {
	bc      *BatchContext
	host    *hostState
	tracked []trackedWrite
}

var _ starlark.HasAttrs = (*batchValue)(nil)

func (b *batchValue) String() string        { return fmt.Sprintf("<batch rows=%d>", b.bc.RowCount()) }
func (b *batchValue) Type() string          { return "batch" }
func (b *batchValue) Freeze()               {}
func (b *batchValue) Truth() starlark.Bool  { return starlark.True }
func (b *batchValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: batch") }

func (b *batchValue) AttrNames() []string {
	return []string{"f32", "f32vec", "i64", "rowCount", "writeF32", "writeI64"}
}

func (b *batchValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "rowCount":
		return starlark.NewBuiltin("rowCount", b.rowCount), nil
	case "f32":
		return starlark.NewBuiltin("f32", b.readF32), nil
	case "i64":
		return starlark.NewBuiltin("i64", b.readI64), nil
	case "f32vec":
		return starlark.NewBuiltin("f32vec", b.readF32Vec), nil
	case "writeF32":
		return starlark.NewBuiltin("writeF32", b.writeF32), nil
	case "writeI64":
		return starlark.NewBuiltin("writeI64", b.writeI64), nil
	}
	return nil, nil
}

func (b *batchValue) rowCount(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs("rowCount", args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.MakeInt(b.bc.RowCount()), nil
}

func unpackKeyID(name string, args starlark.Tuple, kwargs []starlark.Tuple) (int32, error) {
	var keyID int
	if err := starlark.UnpackPositionalArgs(name, args, kwargs, 1, &keyID); err != nil {
		return 0, err
	}
	return int32(keyID), nil
}

func (b *batchValue) readF32(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	keyID, err := unpackKeyID("f32", args, kwargs)
	if err != nil {
		return nil, err
	}
	data := b.bc.F32(keyID)
	if data == nil {
		return starlark.None, nil
	}
	elems := make([]starlark.Value, len(data))
	for i, v := range data {
		elems[i] = starlark.Float(v)
	}
	return starlark.NewList(elems), nil
}

func (b *batchValue) readI64(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	keyID, err := unpackKeyID("i64", args, kwargs)
	if err != nil {
		return nil, err
	}
	data := b.bc.I64(keyID)
	if data == nil {
		return starlark.None, nil
	}
	elems := make([]starlark.Value, len(data))
	for i, v := range data {
		elems[i] = starlark.MakeInt64(v)
	}
	return starlark.NewList(elems), nil
}

func (b *batchValue) readF32Vec(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	keyID, err := unpackKeyID("f32vec", args, kwargs)
	if err != nil {
		return nil, err
	}
	col := b.bc.F32Vec(keyID)
	if col == nil {
		return starlark.None, nil
	}
	data := col.Data()
	elems := make([]starlark.Value, len(data))
	for i, v := range data {
		elems[i] = starlark.Float(v)
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"data":     starlark.NewList(elems),
		"dim":      starlark.MakeInt(col.Dim()),
		"rowCount": starlark.MakeInt(col.Len()),
	}), nil
}

func (b *batchValue) writeF32(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	keyID, err := unpackKeyID("writeF32", args, kwargs)
	if err != nil {
		return nil, err
	}
	col, err := b.bc.AllocateF32(keyID)
	if err != nil {
		return nil, b.host.fail(err)
	}
	elems := make([]starlark.Value, b.bc.RowCount())
	for i := range elems {
		elems[i] = starlark.Float(0)
	}
	list := starlark.NewList(elems)
	b.tracked = append(b.tracked, trackedWrite{keyID: keyID, kind: trackedF32, list: list, f32: col})
	return list, nil
}

func (b *batchValue) writeI64(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	keyID, err := unpackKeyID("writeI64", args, kwargs)
	if err != nil {
		return nil, err
	}
	col, err := b.bc.AllocateI64(keyID)
	if err != nil {
		return nil, b.host.fail(err)
	}
	elems := make([]starlark.Value, b.bc.RowCount())
	for i := range elems {
		elems[i] = starlark.MakeInt(0)
	}
	list := starlark.NewList(elems)
	b.tracked = append(b.tracked, trackedWrite{keyID: keyID, kind: trackedI64, list: list, i64: col})
	return list, nil
}

// commitTrackedWrites copies the guest-side writer buffers back into their
// host columns. The interpreter owns the lists, so this copy preserves the
// observable write semantics regardless of guest-side aliasing.
func (b *batchValue) commitTrackedWrites() error {
	for _, t := range b.tracked {
		for i := 0; i < t.list.Len(); i++ {
			elem := t.list.Index(i)
			switch t.kind {
			case trackedF32:
				f, ok := starlark.AsFloat(elem)
				if !ok {
					return fmt.Errorf("%w: writer buffer for key %d holds %s at row %d",
						batch.ErrTypeMismatch, t.keyID, elem.Type(), i)
				}
				t.f32.Set(i, float32(f))
			case trackedI64:
				n, err := numericToInt64(elem)
				if err != nil {
					return fmt.Errorf("%w: writer buffer for key %d at row %d: %v",
						batch.ErrTypeMismatch, t.keyID, i, err)
				}
				t.i64.Set(i, n)
			}
		}
	}
	return nil
}

// ioValue is the guest-visible ctx.io object, installed only when both the
// module capability and the engine policy allow it.
type ioValue struct {
	io   *ioContext
	host *hostState
}

var _ starlark.HasAttrs = (*ioValue)(nil)

func (v *ioValue) String() string        { return "<io>" }
func (v *ioValue) Type() string          { return "io" }
func (v *ioValue) Freeze()               {}
func (v *ioValue) Truth() starlark.Bool  { return starlark.True }
func (v *ioValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: io") }

func (v *ioValue) AttrNames() []string { return []string{"readCsv"} }

func (v *ioValue) Attr(name string) (starlark.Value, error) {
	if name == "readCsv" {
		return starlark.NewBuiltin("readCsv", v.readCsv), nil
	}
	return nil, nil
}

func (v *ioValue) readCsv(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var resource string
	var opts starlark.Value
	if err := starlark.UnpackPositionalArgs("readCsv", args, kwargs, 1, &resource, &opts); err != nil {
		return nil, err
	}

	result, err := v.io.readCsv(resource)
	if err != nil {
		return nil, v.host.fail(err)
	}

	columns := starlark.NewDict(len(result.headers))
	for _, name := range result.headers {
		cells := result.columns[name]
		elems := make([]starlark.Value, len(cells))
		for i, c := range cells {
			elems[i] = starlark.String(c)
		}
		if err := columns.SetKey(starlark.String(name), starlark.NewList(elems)); err != nil {
			return nil, err
		}
	}

	out := starlark.NewDict(2)
	_ = out.SetKey(starlark.String("columns"), columns)
	_ = out.SetKey(starlark.String("rowCount"), starlark.MakeInt64(result.rows))
	return out, nil
}

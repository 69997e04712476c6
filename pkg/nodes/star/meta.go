// Package star runs sandboxed guest modules written in Starlark. A module
// exports a `meta` dict declaring its read/write sets, budget, and
// capabilities, plus a `run_batch(rows, ctx, params)` entry point. The host
// enforces the declared write set, the write and IO budgets, and a
// per-invocation execution step cap.
package star

import (
	"fmt"

	json "github.com/goccy/go-json"
	"go.starlark.net/starlark"
)

// Budget holds a module's declared resource limits. An IO limit of 0
// disables IO entirely.
type Budget struct {
	MaxWriteBytes  int64
	MaxWriteCells  int64
	MaxSetPerObj   int64
	MaxIoReadBytes int64
	MaxIoReadRows  int64
}

// DefaultBudget returns the limits applied when meta omits them.
func DefaultBudget() Budget {
	return Budget{
		MaxWriteBytes: 1 << 20,
		MaxWriteCells: 100_000,
		MaxSetPerObj:  10,
	}
}

// Capabilities are the host facilities a module requests.
type Capabilities struct {
	IoCsvRead bool
}

// Meta is the parsed module manifest.
type Meta struct {
	Name         string
	Version      string
	Reads        map[int32]bool
	Writes       map[int32]bool
	ParamsSchema json.RawMessage
	Budget       Budget
	Capabilities Capabilities
}

// parseMeta converts the module's exported meta dict, coercing values from
// the guest's numeric representation. name is required.
func parseMeta(v starlark.Value) (Meta, error) {
	meta := Meta{
		Reads:  make(map[int32]bool),
		Writes: make(map[int32]bool),
		Budget: DefaultBudget(),
	}

	dict, ok := v.(*starlark.Dict)
	if !ok {
		return meta, fmt.Errorf("%w: meta must be a dict, got %s", ErrModuleLoad, v.Type())
	}

	if s, ok, err := dictString(dict, "name"); err != nil {
		return meta, err
	} else if ok {
		meta.Name = s
	}
	if meta.Name == "" {
		return meta, fmt.Errorf("%w: meta.name is required", ErrModuleLoad)
	}
	if s, ok, err := dictString(dict, "version"); err != nil {
		return meta, err
	} else if ok {
		meta.Version = s
	}

	var err error
	if meta.Reads, err = dictKeySet(dict, "reads"); err != nil {
		return meta, err
	}
	if meta.Writes, err = dictKeySet(dict, "writes"); err != nil {
		return meta, err
	}

	if v, found, _ := dict.Get(starlark.String("params")); found {
		goVal, err := starlarkToGo(v)
		if err != nil {
			return meta, fmt.Errorf("%w: meta.params: %v", ErrModuleLoad, err)
		}
		if meta.ParamsSchema, err = json.Marshal(goVal); err != nil {
			return meta, fmt.Errorf("%w: meta.params: %v", ErrModuleLoad, err)
		}
	}

	if v, found, _ := dict.Get(starlark.String("budget")); found {
		budget, ok := v.(*starlark.Dict)
		if !ok {
			return meta, fmt.Errorf("%w: meta.budget must be a dict", ErrModuleLoad)
		}
		fields := map[string]*int64{
			"max_write_bytes":   &meta.Budget.MaxWriteBytes,
			"max_write_cells":   &meta.Budget.MaxWriteCells,
			"max_set_per_obj":   &meta.Budget.MaxSetPerObj,
			"max_io_read_bytes": &meta.Budget.MaxIoReadBytes,
			"max_io_read_rows":  &meta.Budget.MaxIoReadRows,
		}
		for name, dst := range fields {
			if n, ok, err := dictInt64(budget, name); err != nil {
				return meta, err
			} else if ok {
				*dst = n
			}
		}
	}

	if v, found, _ := dict.Get(starlark.String("capabilities")); found {
		caps, ok := v.(*starlark.Dict)
		if !ok {
			return meta, fmt.Errorf("%w: meta.capabilities must be a dict", ErrModuleLoad)
		}
		if ioVal, found, _ := caps.Get(starlark.String("io")); found {
			io, ok := ioVal.(*starlark.Dict)
			if !ok {
				return meta, fmt.Errorf("%w: meta.capabilities.io must be a dict", ErrModuleLoad)
			}
			if b, found, _ := io.Get(starlark.String("csv_read")); found {
				meta.Capabilities.IoCsvRead = bool(b.Truth())
			}
		}
	}

	return meta, nil
}

func dictString(d *starlark.Dict, key string) (string, bool, error) {
	v, found, _ := d.Get(starlark.String(key))
	if !found {
		return "", false, nil
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return "", false, fmt.Errorf("%w: meta.%s must be a string", ErrModuleLoad, key)
	}
	return s, true, nil
}

func dictInt64(d *starlark.Dict, key string) (int64, bool, error) {
	v, found, _ := d.Get(starlark.String(key))
	if !found {
		return 0, false, nil
	}
	n, err := numericToInt64(v)
	if err != nil {
		return 0, false, fmt.Errorf("%w: meta budget field %s: %v", ErrModuleLoad, key, err)
	}
	return n, true, nil
}

func dictKeySet(d *starlark.Dict, key string) (map[int32]bool, error) {
	out := make(map[int32]bool)
	v, found, _ := d.Get(starlark.String(key))
	if !found {
		return out, nil
	}
	list, ok := v.(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("%w: meta.%s must be a list of key ids", ErrModuleLoad, key)
	}
	for i := 0; i < list.Len(); i++ {
		n, err := numericToInt64(list.Index(i))
		if err != nil {
			return nil, fmt.Errorf("%w: meta.%s[%d]: %v", ErrModuleLoad, key, i, err)
		}
		out[int32(n)] = true
	}
	return out, nil
}

// numericToInt64 coerces a guest number (int or float) to int64.
func numericToInt64(v starlark.Value) (int64, error) {
	switch n := v.(type) {
	case starlark.Int:
		i, ok := n.Int64()
		if !ok {
			return 0, fmt.Errorf("integer out of range: %s", n)
		}
		return i, nil
	case starlark.Float:
		return int64(float64(n)), nil
	default:
		return 0, fmt.Errorf("expected a number, got %s", v.Type())
	}
}

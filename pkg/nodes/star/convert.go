package star

import (
	"fmt"
	"math"
	"sort"

	json "github.com/goccy/go-json"
	"go.starlark.net/starlark"
)

// paramsToStarlark converts a node's JSON params into guest values:
// objects become dicts, arrays become lists, integral numbers become ints.
func paramsToStarlark(params json.RawMessage) (starlark.Value, error) {
	if len(params) == 0 {
		return starlark.NewDict(0), nil
	}
	var decoded any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	return goToStarlark(decoded)
}

func goToStarlark(v any) (starlark.Value, error) {
	switch x := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(x), nil
	case string:
		return starlark.String(x), nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return starlark.MakeInt64(int64(x)), nil
		}
		return starlark.Float(x), nil
	case []any:
		elems := make([]starlark.Value, len(x))
		for i, e := range x {
			v, err := goToStarlark(e)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dict := starlark.NewDict(len(x))
		for _, k := range keys {
			v, err := goToStarlark(x[k])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), v); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported param value %T", v)
	}
}

// starlarkToGo converts a guest value back to plain Go data for JSON
// serialisation (used for meta.params).
func starlarkToGo(v starlark.Value) (any, error) {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(x), nil
	case starlark.String:
		return string(x), nil
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i, nil
		}
		return nil, fmt.Errorf("integer out of range: %s", x)
	case starlark.Float:
		return float64(x), nil
	case *starlark.List:
		out := make([]any, 0, x.Len())
		for i := 0; i < x.Len(); i++ {
			e, err := starlarkToGo(x.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]any, x.Len())
		for _, item := range x.Items() {
			k, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("non-string dict key %s", item[0].Type())
			}
			e, err := starlarkToGo(item[1])
			if err != nil {
				return nil, err
			}
			out[k] = e
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported guest value %s", v.Type())
	}
}

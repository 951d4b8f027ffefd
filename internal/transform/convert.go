package transform

import (
	"fmt"

	"go.starlark.net/starlark"
)

// toStarlark converts a decoded event value to its Starlark form.
// Events come out of encoding/json, so the types are nil, string,
// bool, float64, []any and map[string]any; ints appear when events are
// built in Go.
func toStarlark(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil

	case string:
		return starlark.String(val), nil

	case bool:
		return starlark.Bool(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case float64:
		return starlark.Float(val), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
		}
		return dict, nil

	default:
		return nil, fmt.Errorf("unsupported event value type: %T", v)
	}
}

// fromStarlark converts a Starlark value back to its Go event form.
func fromStarlark(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Bool:
		return bool(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			return val.String(), nil
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case *starlark.List:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := fromStarlark(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case starlark.Tuple:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := fromStarlark(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("tuple index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case *starlark.Dict:
		result := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("event keys must be strings, got %s", item[0].Type())
			}
			gv, err := fromStarlark(item[1])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			result[string(key)] = gv
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unsupported Starlark value type: %s", v.Type())
	}
}

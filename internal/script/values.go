package script

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.starlark.net/lib/json"
	starmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
)

var (
	Math = starmath.Module
	JSON = json.Module
)

// ParseCSV is the parse_csv builtin. It returns a dict with "headers" (list of
// names) and "columns" (dict of name to list of cells). Cells become int or
// float when they parse as numbers, None when empty, and strings otherwise.
var ParseCSV = starlark.NewBuiltin("parse_csv", parseCSV)

func parseCSV(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var text string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "text", &text); err != nil {
		return nil, err
	}
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: no header row", b.Name())
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	cells := make([][]starlark.Value, len(headers))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		for i := range headers {
			var raw string
			if i < len(record) {
				raw = record[i]
			}
			cells[i] = append(cells[i], cellValue(raw))
		}
	}

	headerList := make([]starlark.Value, len(headers))
	columns := starlark.NewDict(len(headers))
	for i, name := range headers {
		headerList[i] = starlark.String(name)
		if err := columns.SetKey(starlark.String(name), starlark.NewList(cells[i])); err != nil {
			return nil, err
		}
	}
	out := starlark.NewDict(2)
	_ = out.SetKey(starlark.String("headers"), starlark.NewList(headerList))
	_ = out.SetKey(starlark.String("columns"), columns)
	return out, nil
}

func cellValue(raw string) starlark.Value {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return starlark.None
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return starlark.MakeInt64(n)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return starlark.Float(f)
	}
	return starlark.String(raw)
}

// ToValue converts plain Go data into Starlark values. Map keys are inserted
// in sorted order.
func ToValue(v any) (starlark.Value, error) {
	switch typed := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return typed, nil
	case bool:
		return starlark.Bool(typed), nil
	case int:
		return starlark.MakeInt(typed), nil
	case int32:
		return starlark.MakeInt64(int64(typed)), nil
	case int64:
		return starlark.MakeInt64(typed), nil
	case uint64:
		return starlark.MakeUint64(typed), nil
	case float32:
		return starlark.Float(typed), nil
	case float64:
		return starlark.Float(typed), nil
	case string:
		return starlark.String(typed), nil
	case []string:
		items := make([]starlark.Value, len(typed))
		for i, s := range typed {
			items[i] = starlark.String(s)
		}
		return starlark.NewList(items), nil
	case []any:
		items := make([]starlark.Value, len(typed))
		for i, item := range typed {
			value, err := ToValue(item)
			if err != nil {
				return nil, err
			}
			items[i] = value
		}
		return starlark.NewList(items), nil
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for k := range typed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return OrderedDict(keys, typed)
	default:
		return nil, fmt.Errorf("cannot convert %T to a script value", v)
	}
}

// OrderedDict builds a dict whose iteration order follows keys.
func OrderedDict(keys []string, values map[string]any) (*starlark.Dict, error) {
	dict := starlark.NewDict(len(keys))
	for _, k := range keys {
		value, err := ToValue(values[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		if err := dict.SetKey(starlark.String(k), value); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

// FromValue converts a Starlark value into plain Go data: nil, bool, int64,
// float64, string, []any or map[string]any.
func FromValue(v starlark.Value) (any, error) {
	switch typed := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(typed), nil
	case starlark.Int:
		if n, ok := typed.Int64(); ok {
			return n, nil
		}
		return float64(typed.Float()), nil
	case starlark.Float:
		return float64(typed), nil
	case starlark.String:
		return string(typed), nil
	case starlark.Indexable:
		out := make([]any, typed.Len())
		for i := range out {
			item, err := FromValue(typed.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]any, typed.Len())
		for _, item := range typed.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("dict key %s is not a string", item[0].String())
			}
			value, err := FromValue(item[1])
			if err != nil {
				return nil, err
			}
			out[key] = value
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported script value of type %s", v.Type())
	}
}

// Float reads a numeric script value.
func Float(v starlark.Value) (float64, bool) {
	switch typed := v.(type) {
	case starlark.Int:
		return float64(typed.Float()), true
	case starlark.Float:
		return float64(typed), true
	default:
		return 0, false
	}
}

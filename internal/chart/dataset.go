package chart

import (
	"fmt"
	"strings"

	"go.starlark.net/starlark"

	"github.com/querylens/querylens/internal/prompt"
	"github.com/querylens/querylens/internal/query"
	"github.com/querylens/querylens/internal/script"
)

// DatasetFromValue validates the extract script's result binding: all five
// keys present, a column list for every header with equal lengths, at least
// one row, numeric and categorical columns drawn from the headers without
// overlap, and a shape that matches the data.
func DatasetFromValue(v starlark.Value) (Dataset, error) {
	raw, err := script.FromValue(v)
	if err != nil {
		return Dataset{}, invalidResult("%v", err)
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return Dataset{}, invalidResult("is %s, not a dict", v.Type())
	}
	for _, key := range prompt.ResultKeys {
		if _, ok := m[key]; !ok {
			return Dataset{}, invalidResult("is missing key %q", key)
		}
	}

	headers, err := stringList(m["headers"])
	if err != nil || len(headers) == 0 {
		return Dataset{}, invalidResult("headers must be a non-empty list of strings")
	}
	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		if known[h] {
			return Dataset{}, invalidResult("header %q is repeated", h)
		}
		known[h] = true
	}

	data, ok := m["data"].(map[string]any)
	if !ok {
		return Dataset{}, invalidResult("data must be a dict of column to list")
	}
	columns := make(map[string][]any, len(headers))
	rows := -1
	for _, h := range headers {
		values, ok := data[h].([]any)
		if !ok {
			return Dataset{}, invalidResult("data has no list for column %q", h)
		}
		if rows >= 0 && len(values) != rows {
			return Dataset{}, invalidResult("column %q has %d values, expected %d", h, len(values), rows)
		}
		rows = len(values)
		columns[h] = values
	}
	if rows < 1 {
		return Dataset{}, invalidResult("data has no rows")
	}

	numeric, err := stringList(m["numeric_cols"])
	if err != nil {
		return Dataset{}, invalidResult("numeric_cols: %v", err)
	}
	categorical, err := stringList(m["categorical_cols"])
	if err != nil {
		return Dataset{}, invalidResult("categorical_cols: %v", err)
	}
	seen := make(map[string]string, len(numeric)+len(categorical))
	for group, names := range map[string][]string{"numeric_cols": numeric, "categorical_cols": categorical} {
		for _, name := range names {
			if !known[name] {
				return Dataset{}, invalidResult("%s names unknown column %q", group, name)
			}
			if other, dup := seen[name]; dup && other != group {
				return Dataset{}, invalidResult("column %q is both numeric and categorical", name)
			}
			seen[name] = group
		}
	}

	shape, ok := m["shape"].([]any)
	if !ok || len(shape) != 2 {
		return Dataset{}, invalidResult("shape must be a (rows, columns) pair")
	}
	shapeRows, okRows := shape[0].(int64)
	shapeCols, okCols := shape[1].(int64)
	if !okRows || !okCols || int(shapeRows) != rows || int(shapeCols) != len(headers) {
		return Dataset{}, invalidResult("shape %v does not match data (%d, %d)", shape, rows, len(headers))
	}

	return Dataset{
		Headers:            headers,
		Columns:            columns,
		NumericColumns:     numeric,
		CategoricalColumns: categorical,
		Shape:              [2]int{rows, len(headers)},
	}, nil
}

// Value converts the dataset back into the dict shape the extract script
// produced.
func (d Dataset) Value() (*starlark.Dict, error) {
	data := make(map[string]any, len(d.Columns))
	for name, values := range d.Columns {
		data[name] = values
	}
	dataDict, err := script.OrderedDict(d.Headers, data)
	if err != nil {
		return nil, err
	}
	return script.OrderedDict(prompt.ResultKeys, map[string]any{
		"headers":          d.Headers,
		"data":             dataDict,
		"numeric_cols":     d.NumericColumns,
		"categorical_cols": d.CategoricalColumns,
		"shape":            starlark.Tuple{starlark.MakeInt(d.Shape[0]), starlark.MakeInt(d.Shape[1])},
	})
}

// Summary describes the dataset for the chart prompt with up to sample rows.
func (d Dataset) Summary(sample int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "headers: [%s]\n", strings.Join(d.Headers, ", "))
	fmt.Fprintf(&b, "numeric_cols: [%s]\n", strings.Join(d.NumericColumns, ", "))
	fmt.Fprintf(&b, "categorical_cols: [%s]\n", strings.Join(d.CategoricalColumns, ", "))
	fmt.Fprintf(&b, "shape: (%d, %d)\n", d.Shape[0], d.Shape[1])
	if sample > d.Rows() {
		sample = d.Rows()
	}
	if sample > 0 {
		fmt.Fprintf(&b, "first %d rows:\n", sample)
		for i := 0; i < sample; i++ {
			cells := make([]string, len(d.Headers))
			for j, h := range d.Headers {
				cells[j] = h + "=" + query.FormatCell(d.Columns[h][i])
			}
			b.WriteString("  " + strings.Join(cells, ", ") + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func invalidResult(format string, args ...any) error {
	return &script.ContractError{
		Contract: "extract",
		Binding:  prompt.BindingResult,
		Reason:   fmt.Sprintf(format, args...),
	}
}

func stringList(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list")
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("item %d is not a string", i)
		}
		out[i] = s
	}
	return out, nil
}

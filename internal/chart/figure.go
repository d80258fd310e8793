package chart

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/querylens/querylens/internal/prompt"
	"github.com/querylens/querylens/internal/script"
)

// Series is one drawn data set. Categorical x values live in Labels; numeric
// x values live in X.
type Series struct {
	Kind    Kind
	Label   string
	Labels  []string
	X       []float64
	Y       []float64
	Markers bool
	Alpha   float64
}

// Figure is built by chart scripts through the plt module and rendered once
// the script returns.
type Figure struct {
	Title  string
	XLabel string
	YLabel string
	Legend bool
	Series []Series

	frozen bool
}

// PlotModule is the plt binding: plt.figure(title=, xlabel=, ylabel=).
func PlotModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: prompt.BindingPlot,
		Members: starlark.StringDict{
			"figure": starlark.NewBuiltin("figure", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				fig := &Figure{}
				if err := starlark.UnpackArgs(b.Name(), args, kwargs,
					"title?", &fig.Title, "xlabel?", &fig.XLabel, "ylabel?", &fig.YLabel); err != nil {
					return nil, err
				}
				return fig, nil
			}),
		},
	}
}

var (
	_ starlark.Value    = (*Figure)(nil)
	_ starlark.HasAttrs = (*Figure)(nil)
)

func (f *Figure) String() string {
	return fmt.Sprintf("<figure %q with %d series>", f.Title, len(f.Series))
}

func (f *Figure) Type() string         { return "figure" }
func (f *Figure) Freeze()              { f.frozen = true }
func (f *Figure) Truth() starlark.Bool { return starlark.True }

func (f *Figure) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: figure")
}

type figureMethod func(f *Figure, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

var figureMethods = map[string]figureMethod{
	"bar":     (*Figure).bar,
	"line":    (*Figure).line,
	"pie":     (*Figure).pie,
	"scatter": (*Figure).scatter,
	"legend":  (*Figure).legend,
	"labels":  (*Figure).labels,
}

func (f *Figure) Attr(name string) (starlark.Value, error) {
	method, ok := figureMethods[name]
	if !ok {
		return nil, nil
	}
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if f.frozen {
			return nil, fmt.Errorf("%s: figure is frozen", b.Name())
		}
		return method(f, b, args, kwargs)
	}).BindReceiver(f), nil
}

func (f *Figure) AttrNames() []string {
	names := make([]string, 0, len(figureMethods))
	for name := range figureMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *Figure) bar(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var labels, values starlark.Value
	var label string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "labels", &labels, "values", &values, "label?", &label); err != nil {
		return nil, err
	}
	cats, err := stringsOf(b.Name(), "labels", labels)
	if err != nil {
		return nil, err
	}
	ys, err := numbersOf(b.Name(), "values", values)
	if err != nil {
		return nil, err
	}
	if err := sameLength(b.Name(), len(cats), len(ys)); err != nil {
		return nil, err
	}
	f.Series = append(f.Series, Series{Kind: KindBar, Label: label, Labels: cats, Y: ys})
	return starlark.None, nil
}

func (f *Figure) line(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, y starlark.Value
	var label string
	markers := true
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &x, "y", &y, "label?", &label, "markers?", &markers); err != nil {
		return nil, err
	}
	ys, err := numbersOf(b.Name(), "y", y)
	if err != nil {
		return nil, err
	}
	series := Series{Kind: KindLine, Label: label, Y: ys, Markers: markers}
	if xs, err := numbersOf(b.Name(), "x", x); err == nil {
		series.X = xs
	} else if series.Labels, err = stringsOf(b.Name(), "x", x); err != nil {
		return nil, err
	}
	if err := sameLength(b.Name(), max(len(series.X), len(series.Labels)), len(ys)); err != nil {
		return nil, err
	}
	f.Series = append(f.Series, series)
	return starlark.None, nil
}

func (f *Figure) pie(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var labels, values starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "labels", &labels, "values", &values); err != nil {
		return nil, err
	}
	cats, err := stringsOf(b.Name(), "labels", labels)
	if err != nil {
		return nil, err
	}
	ys, err := numbersOf(b.Name(), "values", values)
	if err != nil {
		return nil, err
	}
	if err := sameLength(b.Name(), len(cats), len(ys)); err != nil {
		return nil, err
	}
	var total float64
	for i, v := range ys {
		if v < 0 {
			return nil, fmt.Errorf("%s: values[%d] is negative", b.Name(), i)
		}
		total += v
	}
	if total == 0 {
		return nil, fmt.Errorf("%s: values sum to zero", b.Name())
	}
	f.Series = append(f.Series, Series{Kind: KindPie, Labels: cats, Y: ys})
	return starlark.None, nil
}

func (f *Figure) scatter(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, y starlark.Value
	var label string
	alpha := 0.6
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &x, "y", &y, "label?", &label, "alpha?", &alpha); err != nil {
		return nil, err
	}
	xs, err := numbersOf(b.Name(), "x", x)
	if err != nil {
		return nil, err
	}
	ys, err := numbersOf(b.Name(), "y", y)
	if err != nil {
		return nil, err
	}
	if err := sameLength(b.Name(), len(xs), len(ys)); err != nil {
		return nil, err
	}
	if alpha <= 0 || alpha > 1 {
		return nil, fmt.Errorf("%s: alpha must be in (0, 1]", b.Name())
	}
	f.Series = append(f.Series, Series{Kind: KindScatter, Label: label, X: xs, Y: ys, Alpha: alpha})
	return starlark.None, nil
}

func (f *Figure) legend(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	show := true
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "show?", &show); err != nil {
		return nil, err
	}
	f.Legend = show
	return starlark.None, nil
}

func (f *Figure) labels(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return starlark.None, starlark.UnpackArgs(b.Name(), args, kwargs,
		"title?", &f.Title, "xlabel?", &f.XLabel, "ylabel?", &f.YLabel)
}

func iterate(fn, param string, v starlark.Value) ([]starlark.Value, error) {
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("%s: %s must be a list, got %s", fn, param, v.Type())
	}
	var out []starlark.Value
	iter := iterable.Iterate()
	defer iter.Done()
	var item starlark.Value
	for iter.Next(&item) {
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %s is empty", fn, param)
	}
	return out, nil
}

func numbersOf(fn, param string, v starlark.Value) ([]float64, error) {
	items, err := iterate(fn, param, v)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(items))
	for i, item := range items {
		n, ok := script.Float(item)
		if !ok {
			return nil, fmt.Errorf("%s: %s[%d] is %s, not a number", fn, param, i, item.Type())
		}
		out[i] = n
	}
	return out, nil
}

func stringsOf(fn, param string, v starlark.Value) ([]string, error) {
	items, err := iterate(fn, param, v)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, item := range items {
		if s, ok := starlark.AsString(item); ok {
			out[i] = s
		} else {
			out[i] = item.String()
		}
	}
	return out, nil
}

func sameLength(fn string, a, b int) error {
	if a != b {
		return fmt.Errorf("%s: length mismatch (%d vs %d)", fn, a, b)
	}
	return nil
}

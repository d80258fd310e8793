package script

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.starlark.net/starlark"
)

func csvContract(text string) Contract {
	return Contract{
		Name: "extract",
		Inputs: starlark.StringDict{
			"csv_data":  starlark.String(text),
			"parse_csv": ParseCSV,
			"math":      Math,
			"json":      JSON,
		},
		Outputs: []string{"result"},
	}
}

func TestRunReturnsOutputs(t *testing.T) {
	src := `
parsed = parse_csv(csv_data)
totals = parsed["columns"]["total"]
result = {
    "headers": parsed["headers"],
    "max": max(totals),
    "sqrt": math.sqrt(16),
    "blank": parsed["columns"]["note"][1],
    "encoded": json.encode({"n": len(totals)}),
}
`
	out, err := NewRuntime(0, nil).Run(context.Background(), csvContract("region,total,note\nEU,30.5,x\nUS,12,\n"), src)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	value, err := FromValue(out["result"])
	if err != nil {
		t.Fatalf("FromValue() error = %v", err)
	}
	result := value.(map[string]any)
	if headers := result["headers"].([]any); len(headers) != 3 || headers[0] != "region" {
		t.Fatalf("headers = %v", headers)
	}
	if result["max"] != 30.5 || result["sqrt"] != 4.0 {
		t.Fatalf("numbers = %v / %v", result["max"], result["sqrt"])
	}
	if result["blank"] != nil {
		t.Fatalf("empty cell = %v, want nil", result["blank"])
	}
	if result["encoded"] != `{"n":2}` {
		t.Fatalf("encoded = %v", result["encoded"])
	}
}

func TestRunReportsMissingOutput(t *testing.T) {
	_, err := NewRuntime(0, nil).Run(context.Background(), csvContract("a\n1\n"), "data = parse_csv(csv_data)\n")
	if !errors.Is(err, ErrContract) {
		t.Fatalf("Run() error = %v, want ErrContract", err)
	}
	var contractErr *ContractError
	if !errors.As(err, &contractErr) || contractErr.Binding != "result" {
		t.Fatalf("ContractError = %+v", contractErr)
	}
}

func TestRunRejectsUndeclaredNamesAndLoad(t *testing.T) {
	runtime := NewRuntime(0, nil)
	for _, src := range []string{
		"result = open('/etc/passwd')\n",
		"load('os.star', 'system')\nresult = 1\n",
		"result = (\n",
	} {
		_, err := runtime.Run(context.Background(), csvContract("a\n1\n"), src)
		if !errors.Is(err, ErrScript) {
			t.Fatalf("Run(%q) error = %v, want ErrScript", src, err)
		}
	}
}

func TestRunEnforcesStepLimit(t *testing.T) {
	src := "n = 0\nwhile True:\n    n += 1\nresult = n\n"
	_, err := NewRuntime(10_000, nil).Run(context.Background(), csvContract("a\n1\n"), src)
	if !errors.Is(err, ErrScript) || !strings.Contains(err.Error(), "too many steps") {
		t.Fatalf("Run() error = %v, want step limit", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	src := "n = 0\nwhile True:\n    n += 1\nresult = n\n"
	_, err := NewRuntime(1<<62, nil).Run(ctx, csvContract("a\n1\n"), src)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}
}

func TestParseCSVRequiresHeader(t *testing.T) {
	_, err := NewRuntime(0, nil).Run(context.Background(), csvContract(""), "result = parse_csv(csv_data)\n")
	if !errors.Is(err, ErrScript) || !strings.Contains(err.Error(), "no header row") {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestToValueRoundTripsNestedData(t *testing.T) {
	in := map[string]any{"b": []any{int64(1), 2.5, nil, "x"}, "a": true}
	v, err := ToValue(in)
	if err != nil {
		t.Fatalf("ToValue() error = %v", err)
	}
	if keys := v.(*starlark.Dict).Keys(); keys[0] != starlark.String("a") {
		t.Fatalf("keys not sorted: %v", keys)
	}
	out, err := FromValue(v)
	if err != nil {
		t.Fatalf("FromValue() error = %v", err)
	}
	b := out.(map[string]any)["b"].([]any)
	if b[0] != int64(1) || b[1] != 2.5 || b[2] != nil || b[3] != "x" {
		t.Fatalf("round trip = %v", b)
	}
	if _, err := ToValue(struct{}{}); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

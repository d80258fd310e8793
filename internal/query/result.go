package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/marcboeker/go-duckdb/v2"
)

var (
	ErrExecution = errors.New("query execution failed")
	ErrRowLimit  = errors.New("result exceeds row limit")
)

// ExecutionError reports a data-source failure while running a validated
// statement. It matches ErrExecution and unwraps to the driver error.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", ErrExecution, e.Err)
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Row keeps values in projection order. It encodes as a JSON object whose
// keys follow that order.
type Row struct {
	Columns []string
	Values  []any
}

func (r Row) Get(column string) (any, bool) {
	for i, name := range r.Columns {
		if name == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, fmt.Errorf("encode column %q: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type Result struct {
	Columns         []string      `json:"columns"`
	Rows            []Row         `json:"rows"`
	OptimizationTip string        `json:"optimization_tip"`
	Duration        time.Duration `json:"-"`
}

// Matrix returns the rows as positional value slices.
func (r Result) Matrix() [][]any {
	out := make([][]any, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.Values
	}
	return out
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case time.Time:
			normalized[i] = typed.UTC().Format(time.RFC3339Nano)
		case *big.Int:
			// DuckDB HUGEINT, e.g. SUM over an INTEGER column.
			normalized[i] = bigIntValue(typed)
		case duckdb.Decimal:
			normalized[i] = typed.Float64()
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func bigIntValue(v *big.Int) any {
	if v == nil {
		return nil
	}
	if v.IsInt64() {
		return v.Int64()
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

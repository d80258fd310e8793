package query

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// CSV renders the header and up to limit rows; limit <= 0 renders every row.
// NULL becomes an empty cell.
func (r Result) CSV(limit int) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(r.Columns); err != nil {
		return "", err
	}
	record := make([]string, len(r.Columns))
	for i, row := range r.Rows {
		if limit > 0 && i >= limit {
			break
		}
		for j := range record {
			record[j] = FormatCell(row.Values[j])
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func FormatCell(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return fmt.Sprint(typed)
	}
}

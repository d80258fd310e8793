package query

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/querylens/querylens/internal/datasource"
	"github.com/querylens/querylens/internal/observability"
)

const (
	tipNotConnected = "Database not connected. Cannot generate execution plan."
	tipNoFindings   = "Execution plan uses indexes for every table access; no index changes suggested."
)

// Plan is the raw EXPLAIN output rendered as text cells.
type Plan struct {
	Columns []string
	Rows    [][]string
}

var (
	pgSeqScan     = regexp.MustCompile(`(?i)seq scan on ([\w."]+)`)
	sqliteScan    = regexp.MustCompile(`^SCAN (?:TABLE )?([\w."]+)(.*)$`)
	duckdbSeqScan = regexp.MustCompile(`(?i)seq_scan`)
	duckdbTable   = regexp.MustCompile(`(?i)table:\s*([\w."]+)`)
)

// optimizationTip never fails the query: every error becomes tip text.
func (e *Executor) optimizationTip(ctx context.Context, session *datasource.Session, statement string) string {
	if session == nil || session.DB == nil {
		return tipNotConnected
	}
	plan, err := e.explain(ctx, session, statement)
	if err != nil {
		observability.IncrementPipelineFailure("query_explain")
		e.logger.DebugContext(ctx, "query_explain_failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("error", err.Error()),
		)
		return fmt.Sprintf("Could not generate execution plan: %v", err)
	}
	return SummarizePlan(session.Dialect, plan)
}

func (e *Executor) explain(ctx context.Context, session *datasource.Session, statement string) (Plan, error) {
	conn, err := session.DB.Conn(ctx)
	if err != nil {
		return Plan{}, err
	}
	defer func() { _ = conn.Close() }()

	prefix := "EXPLAIN "
	if session.Dialect == datasource.SQLite {
		prefix = "EXPLAIN QUERY PLAN "
	}
	rows, err := conn.QueryContext(ctx, prefix+statement)
	if err != nil {
		return Plan{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return Plan{}, err
		}
		cells := make([]string, len(values))
		for i, value := range normalizeValues(values) {
			if value != nil {
				cells[i] = fmt.Sprint(value)
			}
		}
		plan.Rows = append(plan.Rows, cells)
	}
	return plan, rows.Err()
}

// SummarizePlan turns EXPLAIN output into a short, human-readable tip that
// names full scans and sort or temporary-table steps.
func SummarizePlan(dialect datasource.Dialect, plan Plan) string {
	var findings []string
	add := func(finding string) {
		for _, existing := range findings {
			if existing == finding {
				return
			}
		}
		findings = append(findings, finding)
	}

	switch dialect {
	case datasource.MySQL:
		idx := columnIndex(plan.Columns)
		for _, row := range plan.Rows {
			table := cell(row, idx("table"))
			if strings.EqualFold(cell(row, idx("type")), "ALL") {
				if est := cell(row, idx("rows")); est != "" {
					add(fmt.Sprintf("full table scan on %s (~%s rows)", table, est))
				} else {
					add(fmt.Sprintf("full table scan on %s", table))
				}
			}
			extra := cell(row, idx("extra"))
			if strings.Contains(extra, "Using filesort") {
				add("sort without a usable index (filesort)")
			}
			if strings.Contains(extra, "Using temporary") {
				add("temporary table for grouping or sorting")
			}
		}
	case datasource.SQLite:
		for _, row := range plan.Rows {
			for _, text := range row {
				text = strings.TrimSpace(text)
				if m := sqliteScan.FindStringSubmatch(text); m != nil && !strings.Contains(m[2], "INDEX") {
					add("full table scan on " + m[1])
				}
				if strings.Contains(text, "USE TEMP B-TREE") {
					add("temporary b-tree for grouping or sorting")
				}
			}
		}
	default:
		text := strings.Join(flatten(plan.Rows), "\n")
		for _, m := range pgSeqScan.FindAllStringSubmatch(text, -1) {
			add("full table scan on " + strings.Trim(m[1], `"`))
		}
		if duckdbSeqScan.MatchString(text) {
			if m := duckdbTable.FindAllStringSubmatch(text, -1); len(m) > 0 {
				for _, table := range m {
					add("full table scan on " + table[1])
				}
			} else {
				add("sequential scan")
			}
		}
		if strings.Contains(text, "Sort") || strings.Contains(text, "ORDER_BY") {
			add("explicit sort step")
		}
	}

	if len(findings) == 0 {
		return tipNoFindings
	}
	return "Consider adding an index on the columns used in WHERE, JOIN or ORDER BY clauses. Plan shows: " +
		strings.Join(findings, "; ") + "."
}

// columnIndex returns a case-insensitive lookup of column positions; missing
// columns map to -1.
func columnIndex(columns []string) func(string) int {
	idx := make(map[string]int, len(columns))
	for i, name := range columns {
		idx[strings.ToLower(name)] = i
	}
	return func(name string) int {
		if i, ok := idx[name]; ok {
			return i
		}
		return -1
	}
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func flatten(rows [][]string) []string {
	var out []string
	for _, row := range rows {
		out = append(out, row...)
	}
	return out
}

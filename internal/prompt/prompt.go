// Package prompt builds the model instructions for each pipeline task. Every
// function is pure: the same inputs always produce the same messages.
package prompt

import (
	"fmt"
	"strings"

	"github.com/querylens/querylens/internal/llm"
)

// RejectionSentinel is the only response the model may give to a request that
// is not a data question.
const RejectionSentinel = "ERROR: Please provide the specific request or details about the SQL query you need."

// Binding names shared between the script prompts and the script runtime.
const (
	BindingCSVData       = "csv_data"
	BindingParseCSV      = "parse_csv"
	BindingResult        = "result"
	BindingExtractedData = "extracted_data"
	BindingFrame         = "df"
	BindingPlot          = "plt"
	BindingFigure        = "fig"
)

// ResultKeys are the keys the extraction script must put in its result dict.
var ResultKeys = []string{"headers", "data", "numeric_cols", "categorical_cols", "shape"}

type SQLGeneration struct {
	Dialect    string
	SchemaText string
	Request    string
}

func (p SQLGeneration) Messages() []llm.Message {
	dialect := dialectLabel(p.Dialect)
	var b strings.Builder
	fmt.Fprintf(&b, "Given the following %s schema, read and understand it carefully before generating the SQL query.\n\n", dialect)
	b.WriteString("Generate a single SQL query that strictly adheres to these requirements:\n\n")
	b.WriteString("1. Syntax & Style:\n")
	fmt.Fprintf(&b, "- Use standard %s syntax\n", dialect)
	b.WriteString("- Format with proper indentation and line breaks\n")
	b.WriteString("- Include explicit table aliases (e.g., customers c)\n")
	b.WriteString("- End with a semicolon\n\n")
	b.WriteString("2. JOIN Requirements:\n")
	b.WriteString("- Use explicit JOIN types (INNER, LEFT, RIGHT, etc.)\n")
	b.WriteString("- Include complete JOIN conditions with all relevant keys\n")
	b.WriteString("- Avoid implicit/comma joins\n\n")
	b.WriteString("3. Column Specifications:\n")
	b.WriteString("- Qualify all columns with table aliases\n")
	b.WriteString("- Provide meaningful column aliases for calculations/expressions\n")
	b.WriteString("- Maintain column naming consistency (snake_case)\n\n")
	b.WriteString("4. Filtering & Organization:\n")
	b.WriteString("- Include appropriate WHERE clauses for filtering\n")
	b.WriteString("- Use proper GROUP BY if aggregating\n")
	b.WriteString("- Add HAVING for aggregate filters if needed\n")
	b.WriteString("- Include ORDER BY when sequence matters\n\n")
	b.WriteString("If the request is unclear, invalid, or unrelated to SQL query generation, respond only with:\n")
	b.WriteString(RejectionSentinel)
	b.WriteString("\n\nReturn the SQL query only, with no additional explanations or comments.\n\n")
	b.WriteString("Database Schema:\n")
	b.WriteString(strings.TrimSpace(p.SchemaText))
	b.WriteString("\n\nUser Request: ")
	b.WriteString(strings.TrimSpace(p.Request))
	b.WriteString("\n")

	return []llm.Message{
		llm.System("You are a SQL optimization expert."),
		llm.User(b.String()),
	}
}

type Extraction struct {
	CSVPreview string
	TotalRows  int
	ChartKind  string
}

func (p Extraction) Messages() []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a Starlark script that reads CSV text from the predeclared string `%s`.\n\n", BindingCSVData)
	fmt.Fprintf(&b, "CSV Data Preview (showing first rows of %d total rows):\n%s\n\n", p.TotalRows, strings.TrimSpace(p.CSVPreview))
	b.WriteString("CRITICAL REQUIREMENTS:\n")
	fmt.Fprintf(&b, "1. Parse the text with the predeclared function `%s(%s)`. It returns a dict with\n", BindingParseCSV, BindingCSVData)
	b.WriteString("   `headers` (list of column names) and `columns` (dict of column name to list of values).\n")
	b.WriteString("   Numeric cells are already converted to int or float; other cells are strings; empty cells are None.\n")
	fmt.Fprintf(&b, "2. The CSV contains %d rows of data, not just the preview shown. Keep every row.\n", p.TotalRows)
	b.WriteString("3. Identify numeric and categorical columns from the values.\n")
	if kind := strings.TrimSpace(p.ChartKind); kind != "" {
		fmt.Fprintf(&b, "4. The data will be drawn as a %s chart, so make sure suitable columns are classified.\n", kind)
	}
	b.WriteString("\nThe script must assign a dict named `result` containing:\n")
	b.WriteString("- 'headers': list of column names\n")
	b.WriteString("- 'data': dict of column name to list of values\n")
	b.WriteString("- 'numeric_cols': list of numeric column names\n")
	b.WriteString("- 'categorical_cols': list of categorical column names\n")
	b.WriteString("- 'shape': tuple of (rows, columns)\n\n")
	b.WriteString("Example structure:\n")
	b.WriteString("parsed = parse_csv(csv_data)\n")
	b.WriteString("result = {\n")
	b.WriteString("    'headers': parsed['headers'],\n")
	b.WriteString("    'data': parsed['columns'],\n")
	b.WriteString("    'numeric_cols': [...],\n")
	b.WriteString("    'categorical_cols': [...],\n")
	b.WriteString("    'shape': (row_count, len(parsed['headers'])),\n")
	b.WriteString("}\n\n")
	b.WriteString("Do not use load statements, do not print, do not display anything.\n")
	b.WriteString("Return ONLY the Starlark code.\n")

	return []llm.Message{
		llm.System("You are a data processing expert. Generate Starlark code to extract data from CSV."),
		llm.User(b.String()),
	}
}

type ChartScript struct {
	Summary   string
	ChartKind string
	Title     string
}

func (p ChartScript) Messages() []llm.Message {
	kind := strings.ToLower(strings.TrimSpace(p.ChartKind))
	var b strings.Builder
	fmt.Fprintf(&b, "Create a %s chart in Starlark with the following data structure.\n\n", kind)
	b.WriteString("AVAILABLE VARIABLES:\n")
	fmt.Fprintf(&b, "- %s: dict of column name to list of values (the complete dataset)\n", BindingFrame)
	fmt.Fprintf(&b, "- %s: dict with keys headers, data, numeric_cols, categorical_cols, shape\n", BindingExtractedData)
	fmt.Fprintf(&b, "- %s: plotting module\n", BindingPlot)
	b.WriteString("- math: math module\n\n")
	b.WriteString("DATA STRUCTURE:\n")
	b.WriteString(strings.TrimSpace(p.Summary))
	b.WriteString("\n\nPLOTTING API:\n")
	b.WriteString("- fig = plt.figure(title=\"...\", xlabel=\"...\", ylabel=\"...\")\n")
	b.WriteString("- fig.bar(labels, values, label=\"series\")       labels: list of strings, values: list of numbers\n")
	b.WriteString("- fig.line(x, y, label=\"series\", markers=True)   x: list of strings or numbers, y: list of numbers\n")
	b.WriteString("- fig.pie(labels, values)                         proportions, percentage labels are added\n")
	b.WriteString("- fig.scatter(x, y, label=\"series\", alpha=0.6)  x and y: lists of numbers\n")
	b.WriteString("- fig.labels(title=\"...\", xlabel=\"...\", ylabel=\"...\")\n")
	b.WriteString("- fig.legend(True)\n\n")
	b.WriteString("CRITICAL REQUIREMENTS:\n")
	fmt.Fprintf(&b, "1. Use the COMPLETE dataset from `%s`, all rows and the appropriate columns\n", BindingFrame)
	fmt.Fprintf(&b, "2. The `%s` variable MUST be assigned the figure\n", BindingFigure)
	if title := strings.TrimSpace(p.Title); title != "" {
		fmt.Fprintf(&b, "3. Use the title %q and add proper axis labels\n", title)
	} else {
		b.WriteString("3. Add a proper title and axis labels\n")
	}
	b.WriteString("4. Do not call show, print, or load\n\n")
	b.WriteString("Chart Type Guidelines:\n")
	b.WriteString("- BAR: categorical data on the x-axis, numeric on the y-axis\n")
	b.WriteString("- LINE: ordered trend over categories or time, with markers\n")
	b.WriteString("- PIE: proportions of a whole, with percentage labels\n")
	b.WriteString("- SCATTER: correlation between two numeric columns, with transparency\n\n")
	b.WriteString("Return ONLY the Starlark code that creates the chart.\n")

	return []llm.Message{
		llm.System("You are a graph generation expert. Generate Starlark code to create graphs."),
		llm.User(b.String()),
	}
}

type Insights struct {
	RowCount     int
	ColumnCount  int
	Columns      []string
	CSVPreview   string
	SummaryStats string
	ChartKind    string
}

func (p Insights) Messages() []llm.Message {
	var b strings.Builder
	b.WriteString("Analyze this dataset and provide 3-4 concise, actionable insights.\n\n")
	b.WriteString("Dataset Info:\n")
	fmt.Fprintf(&b, "- Rows: %d, Columns: %d\n", p.RowCount, p.ColumnCount)
	fmt.Fprintf(&b, "- Column names: %s\n", strings.Join(p.Columns, ", "))
	if kind := strings.TrimSpace(p.ChartKind); kind != "" {
		fmt.Fprintf(&b, "The data will be visualized as a %s chart.\n", kind)
	}
	b.WriteString("\nData Preview (first 3 rows):\n")
	b.WriteString(strings.TrimSpace(p.CSVPreview))
	b.WriteString("\n")
	if stats := strings.TrimSpace(p.SummaryStats); stats != "" {
		b.WriteString("\nSummary Statistics:\n")
		b.WriteString(stats)
		b.WriteString("\n")
	}
	b.WriteString("\nProvide exactly 3-4 short insights (1-2 sentences each). Focus on:\n")
	b.WriteString("1. Key trends or patterns\n")
	b.WriteString("2. Notable values (highest, lowest, or interesting outliers)\n")
	b.WriteString("3. Business implications or actionable takeaways\n\n")
	b.WriteString("Format as bullet points starting with •\n")
	b.WriteString("Keep each insight concise and specific to this data.\n")

	return []llm.Message{
		llm.System("You are a data analyst providing brief, actionable insights. Be concise and specific."),
		llm.User(b.String()),
	}
}

func dialectLabel(dialect string) string {
	switch strings.ToLower(dialect) {
	case "mysql":
		return "MySQL 8.0+"
	case "postgres":
		return "PostgreSQL"
	case "sqlite":
		return "SQLite"
	case "duckdb":
		return "DuckDB"
	case "":
		return "ANSI SQL"
	default:
		return dialect
	}
}

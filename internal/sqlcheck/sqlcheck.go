// Package sqlcheck normalizes model output into a single SQL statement and
// checks that it parses in the grammar of the connected dialect. The check is
// syntactic only: a statement that parses may still be destructive or
// reference unknown tables.
package sqlcheck

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrInvalidSyntax = errors.New("invalid sql syntax")

type SyntaxError struct {
	SQL     string
	Message string
}

func (e *SyntaxError) Error() string {
	return "invalid sql syntax: " + e.Message
}

func (e *SyntaxError) Is(target error) bool {
	return target == ErrInvalidSyntax
}

var (
	fenceMarker = regexp.MustCompile("```[A-Za-z0-9_+-]*")
	statementRE = regexp.MustCompile(`(?is)\b(?:WITH\s+(?:RECURSIVE\s+)?[A-Za-z_]\w*\s*(?:\([^)]*\))?\s+AS\s*\(|SELECT\b).*?;`)
)

// Clean strips code fences and, when the text contains a terminated query,
// returns just that span. Otherwise it returns the fence-stripped text trimmed.
// The span ends at the first semicolon even inside a string literal, so
// `WHERE note = 'a;b';` is cut after `'a;` and then fails validation.
func Clean(raw string) string {
	text := fenceMarker.ReplaceAllString(raw, "")
	if span := statementRE.FindString(text); span != "" {
		return strings.TrimSpace(span)
	}
	return strings.TrimSpace(text)
}

// Analysis describes a statement that passed Validate.
type Analysis struct {
	Statements int
	ReadOnly   bool
}

type grammar func(ctx context.Context, sqlText string) (Analysis, error)

func grammarFor(dialect string) (grammar, error) {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "", "mysql", "mariadb":
		return parseMySQL, nil
	case "postgres", "postgresql":
		return parsePostgres, nil
	case "sqlite", "sqlite3":
		return parseSQLite, nil
	case "duckdb":
		return parseDuckDB, nil
	default:
		return nil, fmt.Errorf("no sql grammar for dialect %q", dialect)
	}
}

func Validate(ctx context.Context, dialect, sqlText string) error {
	_, err := Analyze(ctx, dialect, sqlText)
	return err
}

// Analyze parses sqlText with the grammar of dialect. An empty dialect means
// MySQL.
func Analyze(ctx context.Context, dialect, sqlText string) (Analysis, error) {
	parse, err := grammarFor(dialect)
	if err != nil {
		return Analysis{}, err
	}
	if strings.TrimSpace(sqlText) == "" {
		return Analysis{}, &SyntaxError{SQL: sqlText, Message: "empty statement"}
	}
	return parse(ctx, sqlText)
}

// StripTrailingSemicolons is used where a statement is embedded in another,
// such as EXPLAIN.
func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

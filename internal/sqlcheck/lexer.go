package sqlcheck

import "strings"

// statement is one semicolon-delimited statement with the bare words found
// outside quotes and comments, upper-cased.
type statement struct {
	text  string
	words []string
}

// splitStatements cuts sqlText at semicolons that are not inside quotes,
// bracketed identifiers, dollar quotes or comments. Statements made only of
// whitespace and comments are dropped.
func splitStatements(sqlText string) []statement {
	var out []statement
	var words []string
	start, tokens := 0, false
	flush := func(end int) {
		if tokens {
			out = append(out, statement{text: strings.TrimSpace(sqlText[start:end]), words: words})
		}
		words, tokens = nil, false
	}

	for i := 0; i < len(sqlText); {
		c := sqlText[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(sqlText, i, c)
			tokens = true
		case c == '[':
			i = skipPast(sqlText, i+1, "]")
			tokens = true
		case c == '$' && strings.HasPrefix(sqlText[i:], "$$"):
			i = skipPast(sqlText, i+2, "$$")
			tokens = true
		case strings.HasPrefix(sqlText[i:], "--"):
			i = skipPast(sqlText, i, "\n")
		case strings.HasPrefix(sqlText[i:], "/*"):
			i = skipPast(sqlText, i+2, "*/")
		case c == ';':
			flush(i)
			i++
			start = i
		case isWordStart(c):
			j := i + 1
			for j < len(sqlText) && isWordPart(sqlText[j]) {
				j++
			}
			words = append(words, strings.ToUpper(sqlText[i:j]))
			tokens = true
			i = j
		default:
			if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
				tokens = true
			}
			i++
		}
	}
	flush(len(sqlText))
	return out
}

func skipQuoted(s string, i int, quote byte) int {
	for j := i + 1; j < len(s); j++ {
		if s[j] != quote {
			continue
		}
		if j+1 < len(s) && s[j+1] == quote {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}

func skipPast(s string, from int, end string) int {
	if idx := strings.Index(s[from:], end); idx >= 0 {
		return from + idx + len(end)
	}
	return len(s)
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordPart(c byte) bool {
	return isWordStart(c) || c == '$' || (c >= '0' && c <= '9')
}

var writeKeywords = map[string]bool{"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true}

// lexicalAnalysis classifies statements for grammars that only report
// whether the text parses.
func lexicalAnalysis(stmts []statement) Analysis {
	out := Analysis{Statements: len(stmts), ReadOnly: true}
	for _, stmt := range stmts {
		if !readOnlyWords(stmt.words) {
			out.ReadOnly = false
		}
	}
	return out
}

func readOnlyWords(words []string) bool {
	if len(words) == 0 {
		return false
	}
	switch words[0] {
	case "SELECT", "VALUES", "TABLE", "FROM":
		return true
	case "WITH":
		for _, w := range words[1:] {
			if writeKeywords[w] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

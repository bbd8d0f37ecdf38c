package sqltools

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	lineComment  = regexp.MustCompile(`--[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	quoted       = regexp.MustCompile(`'(?:[^']|'')*'|"(?:[^"]|"")*"`)
	writeKeyword = regexp.MustCompile(`(?i)\b(insert|update|delete|merge|upsert|create|drop|alter|truncate|grant|revoke|attach|detach|vacuum|reindex|copy|pragma|lock)\b`)
	limitClause  = regexp.MustCompile(`(?i)\blimit\s+\d+`)
)

// ErrNotReadOnly is returned for statements that could change the database.
var ErrNotReadOnly = fmt.Errorf("only read-only SELECT queries are allowed")

// CheckReadOnly accepts a single SELECT or WITH ... SELECT statement. It is a
// keyword screen, not a parser: string literals and comments are blanked out
// first so their contents cannot trigger or hide a match.
func CheckReadOnly(query string) error {
	stripped := strip(query)
	if stripped == "" {
		return fmt.Errorf("empty query")
	}
	if strings.Contains(stripped, ";") {
		return fmt.Errorf("multiple statements are not allowed")
	}

	first := strings.ToUpper(strings.Fields(stripped)[0])
	if first != "SELECT" && first != "WITH" {
		return fmt.Errorf("%w: statement starts with %s", ErrNotReadOnly, first)
	}
	if kw := writeKeyword.FindString(stripped); kw != "" {
		return fmt.Errorf("%w: found %s", ErrNotReadOnly, strings.ToUpper(kw))
	}
	return nil
}

// WithLimit appends a LIMIT clause when the query has none.
func WithLimit(query string, limit int) string {
	q := trimStatement(query)
	if limit <= 0 || limitClause.MatchString(strip(q)) {
		return q
	}
	return fmt.Sprintf("%s LIMIT %d", q, limit)
}

// trimStatement drops surrounding whitespace and trailing semicolons.
func trimStatement(query string) string {
	return strings.TrimRight(strings.TrimSpace(query), "; \t\r\n")
}

func strip(query string) string {
	s := blockComment.ReplaceAllString(query, " ")
	s = lineComment.ReplaceAllString(s, " ")
	s = quoted.ReplaceAllString(s, "''")
	return trimStatement(s)
}

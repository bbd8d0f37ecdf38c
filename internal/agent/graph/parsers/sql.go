package parsers

import (
	"regexp"
	"strings"
)

var (
	fenceOpen  = regexp.MustCompile("^```(?i:postgresql|postgres|sqlite|psql|sql)?\\s*")
	fenceClose = regexp.MustCompile("(?s)\\s*```\\s*;?\\s*$")
	sqlLabel   = regexp.MustCompile(`(?i)^(corrected\s+)?sql(\s+query)?\s*:\s*`)
)

// CleanSQL strips the decoration models tend to add around a query:
// markdown fences, stray backticks, and a leading "SQL Query:" label.
// A clean query is returned unchanged.
func CleanSQL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = sqlLabel.ReplaceAllString(s, "")
	if strings.HasPrefix(s, "```") {
		s = fenceOpen.ReplaceAllString(s, "")
		s = fenceClose.ReplaceAllString(s, "")
	}
	s = strings.ReplaceAll(s, "`", "")
	return strings.TrimSpace(s)
}

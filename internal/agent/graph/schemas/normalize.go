package schemas

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize compacts schema text before it is embedded into a prompt. Literal
// "\n" sequences become real newlines, escaped line continuations are dropped,
// and every line has its whitespace runs collapsed and its ends trimmed.
// Blank lines are removed.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, `\n`, "\n")
	text = strings.ReplaceAll(text, `\`+"\n", "")

	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(whitespaceRun.ReplaceAllString(line, " "))
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

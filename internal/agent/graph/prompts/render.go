package prompts

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"gopkg.in/yaml.v3"
)

// DefaultMaxBlockChars bounds schema and table blocks when no budget is configured.
const DefaultMaxBlockChars = 6000

// format renders a single system template through the Eino prompt component so
// prompt callbacks fire for every composed prompt.
func format(ctx context.Context, name, tpl string, vars map[string]any, tail ...schema.MessagesTemplate) ([]*schema.Message, error) {
	templates := append([]schema.MessagesTemplate{schema.SystemMessage(tpl)}, tail...)
	msgs, err := prompt.FromMessages(schema.GoTemplate, templates...).Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return nil, fmt.Errorf("%s prompt render: empty result", name)
	}
	return msgs, nil
}

// truncate cuts s to at most max bytes on a line boundary when possible.
func truncate(s string, max int) string {
	if max <= 0 {
		max = DefaultMaxBlockChars
	}
	if len(s) <= max {
		return s
	}
	end := max
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	cut := s[:end]
	if i := strings.LastIndexByte(cut, '\n'); i > end/2 {
		cut = cut[:i]
	}
	return cut + "\n... (truncated)"
}

// toYAML renders v as YAML, or fallback when v is empty or cannot be encoded.
func toYAML(v any, fallback string) string {
	if isEmpty(v) {
		return fallback
	}
	b, err := yaml.Marshal(v)
	if err != nil {
		return fallback
	}
	out := strings.TrimSpace(string(b))
	if out == "" || out == "null" || out == "[]" || out == "{}" {
		return fallback
	}
	return out
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	}
	return false
}

package conversations

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// maxMessageChars bounds each message rendered into a transcript.
const maxMessageChars = 2000

// Window returns a copy of the last max non-empty user/assistant messages.
// System and tool messages never reach the classifier.
func Window(messages []*schema.Message, max int) []*schema.Message {
	filtered := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		if m == nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.Role != schema.User && m.Role != schema.Assistant {
			continue
		}
		filtered = append(filtered, m)
	}
	return trimTail(filtered, max)
}

// Transcript renders messages as one line each, oldest first.
func Transcript(messages []*schema.Message) string {
	if len(messages) == 0 {
		return "No earlier messages."
	}

	var b strings.Builder
	for _, msg := range messages {
		if msg == nil || msg.Content == "" {
			continue
		}
		content := msg.Content
		if len(content) > maxMessageChars {
			content = content[:maxMessageChars] + "..."
		}
		switch msg.Role {
		case schema.User:
			b.WriteString("UserMessage(" + content + ")\n")
		case schema.Assistant:
			b.WriteString("AssistantMessage(" + content + ")\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 || len(messages) <= maxTurns {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}

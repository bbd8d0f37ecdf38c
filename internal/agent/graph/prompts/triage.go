package prompts

import (
	"context"
	_ "embed"

	"github.com/cloudwego/eino/schema"
)

//go:embed template/triage.txt
var triageSystemPrompt string

// RenderTriage builds the classifier input: the fixed instruction followed by
// the bounded conversation history.
func RenderTriage(ctx context.Context, assistantName string, history []*schema.Message) ([]*schema.Message, error) {
	return format(ctx, "triage", triageSystemPrompt,
		map[string]any{
			"AssistantName": assistantName,
			"history":       history,
		},
		schema.MessagesPlaceholder("history", false),
	)
}

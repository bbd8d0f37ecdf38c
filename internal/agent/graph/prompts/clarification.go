package prompts

import (
	"context"
	_ "embed"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/conversations"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
)

//go:embed template/clarification.txt
var clarificationPrompt string

// ClarificationInput is the runtime context of a clarifying question.
type ClarificationInput struct {
	LastUserMessage string
	History         []*schema.Message
	Context         model.UserContext
}

// RenderClarification renders the clarification prompt with memories formatted as YAML.
func RenderClarification(ctx context.Context, in ClarificationInput) ([]*schema.Message, error) {
	var profile any
	if in.Context.Profile != nil {
		profile = in.Context.Profile
	}
	var episodes, patterns any
	if len(in.Context.Episodes) > 0 {
		episodes = in.Context.Episodes
	}
	if len(in.Context.Patterns) > 0 {
		patterns = in.Context.Patterns
	}

	return format(ctx, "clarification", clarificationPrompt, map[string]any{
		"LastUserMessage": in.LastUserMessage,
		"Transcript":      conversations.Transcript(in.History),
		"Profile":         toYAML(profile, "User profile not available."),
		"Episodes":        toYAML(episodes, "No recent interactions found."),
		"Patterns":        toYAML(patterns, "No common patterns available."),
	})
}

package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/conversations"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/memories"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/prompts"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/text2sql/internal/core/error"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

// NewClarificationNode asks the user one clarifying question, enriched with
// whatever long-term memory is available. Past the ceiling it apologises and
// ends the conversation without calling the model.
func NewClarificationNode(llm *LLM, agg *memories.Aggregator, cfg model.ConversationConfig) NodeFunc {
	return func(ctx context.Context, s *model.ConversationState) (*model.StateDelta, error) {
		count := bump(s.ClarificationCount, cfg.MaxClarifications)
		if count > cfg.MaxClarifications {
			logx.Thread(s.ThreadID, s.UserID).Info().
				Str("kind", string(errx.KindClarificationExhausted)).
				Int("clarification_count", count).
				Msg("clarification limit reached")
			return &model.StateDelta{
				Messages:           []*schema.Message{schema.AssistantMessage(ClarificationApology, nil)},
				Decision:           model.DecisionPtr(model.DecisionEndConversation),
				ClarificationCount: model.IntPtr(count),
			}, nil
		}

		msgs, err := prompts.RenderClarification(ctx, prompts.ClarificationInput{
			LastUserMessage: s.LastUserMessage(),
			History:         conversations.Window(s.Messages, cfg.HistoryMessages),
			Context:         agg.UserContext(ctx, s.ThreadID, s.UserID),
		})
		if err != nil {
			return nil, fmt.Errorf("render clarification prompt: %w", err)
		}

		reply, err := llm.Stream(ctx, model.StageClarification, msgs)
		if err != nil {
			return nil, err
		}
		question := strings.TrimSpace(reply.Content)
		if question == "" {
			question = ClarificationApology
		}

		return &model.StateDelta{
			Messages:           []*schema.Message{schema.AssistantMessage(question, nil)},
			Decision:           model.DecisionPtr(model.DecisionNone),
			ClarificationCount: model.IntPtr(count),
			Usage:              reply.Usage,
		}, nil
	}
}

package nodes

import (
	"context"
	"fmt"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/conversations"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/parsers"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/prompts"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/text2sql/internal/core/error"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

// NewTriageNode classifies the latest message into one of the four branches.
// Labels outside the enum fall back to need_clarification.
func NewTriageNode(llm *LLM, assistantName string, historyMessages int) NodeFunc {
	return func(ctx context.Context, s *model.ConversationState) (*model.StateDelta, error) {
		history := conversations.Window(s.Messages, historyMessages)
		msgs, err := prompts.RenderTriage(ctx, assistantName, history)
		if err != nil {
			return nil, fmt.Errorf("render triage prompt: %w", err)
		}

		reply, err := llm.Generate(ctx, model.StageTriage, msgs)
		if err != nil {
			return nil, err
		}

		decision, ok := parsers.ParseDecision(reply.Content)
		log := logx.Thread(s.ThreadID, s.UserID)
		if !ok {
			log.Warn().
				Str("kind", string(errx.KindClassificationUnrecognized)).
				Str("label", reply.Content).
				Msg("unrecognized triage label, asking for clarification")
		}
		log.Debug().Str("decision", string(decision)).Msg("triage")

		return &model.StateDelta{
			Decision: model.DecisionPtr(decision),
			Usage:    reply.Usage,
		}, nil
	}
}

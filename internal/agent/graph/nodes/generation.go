package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/parsers"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/prompts"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/schemas"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/text2sql/internal/core/error"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

// NewSQLGenerationNode writes SQL for the latest question. It neither validates nor executes it.
func NewSQLGenerationNode(llm *LLM, resolver *schemas.Resolver, pc model.PromptConfig, schemaLimit int) NodeFunc {
	return func(ctx context.Context, s *model.ConversationState) (*model.StateDelta, error) {
		sql, usage, err := generateSQL(ctx, llm, resolver, pc, schemaLimit, s, "", model.StageSQLGeneration)
		if err != nil {
			return nil, err
		}
		return &model.StateDelta{GeneratedSQL: model.StringPtr(sql), Usage: usage}, nil
	}
}

// NewRetryGenerationNode regenerates SQL with the last validation error in the prompt.
// Validation state is left alone; the Validation node re-checks the new SQL.
func NewRetryGenerationNode(llm *LLM, resolver *schemas.Resolver, pc model.PromptConfig, cfg model.ConversationConfig) NodeFunc {
	return func(ctx context.Context, s *model.ConversationState) (*model.StateDelta, error) {
		count := bump(s.RetryCount, cfg.MaxRetries)
		log := logx.Thread(s.ThreadID, s.UserID)
		if count > cfg.MaxRetries {
			log.Info().
				Str("kind", string(errx.KindRetryExhausted)).
				Int("retry_count", count).
				Msg("retry limit reached")
			return &model.StateDelta{
				Messages:   []*schema.Message{schema.AssistantMessage(RetryApology, nil)},
				Decision:   model.DecisionPtr(model.DecisionEndConversation),
				RetryCount: model.IntPtr(count),
			}, nil
		}

		previous := ""
		if s.Validation != nil {
			previous = s.Validation.Error
		}
		log.Debug().Int("retry_count", count).Str("previous_error", previous).Msg("regenerating sql")

		sql, usage, err := generateSQL(ctx, llm, resolver, pc, cfg.SchemaLimit, s, previous, model.StageRetryGeneration)
		if err != nil {
			return nil, err
		}
		return &model.StateDelta{
			GeneratedSQL: model.StringPtr(sql),
			Decision:     model.DecisionPtr(model.DecisionNone),
			RetryCount:   model.IntPtr(count),
			Usage:        usage,
		}, nil
	}
}

func generateSQL(
	ctx context.Context,
	llm *LLM,
	resolver *schemas.Resolver,
	pc model.PromptConfig,
	schemaLimit int,
	s *model.ConversationState,
	previousError string,
	stage model.Stage,
) (string, *model.Usage, error) {
	question := s.LastUserMessage()
	fragments, tables := resolver.Resolve(ctx, question, schemaLimit)

	msgs, err := prompts.RenderGeneration(ctx, prompts.GenerationInput{
		Question:        question,
		SchemaFragments: fragments,
		Tables:          tables,
		PreviousError:   previousError,
		Dialect:         pc.Dialect,
		MaxBlockChars:   pc.MaxBlockChars,
	})
	if err != nil {
		return "", nil, fmt.Errorf("render generation prompt: %w", err)
	}

	reply, err := llm.Stream(ctx, stage, msgs)
	if err != nil {
		return "", nil, err
	}
	sql := parsers.CleanSQL(reply.Content)
	logx.Thread(s.ThreadID, s.UserID).Debug().Str("stage", string(stage)).Str("sql", sql).Msg("generated sql")
	return sql, reply.Usage, nil
}

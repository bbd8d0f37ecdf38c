package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/prompts"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/text2sql/internal/core/error"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

// ExecutionPayload is the assistant message body for a query that returned rows.
type ExecutionPayload struct {
	SQL     string           `json:"sql"`
	Data    []map[string]any `json:"data"`
	Summary string           `json:"summary"`
}

// NewExecutionNode runs the validated SQL and reports exactly one outcome.
// The episode for a successful query is recorded by the caller once the
// outcome is persisted.
func NewExecutionNode(llm *LLM, toolbox model.Toolbox, sampleRows int) NodeFunc {
	return func(ctx context.Context, s *model.ConversationState) (*model.StateDelta, error) {
		log := logx.Thread(s.ThreadID, s.UserID)
		sql := s.GeneratedSQL
		if strings.TrimSpace(sql) == "" {
			return reply(NoSQLToExecute), nil
		}
		if toolbox == nil {
			return unavailable(log), nil
		}

		res, err := toolbox.ExecuteSQL(ctx, sql)
		switch {
		case errors.Is(err, errx.ErrToolUnavailable):
			return unavailable(log), nil
		case err != nil:
			res = &model.ExecutionResult{Success: false, Error: err.Error()}
		case res == nil:
			res = &model.ExecutionResult{Success: false, Error: "empty response from execution tool"}
		}

		if !res.Success {
			log.Warn().Str("kind", string(errx.KindExecutionFailed)).Str("error", res.Error).Msg("query failed")
			d := reply("Error executing query: " + res.Error)
			d.Execution = res
			return d, nil
		}

		if len(res.Rows) == 0 {
			log.Info().Str("kind", string(errx.KindExecutionEmpty)).Msg("query returned no rows")
			d := reply(ExecutionEmptyMessage)
			d.Execution = res
			return d, nil
		}

		summary, usage := summarize(ctx, llm, prompts.SummaryInput{
			Question:   s.LastUserMessage(),
			SQL:        sql,
			Rows:       res.Rows,
			SampleRows: sampleRows,
		}, log)

		body, err := json.MarshalIndent(ExecutionPayload{SQL: sql, Data: res.Rows, Summary: summary}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode execution payload: %w", err)
		}
		log.Info().Int("row_count", res.RowCount).Msg("query executed")

		d := reply(string(body))
		d.Execution = res
		d.Summary = model.StringPtr(summary)
		d.Usage = usage
		return d, nil
	}
}

// summarize degrades to a fixed note when the prompt or the model fails.
func summarize(ctx context.Context, llm *LLM, in prompts.SummaryInput, log *zerolog.Logger) (string, *model.Usage) {
	msgs, err := prompts.RenderSummary(ctx, in)
	if err != nil {
		log.Warn().Err(err).Msg("render summary prompt")
		return SummaryUnavailable, nil
	}
	out, err := llm.Stream(ctx, model.StageExecution, msgs)
	if err != nil {
		log.Warn().Err(err).Msg("summary generation failed")
		return SummaryUnavailable, nil
	}
	summary := strings.TrimSpace(out.Content)
	if summary == "" {
		return SummaryUnavailable, out.Usage
	}
	return summary, out.Usage
}

func unavailable(log *zerolog.Logger) *model.StateDelta {
	log.Warn().Str("kind", string(errx.KindExecutionToolUnavailable)).Msg("execution tool unavailable")
	d := reply(ExecutionUnavailable)
	d.Execution = &model.ExecutionResult{Success: false, Error: ExecutionUnavailable}
	return d
}

func reply(text string) *model.StateDelta {
	return &model.StateDelta{Messages: []*schema.Message{schema.AssistantMessage(text, nil)}}
}

package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/memories"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/nodes/nodestest"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/schemas"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/text2sql/internal/core/error"
)

func TestMain(m *testing.M) {
	// the genai client registers an opencensus view worker at init
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

var testConversation = model.ConversationConfig{
	MaxClarifications: 3,
	MaxRetries:        3,
	HistoryMessages:   20,
	SchemaLimit:       2,
	SampleRows:        5,
}

func newState(msgs ...string) *model.ConversationState {
	s := model.NewConversationState("t1", "u1")
	for _, m := range msgs {
		s.AppendMessages(schema.UserMessage(m))
	}
	return s
}

func llmOf(m *nodestest.ChatModel) *LLM {
	return &LLM{Model: m, Name: "gemini-2.5-flash", Timeout: time.Second}
}

func TestTriage(t *testing.T) {
	tests := []struct {
		reply string
		want  model.Decision
	}{
		{"main_logic", model.DecisionMainLogic},
		{"  `handle_follow_up`\n", model.DecisionFollowUp},
		{"modification_intent", model.DecisionModification},
		{"need_clarification", model.DecisionNeedClarification},
		{"I think this is a SQL question", model.DecisionNeedClarification},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			cm := nodestest.NewChatModel(tt.reply)
			d, err := NewTriageNode(llmOf(cm), "Simba", 20).Run(context.Background(), newState("how many users?"))
			require.NoError(t, err)
			require.NotNil(t, d.Decision)
			assert.Equal(t, tt.want, *d.Decision)
			assert.Empty(t, d.Messages)

			calls := cm.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, schema.System, calls[0][0].Role)
			assert.Equal(t, "how many users?", calls[0][len(calls[0])-1].Content)
		})
	}
}

func TestTriage_ModelFailureIsFatal(t *testing.T) {
	cm := &nodestest.ChatModel{Err: errors.New("quota exceeded")}
	_, err := NewTriageNode(llmOf(cm), "Simba", 20).Run(context.Background(), newState("hi"))
	require.Error(t, err)
	assert.Equal(t, errx.KindLLM, errx.KindOf(err))
	assert.True(t, errx.KindOf(err).Fatal())
}

func TestClarification_AsksOneQuestion(t *testing.T) {
	cm := nodestest.NewChatModel("Which users do you mean, active ones or all of them?")
	var chunks []string
	ctx := WithChunkSink(context.Background(), func(c string) { chunks = append(chunks, c) })

	node := NewClarificationNode(llmOf(cm), memories.NewAggregator(nil, 0, 0, 0), testConversation)
	d, err := node.Run(ctx, newState("show me users"))
	require.NoError(t, err)

	require.Len(t, d.Messages, 1)
	assert.Equal(t, schema.Assistant, d.Messages[0].Role)
	assert.Equal(t, "Which users do you mean, active ones or all of them?", d.Messages[0].Content)
	assert.Equal(t, 1, *d.ClarificationCount)
	assert.Equal(t, model.DecisionNone, *d.Decision)
	assert.Equal(t, d.Messages[0].Content, strings.Join(chunks, ""))
	assert.Contains(t, cm.Calls()[0][0].Content, `"show me users"`)
}

func TestClarification_Exhausted(t *testing.T) {
	cm := nodestest.NewChatModel()
	node := NewClarificationNode(llmOf(cm), nil, testConversation)

	for _, prior := range []int{3, 4} {
		s := newState("users")
		s.ClarificationCount = prior
		d, err := node.Run(context.Background(), s)
		require.NoError(t, err)
		require.Len(t, d.Messages, 1)
		assert.Equal(t, ClarificationApology, d.Messages[0].Content)
		assert.Equal(t, model.DecisionEndConversation, *d.Decision)
		assert.Equal(t, 4, *d.ClarificationCount)
	}
	assert.Zero(t, cm.CallCount())
}

func TestSQLGeneration_CleansReply(t *testing.T) {
	cm := nodestest.NewChatModel("```sql\nSELECT count(*) FROM users\n```")
	tb := &nodestest.Toolbox{Tables: "users(id integer)"}
	node := NewSQLGenerationNode(llmOf(cm), schemas.NewResolver(nil, tb, time.Second), model.PromptConfig{Dialect: "SQLite"}, 2)

	d, err := node.Run(context.Background(), newState("how many users?"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT count(*) FROM users", *d.GeneratedSQL)
	assert.Empty(t, d.Messages)
	assert.Nil(t, d.Validation)
	assert.Nil(t, d.Decision)

	prompt := cm.Calls()[0][0].Content
	assert.Contains(t, prompt, "users(id integer)")
	assert.Contains(t, prompt, "expert SQLite analyst")
}

func TestRetryGeneration_IncludesPreviousError(t *testing.T) {
	cm := nodestest.NewChatModel("SELECT name FROM users")
	node := NewRetryGenerationNode(llmOf(cm), schemas.NewResolver(nil, nil, time.Second), model.PromptConfig{}, testConversation)

	s := newState("list user names")
	s.GeneratedSQL = "SELECT nme FROM users"
	s.Validation = &model.ValidationResult{Valid: false, Error: `no such column: nme`}

	d, err := node.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM users", *d.GeneratedSQL)
	assert.Equal(t, 1, *d.RetryCount)
	assert.Equal(t, model.DecisionNone, *d.Decision)
	assert.Nil(t, d.Validation)
	assert.Contains(t, cm.Calls()[0][0].Content, "PREVIOUS ERROR: no such column: nme")
}

func TestRetryGeneration_Exhausted(t *testing.T) {
	cm := nodestest.NewChatModel()
	node := NewRetryGenerationNode(llmOf(cm), nil, model.PromptConfig{}, testConversation)
	s := newState("q")
	s.RetryCount = 3

	d, err := node.Run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, d.Messages, 1)
	assert.Equal(t, RetryApology, d.Messages[0].Content)
	assert.Equal(t, model.DecisionEndConversation, *d.Decision)
	assert.Equal(t, 4, *d.RetryCount)
	assert.Nil(t, d.GeneratedSQL)
	assert.Zero(t, cm.CallCount())
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		toolbox model.Toolbox
		want    model.ValidationResult
	}{
		{"empty sql", "  ", &nodestest.Toolbox{}, model.ValidationResult{Valid: false, Error: ValidationNoSQL}},
		{"no toolbox", "SELECT 1", nil, model.ValidationResult{Valid: false, Error: ValidationUnavailable}},
		{"tool missing", "SELECT 1", &nodestest.Toolbox{ValidateErr: errx.ErrToolUnavailable}, model.ValidationResult{Valid: false, Error: ValidationUnavailable}},
		{"transport error", "SELECT 1", &nodestest.Toolbox{ValidateErr: errors.New("broken pipe")}, model.ValidationResult{Valid: false, Error: "validation tool error: broken pipe"}},
		{"invalid", "SELECT nme FROM users", &nodestest.Toolbox{Verdicts: []model.ValidationResult{{Valid: false, Error: "no such column: nme"}}}, model.ValidationResult{Valid: false, Error: "no such column: nme"}},
		{"valid", "SELECT 1", &nodestest.Toolbox{}, model.ValidationResult{Valid: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newState("q")
			s.GeneratedSQL = tt.sql
			node := NewValidationNode(tt.toolbox)

			first, err := node.Run(context.Background(), s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *first.Validation)

			again, err := node.Run(context.Background(), s)
			require.NoError(t, err)
			assert.Equal(t, *first.Validation, *again.Validation)
		})
	}
}

func TestExecution_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		toolbox model.Toolbox
		want    string
	}{
		{"no sql", "", &nodestest.Toolbox{}, NoSQLToExecute},
		{"no toolbox", "SELECT 1", nil, ExecutionUnavailable},
		{"tool missing", "SELECT 1", &nodestest.Toolbox{ExecuteErr: errx.ErrToolUnavailable}, ExecutionUnavailable},
		{"failure", "SELECT 1", &nodestest.Toolbox{Execution: &model.ExecutionResult{Success: false, Error: "relation \"x\" does not exist"}}, `Error executing query: relation "x" does not exist`},
		{"empty", "SELECT 1", &nodestest.Toolbox{Execution: &model.ExecutionResult{Success: true}}, ExecutionEmptyMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := nodestest.NewChatModel()
			s := newState("q")
			s.GeneratedSQL = tt.sql

			d, err := NewExecutionNode(llmOf(cm), tt.toolbox, 5).Run(context.Background(), s)
			require.NoError(t, err)
			require.Len(t, d.Messages, 1)
			assert.Equal(t, tt.want, d.Messages[0].Content)
			assert.Zero(t, cm.CallCount())
		})
	}
}

func TestExecution_RowsProduceSummaryPayload(t *testing.T) {
	rows := []map[string]any{{"status": "paid", "n": float64(3)}, {"status": "open", "n": float64(1)}}
	tb := &nodestest.Toolbox{Execution: &model.ExecutionResult{Success: true, Rows: rows, RowCount: 2, Columns: []string{"n", "status"}}}
	cm := nodestest.NewChatModel("Executive Summary: most orders are paid.")
	cm.Usage = &schema.TokenUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120}
	s := newState("orders by status")
	s.GeneratedSQL = "SELECT status, count(*) AS n FROM orders GROUP BY status"
	d, err := NewExecutionNode(llmOf(cm), tb, 5).Run(context.Background(), s)
	require.NoError(t, err)

	require.Len(t, d.Messages, 1)
	var payload ExecutionPayload
	require.NoError(t, json.Unmarshal([]byte(d.Messages[0].Content), &payload))
	assert.Equal(t, s.GeneratedSQL, payload.SQL)
	assert.Equal(t, rows, payload.Data)
	assert.Equal(t, "Executive Summary: most orders are paid.", payload.Summary)
	assert.Equal(t, payload.Summary, *d.Summary)
	assert.Equal(t, []string{s.GeneratedSQL}, tb.Executed())

	require.NotNil(t, d.Usage)
	assert.Equal(t, 120, d.Usage.TotalTokens)
	assert.Greater(t, d.Usage.CostUSD, 0.0)
}

func TestExecution_SummaryFailureDegrades(t *testing.T) {
	tb := &nodestest.Toolbox{Execution: &model.ExecutionResult{Success: true, Rows: []map[string]any{{"n": float64(1)}}, RowCount: 1}}
	cm := &nodestest.ChatModel{Err: errors.New("model overloaded")}

	s := newState("q")
	s.GeneratedSQL = "SELECT 1 AS n"
	d, err := NewExecutionNode(llmOf(cm), tb, 5).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, SummaryUnavailable, *d.Summary)
	assert.Contains(t, d.Messages[0].Content, `"summary": "`+SummaryUnavailable+`"`)
}

func TestGuards(t *testing.T) {
	d, err := NewFollowUpNode("Simba").Run(context.Background(), newState("hello"))
	require.NoError(t, err)
	require.Len(t, d.Messages, 1)
	assert.Equal(t, FollowUpMessage("Simba"), d.Messages[0].Content)
	assert.Nil(t, d.ClarificationCount)
	assert.Nil(t, d.RetryCount)

	d, err = NewModificationGuardNode("Simba").Run(context.Background(), newState("delete all rows from users"))
	require.NoError(t, err)
	require.Len(t, d.Messages, 1)
	assert.Contains(t, d.Messages[0].Content, "can't make any changes")
}

func TestNew_RequiresModels(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)

	handlers, err := New(Deps{Models: &ChatModels{Classifier: nodestest.NewChatModel(), Generator: nodestest.NewChatModel()}})
	require.NoError(t, err)
	for _, stage := range model.Stages {
		if stage == model.StageTerminal {
			assert.NotContains(t, handlers, stage)
			continue
		}
		assert.Contains(t, handlers, stage)
	}
}

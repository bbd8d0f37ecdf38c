package graph

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/nodes"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/nodes/nodestest"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/repo"
	errx "github.com/Chative-core-poc-v1/text2sql/internal/core/error"
)

func TestMain(m *testing.M) {
	// the genai client registers an opencensus view worker at init
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type harness struct {
	classifier *nodestest.ChatModel
	generator  *nodestest.ChatModel
	toolbox    *nodestest.Toolbox
	store      model.CheckpointStore
	episodes   *episodeWriter
	orch       *Orchestrator
}

type episodeWriter struct {
	mu    sync.Mutex
	saved []model.QueryEpisode
}

func (w *episodeWriter) SaveEpisode(ctx context.Context, userID string, ep model.QueryEpisode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.saved = append(w.saved, ep)
	return nil
}

func (w *episodeWriter) Saved() []model.QueryEpisode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]model.QueryEpisode(nil), w.saved...)
}

func newHarness(t *testing.T, classifier, generator []string, tb *nodestest.Toolbox) *harness {
	t.Helper()
	return newHarnessWithStore(t, classifier, generator, tb, repo.NewMemoryCheckpointStore(0))
}

func newHarnessWithStore(t *testing.T, classifier, generator []string, tb *nodestest.Toolbox, store model.CheckpointStore) *harness {
	t.Helper()
	if tb == nil {
		tb = &nodestest.Toolbox{Tables: "users(id integer, name text)"}
	}
	h := &harness{
		classifier: nodestest.NewChatModel(classifier...),
		generator:  nodestest.NewChatModel(generator...),
		toolbox:    tb,
		store:      store,
		episodes:   &episodeWriter{},
	}
	o, err := Build(context.Background(), &GraphConfig{
		ChatModels: &nodes.ChatModels{
			Classifier:          h.classifier,
			Generator:           h.generator,
			ClassifierModelName: "gemini-2.5-flash-lite",
			GeneratorModelName:  "gemini-2.5-flash",
		},
		Toolbox:      tb,
		Checkpoints:  store,
		MemoryWriter: h.episodes,
		Conversation: model.ConversationConfig{MaxClarifications: 3, MaxRetries: 3, HistoryMessages: 20, SchemaLimit: 2, SampleRows: 5},
		Prompt:       model.PromptConfig{AssistantName: "Simba", Dialect: "SQLite"},
		Timeouts:     model.TimeoutConfig{LLM: time.Second, Tool: time.Second, Memory: time.Second},
		Callbacks:    []einocb.Handler{},
	})
	require.NoError(t, err)
	h.orch = o
	t.Cleanup(o.Wait)
	return h
}

func ask(t *testing.T, h *harness, msg string) *model.TurnResult {
	t.Helper()
	res, err := h.orch.Invoke(context.Background(), model.TurnInput{ThreadID: "t1", UserID: "u1", Message: msg})
	require.NoError(t, err)
	return res
}

func drain(t *testing.T, sr *schema.StreamReader[*model.Event]) []*model.Event {
	t.Helper()
	defer sr.Close()
	var out []*model.Event
	for {
		ev, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

func assistantCount(msgs []*schema.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role == schema.Assistant {
			n++
		}
	}
	return n
}

func TestScenarioA_ClarificationSuspendsTurn(t *testing.T) {
	h := newHarness(t, []string{"need_clarification"}, []string{"Which users would you like to see?"}, nil)

	res := ask(t, h, "show me users")

	assert.Equal(t, []model.Stage{model.StageTriage, model.StageClarification}, res.Stages)
	assert.Equal(t, model.StatusSuspended, res.Status)
	assert.Equal(t, model.StageTriage, res.Next)
	assert.Equal(t, "Which users would you like to see?", res.Reply)
	assert.Equal(t, 1, res.State.ClarificationCount)
	assert.Equal(t, model.DecisionNone, res.State.Decision)
	assert.Equal(t, 1, assistantCount(res.State.Messages))

	cp, err := h.store.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuspended, cp.Status)
	assert.Equal(t, model.StageTriage, cp.Next)
	assert.Len(t, cp.State.Messages, 2)
}

func TestScenarioB_FourthClarificationEndsConversation(t *testing.T) {
	h := newHarness(t,
		[]string{"need_clarification", "need_clarification", "need_clarification", "need_clarification"},
		[]string{"Q1?", "Q2?", "Q3?"},
		nil)

	for i := 1; i <= 3; i++ {
		res := ask(t, h, "users")
		assert.Equal(t, model.StatusSuspended, res.Status)
		assert.Equal(t, i, res.State.ClarificationCount)
	}

	res := ask(t, h, "users")
	assert.Equal(t, model.StatusCompleted, res.Status)
	assert.Equal(t, nodes.ClarificationApology, res.Reply)
	assert.Equal(t, model.DecisionEndConversation, res.State.Decision)
	assert.Equal(t, 4, res.State.ClarificationCount)
	assert.Equal(t, 3, h.generator.CallCount())

	// counters saturate
	h.classifier.Replies = []string{"need_clarification"}
	res = ask(t, h, "users")
	assert.Equal(t, 4, res.State.ClarificationCount)
	assert.Equal(t, nodes.ClarificationApology, res.Reply)
	assert.Equal(t, 3, h.generator.CallCount())
}

func TestScenarioC_RetryThenExecute(t *testing.T) {
	tb := &nodestest.Toolbox{
		Tables: "users(id integer, name text)",
		Verdicts: []model.ValidationResult{
			{Valid: false, Error: "no such column: nme"},
			{Valid: true},
		},
		Execution: &model.ExecutionResult{Success: true, Rows: []map[string]any{{"name": "ada"}}, RowCount: 1, Columns: []string{"name"}},
	}
	h := newHarness(t,
		[]string{"main_logic"},
		[]string{"SELECT nme FROM users", "SELECT name FROM users", "One user, ada."},
		tb)

	res := ask(t, h, "list user names")

	assert.Equal(t, []model.Stage{
		model.StageTriage,
		model.StageSQLGeneration,
		model.StageValidation,
		model.StageRetryGeneration,
		model.StageValidation,
		model.StageExecution,
	}, res.Stages)
	assert.Equal(t, model.StatusCompleted, res.Status)
	assert.Equal(t, 1, res.State.RetryCount)
	assert.Equal(t, "SELECT name FROM users", res.State.GeneratedSQL)
	assert.Contains(t, res.Reply, `"summary": "One user, ada."`)
	assert.Equal(t, 1, assistantCount(res.State.Messages))

	retryPrompt := h.generator.Calls()[1][0].Content
	assert.Contains(t, retryPrompt, "PREVIOUS ERROR: no such column: nme")

	// the SQL that passed validation is exactly the SQL that ran
	validated := tb.Validated()
	assert.Equal(t, []string{"SELECT nme FROM users", "SELECT name FROM users"}, validated)
	assert.Equal(t, []string{validated[len(validated)-1]}, tb.Executed())

	h.orch.Wait()
	episodes := h.episodes.Saved()
	require.Len(t, episodes, 1)
	assert.Equal(t, "list user names", episodes[0].UserQuery)
	assert.Equal(t, "SELECT name FROM users", episodes[0].GeneratedSQL)
}

func TestScenarioD_EmptyResultSkipsSummary(t *testing.T) {
	tb := &nodestest.Toolbox{Execution: &model.ExecutionResult{Success: true}}
	h := newHarness(t, []string{"main_logic"}, []string{"SELECT * FROM users WHERE 1 = 0"}, tb)

	res := ask(t, h, "users that never signed up")

	assert.Equal(t, "The query executed successfully but returned no results.", res.Reply)
	assert.Equal(t, 1, h.generator.CallCount())
	assert.Equal(t, model.StatusCompleted, res.Status)
}

func TestScenarioE_ModificationBypassesGeneration(t *testing.T) {
	h := newHarness(t, []string{"modification_intent"}, nil, nil)

	res := ask(t, h, "delete all rows from users")

	assert.Equal(t, []model.Stage{model.StageTriage, model.StageModificationGuard}, res.Stages)
	assert.Equal(t, nodes.ModificationMessage("Simba"), res.Reply)
	assert.Zero(t, h.generator.CallCount())
	assert.Empty(t, h.toolbox.Validated())
	assert.Equal(t, 1, assistantCount(res.State.Messages))
}

func TestFollowUpAndUnknownLabel(t *testing.T) {
	h := newHarness(t, []string{"handle_follow_up", "banana"}, []string{"What data are you after?"}, nil)

	res := ask(t, h, "hello there")
	assert.Equal(t, []model.Stage{model.StageTriage, model.StageFollowUp}, res.Stages)
	assert.Equal(t, nodes.FollowUpMessage("Simba"), res.Reply)

	res = ask(t, h, "hmm")
	assert.Equal(t, []model.Stage{model.StageTriage, model.StageClarification}, res.Stages)
	assert.Equal(t, model.StatusSuspended, res.Status)
}

func TestRetryExhaustion(t *testing.T) {
	tb := &nodestest.Toolbox{Verdicts: []model.ValidationResult{{Valid: false, Error: "syntax error"}}}
	h := newHarness(t,
		[]string{"main_logic"},
		[]string{"SELEC 1", "SELEC 2", "SELEC 3", "SELEC 4"},
		tb)

	res := ask(t, h, "q")

	assert.Equal(t, model.StatusCompleted, res.Status)
	assert.Equal(t, nodes.RetryApology, res.Reply)
	assert.Equal(t, 4, res.State.RetryCount)
	assert.Equal(t, model.DecisionEndConversation, res.State.Decision)
	assert.Len(t, tb.Validated(), 4)
	assert.Empty(t, tb.Executed())
	assert.LessOrEqual(t, len(res.Stages), maxSteps(limits{maxClarifications: 3, maxRetries: 3}))
}

func TestValidationToolUnavailableRetries(t *testing.T) {
	tb := &nodestest.Toolbox{ValidateErr: errx.ErrToolUnavailable}
	h := newHarness(t, []string{"main_logic"}, []string{"SELECT 1", "SELECT 1", "SELECT 1", "SELECT 1"}, tb)

	res := ask(t, h, "q")
	assert.Equal(t, nodes.RetryApology, res.Reply)
	assert.Equal(t, "validation tool not available", res.State.Validation.Error)
}

func TestStream_Events(t *testing.T) {
	h := newHarness(t, []string{"need_clarification"}, []string{"Which users do you mean?"}, nil)

	sr, err := h.orch.Stream(context.Background(), model.TurnInput{ThreadID: "t1", UserID: "u1", Message: "show me users"})
	require.NoError(t, err)
	events := drain(t, sr)

	var stages []string
	var chunks strings.Builder
	for _, ev := range events {
		if ev.Stage == model.StageLLMStream {
			chunks.WriteString(ev.Chunk)
			continue
		}
		stages = append(stages, string(ev.Stage)+":"+string(ev.Status))
	}
	assert.Equal(t, []string{
		"triage:running", "triage:completed",
		"clarification:running", "clarification:completed",
	}, stages)
	assert.Equal(t, "Which users do you mean?", chunks.String())

	last := events[len(events)-1]
	require.NotNil(t, last.Result)
	assert.Equal(t, 1, *last.Result.ClarificationCount)
}

type failingStore struct {
	model.CheckpointStore
	failAfter int

	mu    sync.Mutex
	saves int
}

func (f *failingStore) Save(ctx context.Context, cp *model.Checkpoint, appended []*schema.Message) error {
	f.mu.Lock()
	f.saves++
	n := f.saves
	failAfter := f.failAfter
	f.mu.Unlock()
	if n > failAfter {
		return errx.WithKind(errx.KindPersistence, errors.New("connection refused"), errx.RedisErrorMessage)
	}
	return f.CheckpointStore.Save(ctx, cp, appended)
}

func TestStream_PersistenceFailureEmitsErrorEvent(t *testing.T) {
	store := &failingStore{CheckpointStore: repo.NewMemoryCheckpointStore(0), failAfter: 1}
	h := newHarnessWithStore(t, []string{"main_logic"}, []string{"SELECT 1"}, nil, store)

	sr, err := h.orch.Stream(context.Background(), model.TurnInput{ThreadID: "t1", UserID: "u1", Message: "q"})
	require.NoError(t, err)
	events := drain(t, sr)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, model.StageError, last.Stage)
	assert.Equal(t, model.EventFailed, last.Status)
	assert.Contains(t, last.Error, "connection refused")
	for _, ev := range events {
		assert.NotEqual(t, model.EventCompleted, ev.Status, "no node may report completion without a checkpoint")
	}

	_, err = h.orch.Invoke(context.Background(), model.TurnInput{ThreadID: "t2", UserID: "u1", Message: "q"})
	require.Error(t, err)
	assert.Equal(t, errx.KindPersistence, errx.KindOf(err))
}

func TestEpisodeRecordedOnlyAfterExecutionIsPersisted(t *testing.T) {
	// saves: user message, triage, generation, validation, then execution fails
	store := &failingStore{CheckpointStore: repo.NewMemoryCheckpointStore(0), failAfter: 4}
	tb := &nodestest.Toolbox{Execution: &model.ExecutionResult{Success: true, Rows: []map[string]any{{"n": float64(2)}}, RowCount: 1}}
	h := newHarnessWithStore(t,
		[]string{"main_logic"},
		[]string{"SELECT count(*) AS n FROM users", "Two users.", "Two users."},
		tb, store)

	_, err := h.orch.Invoke(context.Background(), model.TurnInput{ThreadID: "t1", UserID: "u1", Message: "how many users"})
	require.Error(t, err)
	h.orch.Wait()
	assert.Empty(t, h.episodes.Saved())

	cp, err := store.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, model.StageExecution, cp.Next)

	store.mu.Lock()
	store.failAfter = 100
	store.mu.Unlock()

	res, err := h.orch.Resume(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []model.Stage{model.StageExecution}, res.Stages)
	h.orch.Wait()
	require.Len(t, h.episodes.Saved(), 1)
	assert.Len(t, tb.Executed(), 2)
}

func TestLLMFailureIsFatal(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	h.classifier.Err = errors.New("quota exceeded")

	sr, err := h.orch.Stream(context.Background(), model.TurnInput{ThreadID: "t1", UserID: "u1", Message: "q"})
	require.NoError(t, err)
	events := drain(t, sr)
	last := events[len(events)-1]
	assert.Equal(t, model.StageError, last.Stage)

	cp, err := h.store.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, cp.Status)
	assert.Equal(t, model.StageTriage, cp.Next)
}

func TestResume_ContinuesAtPersistedStage(t *testing.T) {
	store := repo.NewMemoryCheckpointStore(0)
	tb := &nodestest.Toolbox{Execution: &model.ExecutionResult{Success: true}}

	// a turn that stopped after SQL generation
	state := model.NewConversationState("t1", "u1")
	msgs := state.AppendMessages(schema.UserMessage("users who never ordered"))
	state.GeneratedSQL = "SELECT id FROM users WHERE id NOT IN (SELECT user_id FROM orders)"
	cp := &model.Checkpoint{State: *state, Next: model.StageValidation, Status: model.StatusRunning, Version: 1}
	require.NoError(t, store.Save(context.Background(), cp, msgs))

	h := newHarnessWithStore(t, nil, nil, tb, store)
	res, err := h.orch.Resume(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, []model.Stage{model.StageValidation, model.StageExecution}, res.Stages)
	assert.Equal(t, nodes.ExecutionEmptyMessage, res.Reply)
	assert.Zero(t, h.classifier.CallCount())
	assert.Equal(t, []string{state.GeneratedSQL}, tb.Executed())

	// nothing left to resume
	again, err := h.orch.Resume(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, again.Stages)
	assert.Equal(t, model.StatusCompleted, again.Status)

	_, err = h.orch.Resume(context.Background(), "missing")
	require.ErrorIs(t, err, errx.ErrThreadNotFound)
}

func TestNewMessageDiscardsInterruptedTail(t *testing.T) {
	store := repo.NewMemoryCheckpointStore(0)
	state := model.NewConversationState("t1", "u1")
	msgs := state.AppendMessages(schema.UserMessage("old question"))
	cp := &model.Checkpoint{State: *state, Next: model.StageExecution, Status: model.StatusRunning, Version: 1}
	require.NoError(t, store.Save(context.Background(), cp, msgs))

	h := newHarnessWithStore(t, []string{"follow_up"}, nil, nil, store)
	res := ask(t, h, "hi")

	assert.Equal(t, []model.Stage{model.StageTriage, model.StageFollowUp}, res.Stages)
	assert.Empty(t, h.toolbox.Executed())
	assert.Len(t, res.State.Messages, 3)
}

func TestCheckpointMatchesResultState(t *testing.T) {
	h := newHarness(t, []string{"follow_up"}, nil, nil)
	res := ask(t, h, "hello")

	cp, err := h.orch.Checkpoint(context.Background(), "t1")
	require.NoError(t, err)
	if diff := cmp.Diff(*res.State, cp.State); diff != "" {
		t.Fatalf("persisted state differs (-result +checkpoint):\n%s", diff)
	}

	require.NoError(t, h.orch.Reset(context.Background(), "t1"))
	_, err = h.orch.Checkpoint(context.Background(), "t1")
	require.ErrorIs(t, err, errx.ErrThreadNotFound)
}

func TestConcurrentTurnsOnOneThreadSerialise(t *testing.T) {
	replies := make([]string, 8)
	for i := range replies {
		replies[i] = "follow_up"
	}
	h := newHarness(t, replies, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.orch.Invoke(context.Background(), model.TurnInput{ThreadID: "t1", UserID: "u1", Message: "hi"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cp, err := h.store.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, cp.State.Messages, 16)
	assert.Equal(t, int64(24), cp.Version)
	assert.Zero(t, h.orch.locks.held())
}

func TestInvalidInput(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	_, err := h.orch.Invoke(context.Background(), model.TurnInput{ThreadID: "t1", Message: "  "})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.orch.Stream(context.Background(), model.TurnInput{Message: "q"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestBuild_Validates(t *testing.T) {
	_, err := Build(context.Background(), nil)
	require.Error(t, err)
	_, err = Build(context.Background(), &GraphConfig{Toolbox: &nodestest.Toolbox{}})
	require.Error(t, err)
	_, err = Build(context.Background(), &GraphConfig{Checkpoints: repo.NewMemoryCheckpointStore(0), Toolbox: &nodestest.Toolbox{}})
	require.Error(t, err)
}

package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/repo"
	pkgsqlite "github.com/Chative-core-poc-v1/text2sql/pkg/sqlite"
)

// executeCommand runs the root command with args and returns captured stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	schemaClear, schemaFromDB, schemaLimit = false, false, 2
	memoryUser, memoryFile, memoryLimit = "local", "", 10

	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "text2sql.db")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("CHECKPOINT_STORE", "sqlite")
	t.Setenv("SQL_TOOLS_DSN", filepath.Join(dir, "warehouse.db"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("GEMINI_API_KEY", "")
	return path
}

func TestRootCommand_Subcommands(t *testing.T) {
	assert.Equal(t, "text2sql", rootCmd.Use)
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"ask", "resume", "thread", "schema", "memory", "tools"} {
		assert.Contains(t, names, want)
	}
}

func TestLoadConfig(t *testing.T) {
	setupEnv(t)
	t.Setenv("CONVERSATION_MAX_RETRIES", "5")
	t.Setenv("MCP_ARGS", "tools,serve")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, TransportInProcess, cfg.MCP.Transport)
	assert.Equal(t, 5, cfg.Conversation.MaxRetries)
	assert.Equal(t, 3, cfg.Conversation.MaxClarifications)
	assert.Equal(t, []string{"tools", "serve"}, cfg.MCP.Args)
	assert.Equal(t, "list_tables", cfg.MCP.Tools.ListTables)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Tool)
	assert.Error(t, cfg.requireLLM())
}

func TestLoadConfig_EnvFile(t *testing.T) {
	setupEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PROMPT_ASSISTANT_NAME=Nala\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("PROMPT_ASSISTANT_NAME") })

	cfg, err := loadConfig(envFile)
	require.NoError(t, err)
	assert.Equal(t, "Nala", cfg.Prompt.AssistantName)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown store", map[string]string{"CHECKPOINT_STORE": "etcd"}},
		{"redis without url", map[string]string{"CHECKPOINT_STORE": "redis", "REDIS_URL": ""}},
		{"stdio without command", map[string]string{"MCP_TRANSPORT": "stdio"}},
		{"http without url", map[string]string{"MCP_TRANSPORT": "http"}},
		{"unknown transport", map[string]string{"MCP_TRANSPORT": "grpc"}},
		{"bad ttl", map[string]string{"CONVERSATION_TTL": "tomorrow"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig("")
			assert.Error(t, err)
		})
	}
}

func TestSchemaIndexAndSearch(t *testing.T) {
	setupEnv(t)
	doc := filepath.Join(t.TempDir(), "orders.md")
	require.NoError(t, os.WriteFile(doc, []byte("orders: id int, customer_id int, total numeric"), 0o600))

	out, err := executeCommand(t, "schema", "index", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "1 documents indexed")

	out, err = executeCommand(t, "schema", "search", "total", "of", "orders")
	require.NoError(t, err)
	assert.Contains(t, out, "customer_id")

	_, err = executeCommand(t, "schema", "index")
	assert.Error(t, err)
}

func TestMemoryProfileAndShow(t *testing.T) {
	setupEnv(t)
	dir := t.TempDir()
	profile := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("name: Ron\ntechnical_level: expert\ncommon_tables: [orders]\n"), 0o600))
	patterns := filepath.Join(dir, "patterns.yaml")
	require.NoError(t, os.WriteFile(patterns, []byte("- pattern_name: monthly_totals\n  sql_template: SELECT 1\n  success_rate: 0.9\n"), 0o600))

	_, err := executeCommand(t, "memory", "profile", "--user", "ron", "--file", profile)
	require.NoError(t, err)
	out, err := executeCommand(t, "memory", "patterns", "--file", patterns)
	require.NoError(t, err)
	assert.Contains(t, out, "1 patterns saved")

	out, err = executeCommand(t, "memory", "show", "--user", "ron")
	require.NoError(t, err)
	assert.Contains(t, out, "name: Ron")
	assert.Contains(t, out, "pattern_name: monthly_totals")

	_, err = executeCommand(t, "memory", "profile")
	assert.Error(t, err)
}

func TestThreadShowAndReset(t *testing.T) {
	path := setupEnv(t)
	ctx := context.Background()

	cfg := pkgsqlite.Config{Path: path}
	db, err := cfg.New(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(ctx, db))
	cp := &model.Checkpoint{
		State:     *model.NewConversationState("t-1", "u-1"),
		Next:      model.StageTriage,
		Status:    model.StatusCompleted,
		Version:   1,
		UpdatedAt: time.Now().UTC(),
	}
	msgs := cp.State.AppendMessages(schema.UserMessage("hello"))
	require.NoError(t, repo.NewSQLiteCheckpointStore(db, 0).Save(ctx, cp, msgs))
	require.NoError(t, db.Close())

	out, err := executeCommand(t, "thread", "show", "t-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"thread_id": "t-1"`)
	assert.Contains(t, out, "hello")

	_, err = executeCommand(t, "thread", "reset", "t-1")
	require.NoError(t, err)
	_, err = executeCommand(t, "thread", "show", "t-1")
	assert.Error(t, err)
}

type fakeEvents struct {
	events []*model.Event
}

func (f *fakeEvents) Recv() (*model.Event, error) {
	if len(f.events) == 0 {
		return nil, io.EOF
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

func TestPrintEvents(t *testing.T) {
	reply := &model.StateDelta{Messages: []*schema.Message{schema.AssistantMessage("I can only help with data.", nil)}}
	streamed := &model.StateDelta{Messages: []*schema.Message{schema.AssistantMessage("Which year?", nil)}}
	out := new(bytes.Buffer)
	err := printEvents(out, &fakeEvents{events: []*model.Event{
		{Stage: model.StageTriage, Status: model.EventRunning},
		{Stage: model.StageTriage, Status: model.EventCompleted},
		{Stage: model.StageFollowUp, Status: model.EventRunning},
		{Stage: model.StageFollowUp, Status: model.EventCompleted, Result: reply},
		{Stage: model.StageClarification, Status: model.EventRunning},
		{Stage: model.StageLLMStream, Chunk: "Which "},
		{Stage: model.StageLLMStream, Chunk: "year?"},
		{Stage: model.StageClarification, Status: model.EventCompleted, Result: streamed},
	}})
	require.NoError(t, err)
	assert.Equal(t, "[triage] running\n[triage] completed\n"+
		"[follow_up] running\n[follow_up] completed\nI can only help with data.\n"+
		"[clarification] running\nWhich year?\n[clarification] completed\n", out.String())

	err = printEvents(io.Discard, &fakeEvents{events: []*model.Event{
		{Stage: model.StageError, Status: model.EventFailed, Error: "redis down"},
	}})
	assert.EqualError(t, err, "redis down")
}

package model

import (
	"time"

	"github.com/cloudwego/eino/schema"
)

// Stage is a node of the conversation workflow.
type Stage string

const (
	StageTriage            Stage = "triage"
	StageClarification     Stage = "clarification"
	StageSQLGeneration     Stage = "sql_generation"
	StageValidation        Stage = "validation"
	StageRetryGeneration   Stage = "retry_generation"
	StageExecution         Stage = "execution"
	StageFollowUp          Stage = "follow_up"
	StageModificationGuard Stage = "modification_guard"
	StageTerminal          Stage = "terminal"
)

// Stages lists every workflow stage in declaration order.
var Stages = []Stage{
	StageTriage,
	StageClarification,
	StageSQLGeneration,
	StageValidation,
	StageRetryGeneration,
	StageExecution,
	StageFollowUp,
	StageModificationGuard,
	StageTerminal,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, st := range Stages {
		if s == st {
			return true
		}
	}
	return false
}

// Decision is the routing label carried in state. The empty value means "no decision".
type Decision string

const (
	DecisionNone              Decision = ""
	DecisionMainLogic         Decision = "main_logic"
	DecisionFollowUp          Decision = "follow_up"
	DecisionNeedClarification Decision = "need_clarification"
	DecisionModification      Decision = "modification_intent"
	DecisionEndConversation   Decision = "end_conversation"
)

// TurnStatus tells a resumed thread how the last turn ended.
type TurnStatus string

const (
	// StatusRunning means a turn was interrupted between nodes.
	StatusRunning TurnStatus = "running"
	// StatusSuspended means the workflow asked a clarifying question and waits for the user.
	StatusSuspended TurnStatus = "suspended"
	// StatusCompleted means the last turn reached Terminal.
	StatusCompleted TurnStatus = "completed"
)

// ValidationResult is the verdict of the SQL validator.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ExecutionResult is the outcome of running generated SQL.
type ExecutionResult struct {
	Success  bool             `json:"success"`
	Columns  []string         `json:"columns,omitempty"`
	Rows     []map[string]any `json:"data,omitempty"`
	RowCount int              `json:"row_count"`
	Error    string           `json:"error,omitempty"`
}

// ConversationState is the per-thread state owned by the orchestrator for one turn at a time.
// Use Apply to change it; nodes only ever return a StateDelta.
type ConversationState struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`

	Messages []*schema.Message `json:"messages,omitempty"`
	Decision Decision          `json:"decision"`

	ClarificationCount int `json:"clarification_count"`
	RetryCount         int `json:"retry_count"`

	GeneratedSQL string            `json:"generated_sql"`
	Validation   *ValidationResult `json:"valid_sql"`
	Execution    *ExecutionResult  `json:"execution_result"`
	Summary      string            `json:"summary"`

	Usage Usage `json:"usage"`
}

// NewConversationState creates an empty state for a thread.
func NewConversationState(threadID, userID string) *ConversationState {
	return &ConversationState{ThreadID: threadID, UserID: userID}
}

// StateDelta is what a node produces. Nil fields leave state untouched.
type StateDelta struct {
	Messages           []*schema.Message `json:"messages,omitempty"`
	Decision           *Decision         `json:"decision,omitempty"`
	ClarificationCount *int              `json:"clarification_count,omitempty"`
	RetryCount         *int              `json:"retry_count,omitempty"`
	GeneratedSQL       *string           `json:"generated_sql,omitempty"`
	Validation         *ValidationResult `json:"valid_sql,omitempty"`
	Execution          *ExecutionResult  `json:"execution_result,omitempty"`
	Summary            *string           `json:"summary,omitempty"`
	Usage              *Usage            `json:"usage,omitempty"`
}

// Apply merges d into s. Messages are appended in order; every other field is overwritten.
// It returns the messages that were appended.
func (s *ConversationState) Apply(d *StateDelta) []*schema.Message {
	if d == nil {
		return nil
	}
	appended := s.AppendMessages(d.Messages...)
	if d.Decision != nil {
		s.Decision = *d.Decision
	}
	if d.ClarificationCount != nil && *d.ClarificationCount >= s.ClarificationCount {
		s.ClarificationCount = *d.ClarificationCount
	}
	if d.RetryCount != nil && *d.RetryCount >= s.RetryCount {
		s.RetryCount = *d.RetryCount
	}
	if d.GeneratedSQL != nil {
		s.GeneratedSQL = *d.GeneratedSQL
	}
	if d.Validation != nil {
		v := *d.Validation
		s.Validation = &v
	}
	if d.Execution != nil {
		s.Execution = d.Execution
	}
	if d.Summary != nil {
		s.Summary = *d.Summary
	}
	if d.Usage != nil {
		s.Usage.Add(*d.Usage)
	}
	return appended
}

// AppendMessages adds non-nil messages to the end of the history.
func (s *ConversationState) AppendMessages(msgs ...*schema.Message) []*schema.Message {
	var appended []*schema.Message
	for _, m := range msgs {
		if m == nil {
			continue
		}
		s.Messages = append(s.Messages, m)
		appended = append(appended, m)
	}
	return appended
}

// LastUserMessage returns the content of the most recent user message.
func (s *ConversationState) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if m := s.Messages[i]; m != nil && m.Role == schema.User {
			return m.Content
		}
	}
	return ""
}

// History returns at most the last n messages; n <= 0 returns all of them.
func (s *ConversationState) History(n int) []*schema.Message {
	if n <= 0 || len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// Checkpoint is the durable record of a thread after a node transition.
type Checkpoint struct {
	State     ConversationState `json:"state"`
	Next      Stage             `json:"next"`
	Status    TurnStatus        `json:"status"`
	Version   int64             `json:"version"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// DecisionPtr and friends build optional delta fields.
func DecisionPtr(d Decision) *Decision { return &d }

func IntPtr(n int) *int { return &n }

func StringPtr(s string) *string { return &s }

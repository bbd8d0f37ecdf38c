package model

// EventStatus is the lifecycle marker of a stage event.
type EventStatus string

const (
	EventRunning   EventStatus = "running"
	EventCompleted EventStatus = "completed"
	EventFailed    EventStatus = "failed"
)

// Pseudo-stages that only appear in the event stream.
const (
	StageLLMStream Stage = "llm_stream"
	StageError     Stage = "error"
)

// Event is one item of the turn event stream.
type Event struct {
	Stage  Stage       `json:"stage"`
	Status EventStatus `json:"status,omitempty"`
	Result *StateDelta `json:"result,omitempty"`
	Chunk  string      `json:"chunk,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// TurnInput is one user message addressed to a thread.
type TurnInput struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
	Message  string `json:"message"`
}

// TurnResult summarises a finished turn.
type TurnResult struct {
	ThreadID string             `json:"thread_id"`
	Status   TurnStatus         `json:"status"`
	Next     Stage              `json:"next"`
	Stages   []Stage            `json:"stages"`
	Reply    string             `json:"reply"`
	State    *ConversationState `json:"state"`
}

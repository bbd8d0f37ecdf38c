// Package nodestest provides scripted collaborators for exercising workflow nodes.
package nodestest

import (
	"context"
	"errors"
	"strings"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
)

// ErrNoReply is returned once a ChatModel runs out of scripted replies.
var ErrNoReply = errors.New("nodestest: no scripted reply left")

// ChatModel replays Replies in order, for both Generate and Stream.
type ChatModel struct {
	Replies []string
	// Err, when set, fails every call.
	Err   error
	Usage *schema.TokenUsage

	mu    sync.Mutex
	calls [][]*schema.Message
}

var _ einomodel.BaseChatModel = (*ChatModel)(nil)

// NewChatModel returns a model answering with replies in order.
func NewChatModel(replies ...string) *ChatModel {
	return &ChatModel{Replies: replies}
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	text, err := m.next(input)
	if err != nil {
		return nil, err
	}
	return m.message(text), nil
}

// Stream splits the reply on spaces, one chunk per word.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	text, err := m.next(input)
	if err != nil {
		return nil, err
	}
	words := strings.SplitAfter(text, " ")
	chunks := make([]*schema.Message, 0, len(words)+1)
	for _, w := range words {
		chunks = append(chunks, &schema.Message{Role: schema.Assistant, Content: w})
	}
	if m.Usage != nil {
		chunks = append(chunks, &schema.Message{Role: schema.Assistant, ResponseMeta: &schema.ResponseMeta{Usage: m.Usage}})
	}
	return schema.StreamReaderFromArray(chunks), nil
}

// Calls returns the prompts received so far.
func (m *ChatModel) Calls() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]*schema.Message, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount is len(Calls()).
func (m *ChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *ChatModel) next(input []*schema.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, input)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Replies) == 0 {
		return "", ErrNoReply
	}
	text := m.Replies[0]
	m.Replies = m.Replies[1:]
	return text, nil
}

func (m *ChatModel) message(text string) *schema.Message {
	msg := schema.AssistantMessage(text, nil)
	if m.Usage != nil {
		msg.ResponseMeta = &schema.ResponseMeta{Usage: m.Usage}
	}
	return msg
}

// Toolbox is a scripted model.Toolbox.
type Toolbox struct {
	Tables    string
	TablesErr error

	// Verdicts are returned in order; the last one repeats.
	Verdicts    []model.ValidationResult
	ValidateErr error

	Execution  *model.ExecutionResult
	ExecuteErr error

	mu        sync.Mutex
	validated []string
	executed  []string
}

var _ model.Toolbox = (*Toolbox)(nil)

func (t *Toolbox) ListTables(ctx context.Context) (string, error) {
	return t.Tables, t.TablesErr
}

func (t *Toolbox) ValidateSQL(ctx context.Context, query string) (model.ValidationResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.validated = append(t.validated, query)
	if t.ValidateErr != nil {
		return model.ValidationResult{}, t.ValidateErr
	}
	if len(t.Verdicts) == 0 {
		return model.ValidationResult{Valid: true}, nil
	}
	v := t.Verdicts[0]
	if len(t.Verdicts) > 1 {
		t.Verdicts = t.Verdicts[1:]
	}
	return v, nil
}

func (t *Toolbox) ExecuteSQL(ctx context.Context, query string) (*model.ExecutionResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executed = append(t.executed, query)
	if t.ExecuteErr != nil {
		return nil, t.ExecuteErr
	}
	return t.Execution, nil
}

// Validated returns every query passed to ValidateSQL.
func (t *Toolbox) Validated() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.validated...)
}

// Executed returns every query passed to ExecuteSQL.
func (t *Toolbox) Executed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.executed...)
}

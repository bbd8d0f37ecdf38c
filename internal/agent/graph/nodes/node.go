package nodes

import (
	"context"
	"fmt"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/memories"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/schemas"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
)

// Node is one step of the workflow. It reads state and returns what should change;
// it never mutates state itself.
type Node interface {
	Run(ctx context.Context, state *model.ConversationState) (*model.StateDelta, error)
}

// NodeFunc adapts a function to Node.
type NodeFunc func(ctx context.Context, state *model.ConversationState) (*model.StateDelta, error)

func (f NodeFunc) Run(ctx context.Context, state *model.ConversationState) (*model.StateDelta, error) {
	return f(ctx, state)
}

// Fixed assistant messages.
const (
	ClarificationApology = "I'm having trouble understanding your request. Please ask a specific question about your data and I'll be happy to help!"
	RetryApology         = "I'm having trouble generating a correct SQL query for this question and I've reached my retry limit. Could you rephrase it more specifically, for example naming the table or columns you are interested in?"

	NoSQLToExecute        = "No SQL query available to execute."
	ExecutionUnavailable  = "SQL execution tool not available."
	ExecutionEmptyMessage = "The query executed successfully but returned no results."
	SummaryUnavailable    = "Summary unavailable: the analysis model did not respond. The query results above are complete."

	ValidationNoSQL       = "no SQL to validate"
	ValidationUnavailable = "validation tool not available"
)

// Deps are the collaborators shared by all nodes.
type Deps struct {
	Models  *ChatModels
	Toolbox model.Toolbox
	Memory  *memories.Aggregator
	Schemas *schemas.Resolver

	Conversation model.ConversationConfig
	Prompt       model.PromptConfig
	Timeouts     model.TimeoutConfig
}

// New builds one handler per workflow stage except Terminal, which has no work to do.
func New(d Deps) (map[model.Stage]Node, error) {
	if d.Models == nil || d.Models.Classifier == nil || d.Models.Generator == nil {
		return nil, fmt.Errorf("nodes: classifier and generator chat models are required")
	}
	if d.Schemas == nil {
		d.Schemas = schemas.NewResolver(nil, d.Toolbox, d.Timeouts.Tool)
	}
	if d.Prompt.AssistantName == "" {
		d.Prompt.AssistantName = "Simba"
	}
	if d.Conversation.MaxClarifications <= 0 {
		d.Conversation.MaxClarifications = 3
	}
	if d.Conversation.MaxRetries <= 0 {
		d.Conversation.MaxRetries = 3
	}

	classifier := &LLM{Model: d.Models.Classifier, Name: d.Models.ClassifierModelName, Timeout: d.Timeouts.LLM}
	generator := &LLM{Model: d.Models.Generator, Name: d.Models.GeneratorModelName, Timeout: d.Timeouts.LLM}

	return map[model.Stage]Node{
		model.StageTriage:            NewTriageNode(classifier, d.Prompt.AssistantName, d.Conversation.HistoryMessages),
		model.StageClarification:     NewClarificationNode(generator, d.Memory, d.Conversation),
		model.StageSQLGeneration:     NewSQLGenerationNode(generator, d.Schemas, d.Prompt, d.Conversation.SchemaLimit),
		model.StageValidation:        NewValidationNode(d.Toolbox),
		model.StageRetryGeneration:   NewRetryGenerationNode(generator, d.Schemas, d.Prompt, d.Conversation),
		model.StageExecution:         NewExecutionNode(generator, d.Toolbox, d.Conversation.SampleRows),
		model.StageFollowUp:          NewFollowUpNode(d.Prompt.AssistantName),
		model.StageModificationGuard: NewModificationGuardNode(d.Prompt.AssistantName),
	}, nil
}

// bump increments a loop counter, saturating one past its ceiling.
func bump(count, max int) int {
	return min(count+1, max+1)
}

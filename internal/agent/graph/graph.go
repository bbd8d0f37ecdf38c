package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/memories"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/nodes"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/observers"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/schemas"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/text2sql/internal/core/error"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

// ErrInvalidInput is returned for a turn without a thread id or message.
var ErrInvalidInput = errors.New("thread id and message are required")

// Runner executes conversation turns.
type Runner interface {
	Invoke(ctx context.Context, in model.TurnInput) (*model.TurnResult, error)
	Stream(ctx context.Context, in model.TurnInput) (*schema.StreamReader[*model.Event], error)
	Resume(ctx context.Context, threadID string) (*model.TurnResult, error)
}

// Config holds everything needed to compose the orchestrator end-to-end.
// This is a convenience layer over GraphConfig that also constructs the chat models.
type Config struct {
	APIKey     string
	BaseURL    string
	Classifier model.ClassifierModelConfig
	Generator  model.GeneratorModelConfig

	Prompt       model.PromptConfig
	Conversation model.ConversationConfig
	Timeouts     model.TimeoutConfig

	Toolbox      model.Toolbox
	Checkpoints  model.CheckpointStore
	Memory       model.MemoryProvider
	MemoryWriter model.MemoryWriter
	Searcher     model.SchemaSearcher
}

// GraphConfig holds all configuration needed to build the orchestrator.
type GraphConfig struct {
	ChatModels   *nodes.ChatModels
	Toolbox      model.Toolbox
	Checkpoints  model.CheckpointStore
	Memory       model.MemoryProvider
	MemoryWriter model.MemoryWriter
	Searcher     model.SchemaSearcher

	Prompt       model.PromptConfig
	Conversation model.ConversationConfig
	Timeouts     model.TimeoutConfig

	// Callbacks observe prompts, model calls, and tool calls. Nil installs the logging observers.
	Callbacks []einocb.Handler
}

// Orchestrator drives the per-thread state machine. It is safe for concurrent use.
type Orchestrator struct {
	handlers  map[model.Stage]nodes.Node
	store     model.CheckpointStore
	recorder  *memories.Recorder
	locks     *threadLocks
	limits    limits
	maxSteps  int
	callbacks []einocb.Handler
	now       func() time.Time
}

var _ Runner = (*Orchestrator)(nil)

// BuildOrchestrator creates the chat models and builds the orchestrator.
func BuildOrchestrator(ctx context.Context, cfg Config) (*Orchestrator, error) {
	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Classifier: &cfg.Classifier,
		Generator:  &cfg.Generator,
	})
	if err != nil {
		return nil, err
	}

	o, err := Build(ctx, &GraphConfig{
		ChatModels:   cms,
		Toolbox:      cfg.Toolbox,
		Checkpoints:  cfg.Checkpoints,
		Memory:       cfg.Memory,
		MemoryWriter: cfg.MemoryWriter,
		Searcher:     cfg.Searcher,
		Prompt:       cfg.Prompt,
		Conversation: cfg.Conversation,
		Timeouts:     cfg.Timeouts,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Orchestrator built successfully")
	return o, nil
}

// Build wires node handlers around the given collaborators.
func Build(ctx context.Context, cfg *GraphConfig) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if cfg.Checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is nil")
	}
	if cfg.Toolbox == nil {
		return nil, fmt.Errorf("toolbox is nil")
	}

	conv := cfg.Conversation
	if conv.MaxClarifications <= 0 {
		conv.MaxClarifications = 3
	}
	if conv.MaxRetries <= 0 {
		conv.MaxRetries = 3
	}

	recorder := memories.NewRecorder(cfg.MemoryWriter, cfg.Timeouts.Memory)
	handlers, err := nodes.New(nodes.Deps{
		Models:       cfg.ChatModels,
		Toolbox:      cfg.Toolbox,
		Memory:       memories.NewAggregator(cfg.Memory, cfg.Timeouts.Memory, conv.EpisodeLimit, conv.PatternLimit),
		Schemas:      schemas.NewResolver(cfg.Searcher, cfg.Toolbox, cfg.Timeouts.Tool),
		Conversation: conv,
		Prompt:       cfg.Prompt,
		Timeouts:     cfg.Timeouts,
	})
	if err != nil {
		return nil, err
	}

	cbs := cfg.Callbacks
	if cbs == nil {
		cbs = []einocb.Handler{observers.NewAllCallbacks()}
	}

	l := limits{maxClarifications: conv.MaxClarifications, maxRetries: conv.MaxRetries}
	return &Orchestrator{
		handlers:  handlers,
		store:     cfg.Checkpoints,
		recorder:  recorder,
		locks:     newThreadLocks(),
		limits:    l,
		maxSteps:  maxSteps(l),
		callbacks: cbs,
		now:       time.Now,
	}, nil
}

// Invoke runs one turn to completion or suspension.
func (o *Orchestrator) Invoke(ctx context.Context, in model.TurnInput) (*model.TurnResult, error) {
	return o.turn(o.withCallbacks(ctx), in, func(*model.Event) {})
}

// Stream runs one turn in the background and returns its event stream. The
// stream ends after the last node, or after an error event on a fatal failure.
func (o *Orchestrator) Stream(ctx context.Context, in model.TurnInput) (*schema.StreamReader[*model.Event], error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	sr, sw := schema.Pipe[*model.Event](16)
	ctx = o.withCallbacks(ctx)
	go func() {
		defer sw.Close()
		_, _ = o.turn(ctx, in, func(ev *model.Event) { sw.Send(ev, nil) })
	}()
	return sr, nil
}

// Resume continues a turn that was interrupted between nodes. Threads that are
// suspended or completed have nothing to resume and are returned unchanged.
func (o *Orchestrator) Resume(ctx context.Context, threadID string) (*model.TurnResult, error) {
	ctx = o.withCallbacks(ctx)
	unlock, err := o.locks.Lock(ctx, threadID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cp, err := o.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if cp.Status != model.StatusRunning {
		return result(cp, nil, 0), nil
	}
	logx.Thread(threadID, cp.State.UserID).Info().Str("next", string(cp.Next)).Msg("resuming interrupted turn")
	return o.loop(ctx, cp, len(cp.State.Messages), func(*model.Event) {})
}

// Checkpoint returns the persisted state of a thread.
func (o *Orchestrator) Checkpoint(ctx context.Context, threadID string) (*model.Checkpoint, error) {
	return o.store.Load(ctx, threadID)
}

// Reset forgets a thread.
func (o *Orchestrator) Reset(ctx context.Context, threadID string) error {
	unlock, err := o.locks.Lock(ctx, threadID)
	if err != nil {
		return err
	}
	defer unlock()
	return o.store.Delete(ctx, threadID)
}

// Wait blocks until detached memory writes have finished.
func (o *Orchestrator) Wait() {
	o.recorder.Wait()
}

func (o *Orchestrator) turn(ctx context.Context, in model.TurnInput, emit func(*model.Event)) (*model.TurnResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	fail := func(err error) (*model.TurnResult, error) {
		emit(&model.Event{Stage: model.StageError, Status: model.EventFailed, Error: err.Error()})
		return nil, err
	}

	unlock, err := o.locks.Lock(ctx, in.ThreadID)
	if err != nil {
		return fail(err)
	}
	defer unlock()

	log := logx.Thread(in.ThreadID, in.UserID)
	cp, err := o.store.Load(ctx, in.ThreadID)
	switch {
	case errors.Is(err, errx.ErrThreadNotFound):
		cp = &model.Checkpoint{
			State:  *model.NewConversationState(in.ThreadID, in.UserID),
			Next:   model.StageTriage,
			Status: model.StatusCompleted,
		}
	case err != nil:
		return fail(err)
	}
	if cp.Status == model.StatusRunning {
		log.Warn().Str("next", string(cp.Next)).Msg("previous turn was interrupted, discarding its unfinished tail")
	}
	if cp.State.UserID == "" {
		cp.State.UserID = in.UserID
	}

	start := len(cp.State.Messages)
	appended := cp.State.AppendMessages(schema.UserMessage(in.Message))
	cp.Next = model.StageTriage
	cp.Status = model.StatusRunning
	if err := o.save(ctx, cp, appended); err != nil {
		return fail(err)
	}

	res, err := o.loop(ctx, cp, start, emit)
	if err != nil {
		return fail(err)
	}
	log.Info().
		Str("status", string(res.Status)).
		Int("prompt_tokens", cp.State.Usage.PromptTokens).
		Int("completion_tokens", cp.State.Usage.CompletionTokens).
		Float64("total_cost_usd", cp.State.Usage.CostUSD).
		Msg("turn finished")
	return res, nil
}

// loop runs nodes from cp.Next until the turn suspends or terminates, persisting
// after every node. Messages before index start belong to earlier turns.
func (o *Orchestrator) loop(ctx context.Context, cp *model.Checkpoint, start int, emit func(*model.Event)) (*model.TurnResult, error) {
	log := logx.Thread(cp.State.ThreadID, cp.State.UserID)
	sinkCtx := nodes.WithChunkSink(ctx, func(chunk string) {
		emit(&model.Event{Stage: model.StageLLMStream, Chunk: chunk})
	})

	var stages []model.Stage
	for steps := 0; cp.Next != model.StageTerminal; steps++ {
		if steps >= o.maxSteps {
			return nil, errx.WithKind(errx.KindUnknown, fmt.Errorf("turn exceeded %d steps at %s", o.maxSteps, cp.Next), errx.SystemErrorMessage)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		stage := cp.Next
		node, ok := o.handlers[stage]
		if !ok {
			return nil, fmt.Errorf("no handler for stage %q", stage)
		}

		emit(&model.Event{Stage: stage, Status: model.EventRunning})
		state := cp.State
		delta, err := node.Run(sinkCtx, &state)
		if err != nil {
			log.Error().Err(err).Str("stage", string(stage)).Msg("node failed")
			return nil, err
		}
		stages = append(stages, stage)

		appended := cp.State.Apply(delta)
		next := nextStage(stage, &cp.State, o.limits)
		if cp.State.Decision != model.DecisionEndConversation {
			cp.State.Decision = model.DecisionNone
		}

		cp.Next = next
		switch {
		case next == model.StageTerminal:
			cp.Status = model.StatusCompleted
			cp.Next = model.StageTriage
		case stage == model.StageClarification && next == model.StageTriage:
			cp.Status = model.StatusSuspended
		default:
			cp.Status = model.StatusRunning
		}

		log.Debug().
			Str("stage", string(stage)).
			Str("next", string(next)).
			Str("status", string(cp.Status)).
			Int("clarification_count", cp.State.ClarificationCount).
			Int("retry_count", cp.State.RetryCount).
			Msg("node completed")

		if err := o.save(ctx, cp, appended); err != nil {
			return nil, err
		}
		o.recordEpisode(stage, &cp.State, delta)
		emit(&model.Event{Stage: stage, Status: model.EventCompleted, Result: delta})

		if cp.Status != model.StatusRunning {
			break
		}
	}
	return result(cp, stages, start), nil
}

func (o *Orchestrator) save(ctx context.Context, cp *model.Checkpoint, appended []*schema.Message) error {
	cp.Version++
	cp.UpdatedAt = o.now().UTC()
	if err := o.store.Save(ctx, cp, appended); err != nil {
		cp.Version--
		if errx.KindOf(err) == errx.KindUnknown {
			return errx.WithKind(errx.KindPersistence, err, errx.SystemErrorMessage)
		}
		return err
	}
	return nil
}

// recordEpisode remembers a query that returned rows. It runs only after the
// execution outcome is checkpointed, so a resumed turn never records twice.
func (o *Orchestrator) recordEpisode(stage model.Stage, s *model.ConversationState, d *model.StateDelta) {
	if stage != model.StageExecution || d == nil || d.Execution == nil {
		return
	}
	if !d.Execution.Success || len(d.Execution.Rows) == 0 {
		return
	}
	o.recorder.Record(s.UserID, memories.Episode(s.LastUserMessage(), s.GeneratedSQL, true))
}

func (o *Orchestrator) withCallbacks(ctx context.Context) context.Context {
	if len(o.callbacks) == 0 {
		return ctx
	}
	return einocb.InitCallbacks(ctx, &einocb.RunInfo{
		Name:      "text2sql",
		Type:      "Orchestrator",
		Component: components.Component("Orchestrator"),
	}, o.callbacks...)
}

func result(cp *model.Checkpoint, stages []model.Stage, start int) *model.TurnResult {
	state := cp.State
	return &model.TurnResult{
		ThreadID: state.ThreadID,
		Status:   cp.Status,
		Next:     cp.Next,
		Stages:   stages,
		Reply:    lastAssistant(state.Messages, start),
		State:    &state,
	}
}

func lastAssistant(msgs []*schema.Message, start int) string {
	for i := len(msgs) - 1; i >= start && i >= 0; i-- {
		if m := msgs[i]; m != nil && m.Role == schema.Assistant {
			return m.Content
		}
	}
	return ""
}

func validateInput(in model.TurnInput) error {
	if strings.TrimSpace(in.ThreadID) == "" || strings.TrimSpace(in.Message) == "" {
		return errx.WithKind(errx.KindConfig, ErrInvalidInput, ErrInvalidInput.Error())
	}
	return nil
}

package nodes

import (
	"context"
	"errors"
	"io"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/text2sql/internal/core/error"
)

// ChunkSink receives partial model output while a reply streams in.
type ChunkSink func(chunk string)

type chunkSinkKey struct{}

// WithChunkSink attaches sink to ctx. Streaming LLM calls under ctx forward their chunks to it.
func WithChunkSink(ctx context.Context, sink ChunkSink) context.Context {
	return context.WithValue(ctx, chunkSinkKey{}, sink)
}

func chunkSinkFrom(ctx context.Context) ChunkSink {
	if sink, ok := ctx.Value(chunkSinkKey{}).(ChunkSink); ok && sink != nil {
		return sink
	}
	return func(string) {}
}

// LLM is one chat model plus the bookkeeping every call needs: a deadline,
// callback run info, and token accounting.
type LLM struct {
	Model   einomodel.BaseChatModel
	Name    string
	Timeout time.Duration
}

// Reply is a finished model answer.
type Reply struct {
	Content string
	Usage   *model.Usage
}

// Generate runs a blocking call.
func (l *LLM) Generate(ctx context.Context, stage model.Stage, msgs []*schema.Message) (*Reply, error) {
	ctx, cancel := l.prepare(ctx, stage)
	defer cancel()

	out, err := l.Model.Generate(ctx, msgs)
	if err != nil {
		return nil, errx.WrapLLM(err)
	}
	return l.reply(out), nil
}

// Stream runs a streaming call, forwarding every non-empty chunk to the sink
// found in ctx, and returns the concatenated message.
func (l *LLM) Stream(ctx context.Context, stage model.Stage, msgs []*schema.Message) (*Reply, error) {
	ctx, cancel := l.prepare(ctx, stage)
	defer cancel()

	sr, err := l.Model.Stream(ctx, msgs)
	if err != nil {
		return nil, errx.WrapLLM(err)
	}
	defer sr.Close()

	sink := chunkSinkFrom(ctx)
	var chunks []*schema.Message
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errx.WrapLLM(err)
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			sink(chunk.Content)
		}
	}
	if len(chunks) == 0 {
		return &Reply{}, nil
	}

	out, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, errx.WrapLLM(err)
	}
	return l.reply(out), nil
}

func (l *LLM) prepare(ctx context.Context, stage model.Stage) (context.Context, context.CancelFunc) {
	ctx = einocb.ReuseHandlers(ctx, &einocb.RunInfo{
		Name:      string(stage),
		Type:      l.Name,
		Component: components.ComponentOfChatModel,
	})
	if l.Timeout > 0 {
		return context.WithTimeout(ctx, l.Timeout)
	}
	return context.WithCancel(ctx)
}

func (l *LLM) reply(out *schema.Message) *Reply {
	if out == nil {
		return &Reply{}
	}
	return &Reply{Content: out.Content, Usage: model.UsageOf(out, l.Name)}
}

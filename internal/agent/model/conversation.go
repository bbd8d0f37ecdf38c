package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

type CheckpointStore interface {
	// Load returns the latest checkpoint for the thread, or an error matching
	// errx.ErrThreadNotFound when the thread has never been saved.
	Load(ctx context.Context, threadID string) (*Checkpoint, error)

	// Save persists cp and appends the given messages to the thread history.
	// cp.Version must be exactly one more than the stored version.
	Save(ctx context.Context, cp *Checkpoint, appended []*schema.Message) error

	// Delete removes every record of the thread.
	Delete(ctx context.Context, threadID string) error
}

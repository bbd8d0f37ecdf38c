package repo

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/text2sql/internal/core/error"
)

// MemoryCheckpointStore keeps threads in process memory. Threads live until the
// process exits or their TTL passes.
type MemoryCheckpointStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	threads map[string]*memoryThread
}

type memoryThread struct {
	record   []byte
	messages []*schema.Message
	expires  time.Time
}

func NewMemoryCheckpointStore(ttl time.Duration) *MemoryCheckpointStore {
	return &MemoryCheckpointStore{ttl: ttl, now: time.Now, threads: make(map[string]*memoryThread)}
}

func (m *MemoryCheckpointStore) Load(ctx context.Context, threadID string) (*model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.live(threadID)
	if !ok {
		return nil, errx.ThreadNotFound(threadID)
	}
	rec, err := decodeCheckpoint(t.record)
	if err != nil {
		return nil, errx.WithKind(errx.KindPersistence, err, errx.SystemErrorMessage)
	}
	cp := rec.Checkpoint
	n := min(rec.MessageCount, len(t.messages))
	cp.State.Messages = append([]*schema.Message(nil), t.messages[:n]...)
	return &cp, nil
}

func (m *MemoryCheckpointStore) Save(ctx context.Context, cp *model.Checkpoint, appended []*schema.Message) error {
	body, err := encodeCheckpoint(cp)
	if err != nil {
		return errx.WithKind(errx.KindPersistence, err, errx.SystemErrorMessage)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.live(cp.State.ThreadID)
	var stored int64
	if ok {
		rec, err := decodeCheckpoint(t.record)
		if err != nil {
			return errx.WithKind(errx.KindPersistence, err, errx.SystemErrorMessage)
		}
		stored = rec.Version
	}
	if cp.Version != stored+1 {
		return errx.CheckpointConflict(cp.State.ThreadID, stored, cp.Version)
	}
	if !ok {
		t = &memoryThread{}
		m.threads[cp.State.ThreadID] = t
	}

	t.record = body
	t.messages = append(t.messages, appended...)
	if m.ttl > 0 {
		t.expires = m.now().Add(m.ttl)
	}
	return nil
}

func (m *MemoryCheckpointStore) Delete(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, threadID)
	return nil
}

// live returns the thread unless it has expired. Callers hold m.mu.
func (m *MemoryCheckpointStore) live(threadID string) (*memoryThread, bool) {
	t, ok := m.threads[threadID]
	if !ok {
		return nil, false
	}
	if !t.expires.IsZero() && m.now().After(t.expires) {
		delete(m.threads, threadID)
		return nil, false
	}
	return t, true
}

var _ model.CheckpointStore = (*MemoryCheckpointStore)(nil)

package repo

import (
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// checkpointRecord is a checkpoint without its message history, which every
// store keeps separately as an append-only list.
type checkpointRecord struct {
	model.Checkpoint
	MessageCount int `json:"message_count"`
}

func encodeCheckpoint(cp *model.Checkpoint) ([]byte, error) {
	rec := checkpointRecord{Checkpoint: *cp, MessageCount: len(cp.State.Messages)}
	rec.State.Messages = nil
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	return b, nil
}

func decodeCheckpoint(b []byte) (*checkpointRecord, error) {
	var rec checkpointRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &rec, nil
}

func encodeMessages(msgs []*schema.Message) ([][]byte, error) {
	out := make([][]byte, 0, len(msgs))
	for i, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("marshal message %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func decodeMessage(b []byte) (*schema.Message, error) {
	var m schema.Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

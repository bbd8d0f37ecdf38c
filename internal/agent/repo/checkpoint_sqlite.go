package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/text2sql/internal/core/error"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

// SQLiteCheckpointStore keeps checkpoints in the threads table and history in
// thread_messages. Threads idle for longer than ttl read as missing.
type SQLiteCheckpointStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteCheckpointStore expects db to be migrated with Migrate.
func NewSQLiteCheckpointStore(db *sql.DB, ttl time.Duration) *SQLiteCheckpointStore {
	return &SQLiteCheckpointStore{db: db, ttl: ttl, now: time.Now}
}

func (s *SQLiteCheckpointStore) Load(ctx context.Context, threadID string) (*model.Checkpoint, error) {
	var body, updatedAt string
	err := s.db.QueryRowContext(ctx, `SELECT checkpoint, updated_at FROM threads WHERE thread_id = ?`, threadID).Scan(&body, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errx.ThreadNotFound(threadID)
	}
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to load checkpoint from sqlite")
		return nil, errx.WrapSQLite(err)
	}
	rec, err := decodeCheckpoint([]byte(body))
	if err != nil {
		return nil, errx.WithKind(errx.KindPersistence, err, errx.SQLiteErrorMessage)
	}
	if s.expired(updatedAt) {
		if err := s.Delete(ctx, threadID); err != nil {
			return nil, err
		}
		return nil, errx.ThreadNotFound(threadID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM thread_messages WHERE thread_id = ? AND seq < ? ORDER BY seq`,
		threadID, rec.MessageCount)
	if err != nil {
		return nil, errx.WrapSQLite(err)
	}
	defer rows.Close()

	cp := rec.Checkpoint
	cp.State.Messages = make([]*schema.Message, 0, rec.MessageCount)
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, errx.WrapSQLite(err)
		}
		m, err := decodeMessage([]byte(b))
		if err != nil {
			return nil, errx.WithKind(errx.KindPersistence, fmt.Errorf("unmarshal message: %w", err), errx.SQLiteErrorMessage)
		}
		cp.State.Messages = append(cp.State.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapSQLite(err)
	}
	return &cp, nil
}

func (s *SQLiteCheckpointStore) Save(ctx context.Context, cp *model.Checkpoint, appended []*schema.Message) error {
	threadID := cp.State.ThreadID
	body, err := encodeCheckpoint(cp)
	if err != nil {
		return errx.WithKind(errx.KindPersistence, err, errx.SQLiteErrorMessage)
	}
	msgs, err := encodeMessages(appended)
	if err != nil {
		return errx.WithKind(errx.KindPersistence, err, errx.SQLiteErrorMessage)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errx.WrapSQLite(err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var stored int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM threads WHERE thread_id = ?`, threadID).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return errx.WrapSQLite(err)
	}
	if cp.Version != stored+1 {
		return errx.CheckpointConflict(threadID, stored, cp.Version)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO threads (thread_id, user_id, checkpoint, next, status, version, message_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			checkpoint = excluded.checkpoint,
			next = excluded.next,
			status = excluded.status,
			version = excluded.version,
			message_count = excluded.message_count,
			updated_at = excluded.updated_at`,
		threadID, cp.State.UserID, string(body), string(cp.Next), string(cp.Status), cp.Version,
		len(cp.State.Messages), s.now().UTC().Format(timeLayout))
	if err != nil {
		return errx.WrapSQLite(err)
	}

	first := len(cp.State.Messages) - len(appended)
	for i, b := range msgs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO thread_messages (thread_id, seq, role, body) VALUES (?, ?, ?, ?)`,
			threadID, first+i, string(appended[i].Role), string(b))
		if err != nil {
			return errx.WrapSQLite(err)
		}
	}

	if err := tx.Commit(); err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Int64("version", cp.Version).Msg("failed to save checkpoint to sqlite")
		return errx.WrapSQLite(err)
	}
	return nil
}

func (s *SQLiteCheckpointStore) Delete(ctx context.Context, threadID string) error {
	for _, q := range []string{
		`DELETE FROM thread_messages WHERE thread_id = ?`,
		`DELETE FROM threads WHERE thread_id = ?`,
	} {
		if _, err := s.db.ExecContext(ctx, q, threadID); err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to delete thread from sqlite")
			return errx.WrapSQLite(err)
		}
	}
	return nil
}

// Prune deletes threads idle for longer than the TTL and reports how many went.
func (s *SQLiteCheckpointStore) Prune(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.ttl).UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM thread_messages WHERE thread_id IN (SELECT thread_id FROM threads WHERE updated_at < ?)`, cutoff)
	if err != nil {
		return 0, errx.WrapSQLite(err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, errx.WrapSQLite(err)
	}
	return res.RowsAffected()
}

// expired compares the stored write stamp, not the caller's UpdatedAt.
func (s *SQLiteCheckpointStore) expired(updatedAt string) bool {
	if s.ttl <= 0 {
		return false
	}
	updated, err := time.Parse(timeLayout, updatedAt)
	if err != nil {
		return false
	}
	return s.now().Sub(updated) > s.ttl
}

var _ model.CheckpointStore = (*SQLiteCheckpointStore)(nil)

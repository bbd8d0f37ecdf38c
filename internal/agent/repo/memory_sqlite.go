package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/text2sql/internal/core/error"
)

// profileKey is the single key a user's profile is stored under.
const profileKey = "profile"

// SQLiteMemoryStore is long-term memory keyed by (namespace, user id).
// Procedural patterns are shared and stored with an empty user id.
type SQLiteMemoryStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteMemoryStore(db *sql.DB) *SQLiteMemoryStore {
	return &SQLiteMemoryStore{db: db, now: time.Now}
}

func (s *SQLiteMemoryStore) Profile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM memories WHERE namespace = ? AND user_id = ? AND key = ?`,
		model.NamespaceProfile, userID, profileKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errx.WrapSQLite(err)
	}
	var p model.UserProfile
	if err := json.Unmarshal([]byte(value), &p); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	return &p, nil
}

func (s *SQLiteMemoryStore) Episodes(ctx context.Context, userID string, limit int) ([]model.QueryEpisode, error) {
	values, err := s.recent(ctx, model.NamespaceEpisodic, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.QueryEpisode, 0, len(values))
	for _, v := range values {
		var ep model.QueryEpisode
		if err := json.Unmarshal([]byte(v), &ep); err != nil {
			return nil, fmt.Errorf("unmarshal episode: %w", err)
		}
		out = append(out, ep)
	}
	return out, nil
}

func (s *SQLiteMemoryStore) Patterns(ctx context.Context, limit int) ([]model.SQLPattern, error) {
	values, err := s.recent(ctx, model.NamespacePatterns, "", limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.SQLPattern, 0, len(values))
	for _, v := range values {
		var p model.SQLPattern
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, fmt.Errorf("unmarshal pattern: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SQLiteMemoryStore) SaveEpisode(ctx context.Context, userID string, ep model.QueryEpisode) error {
	return s.put(ctx, model.NamespaceEpisodic, userID, uuid.NewString(), ep)
}

func (s *SQLiteMemoryStore) SaveProfile(ctx context.Context, userID string, p model.UserProfile) error {
	return s.put(ctx, model.NamespaceProfile, userID, profileKey, p)
}

// SavePattern stores p under its name, replacing an older pattern of the same name.
func (s *SQLiteMemoryStore) SavePattern(ctx context.Context, p model.SQLPattern) error {
	if p.PatternName == "" {
		return fmt.Errorf("pattern name is required")
	}
	return s.put(ctx, model.NamespacePatterns, "", p.PatternName, p)
}

func (s *SQLiteMemoryStore) put(ctx context.Context, namespace, userID, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", namespace, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (namespace, user_id, key, value, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(namespace, user_id, key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at`,
		namespace, userID, key, string(b), s.now().UTC().Format(timeLayout))
	return errx.WrapSQLite(err)
}

func (s *SQLiteMemoryStore) recent(ctx context.Context, namespace, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT value FROM memories
		WHERE namespace = ? AND user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, namespace, userID, limit)
	if err != nil {
		return nil, errx.WrapSQLite(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errx.WrapSQLite(err)
		}
		out = append(out, v)
	}
	return out, errx.WrapSQLite(rows.Err())
}

var (
	_ model.MemoryProvider = (*SQLiteMemoryStore)(nil)
	_ model.MemoryWriter   = (*SQLiteMemoryStore)(nil)
)

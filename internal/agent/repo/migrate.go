package repo

import (
	"context"
	"database/sql"

	"github.com/Chative-core-poc-v1/text2sql/pkg/sqlite"
)

// Migrations create every table the SQLite stores use.
var Migrations = []sqlite.Migration{
	{
		Version: 1,
		Name:    "threads",
		Statements: []string{
			`CREATE TABLE threads (
				thread_id     TEXT PRIMARY KEY,
				user_id       TEXT NOT NULL DEFAULT '',
				checkpoint    TEXT NOT NULL,
				next          TEXT NOT NULL,
				status        TEXT NOT NULL,
				version       INTEGER NOT NULL,
				message_count INTEGER NOT NULL DEFAULT 0,
				updated_at    TEXT NOT NULL
			)`,
			`CREATE TABLE thread_messages (
				thread_id TEXT NOT NULL REFERENCES threads(thread_id) ON DELETE CASCADE,
				seq       INTEGER NOT NULL,
				role      TEXT NOT NULL,
				body      TEXT NOT NULL,
				PRIMARY KEY (thread_id, seq)
			)`,
			`CREATE INDEX threads_updated_at ON threads(updated_at)`,
		},
	},
	{
		Version: 2,
		Name:    "memories",
		Statements: []string{
			`CREATE TABLE memories (
				namespace  TEXT NOT NULL,
				user_id    TEXT NOT NULL,
				key        TEXT NOT NULL,
				value      TEXT NOT NULL,
				created_at TEXT NOT NULL,
				PRIMARY KEY (namespace, user_id, key)
			)`,
			`CREATE INDEX memories_recent ON memories(namespace, user_id, created_at)`,
		},
	},
	{
		Version: 3,
		Name:    "schema_docs",
		Statements: []string{
			`CREATE VIRTUAL TABLE schema_docs USING fts5(title, content)`,
		},
	},
}

// Migrate applies Migrations to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	return sqlite.Migrate(ctx, db, Migrations)
}

package repo

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/text2sql/internal/core/error"
)

var ftsWord = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// SchemaIndex is a full-text collection of schema documentation backed by SQLite FTS5.
type SchemaIndex struct {
	db *sql.DB
}

func NewSchemaIndex(db *sql.DB) *SchemaIndex {
	return &SchemaIndex{db: db}
}

// Add stores one documentation fragment.
func (x *SchemaIndex) Add(ctx context.Context, title, content string) error {
	_, err := x.db.ExecContext(ctx, `INSERT INTO schema_docs (title, content) VALUES (?, ?)`, title, content)
	return errx.WrapSQLite(err)
}

// Clear removes every fragment.
func (x *SchemaIndex) Clear(ctx context.Context) error {
	_, err := x.db.ExecContext(ctx, `DELETE FROM schema_docs`)
	return errx.WrapSQLite(err)
}

// Count returns the number of stored fragments.
func (x *SchemaIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := x.db.QueryRowContext(ctx, `SELECT count(*) FROM schema_docs`).Scan(&n)
	return n, errx.WrapSQLite(err)
}

// SearchSchema returns up to limit fragments ranked by BM25 against any word of query.
func (x *SchemaIndex) SearchSchema(ctx context.Context, query string, limit int) ([]string, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 2
	}
	rows, err := x.db.QueryContext(ctx, `
		SELECT content FROM schema_docs
		WHERE schema_docs MATCH ?
		ORDER BY bm25(schema_docs)
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, errx.WrapSQLite(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, errx.WrapSQLite(err)
		}
		out = append(out, c)
	}
	return out, errx.WrapSQLite(rows.Err())
}

// ftsQuery quotes every word so user text never reaches the FTS5 query syntax.
func ftsQuery(q string) string {
	words := ftsWord.FindAllString(strings.ToLower(q), -1)
	seen := make(map[string]bool, len(words))
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		quoted = append(quoted, `"`+w+`"`)
	}
	return strings.Join(quoted, " OR ")
}

var _ model.SchemaSearcher = (*SchemaIndex)(nil)

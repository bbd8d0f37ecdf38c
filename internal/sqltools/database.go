package sqltools

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/Chative-core-poc-v1/text2sql/pkg/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver   string        `envconfig:"SQL_TOOLS_DRIVER" default:"sqlite"`
	DSN      string        `envconfig:"SQL_TOOLS_DSN" default:"data/warehouse.db"`
	RowLimit int           `envconfig:"SQL_TOOLS_ROW_LIMIT" default:"100"`
	Timeout  time.Duration `envconfig:"SQL_TOOLS_TIMEOUT" default:"30s"`
}

// Open connects to the analysed database.
func (c Config) Open(ctx context.Context) (*sql.DB, error) {
	switch c.Driver {
	case DriverSQLite:
		cfg := sqlite.Config{Path: c.DSN}
		return cfg.New(ctx)
	case DriverPostgres:
		db, err := sql.Open(DriverPostgres, c.DSN)
		if err != nil {
			return nil, fmt.Errorf("sqltools: open postgres: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqltools: ping postgres: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqltools: unsupported driver %q", c.Driver)
	}
}

var listColumnsQuery = map[string]string{
	DriverSQLite: `
		SELECT m.name, p.name, p.type
		FROM sqlite_master m
		JOIN pragma_table_info(m.name) p
		WHERE m.type IN ('table', 'view') AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, p.cid`,
	DriverPostgres: `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		ORDER BY table_name, ordinal_position`,
}

// tableSummary renders one line per table: name(col type, ...).
func tableSummary(ctx context.Context, db *sql.DB, driver string) (string, error) {
	q, ok := listColumnsQuery[driver]
	if !ok {
		return "", fmt.Errorf("unsupported driver %q", driver)
	}
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return "", err
	}
	defer func() { _ = rows.Close() }()

	var (
		b       strings.Builder
		current string
		cols    []string
	)
	flush := func() {
		if current == "" {
			return
		}
		fmt.Fprintf(&b, "%s(%s)\n", current, strings.Join(cols, ", "))
	}
	for rows.Next() {
		var table, column, typ string
		if err := rows.Scan(&table, &column, &typ); err != nil {
			return "", err
		}
		if table != current {
			flush()
			current, cols = table, nil
		}
		cols = append(cols, strings.TrimSpace(column+" "+strings.ToLower(typ)))
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	flush()
	return strings.TrimSpace(b.String()), nil
}

// explain asks the database to plan query without running it.
func explain(ctx context.Context, db *sql.DB, query string) error {
	rows, err := db.QueryContext(ctx, "EXPLAIN "+trimStatement(query))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		// plan rows are not inspected
	}
	return rows.Err()
}

// queryRows runs query and returns its rows as column-keyed objects.
func queryRows(ctx context.Context, db *sql.DB, query string) ([]string, []map[string]any, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	data := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = jsonValue(vals[i])
		}
		data = append(data, row)
	}
	return cols, data, rows.Err()
}

func jsonValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return t
	}
}

// Tables returns one "name(col type, ...)" line per table or view.
func Tables(ctx context.Context, db *sql.DB, driver string) ([]string, error) {
	summary, err := tableSummary(ctx, db, driver)
	if err != nil {
		return nil, err
	}
	if summary == "" {
		return nil, nil
	}
	return strings.Split(summary, "\n"), nil
}

package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/client"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/tools"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/repo"
	"github.com/Chative-core-poc-v1/text2sql/internal/sqltools"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

// app bundles the long-lived collaborators of a CLI invocation.
type app struct {
	cfg *AppConfig

	db          *sql.DB
	checkpoints model.CheckpointStore
	memory      *repo.SQLiteMemoryStore
	schemaIndex *repo.SchemaIndex
	toolbox     *tools.MCPToolbox

	closers []func() error
}

// openStorage opens the local SQLite database and the checkpoint store. It
// does not touch the LLM or the SQL tools.
func openStorage(ctx context.Context, cfg *AppConfig) (*app, error) {
	a := &app{cfg: cfg}

	db, err := cfg.SQLite.New(ctx)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	if err := repo.Migrate(ctx, db); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.memory = repo.NewSQLiteMemoryStore(db)
	a.schemaIndex = repo.NewSchemaIndex(db)

	ttl, err := cfg.Conversation.TTLDuration()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	switch cfg.Store {
	case StoreRedis:
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		a.checkpoints = repo.NewRedisCheckpointStore(rdb, ttl)
	case StoreMemory:
		a.checkpoints = repo.NewMemoryCheckpointStore(ttl)
	default:
		a.checkpoints = repo.NewSQLiteCheckpointStore(db, ttl)
	}

	logx.Debug().Str("store", cfg.Store).Str("sqlite", cfg.SQLite.Path).Msg("Storage ready")
	return a, nil
}

// connectTools starts the configured MCP client and discovers the SQL tools.
func (a *app) connectTools(ctx context.Context) error {
	c, err := a.newMCPClient(ctx)
	if err != nil {
		return err
	}
	tb, err := tools.Connect(ctx, c, a.cfg.MCP.Tools, a.cfg.Timeouts.Tool)
	if err != nil {
		_ = c.Close()
		return err
	}
	a.toolbox = tb
	a.closers = append(a.closers, tb.Close)
	return nil
}

func (a *app) newMCPClient(ctx context.Context) (*client.Client, error) {
	switch a.cfg.MCP.Transport {
	case TransportStdio:
		// stdio clients start with the subprocess.
		return client.NewStdioMCPClient(a.cfg.MCP.Command, nil, a.cfg.MCP.Args...)
	case TransportHTTP:
		c, err := client.NewStreamableHttpClient(a.cfg.MCP.URL)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("start mcp client: %w", err)
		}
		return c, nil
	default:
		warehouse, err := a.cfg.SQLTools.Open(ctx)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, warehouse.Close)
		c, err := client.NewInProcessClient(sqltools.NewServer(warehouse, a.cfg.SQLTools))
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("start mcp client: %w", err)
		}
		return c, nil
	}
}

// orchestrator connects the tools and builds the conversation graph.
func (a *app) orchestrator(ctx context.Context) (*graph.Orchestrator, error) {
	if err := a.cfg.requireLLM(); err != nil {
		return nil, err
	}
	if a.toolbox == nil {
		if err := a.connectTools(ctx); err != nil {
			return nil, err
		}
	}
	return graph.BuildOrchestrator(ctx, graph.Config{
		APIKey:       a.cfg.APIKey,
		BaseURL:      a.cfg.BaseURL,
		Classifier:   a.cfg.Classifier,
		Generator:    a.cfg.Generator,
		Prompt:       a.cfg.Prompt,
		Conversation: a.cfg.Conversation,
		Timeouts:     a.cfg.Timeouts,
		Toolbox:      a.toolbox,
		Checkpoints:  a.checkpoints,
		Memory:       a.memory,
		MemoryWriter: a.memory,
		Searcher:     a.schemaIndex,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

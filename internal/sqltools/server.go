package sqltools

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

// Version is reported to MCP clients during initialization.
const Version = "1.0.0"

// NewServer builds the MCP server exposing list_tables, validate_sql and execute_sql over db.
func NewServer(db *sql.DB, cfg Config) *server.MCPServer {
	s := server.NewMCPServer(
		"text2sql-sqltools",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("Read-only SQL tools: list the tables, validate a query without running it, execute a query."),
	)

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	listTables := &ListTablesTool{db: db, driver: cfg.Driver, timeout: cfg.Timeout}
	s.AddTool(listTables.Definition(), listTables.Handle)

	validate := &ValidateTool{db: db, timeout: cfg.Timeout}
	s.AddTool(validate.Definition(), validate.Handle)

	execute := &ExecuteTool{db: db, rowLimit: cfg.RowLimit, timeout: cfg.Timeout}
	s.AddTool(execute.Definition(), execute.Handle)

	return s
}

// ListTablesTool handles the list_tables MCP tool.
type ListTablesTool struct {
	db      *sql.DB
	driver  string
	timeout time.Duration
}

// Definition returns the MCP tool definition for list_tables.
func (t *ListTablesTool) Definition() mcp.Tool {
	return mcp.NewTool(model.ToolListTables,
		mcp.WithDescription("List every table in the database with its columns and types, one table per line."),
	)
}

// Handle processes the list_tables tool call.
func (t *ListTablesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	summary, err := tableSummary(ctx, t.db, t.driver)
	if err != nil {
		logx.Error().Err(err).Msg("list_tables failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tables: %v", err)), nil
	}
	if summary == "" {
		return mcp.NewToolResultText("No tables found."), nil
	}
	return mcp.NewToolResultText(summary), nil
}

// ValidateTool handles the validate_sql MCP tool.
type ValidateTool struct {
	db      *sql.DB
	timeout time.Duration
}

// Definition returns the MCP tool definition for validate_sql.
func (t *ValidateTool) Definition() mcp.Tool {
	return mcp.NewTool(model.ToolValidateSQL,
		mcp.WithDescription("Check that a read-only SQL query is well formed and references existing tables and columns, without running it."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The SQL query to validate"),
		),
	)
}

// Handle processes the validate_sql tool call.
func (t *ValidateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	if err := CheckReadOnly(query); err != nil {
		return jsonResult(model.ValidationResult{Valid: false, Error: err.Error()})
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := explain(ctx, t.db, query); err != nil {
		return jsonResult(model.ValidationResult{Valid: false, Error: err.Error()})
	}
	return jsonResult(model.ValidationResult{Valid: true})
}

// ExecuteTool handles the execute_sql MCP tool.
type ExecuteTool struct {
	db       *sql.DB
	rowLimit int
	timeout  time.Duration
}

type executeResponse struct {
	Success  bool             `json:"success"`
	Data     []map[string]any `json:"data,omitempty"`
	Columns  []string         `json:"columns,omitempty"`
	RowCount int              `json:"row_count"`
	Error    string           `json:"error,omitempty"`
}

// Definition returns the MCP tool definition for execute_sql.
func (t *ExecuteTool) Definition() mcp.Tool {
	return mcp.NewTool(model.ToolExecuteSQL,
		mcp.WithDescription(fmt.Sprintf("Run a read-only SQL query and return its rows as JSON. Queries without a LIMIT are capped at %d rows.", t.rowLimit)),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The SQL query to execute"),
		),
	)
}

// Handle processes the execute_sql tool call.
func (t *ExecuteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	if err := CheckReadOnly(query); err != nil {
		return jsonResult(executeResponse{Success: false, Error: err.Error()})
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	cols, data, err := queryRows(ctx, t.db, WithLimit(query, t.rowLimit))
	if err != nil {
		logx.Warn().Err(err).Msg("execute_sql failed")
		return jsonResult(executeResponse{Success: false, Error: err.Error()})
	}
	logx.Debug().Int("rows", len(data)).Dur("took", time.Since(start)).Msg("execute_sql done")

	return jsonResult(executeResponse{Success: true, Data: data, Columns: cols, RowCount: len(data)})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

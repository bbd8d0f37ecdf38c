package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/parsers"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/text2sql/internal/core/error"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

const clientName = "text2sql"

// ToolNames maps the three SQL capabilities onto the names a server exposes them under.
type ToolNames struct {
	ListTables  string `envconfig:"MCP_TOOL_LIST_TABLES" default:"list_tables"`
	ValidateSQL string `envconfig:"MCP_TOOL_VALIDATE_SQL" default:"validate_sql"`
	ExecuteSQL  string `envconfig:"MCP_TOOL_EXECUTE_SQL" default:"execute_sql"`
}

// DefaultToolNames matches the bundled SQL tool server.
var DefaultToolNames = ToolNames{
	ListTables:  model.ToolListTables,
	ValidateSQL: model.ToolValidateSQL,
	ExecuteSQL:  model.ToolExecuteSQL,
}

// MCPToolbox implements model.Toolbox over an MCP client session.
type MCPToolbox struct {
	client  client.MCPClient
	names   ToolNames
	timeout time.Duration

	mu        sync.RWMutex
	available map[string]bool
}

// Connect initializes the MCP session and discovers the offered tools. The
// client must already be started.
func Connect(ctx context.Context, c client.MCPClient, names ToolNames, timeout time.Duration) (*MCPToolbox, error) {
	if c == nil {
		return nil, fmt.Errorf("mcp client is nil")
	}
	if names.ListTables == "" || names.ValidateSQL == "" || names.ExecuteSQL == "" {
		names = DefaultToolNames
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: "1.0.0"}

	initCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	info, err := c.Initialize(initCtx, initReq)
	if err != nil {
		return nil, errx.WrapMCP(fmt.Errorf("initialize: %w", err))
	}

	tb := &MCPToolbox{client: c, names: names, timeout: timeout}
	if err := tb.Refresh(ctx); err != nil {
		return nil, err
	}

	logx.Debug().
		Str("server", info.ServerInfo.Name).
		Str("server_version", info.ServerInfo.Version).
		Int("tools", len(tb.available)).
		Msg("Connected to MCP tool server")
	return tb, nil
}

// Refresh re-reads the tool list from the server.
func (t *MCPToolbox) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	res, err := t.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return errx.WrapMCP(fmt.Errorf("list tools: %w", err))
	}
	available := make(map[string]bool, len(res.Tools))
	for _, tl := range res.Tools {
		available[tl.Name] = true
	}

	t.mu.Lock()
	t.available = available
	t.mu.Unlock()
	return nil
}

// Has reports whether the server offered the named tool at the last refresh.
func (t *MCPToolbox) Has(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.available[name]
}

// Close ends the MCP session.
func (t *MCPToolbox) Close() error {
	return t.client.Close()
}

// ListTables returns the server's table summary.
func (t *MCPToolbox) ListTables(ctx context.Context) (string, error) {
	return t.call(ctx, t.names.ListTables, map[string]any{})
}

// ValidateSQL asks the server to check query without running it.
func (t *MCPToolbox) ValidateSQL(ctx context.Context, query string) (model.ValidationResult, error) {
	text, err := t.call(ctx, t.names.ValidateSQL, map[string]any{"query": query})
	if err != nil {
		return model.ValidationResult{}, err
	}
	return parsers.ParseValidation(text)
}

// ExecuteSQL runs query on the server.
func (t *MCPToolbox) ExecuteSQL(ctx context.Context, query string) (*model.ExecutionResult, error) {
	text, err := t.call(ctx, t.names.ExecuteSQL, map[string]any{"query": query})
	if err != nil {
		return nil, err
	}
	return parsers.ParseExecution(text)
}

// call invokes one tool and returns its text content. Tool lifecycle events are
// reported through the Eino tool callbacks registered on ctx.
func (t *MCPToolbox) call(ctx context.Context, name string, args map[string]any) (out string, err error) {
	if !t.Has(name) {
		return "", fmt.Errorf("%s: %w", name, errx.ErrToolUnavailable)
	}

	argsJSON, _ := json.Marshal(args)
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{Name: name, Type: "MCP", Component: components.ComponentOfTool})
	ctx = callbacks.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: string(argsJSON)})
	defer func() {
		if err != nil {
			callbacks.OnError(ctx, err)
			return
		}
		callbacks.OnEnd(ctx, &tool.CallbackOutput{Response: out})
	}()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := t.client.CallTool(ctx, req)
	if err != nil {
		return "", errx.WrapMCP(fmt.Errorf("%s: %w", name, err))
	}

	text := textOf(res)
	if res.IsError {
		// Tool-level errors carry the message the model or the user should see.
		return text, errx.WithKind(errx.KindTool, fmt.Errorf("%s: %s", name, text), errx.MCPErrorMessage)
	}
	return text, nil
}

func textOf(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, c := range res.Content {
		switch tc := c.(type) {
		case mcp.TextContent:
			parts = append(parts, tc.Text)
		case *mcp.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

package model

import "context"

// Tool names offered by the SQL tool server.
const (
	ToolListTables  = "list_tables"
	ToolValidateSQL = "validate_sql"
	ToolExecuteSQL  = "execute_sql"
)

// Toolbox is the SQL capability surface. Implementations return an error
// matching errx.ErrToolUnavailable when the backing tool is not offered.
type Toolbox interface {
	ListTables(ctx context.Context) (string, error)
	ValidateSQL(ctx context.Context, query string) (ValidationResult, error)
	ExecuteSQL(ctx context.Context, query string) (*ExecutionResult, error)
}

// SchemaSearcher finds schema documentation relevant to a question.
type SchemaSearcher interface {
	SearchSchema(ctx context.Context, query string, limit int) ([]string, error)
}

package parsers

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/text2sql/internal/core/error"
)

// basic safety limits to avoid pathological tool payloads
const (
	maxPayloadLen = 8 * 1024 * 1024 // 8MB
	maxErrSnippet = 200
)

type executionPayload struct {
	Success  bool             `json:"success"`
	Data     []map[string]any `json:"data"`
	Columns  []string         `json:"columns"`
	RowCount *int             `json:"row_count"`
	Error    string           `json:"error"`
}

// ParseValidation decodes a validate_sql tool reply.
func ParseValidation(content string) (model.ValidationResult, error) {
	var out model.ValidationResult
	body, err := payload(content)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, invalid("validation", content, err)
	}
	if out.Valid {
		out.Error = ""
	} else if out.Error == "" {
		out.Error = "Unknown validation error"
	}
	return out, nil
}

// ParseExecution decodes an execute_sql tool reply.
func ParseExecution(content string) (*model.ExecutionResult, error) {
	body, err := payload(content)
	if err != nil {
		return nil, err
	}
	var p executionPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, invalid("execution", content, err)
	}

	res := &model.ExecutionResult{
		Success: p.Success,
		Columns: p.Columns,
		Rows:    p.Data,
		Error:   p.Error,
	}
	if !res.Success && res.Error == "" {
		res.Error = "Unknown execution error"
	}
	res.RowCount = len(res.Rows)
	if p.RowCount != nil && *p.RowCount > res.RowCount {
		res.RowCount = *p.RowCount
	}
	if len(res.Columns) == 0 && len(res.Rows) > 0 {
		res.Columns = ColumnsOf(res.Rows[0])
	}
	return res, nil
}

// ColumnsOf returns the keys of a row in sorted order.
func ColumnsOf(row map[string]any) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	slices.Sort(cols)
	return cols
}

func payload(content string) ([]byte, error) {
	s := strings.TrimSpace(content)
	if s == "" {
		return nil, errx.WithKind(errx.KindTool, fmt.Errorf("empty tool payload"), errx.MCPErrorMessage)
	}
	if len(s) > maxPayloadLen {
		return nil, errx.WithKind(errx.KindTool, fmt.Errorf("tool payload too large: %d bytes", len(s)), errx.MCPErrorMessage)
	}
	return []byte(s), nil
}

func invalid(what, content string, err error) error {
	snippet := content
	if len(snippet) > maxErrSnippet {
		snippet = snippet[:maxErrSnippet] + "..."
	}
	return errx.WithKind(errx.KindTool, fmt.Errorf("decode %s payload %q: %w", what, snippet, err), errx.MCPErrorMessage)
}

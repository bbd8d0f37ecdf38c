package prompts

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
)

//go:embed template/summary.txt
var summaryPrompt string

// DefaultSampleRows is how many rows the summary prompt sees by default.
const DefaultSampleRows = 5

// SummaryInput carries the executed query and its rows.
type SummaryInput struct {
	Question   string
	SQL        string
	Rows       []map[string]any
	SampleRows int
}

// RenderSummary renders the analytical summary prompt over the first rows only.
func RenderSummary(ctx context.Context, in SummaryInput) ([]*schema.Message, error) {
	n := in.SampleRows
	if n <= 0 {
		n = DefaultSampleRows
	}
	sample := in.Rows
	if len(sample) > n {
		sample = sample[:n]
	}
	b, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("summary prompt sample: %w", err)
	}

	return format(ctx, "summary", summaryPrompt, map[string]any{
		"Question":   in.Question,
		"SQL":        in.SQL,
		"RowCount":   len(in.Rows),
		"SampleSize": len(sample),
		"Sample":     string(b),
	})
}

package prompts

import (
	"context"
	_ "embed"

	"github.com/cloudwego/eino/schema"
)

//go:embed template/generation.txt
var generationPrompt string

// GenerationInput feeds both first-pass generation and retries. A non-empty
// PreviousError switches the template into its corrective form.
type GenerationInput struct {
	Question        string
	SchemaFragments []string
	Tables          string
	PreviousError   string
	Dialect         string
	MaxBlockChars   int
}

// RenderGeneration renders the SQL generation prompt.
func RenderGeneration(ctx context.Context, in GenerationInput) ([]*schema.Message, error) {
	dialect := in.Dialect
	if dialect == "" {
		dialect = "PostgreSQL"
	}
	fragments := make([]string, 0, len(in.SchemaFragments))
	for _, f := range in.SchemaFragments {
		if f == "" {
			continue
		}
		fragments = append(fragments, truncate(f, in.MaxBlockChars))
	}

	return format(ctx, "generation", generationPrompt, map[string]any{
		"Dialect":         dialect,
		"PreviousError":   in.PreviousError,
		"SchemaFragments": fragments,
		"Tables":          truncate(in.Tables, in.MaxBlockChars),
		"Question":        in.Question,
	})
}

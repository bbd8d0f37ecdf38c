package model

import "context"

// Memory namespaces. Records are keyed by (namespace, user id); patterns are shared.
const (
	NamespaceProfile  = "users/profile"
	NamespaceEpisodic = "memories/episodic"
	NamespacePatterns = "sql_patterns"
)

// UserProfile is semantic memory: who the user is and how they like answers.
type UserProfile struct {
	Name                     string   `json:"name,omitempty" yaml:"name,omitempty"`
	Organization             string   `json:"organization,omitempty" yaml:"organization,omitempty"`
	Department               string   `json:"department,omitempty" yaml:"department,omitempty"`
	PreferredResponseStyle   string   `json:"preferred_response_style" yaml:"preferred_response_style"`
	TechnicalLevel           string   `json:"technical_level" yaml:"technical_level"`
	CommonTables             []string `json:"common_tables,omitempty" yaml:"common_tables,omitempty"`
	DomainExpertise          []string `json:"domain_expertise,omitempty" yaml:"domain_expertise,omitempty"`
	ClarificationPreferences string   `json:"clarification_preferences" yaml:"clarification_preferences"`
}

// QueryEpisode is episodic memory: one past question and how it went.
type QueryEpisode struct {
	UserQuery    string   `json:"user_query" yaml:"user_query"`
	GeneratedSQL string   `json:"generated_sql" yaml:"generated_sql"`
	Success      bool     `json:"success" yaml:"success"`
	TablesUsed   []string `json:"tables_used,omitempty" yaml:"tables_used,omitempty"`
	QueryType    string   `json:"query_type" yaml:"query_type"`
	UserFeedback string   `json:"user_feedback,omitempty" yaml:"user_feedback,omitempty"`
	Timestamp    string   `json:"timestamp" yaml:"timestamp"`
}

// SQLPattern is procedural memory: a reusable query shape.
type SQLPattern struct {
	PatternName    string   `json:"pattern_name" yaml:"pattern_name"`
	SQLTemplate    string   `json:"sql_template" yaml:"sql_template"`
	UseCases       []string `json:"use_cases,omitempty" yaml:"use_cases,omitempty"`
	SuccessRate    float64  `json:"success_rate" yaml:"success_rate"`
	ExampleQueries []string `json:"example_queries,omitempty" yaml:"example_queries,omitempty"`
}

// UserContext is the aggregated long-term memory for one user.
type UserContext struct {
	Profile  *UserProfile   `json:"profile,omitempty" yaml:"profile,omitempty"`
	Episodes []QueryEpisode `json:"episodes" yaml:"episodes"`
	Patterns []SQLPattern   `json:"patterns" yaml:"patterns"`
}

// MemoryProvider reads long-term memory.
type MemoryProvider interface {
	Profile(ctx context.Context, userID string) (*UserProfile, error)
	Episodes(ctx context.Context, userID string, limit int) ([]QueryEpisode, error)
	Patterns(ctx context.Context, limit int) ([]SQLPattern, error)
}

// MemoryWriter persists episodic memory.
type MemoryWriter interface {
	SaveEpisode(ctx context.Context, userID string, ep QueryEpisode) error
}

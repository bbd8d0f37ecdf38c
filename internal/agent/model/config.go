package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	TTL               string `envconfig:"CONVERSATION_TTL" default:"24h"`
	MaxClarifications int    `envconfig:"CONVERSATION_MAX_CLARIFICATIONS" default:"3"`
	MaxRetries        int    `envconfig:"CONVERSATION_MAX_RETRIES" default:"3"`
	HistoryMessages   int    `envconfig:"CONVERSATION_HISTORY_MESSAGES" default:"20"`
	SchemaLimit       int    `envconfig:"CONVERSATION_SCHEMA_LIMIT" default:"2"`
	SampleRows        int    `envconfig:"CONVERSATION_SAMPLE_ROWS" default:"5"`
	EpisodeLimit      int    `envconfig:"CONVERSATION_EPISODE_LIMIT" default:"5"`
	PatternLimit      int    `envconfig:"CONVERSATION_PATTERN_LIMIT" default:"10"`
}

// TTLDuration parses TTL, returning zero (no expiry) for an empty value.
func (c ConversationConfig) TTLDuration() (time.Duration, error) {
	if c.TTL == "" {
		return 0, nil
	}
	return time.ParseDuration(c.TTL)
}

type ClassifierModelConfig struct {
	Model       string  `envconfig:"CLASSIFIER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"CLASSIFIER_MAX_TOKENS" default:"64"`
	Temperature float32 `envconfig:"CLASSIFIER_TEMPERATURE" default:"0"`
}

type GeneratorModelConfig struct {
	Model       string  `envconfig:"GENERATOR_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"GENERATOR_MAX_TOKENS" default:"4000"`
	Temperature float32 `envconfig:"GENERATOR_TEMPERATURE" default:"0.2"`
}

type PromptConfig struct {
	AssistantName string `envconfig:"PROMPT_ASSISTANT_NAME" default:"Simba"`
	Dialect       string `envconfig:"PROMPT_SQL_DIALECT" default:"PostgreSQL"`
	// MaxBlockChars bounds each schema/table block embedded in a prompt.
	MaxBlockChars int `envconfig:"PROMPT_MAX_BLOCK_CHARS" default:"6000"`
}

type TimeoutConfig struct {
	LLM    time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	Tool   time.Duration `envconfig:"TOOL_TIMEOUT" default:"30s"`
	Memory time.Duration `envconfig:"MEMORY_TIMEOUT" default:"5s"`
}

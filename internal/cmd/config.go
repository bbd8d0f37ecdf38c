package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/graph/tools"
	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	"github.com/Chative-core-poc-v1/text2sql/internal/sqltools"
	pkgredis "github.com/Chative-core-poc-v1/text2sql/pkg/redis"
	pkgsqlite "github.com/Chative-core-poc-v1/text2sql/pkg/sqlite"
)

// Checkpoint store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// MCP transports for reaching the SQL tools.
const (
	TransportInProcess = "inprocess"
	TransportStdio     = "stdio"
	TransportHTTP      = "http"
)

// AppConfig defines all configurable parameters, sourced from environment
// variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis  pkgredis.Config
	SQLite pkgsqlite.Config
	Store  string `envconfig:"CHECKPOINT_STORE" default:"sqlite"`

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Classifier   model.ClassifierModelConfig
	Generator    model.GeneratorModelConfig
	Prompt       model.PromptConfig
	Conversation model.ConversationConfig
	Timeouts     model.TimeoutConfig

	// SQL tools
	MCP      MCPConfig
	SQLTools sqltools.Config
}

// MCPConfig selects how the SQL tools are reached.
type MCPConfig struct {
	// Transport is inprocess (serve SQL_TOOLS_* in this process), stdio, or http.
	Transport string   `envconfig:"MCP_TRANSPORT" default:"inprocess"`
	Command   string   `envconfig:"MCP_COMMAND"`
	Args      []string `envconfig:"MCP_ARGS"`
	URL       string   `envconfig:"MCP_URL"`
	Tools     tools.ToolNames
}

// loadConfig reads envFile when it exists, then the process environment.
func loadConfig(envFile string) (*AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.Store {
	case StoreSQLite, StoreMemory:
	case StoreRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("CHECKPOINT_STORE=redis needs REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown CHECKPOINT_STORE %q", c.Store)
	}
	switch c.MCP.Transport {
	case TransportInProcess:
	case TransportStdio:
		if c.MCP.Command == "" {
			return fmt.Errorf("MCP_TRANSPORT=stdio needs MCP_COMMAND")
		}
	case TransportHTTP:
		if c.MCP.URL == "" {
			return fmt.Errorf("MCP_TRANSPORT=http needs MCP_URL")
		}
	default:
		return fmt.Errorf("unknown MCP_TRANSPORT %q", c.MCP.Transport)
	}
	if _, err := c.Conversation.TTLDuration(); err != nil {
		return fmt.Errorf("invalid CONVERSATION_TTL %q: %w", c.Conversation.TTL, err)
	}
	return nil
}

// requireLLM reports a missing API key for commands that talk to the model.
func (c *AppConfig) requireLLM() error {
	if c.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	return nil
}

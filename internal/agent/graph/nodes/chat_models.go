package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/Chative-core-poc-v1/text2sql/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/text2sql/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey     string
	BaseURL    string
	Classifier *model.ClassifierModelConfig
	Generator  *model.GeneratorModelConfig
}

// ChatModels holds the triage classifier and the SQL/text generator.
type ChatModels struct {
	Classifier          einomodel.BaseChatModel
	Generator           einomodel.BaseChatModel
	ClassifierModelName string
	GeneratorModelName  string
}

// NewChatModels creates both Gemini chat models over one shared client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.Classifier == nil || config.Generator == nil {
		return nil, fmt.Errorf("classifier and generator model configs are required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	// The classifier answers with a single label, thinking would eat its token budget.
	classifier, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.Classifier.Model,
		Temperature: &config.Classifier.Temperature,
		MaxTokens:   &config.Classifier.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(0)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating classifier model")
		return nil, fmt.Errorf("error creating classifier model: %w", err)
	}

	generator, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.Generator.Model,
		Temperature: &config.Generator.Temperature,
		MaxTokens:   &config.Generator.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(2000)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating generator model")
		return nil, fmt.Errorf("error creating generator model: %w", err)
	}

	return &ChatModels{
		Classifier:          classifier,
		Generator:           generator,
		ClassifierModelName: config.Classifier.Model,
		GeneratorModelName:  config.Generator.Model,
	}, nil
}

// File: internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// NewClient constructs the tiered LLM router from configuration. This is the
// single client handed to the planner and the agent loop.
func NewClient(cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("no LLM models configured under agent.llm.models")
	}

	instantiated := make(map[string]schemas.LLMClient, len(cfg.Models))
	for name, modelCfg := range cfg.Models {
		var client schemas.LLMClient
		var err error
		switch modelCfg.Provider {
		case config.ProviderGemini:
			client, err = NewGeminiClient(modelCfg, logger)
		default:
			return nil, fmt.Errorf("unknown LLM provider %q for model %q", modelCfg.Provider, name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client for model %q: %w", name, err)
		}
		instantiated[name] = client
		logger.Info("Instantiated LLM client",
			zap.String("name", name),
			zap.String("provider", string(modelCfg.Provider)),
			zap.String("model", modelCfg.Model))
	}

	fastClient, ok := instantiated[cfg.DefaultFastModel]
	if !ok {
		return nil, fmt.Errorf("default fast model %q not found in defined models", cfg.DefaultFastModel)
	}
	powerfulClient, ok := instantiated[cfg.DefaultPowerfulModel]
	if !ok {
		return nil, fmt.Errorf("default powerful model %q not found in defined models", cfg.DefaultPowerfulModel)
	}

	return NewLLMRouter(logger, fastClient, powerfulClient, cfg.RequestsPerMinute)
}

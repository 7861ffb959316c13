package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViperWithDefaults() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "webpilot", cfg.Logger.ServiceName)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 24, cfg.Agent.MaxSteps)
	assert.Equal(t, 3, cfg.Agent.FailureLimit)
	assert.Equal(t, 15000, cfg.Agent.ConsentTimeoutMs)
	assert.True(t, cfg.Policy.AllowAll)
	assert.Equal(t, "file", cfg.Audit.Backend)
}

func TestNewConfigFromViper_Valid(t *testing.T) {
	v := newViperWithDefaults()
	v.Set("agent.llm.models", map[string]interface{}{
		"flash": map[string]interface{}{
			"provider": "gemini",
			"model":    "gemini-2.0-flash",
			"api_key":  "test-key",
		},
	})

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	require.Contains(t, cfg.Agent.LLM.Models, "flash")
	assert.Equal(t, ProviderGemini, cfg.Agent.LLM.Models["flash"].Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.Agent.LLM.Models["flash"].Model)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(v *viper.Viper)
	}{
		{"zero max steps", func(v *viper.Viper) { v.Set("agent.max_steps", 0) }},
		{"zero failure limit", func(v *viper.Viper) { v.Set("agent.failure_limit", 0) }},
		{"zero consent timeout", func(v *viper.Viper) { v.Set("agent.consent_timeout_ms", 0) }},
		{"unknown audit backend", func(v *viper.Viper) { v.Set("audit.backend", "sqlite") }},
		{"postgres without dsn", func(v *viper.Viper) { v.Set("audit.backend", "postgres") }},
		{"model without id", func(v *viper.Viper) {
			v.Set("agent.llm.models", map[string]interface{}{
				"flash": map[string]interface{}{"provider": "gemini"},
			})
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := newViperWithDefaults()
			tc.mutate(v)
			_, err := NewConfigFromViper(v)
			assert.Error(t, err)
		})
	}
}

func TestExpandPaths_Home(t *testing.T) {
	v := newViperWithDefaults()
	v.Set("audit.file_path", "~/audit.jsonl")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.NotContains(t, cfg.Audit.FilePath, "~")
}

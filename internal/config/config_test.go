// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "crust", cfg.Logger().ServiceName)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 30*time.Second, cfg.Browser().ActionTimeout)
	assert.Equal(t, 1280, cfg.Browser().Viewport["width"])
	assert.Equal(t, ProviderGemini, cfg.LLM().Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM().FastModel)

	auto := cfg.Automation()
	assert.Equal(t, 20, auto.MaxSteps)
	assert.Equal(t, 3, auto.MaxAttempts)
	assert.Equal(t, 10, auto.ElementLimit)
	assert.Equal(t, 500*time.Millisecond, auto.SettleDelay)
	assert.Equal(t, 2*time.Second, auto.DefaultWait)
	assert.Equal(t, 30*time.Second, auto.WaitSelectorTimeout)
	assert.Equal(t, 10*time.Second, auto.ExtractWait)
	assert.True(t, auto.AllowScripts)
	assert.True(t, auto.VerificationFailOpen)

	assert.Equal(t, ":3000", cfg.Server().Addr)
	assert.NoError(t, cfg.Validate(), "defaults must always validate")
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.SetBrowserHeadless(false)
	cfg.SetAutomationMaxSteps(5)
	cfg.SetAutomationAllowScripts(false)
	cfg.SetArtifactsDir("/tmp/shots")
	cfg.SetServerAddr("127.0.0.1:8080")

	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, 5, cfg.Automation().MaxSteps)
	assert.False(t, cfg.Automation().AllowScripts)
	assert.Equal(t, "/tmp/shots", cfg.Artifacts().Dir)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server().Addr)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		require.NoError(t, cfg.Validate())

		invalidTimeout := *cfg
		invalidTimeout.BrowserCfg.ActionTimeout = 0
		err := invalidTimeout.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.action_timeout must be a positive duration")

		invalidServer := *cfg
		invalidServer.ServerCfg.MaxConcurrentRuns = 0
		err = invalidServer.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.max_concurrent_runs must be a positive integer")

		missingDir := *cfg
		missingDir.ArtifactsCfg.Dir = ""
		err = missingDir.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "artifacts.dir is required")

		missingDir.ArtifactsCfg.Enabled = false
		assert.NoError(t, missingDir.Validate(), "disabled artifacts need no directory")
	})

	t.Run("Automation Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Automation()
		assert.NoError(t, valid.Validate())

		noSteps := valid
		noSteps.MaxSteps = 0
		err := noSteps.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_steps must be a positive integer")

		noAttempts := valid
		noAttempts.MaxAttempts = -1
		err = noAttempts.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_attempts must be a positive integer")

		negativeDelay := valid
		negativeDelay.SettleDelay = -time.Second
		assert.Error(t, negativeDelay.Validate())

		negativeExtractWait := valid
		negativeExtractWait.ExtractWait = -time.Second
		assert.Error(t, negativeExtractWait.Validate())
	})

	t.Run("LLM Validation", func(t *testing.T) {
		valid := NewDefaultConfig().LLM()
		assert.NoError(t, valid.Validate(), "a missing API key is not a validation error")

		unknown := valid
		unknown.Provider = "ollama"
		err := unknown.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unsupported provider "ollama"`)

		noRate := valid
		noRate.RequestsPerSecond = 0
		assert.Error(t, noRate.Validate())

		noModel := valid
		noModel.FastModel = ""
		assert.Error(t, noModel.Validate())
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
automation:
  max_steps: 7
  verification_fail_open: false
browser:
  headless: false
  args:
    - "lang=en-US"
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, 7, cfg.Automation().MaxSteps)
		assert.False(t, cfg.Automation().VerificationFailOpen)
		assert.False(t, cfg.Browser().Headless)
		assert.Equal(t, []string{"lang=en-US"}, cfg.Browser().Args)
		// Untouched keys keep their defaults.
		assert.Equal(t, 3, cfg.Automation().MaxAttempts)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("automation.max_steps", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "max_steps must be a positive integer")
	})

	t.Run("API Key From Environment", func(t *testing.T) {
		t.Setenv("CRUST_LLM_API_KEY", "")
		t.Setenv("GOOGLE_API_KEY", "")
		t.Setenv("GEMINI_API_KEY", "gemini-key-123")

		v := viper.New()
		SetDefaults(v)
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "gemini-key-123", cfg.LLM().APIKey)
	})

	t.Run("Prefixed Key Takes Precedence", func(t *testing.T) {
		t.Setenv("CRUST_LLM_API_KEY", "crust-key")
		t.Setenv("GEMINI_API_KEY", "gemini-key")

		v := viper.New()
		SetDefaults(v)
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "crust-key", cfg.LLM().APIKey)
	})
}

package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentchat/engine"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateConfig runs the test in an empty directory without a config file.
func isolateConfig(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_FILE", "")
}

func TestLoadConfigDefaults(t *testing.T) {
	isolateConfig(t)

	config, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "3000", config.Port)
	assert.Equal(t, ".github/agents", config.AgentsDir)
	assert.Equal(t, "public", config.StaticDir)
	assert.Equal(t, "uploads", config.UploadDir)
	assert.Equal(t, engine.ProviderOllama, config.LLMProvider)
	assert.Equal(t, "qwen3", config.ProviderModel)
	assert.Equal(t, "GitHub Copilot", config.AssistantLabel)
	assert.Equal(t, 300*time.Second, config.RequestTimeout)
	assert.Equal(t, 10, config.ContextLimit)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	isolateConfig(t)
	t.Setenv("PORT", "8081")
	t.Setenv("AGENTS_DIR", "agents")
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LLM_MODEL", "gpt-4.1")
	t.Setenv("MODELS", "gpt-4.1, gpt-4o-mini,,")
	t.Setenv("REQUEST_TIMEOUT", "30")
	t.Setenv("CONTEXT_LIMIT", "-3")
	t.Setenv("MAX_UPLOAD_MB", "2")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com")

	config, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8081", config.Port)
	assert.Equal(t, "agents", config.AgentsDir)
	assert.Equal(t, engine.ProviderOpenAI, config.LLMProvider)
	assert.Equal(t, "sk-test", config.LLMAPIKey)
	assert.Equal(t, "gpt-4.1", config.ProviderModel)
	assert.Equal(t, []string{"gpt-4.1", "gpt-4o-mini"}, config.Models)
	assert.Equal(t, 30*time.Second, config.RequestTimeout)
	assert.Equal(t, 10, config.ContextLimit, "invalid values keep the default")
	assert.Equal(t, int64(2<<20), config.MaxUploadBytes)
	assert.Equal(t, []string{"https://a.example.com"}, config.AllowedOrigins)

	provider := config.ProviderConfig()
	assert.Empty(t, provider.Endpoint, "the ollama default endpoint is not passed to hosted providers")
	assert.Equal(t, "gpt-4.1", provider.Model)
}

func TestLoadConfigFile(t *testing.T) {
	isolateConfig(t)

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "4000"
agents_dir: /srv/agents
default_model: claude-sonnet-4.5
models: [claude-sonnet-4.5, gpt-4o]
request_timeout: 90s
assistant_label: Example Assistant
`), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "5000")

	config, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "5000", config.Port, "environment wins over the file")
	assert.Equal(t, "/srv/agents", config.AgentsDir)
	assert.Equal(t, "claude-sonnet-4.5", config.DefaultModel)
	assert.Equal(t, []string{"claude-sonnet-4.5", "gpt-4o"}, config.Models)
	assert.Equal(t, 90*time.Second, config.RequestTimeout)
	assert.Equal(t, "Example Assistant", config.AssistantLabel)
	assert.Equal(t, "public", config.StaticDir, "unset keys keep defaults")
}

func TestLoadConfigErrors(t *testing.T) {
	isolateConfig(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prot: 1\n"), 0o644))
	t.Setenv("CONFIG_FILE", path)
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "failed to parse config file")

	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LLM_PROVIDER", "gemini")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "gemini API key is required")

	t.Setenv("LLM_PROVIDER", "mainframe")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, `unknown LLM provider "mainframe"`)
}

func TestInitializeLogger(t *testing.T) {
	config := DefaultConfig()
	config.LogLevel = "WARNING"
	logger := InitializeLogger(config)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	config.LogLevel = "verbose"
	assert.Equal(t, logrus.InfoLevel, InitializeLogger(config).GetLevel())
}

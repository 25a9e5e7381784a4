/*
Package core provides configuration management and logging initialization
for the agentchat gateway.

This file handles:
- Loading configuration from an optional YAML file and environment variables
- Structured logging setup with configurable levels
- Provider selection for the chat engine

Defaults are applied first, then the YAML file (CONFIG_FILE, or config.yaml
when present in the working directory), then environment variables. A later
source only overrides the values it actually sets.
*/
package core

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"agentchat/engine"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "config.yaml"

// Config holds all configurable values for the gateway.
type Config struct {
	// Server configuration
	Port            string   `yaml:"port"`              // HTTP server port number (default: "3000")
	StaticDir       string   `yaml:"static_dir"`        // Directory served at / (default: "public")
	UploadDir       string   `yaml:"upload_dir"`        // Where /upload stores files; removed on shutdown (default: "uploads")
	MaxUploadBytes  int64    `yaml:"max_upload_bytes"`  // Largest accepted upload (default: 25 MiB)
	AllowedOrigins  []string `yaml:"allowed_origins"`   // WebSocket origins accepted besides same-host; "*" accepts any
	MaxMessageBytes int64    `yaml:"max_message_bytes"` // Largest inbound WebSocket message (default: 1 MiB)

	// Agent catalog configuration
	AgentsDir string `yaml:"agents_dir"` // Directory scanned for *.agent.md files (default: ".github/agents")

	// LLM provider configuration
	LLMProvider    string   `yaml:"llm_provider"`    // "ollama", "gemini", "openai" or "anthropic" (default: "ollama")
	LLMEndpoint    string   `yaml:"llm_endpoint"`    // Base URL for ollama or OpenAI-compatible servers
	LLMAPIKey      string   `yaml:"llm_api_key"`     // API key for hosted providers
	ProviderModel  string   `yaml:"provider_model"`  // Model the provider client is initialized with
	DefaultModel   string   `yaml:"default_model"`   // Model used when create_session names none; empty keeps ProviderModel
	Models         []string `yaml:"models"`          // Models advertised by /api/models
	AssistantLabel string   `yaml:"assistant_label"` // Name the assistant must not disclose unless asked (default: "GitHub Copilot")

	// Engine behavior
	RequestTimeout time.Duration `yaml:"request_timeout"` // Upper bound for a single turn (default: 300s)
	ContextLimit   int           `yaml:"context_limit"`   // History messages replayed per turn (default: 10)
	MaxIterations  int           `yaml:"max_iterations"`  // ReAct iterations for agents with tools (default: 10)
	WorkspaceDir   string        `yaml:"workspace_dir"`   // Root the workspace tools are confined to (default: working directory)

	// Logging configuration
	LogLevel          string `yaml:"log_level"`           // debug, info, warn, error (default: "info")
	LogTruncateLength int    `yaml:"log_truncate_length"` // Maximum length of logged model text (default: 500)
}

// defaultProviderModels is used when no provider model is configured.
var defaultProviderModels = map[string]string{
	engine.ProviderOllama:    "qwen3",
	engine.ProviderGemini:    "gemini-2.0-flash",
	engine.ProviderOpenAI:    "gpt-4o",
	engine.ProviderAnthropic: "claude-sonnet-4-5",
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Port:            "3000",
		StaticDir:       "public",
		UploadDir:       "uploads",
		MaxUploadBytes:  25 << 20,
		MaxMessageBytes: 1 << 20,

		AgentsDir: ".github/agents",

		LLMProvider:    engine.ProviderOllama,
		LLMEndpoint:    "http://localhost:11434",
		AssistantLabel: "GitHub Copilot",

		RequestTimeout: 300 * time.Second,
		ContextLimit:   10,
		MaxIterations:  10,

		LogLevel:          "info",
		LogTruncateLength: 500,
	}
}

// LoadConfig loads configuration from defaults, the optional YAML file and
// environment variables, in that order.
//
// Environment Variables:
//   - CONFIG_FILE: YAML file to read (string)
//   - PORT, STATIC_DIR, UPLOAD_DIR, AGENTS_DIR, WORKSPACE_DIR (string)
//   - MAX_UPLOAD_MB: Upload limit in MiB (integer)
//   - MAX_MESSAGE_BYTES: WebSocket message limit (integer)
//   - ALLOWED_ORIGINS: Comma separated origins (string)
//   - LLM_PROVIDER: ollama, gemini, openai or anthropic (string)
//   - LLM_ENDPOINT / OLLAMA_ENDPOINT: Provider base URL (string)
//   - LLM_API_KEY, or GEMINI_API_KEY / OPENAI_API_KEY / ANTHROPIC_API_KEY (string)
//   - LLM_MODEL: Provider model (string)
//   - DEFAULT_MODEL: Session default model (string)
//   - MODELS: Comma separated advertised models (string)
//   - ASSISTANT_LABEL (string)
//   - REQUEST_TIMEOUT: Turn timeout in seconds (integer)
//   - CONTEXT_LIMIT, MAX_ITERATIONS, LOG_TRUNCATE_LENGTH (integer)
//   - LOG_LEVEL (string)
func LoadConfig() (*Config, error) {
	config := DefaultConfig()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	if path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	config.applyEnv()

	if config.ProviderModel == "" {
		config.ProviderModel = defaultProviderModels[config.LLMProvider]
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Port, "PORT")
	setString(&c.StaticDir, "STATIC_DIR")
	setString(&c.UploadDir, "UPLOAD_DIR")
	setString(&c.AgentsDir, "AGENTS_DIR")
	setString(&c.WorkspaceDir, "WORKSPACE_DIR")

	if mb := os.Getenv("MAX_UPLOAD_MB"); mb != "" {
		if val, err := strconv.Atoi(mb); err == nil && val > 0 {
			c.MaxUploadBytes = int64(val) << 20
		}
	}
	if limit := os.Getenv("MAX_MESSAGE_BYTES"); limit != "" {
		if val, err := strconv.ParseInt(limit, 10, 64); err == nil && val > 0 {
			c.MaxMessageBytes = val
		}
	}
	setList(&c.AllowedOrigins, "ALLOWED_ORIGINS")

	if provider := strings.ToLower(os.Getenv("LLM_PROVIDER")); provider != "" {
		c.LLMProvider = provider
	}
	setString(&c.LLMEndpoint, "OLLAMA_ENDPOINT")
	setString(&c.LLMEndpoint, "LLM_ENDPOINT")

	switch c.LLMProvider {
	case engine.ProviderGemini:
		setString(&c.LLMAPIKey, "GEMINI_API_KEY")
	case engine.ProviderOpenAI:
		setString(&c.LLMAPIKey, "OPENAI_API_KEY")
	case engine.ProviderAnthropic:
		setString(&c.LLMAPIKey, "ANTHROPIC_API_KEY")
	}
	setString(&c.LLMAPIKey, "LLM_API_KEY")

	setString(&c.ProviderModel, "LLM_MODEL")
	setString(&c.DefaultModel, "DEFAULT_MODEL")
	setList(&c.Models, "MODELS")
	setString(&c.AssistantLabel, "ASSISTANT_LABEL")

	if timeout := os.Getenv("REQUEST_TIMEOUT"); timeout != "" {
		if val, err := strconv.Atoi(timeout); err == nil && val > 0 {
			c.RequestTimeout = time.Duration(val) * time.Second
		}
	}
	setPositiveInt(&c.ContextLimit, "CONTEXT_LIMIT")
	setPositiveInt(&c.MaxIterations, "MAX_ITERATIONS")

	setString(&c.LogLevel, "LOG_LEVEL")
	setPositiveInt(&c.LogTruncateLength, "LOG_TRUNCATE_LENGTH")
}

// Validate reports configuration the gateway cannot start with.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case engine.ProviderOllama, engine.ProviderOpenAI:
	case engine.ProviderGemini, engine.ProviderAnthropic:
		if c.LLMAPIKey == "" {
			return fmt.Errorf("%s API key is required when using %s provider", c.LLMProvider, c.LLMProvider)
		}
	default:
		return fmt.Errorf("unknown LLM provider %q", c.LLMProvider)
	}

	if c.Port == "" {
		return errors.New("port must not be empty")
	}
	return nil
}

// ProviderConfig returns the engine's provider settings.
func (c *Config) ProviderConfig() engine.ProviderConfig {
	endpoint := c.LLMEndpoint
	// The ollama default endpoint means nothing to hosted providers.
	if c.LLMProvider != engine.ProviderOllama && endpoint == DefaultConfig().LLMEndpoint {
		endpoint = ""
	}
	return engine.ProviderConfig{
		Provider: c.LLMProvider,
		Endpoint: endpoint,
		APIKey:   c.LLMAPIKey,
		Model:    c.ProviderModel,
	}
}

func setString(target *string, name string) {
	if v := os.Getenv(name); v != "" {
		*target = v
	}
}

func setPositiveInt(target *int, name string) {
	if v := os.Getenv(name); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			*target = val
		}
	}
}

func setList(target *[]string, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*target = items
}

// InitializeLogger configures and returns a structured logger based on the
// provided configuration: JSON output on stdout with RFC3339 timestamps.
func InitializeLogger(config *Config) *logrus.Logger {
	logger := logrus.New()

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	switch strings.ToLower(config.LogLevel) {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	logger.SetOutput(os.Stdout)

	logger.WithFields(logrus.Fields{
		"port":              config.Port,
		"agentsDir":         config.AgentsDir,
		"staticDir":         config.StaticDir,
		"uploadDir":         config.UploadDir,
		"llmProvider":       config.LLMProvider,
		"llmEndpoint":       config.LLMEndpoint,
		"providerModel":     config.ProviderModel,
		"defaultModel":      config.DefaultModel,
		"requestTimeout":    config.RequestTimeout,
		"contextLimit":      config.ContextLimit,
		"maxIterations":     config.MaxIterations,
		"logTruncateLength": config.LogTruncateLength,
	}).Info("Configuration loaded")

	return logger
}

// Package config loads the orchestrator's environment configuration,
// mirroring the teacher's godotenv-at-startup pattern (cmd/api/main.go).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ddorchestrator/internal/logging"
)

// Config holds every recognized environment key (spec section 6.4).
type Config struct {
	LLMGatewayURL        string
	WebSearchURL         string
	ExternalDataURL      string
	InternalKnowledgeURL string

	LLMModelID        string
	LLMTimeoutSeconds int

	SessionStoreBackend string // "memory" | "redis"
	RedisURL            string

	MaxConcurrentSessions int
	PerSessionFanoutLimit int

	// AgentModelOverrides maps agent name ("bp_parser", "team_analyst",
	// "market_analyst", "valuation_agent", "exit_agent", "ddq_generator")
	// to a model ID that replaces LLMModelID for that agent's calls.
	AgentModelOverrides map[string]string

	// PromptOverrideDir, if set, points at a directory of <name>.txt files
	// overriding individual agents' system prompts (see internal/prompt).
	PromptOverrideDir string
}

// agentModelConfig is the on-disk shape of the file named by
// AGENT_MODEL_CONFIG, e.g.:
//
//	agents:
//	  market_analyst:
//	    model_id: gemini-2.5-pro
type agentModelConfig struct {
	Agents map[string]struct {
		ModelID string `yaml:"model_id"`
	} `yaml:"agents"`
}

// Load reads a .env file if present (ignoring its absence, exactly like
// the teacher's cmd/api/main.go) and then populates Config from the
// process environment, applying the documented defaults.
func Load() *Config {
	_ = godotenv.Load()

	c := &Config{
		LLMGatewayURL:         os.Getenv("LLM_GATEWAY_URL"),
		WebSearchURL:          os.Getenv("WEB_SEARCH_URL"),
		ExternalDataURL:       os.Getenv("EXTERNAL_DATA_URL"),
		InternalKnowledgeURL:  os.Getenv("INTERNAL_KNOWLEDGE_URL"),
		LLMModelID:            envOr("LLM_MODEL_ID", "gemini-2.0-flash"),
		LLMTimeoutSeconds:     envInt("LLM_TIMEOUT_SECONDS", 60),
		SessionStoreBackend:   envOr("SESSION_STORE_BACKEND", "memory"),
		RedisURL:              os.Getenv("REDIS_URL"),
		MaxConcurrentSessions: envInt("MAX_CONCURRENT_SESSIONS", 100),
		PerSessionFanoutLimit: envInt("PER_SESSION_FANOUT_LIMIT", 16),
		PromptOverrideDir:     os.Getenv("PROMPT_OVERRIDE_DIR"),
	}
	c.AgentModelOverrides = loadAgentModelOverrides(os.Getenv("AGENT_MODEL_CONFIG"))
	return c
}

// loadAgentModelOverrides reads the optional per-agent model-ID override
// file named by path. Its absence is normal (most deployments run every
// agent on LLMModelID); any read or parse error is logged and treated as
// "no overrides" rather than aborting startup.
func loadAgentModelOverrides(path string) map[string]string {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("config: failed to read agent model config %s: %v", path, err)
		}
		return nil
	}
	var parsed agentModelConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		logging.Warn("config: failed to parse agent model config %s: %v", path, err)
		return nil
	}
	overrides := make(map[string]string, len(parsed.Agents))
	for name, a := range parsed.Agents {
		if a.ModelID != "" {
			overrides[name] = a.ModelID
		}
	}
	return overrides
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

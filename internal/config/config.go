// Package config provides configuration types and loading for goclaw.
package config

import "time"

// Config is the root configuration struct.
type Config struct {
	Paths     PathsConfig     `json:"paths"`
	Model     ModelConfig     `json:"model"`
	Agent     AgentConfig     `json:"agent"`
	RateLimit RateLimitConfig `json:"rateLimit"`
	Security  SecurityConfig  `json:"security"`
	Sandbox   SandboxConfig   `json:"sandbox"`
	Swarm     SwarmConfig     `json:"swarm"`
	Providers ProvidersConfig `json:"providers"`
	Channels  ChannelsConfig  `json:"channels"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Logging   LoggingConfig   `json:"logging"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	Workspace string `json:"workspace" envconfig:"WORKSPACE"`
	StateDir  string `json:"stateDir" envconfig:"STATE_DIR"`
	DBPath    string `json:"dbPath" envconfig:"DB_PATH"`
}

// ---------------------------------------------------------------------------
// Model – LLM behaviour
// ---------------------------------------------------------------------------

// ModelConfig groups model selection and sampling settings. Name is the
// process default; sessions may select another model, with Name as the
// fallback when that model's provider fails.
type ModelConfig struct {
	Name        string  `json:"name" envconfig:"MODEL"`
	MaxTokens   int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature float64 `json:"temperature" envconfig:"TEMPERATURE"`
	MaxRetries  int     `json:"maxRetries" envconfig:"MAX_RETRIES"`
}

// ---------------------------------------------------------------------------
// Agent – turn orchestration
// ---------------------------------------------------------------------------

// AgentConfig groups agent-loop settings.
type AgentConfig struct {
	MaxToolIterations  int           `json:"maxToolIterations" envconfig:"MAX_TOOL_ITERATIONS"`
	ToolTimeout        time.Duration `json:"toolTimeout" envconfig:"TOOL_TIMEOUT"`
	HistoryWindow      int           `json:"historyWindow" envconfig:"HISTORY_WINDOW"`
	ContextTokenBudget int           `json:"contextTokenBudget" envconfig:"CONTEXT_TOKEN_BUDGET"`
	SystemPrompt       string        `json:"systemPrompt,omitempty" envconfig:"SYSTEM_PROMPT"`
}

// ---------------------------------------------------------------------------
// RateLimit – per-identity admission control
// ---------------------------------------------------------------------------

// RateLimitConfig groups fixed-window rate limiter settings.
type RateLimitConfig struct {
	MaxRequests   int           `json:"maxRequests" envconfig:"MAX_REQUESTS"`
	Window        time.Duration `json:"window" envconfig:"WINDOW"`
	SweepInterval time.Duration `json:"sweepInterval" envconfig:"SWEEP_INTERVAL"`
}

// ---------------------------------------------------------------------------
// Security – access gate and pairing
// ---------------------------------------------------------------------------

// Gate policies for identities absent from every allowlist.
const (
	PolicyPairing = "pairing"
	PolicyStrict  = "strict"
)

// SecurityConfig groups access-gate settings. Static per-channel allowlists
// live on the channel configs; the dynamic allowlist lives in the store.
type SecurityConfig struct {
	Policy            string        `json:"policy" envconfig:"POLICY"`
	PairingCodeLength int           `json:"pairingCodeLength" envconfig:"PAIRING_CODE_LENGTH"`
	PairingTTL        time.Duration `json:"pairingTtl" envconfig:"PAIRING_TTL"`
}

// ---------------------------------------------------------------------------
// Sandbox – containerised command execution
// ---------------------------------------------------------------------------

// Sandbox modes. Strict refuses to run commands without a container runtime;
// dev falls back to direct host execution and logs the reduced-security state.
const (
	SandboxStrict = "strict"
	SandboxDev    = "dev"
)

// SandboxConfig groups container execution settings.
type SandboxConfig struct {
	Mode      string        `json:"mode" envconfig:"MODE"`
	Image     string        `json:"image" envconfig:"IMAGE"`
	Memory    string        `json:"memory" envconfig:"MEMORY"`
	CPUs      string        `json:"cpus" envconfig:"CPUS"`
	PidsLimit int           `json:"pidsLimit" envconfig:"PIDS_LIMIT"`
	TmpfsSize string        `json:"tmpfsSize" envconfig:"TMPFS_SIZE"`
	User      string        `json:"user" envconfig:"USER"`
	Timeout   time.Duration `json:"timeout" envconfig:"TIMEOUT"`
}

// ---------------------------------------------------------------------------
// Swarm – parallel sub-agent execution
// ---------------------------------------------------------------------------

// SwarmConfig groups swarm orchestrator settings.
type SwarmConfig struct {
	MaxAgents    int           `json:"maxAgents" envconfig:"MAX_AGENTS"`
	AgentTimeout time.Duration `json:"agentTimeout" envconfig:"AGENT_TIMEOUT"`
	Model        string        `json:"model,omitempty" envconfig:"MODEL"`
}

// ---------------------------------------------------------------------------
// Providers – LLM API keys & endpoints
// ---------------------------------------------------------------------------

// ProvidersConfig contains LLM provider configurations. All entries speak the
// OpenAI-compatible chat-completions protocol.
type ProvidersConfig struct {
	OpenAI     ProviderConfig `json:"openai"`
	OpenRouter ProviderConfig `json:"openrouter"`
	DeepSeek   ProviderConfig `json:"deepseek"`
	Groq       ProviderConfig `json:"groq"`
	VLLM       ProviderConfig `json:"vllm"`
}

// ProviderConfig contains settings for a single LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// ---------------------------------------------------------------------------
// Channels – messaging integrations
// ---------------------------------------------------------------------------

// ChannelsConfig contains all channel configurations.
type ChannelsConfig struct {
	Slack    SlackConfig    `json:"slack"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Kafka    KafkaConfig    `json:"kafka"`
}

// SlackConfig configures the Slack Socket Mode channel.
type SlackConfig struct {
	Enabled   bool     `json:"enabled" envconfig:"ENABLED"`
	BotToken  string   `json:"botToken" envconfig:"BOT_TOKEN"`
	AppToken  string   `json:"appToken" envconfig:"APP_TOKEN"`
	AllowFrom []string `json:"allowFrom"`
}

// WhatsAppConfig configures the WhatsApp channel.
type WhatsAppConfig struct {
	Enabled   bool     `json:"enabled" envconfig:"ENABLED"`
	AllowFrom []string `json:"allowFrom"`
}

// KafkaConfig configures the Kafka envelope bridge.
type KafkaConfig struct {
	Enabled       bool     `json:"enabled" envconfig:"ENABLED"`
	Brokers       string   `json:"brokers" envconfig:"BROKERS"`
	InboundTopic  string   `json:"inboundTopic" envconfig:"INBOUND_TOPIC"`
	OutboundTopic string   `json:"outboundTopic" envconfig:"OUTBOUND_TOPIC"`
	ConsumerGroup string   `json:"consumerGroup" envconfig:"CONSUMER_GROUP"`
	AllowFrom     []string `json:"allowFrom"`
}

// ---------------------------------------------------------------------------
// Scheduler – cron-based job scheduling
// ---------------------------------------------------------------------------

// SchedulerConfig contains settings for the cron scheduler.
type SchedulerConfig struct {
	Enabled        bool          `json:"enabled" envconfig:"ENABLED"`
	TickInterval   time.Duration `json:"tickInterval" envconfig:"TICK_INTERVAL"`
	MaxConcLLM     int           `json:"maxConcLLM" envconfig:"MAX_CONC_LLM"`
	MaxConcShell   int           `json:"maxConcShell" envconfig:"MAX_CONC_SHELL"`
	MaxConcDefault int           `json:"maxConcDefault" envconfig:"MAX_CONC_DEFAULT"`
	Jobs           []JobConfig   `json:"jobs,omitempty"`
}

// JobConfig describes one recurring job.
type JobConfig struct {
	Name     string `json:"name"`
	Cron     string `json:"cron"`
	Category string `json:"category"` // "llm", "shell" or "default"
	Content  string `json:"content"`
}

// ---------------------------------------------------------------------------
// Logging
// ---------------------------------------------------------------------------

// LoggingConfig contains process logging settings.
type LoggingConfig struct {
	Level string `json:"level" envconfig:"LEVEL"`
	File  string `json:"file,omitempty" envconfig:"FILE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Workspace: "~/GoClaw-Workspace",
		},
		Model: ModelConfig{
			Name:        "openai/gpt-4o",
			MaxTokens:   8192,
			Temperature: 0.7,
			MaxRetries:  3,
		},
		Agent: AgentConfig{
			MaxToolIterations:  20,
			ToolTimeout:        60 * time.Second,
			HistoryWindow:      50,
			ContextTokenBudget: 16000,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:   20,
			Window:        time.Minute,
			SweepInterval: time.Minute,
		},
		Security: SecurityConfig{
			Policy:            PolicyPairing,
			PairingCodeLength: 8,
			PairingTTL:        10 * time.Minute,
		},
		Sandbox: SandboxConfig{
			Mode:      SandboxStrict,
			Image:     "alpine:3.20",
			Memory:    "512m",
			CPUs:      "1.0",
			PidsLimit: 128,
			TmpfsSize: "64m",
			User:      "65534:65534",
			Timeout:   60 * time.Second,
		},
		Swarm: SwarmConfig{
			MaxAgents:    4,
			AgentTimeout: 90 * time.Second,
		},
		Channels: ChannelsConfig{
			Kafka: KafkaConfig{
				Brokers:       "localhost:9092",
				InboundTopic:  "goclaw.inbound",
				OutboundTopic: "goclaw.outbound",
				ConsumerGroup: "goclaw",
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:        false,
			TickInterval:   60 * time.Second,
			MaxConcLLM:     2,
			MaxConcShell:   1,
			MaxConcDefault: 4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".goclaw"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("GOCLAW_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	return StateDir("", ConfigFile)
}

// StateDir resolves a path under the goclaw state directory, honoring the
// GOCLAW_HOME override.
func StateDir(parts ...string) (string, error) {
	if h := strings.TrimSpace(os.Getenv("GOCLAW_HOME")); h != "" {
		if strings.HasPrefix(h, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			h = filepath.Join(base, h[1:])
		}
		return filepath.Join(append([]string{h}, parts...)...), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{home, ConfigDir}, parts...)...), nil
}

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Load process env vars from ~/.config/goclaw/env (and fallbacks) first.
	LoadEnvFileCandidates()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // Use defaults if we can't find config path
	}

	data, err := loadResolvedConfig(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	// If file doesn't exist, continue with defaults

	// Override with environment variables for each group
	envconfig.Process("GOCLAW_PATHS", &cfg.Paths)
	envconfig.Process("GOCLAW_MODEL", &cfg.Model)
	envconfig.Process("GOCLAW_AGENT", &cfg.Agent)
	envconfig.Process("GOCLAW_RATELIMIT", &cfg.RateLimit)
	envconfig.Process("GOCLAW_SECURITY", &cfg.Security)
	envconfig.Process("GOCLAW_SANDBOX", &cfg.Sandbox)
	envconfig.Process("GOCLAW_SWARM", &cfg.Swarm)
	envconfig.Process("GOCLAW_OPENAI", &cfg.Providers.OpenAI)
	envconfig.Process("GOCLAW_OPENROUTER", &cfg.Providers.OpenRouter)
	envconfig.Process("GOCLAW_DEEPSEEK", &cfg.Providers.DeepSeek)
	envconfig.Process("GOCLAW_GROQ", &cfg.Providers.Groq)
	envconfig.Process("GOCLAW_VLLM", &cfg.Providers.VLLM)
	envconfig.Process("GOCLAW_CHANNELS_SLACK", &cfg.Channels.Slack)
	envconfig.Process("GOCLAW_CHANNELS_WHATSAPP", &cfg.Channels.WhatsApp)
	envconfig.Process("GOCLAW_CHANNELS_KAFKA", &cfg.Channels.Kafka)
	envconfig.Process("GOCLAW_SCHEDULER", &cfg.Scheduler)
	envconfig.Process("GOCLAW_LOGGING", &cfg.Logging)

	// Fallback for API keys
	if cfg.Providers.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Providers.OpenAI.APIKey = key
		}
	}
	if cfg.Providers.OpenRouter.APIKey == "" {
		if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
			cfg.Providers.OpenRouter.APIKey = key
		}
	}

	// Expand ~ in paths
	expandHome(&cfg.Paths.Workspace)
	expandHome(&cfg.Paths.StateDir)
	expandHome(&cfg.Paths.DBPath)
	expandHome(&cfg.Logging.File)

	if cfg.Paths.StateDir == "" {
		if dir, err := StateDir(); err == nil {
			cfg.Paths.StateDir = dir
		}
	}
	if cfg.Paths.DBPath == "" {
		cfg.Paths.DBPath = filepath.Join(cfg.Paths.StateDir, "goclaw.db")
	}

	applyLimits(cfg)
	return cfg, nil
}

func expandHome(p *string) {
	if strings.HasPrefix(*p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			*p = filepath.Join(home, (*p)[1:])
		}
	}
}

// applyLimits clamps invalid values back to safe defaults.
func applyLimits(cfg *Config) {
	def := DefaultConfig()

	if cfg.Model.MaxTokens <= 0 {
		cfg.Model.MaxTokens = def.Model.MaxTokens
	}
	if cfg.Model.MaxRetries <= 0 {
		cfg.Model.MaxRetries = def.Model.MaxRetries
	}
	if cfg.Agent.MaxToolIterations <= 0 {
		cfg.Agent.MaxToolIterations = def.Agent.MaxToolIterations
	}
	if cfg.Agent.ToolTimeout <= 0 {
		cfg.Agent.ToolTimeout = def.Agent.ToolTimeout
	}
	if cfg.Agent.HistoryWindow <= 0 {
		cfg.Agent.HistoryWindow = def.Agent.HistoryWindow
	}
	if cfg.Agent.ContextTokenBudget <= 0 {
		cfg.Agent.ContextTokenBudget = def.Agent.ContextTokenBudget
	}
	if cfg.RateLimit.MaxRequests <= 0 {
		cfg.RateLimit.MaxRequests = def.RateLimit.MaxRequests
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = def.RateLimit.Window
	}
	if cfg.RateLimit.SweepInterval <= 0 {
		cfg.RateLimit.SweepInterval = def.RateLimit.SweepInterval
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Security.Policy)) {
	case PolicyPairing, PolicyStrict:
		cfg.Security.Policy = strings.ToLower(strings.TrimSpace(cfg.Security.Policy))
	default:
		cfg.Security.Policy = PolicyPairing
	}
	if cfg.Security.PairingCodeLength <= 0 {
		cfg.Security.PairingCodeLength = def.Security.PairingCodeLength
	}
	if cfg.Security.PairingTTL <= 0 {
		cfg.Security.PairingTTL = def.Security.PairingTTL
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Sandbox.Mode)) {
	case SandboxStrict, SandboxDev:
		cfg.Sandbox.Mode = strings.ToLower(strings.TrimSpace(cfg.Sandbox.Mode))
	default:
		cfg.Sandbox.Mode = SandboxStrict
	}
	if cfg.Sandbox.Image == "" {
		cfg.Sandbox.Image = def.Sandbox.Image
	}
	if cfg.Sandbox.Memory == "" {
		cfg.Sandbox.Memory = def.Sandbox.Memory
	}
	if cfg.Sandbox.CPUs == "" {
		cfg.Sandbox.CPUs = def.Sandbox.CPUs
	}
	if cfg.Sandbox.PidsLimit <= 0 {
		cfg.Sandbox.PidsLimit = def.Sandbox.PidsLimit
	}
	if cfg.Sandbox.TmpfsSize == "" {
		cfg.Sandbox.TmpfsSize = def.Sandbox.TmpfsSize
	}
	if cfg.Sandbox.User == "" {
		cfg.Sandbox.User = def.Sandbox.User
	}
	if cfg.Sandbox.Timeout <= 0 {
		cfg.Sandbox.Timeout = def.Sandbox.Timeout
	}

	if cfg.Swarm.MaxAgents <= 0 || cfg.Swarm.MaxAgents > 8 {
		cfg.Swarm.MaxAgents = def.Swarm.MaxAgents
	}
	if cfg.Swarm.AgentTimeout <= 0 {
		cfg.Swarm.AgentTimeout = def.Swarm.AgentTimeout
	}

	if cfg.Scheduler.TickInterval <= 0 {
		cfg.Scheduler.TickInterval = def.Scheduler.TickInterval
	}
	if cfg.Scheduler.MaxConcLLM <= 0 {
		cfg.Scheduler.MaxConcLLM = def.Scheduler.MaxConcLLM
	}
	if cfg.Scheduler.MaxConcShell <= 0 {
		cfg.Scheduler.MaxConcShell = def.Scheduler.MaxConcShell
	}
	if cfg.Scheduler.MaxConcDefault <= 0 {
		cfg.Scheduler.MaxConcDefault = def.Scheduler.MaxConcDefault
	}
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// EnsureDir ensures a directory exists with proper permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func loadResolvedConfig(path string) ([]byte, error) {
	obj, err := loadConfigObject(path, map[string]struct{}{})
	if err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}

func loadConfigObject(path string, visited map[string]struct{}) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, seen := visited[absPath]; seen {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	visited[absPath] = struct{}{}
	defer delete(visited, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}

	merged := map[string]any{}
	if includeRaw, ok := raw["$include"]; ok {
		includeFiles, err := parseIncludes(includeRaw)
		if err != nil {
			return nil, err
		}
		baseDir := filepath.Dir(absPath)
		for _, includePath := range includeFiles {
			resolvedPath := includePath
			if !filepath.IsAbs(includePath) {
				resolvedPath = filepath.Join(baseDir, includePath)
			}
			child, err := loadConfigObject(resolvedPath, visited)
			if err != nil {
				return nil, err
			}
			deepMerge(merged, child)
		}
	}
	delete(raw, "$include")
	substituteEnvValues(raw)
	deepMerge(merged, raw)
	return merged, nil
}

func parseIncludes(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("$include entries must be strings")
			}
			if strings.TrimSpace(s) == "" {
				continue
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("$include must be a string or array of strings")
	}
}

func deepMerge(dst, src map[string]any) {
	for key, val := range src {
		srcMap, srcIsMap := val.(map[string]any)
		if !srcIsMap {
			dst[key] = val
			continue
		}

		existing, ok := dst[key]
		if !ok {
			copyMap := map[string]any{}
			deepMerge(copyMap, srcMap)
			dst[key] = copyMap
			continue
		}
		dstMap, dstIsMap := existing.(map[string]any)
		if !dstIsMap {
			copyMap := map[string]any{}
			deepMerge(copyMap, srcMap)
			dst[key] = copyMap
			continue
		}
		deepMerge(dstMap, srcMap)
	}
}

func substituteEnvValues(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = substituteEnvValues(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = substituteEnvValues(item)
		}
		return t
	case string:
		return envPattern.ReplaceAllStringFunc(t, func(match string) string {
			parts := envPattern.FindStringSubmatch(match)
			if len(parts) != 2 {
				return match
			}
			if value, ok := os.LookupEnv(parts[1]); ok {
				return value
			}
			return match
		})
	default:
		return v
	}
}

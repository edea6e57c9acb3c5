package provider

import (
	"fmt"
	"strings"

	"github.com/goclaw/goclaw/internal/config"
)

// ParseModelString splits a "provider/model" string into provider ID and
// model name. For OpenRouter the format is "openrouter/vendor/model"
// (three segments); the vendor stays part of the model name.
func ParseModelString(s string) (providerID, modelName string) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, "/", 2)
	if len(parts) < 2 {
		return "", s
	}
	providerID = strings.ToLower(parts[0])
	modelName = parts[1]
	return
}

// Resolve creates the LLMProvider for the given "provider/model" string.
// A bare model name without a provider prefix goes to the OpenAI entry.
func Resolve(cfg *config.Config, modelStr string) (LLMProvider, error) {
	provID, model := ParseModelString(modelStr)
	if provID == "" {
		return NewOpenAIProvider("openai", cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.APIBase, model), nil
	}
	return buildProvider(cfg, provID, model)
}

// ResolveDefault creates the provider for the globally configured model.
func ResolveDefault(cfg *config.Config) (LLMProvider, error) {
	return Resolve(cfg, cfg.Model.Name)
}

// buildProvider constructs a provider from its canonical ID and model name.
func buildProvider(cfg *config.Config, providerID, model string) (LLMProvider, error) {
	switch providerID {
	case "openai":
		key := cfg.Providers.OpenAI.APIKey
		if key == "" {
			return nil, &ProviderError{Provider: "openai", Hint: "set providers.openai.apiKey in config or export OPENAI_API_KEY"}
		}
		return NewOpenAIProvider("openai", key, cfg.Providers.OpenAI.APIBase, model), nil

	case "openrouter":
		key := cfg.Providers.OpenRouter.APIKey
		base := cfg.Providers.OpenRouter.APIBase
		if key == "" {
			return nil, &ProviderError{Provider: "openrouter", Hint: "set providers.openrouter.apiKey in config or export OPENROUTER_API_KEY"}
		}
		if base == "" {
			base = "https://openrouter.ai/api/v1"
		}
		return NewOpenAIProvider("openrouter", key, base, model), nil

	case "deepseek":
		key := cfg.Providers.DeepSeek.APIKey
		base := cfg.Providers.DeepSeek.APIBase
		if key == "" {
			return nil, &ProviderError{Provider: "deepseek", Hint: "set providers.deepseek.apiKey in config"}
		}
		if base == "" {
			base = "https://api.deepseek.com/v1"
		}
		return NewOpenAIProvider("deepseek", key, base, model), nil

	case "groq":
		key := cfg.Providers.Groq.APIKey
		base := cfg.Providers.Groq.APIBase
		if key == "" {
			return nil, &ProviderError{Provider: "groq", Hint: "set providers.groq.apiKey in config"}
		}
		if base == "" {
			base = "https://api.groq.com/openai/v1"
		}
		return NewOpenAIProvider("groq", key, base, model), nil

	case "vllm":
		base := cfg.Providers.VLLM.APIBase
		if base == "" {
			return nil, &ProviderError{Provider: "vllm", Hint: "set providers.vllm.apiBase in config (e.g. http://localhost:8000/v1)"}
		}
		return NewOpenAIProvider("vllm", cfg.Providers.VLLM.APIKey, base, model), nil

	default:
		return nil, &ProviderError{Provider: providerID, Hint: fmt.Sprintf("unknown provider ID %q (supported: openai, openrouter, deepseek, groq, vllm)", providerID)}
	}
}

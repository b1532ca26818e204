package llm

import (
	"fmt"
	"sort"

	"ex-augmenter/pkg/augmenter"
	"ex-augmenter/pkg/llm/config"
	"ex-augmenter/pkg/llm/providers/gemini"
	"ex-augmenter/pkg/llm/providers/openai"
)

// BuildRegistry constructs one provider per configured profile.
//
// It returns nil when no profile is configured.
func BuildRegistry(cfg config.Config) (*Registry, error) {
	if len(cfg.Providers) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(cfg.Providers))
	for key := range cfg.Providers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	providers := make(map[string]augmenter.LLMProvider, len(keys))
	for _, key := range keys {
		provider, err := buildProvider(cfg.Providers[key], cfg)
		if err != nil {
			return nil, fmt.Errorf("build llm registry provider %s: %w", key, err)
		}
		providers[key] = provider
	}

	return NewRegistry(providers)
}

func buildProvider(profile config.ProviderProfile, cfg config.Config) (augmenter.LLMProvider, error) {
	switch profile.Type {
	case config.ProviderTypeOpenAI:
		providerCfg := openai.ProviderConfig{
			APIKey:  profile.APIKey,
			BaseURL: profile.BaseURL,
			Timeout: cfg.RequestTimeout,
		}
		if profile.OpenAI != nil {
			providerCfg.Organization = profile.OpenAI.Organization
			providerCfg.Project = profile.OpenAI.Project
			providerCfg.MaxRetries = profile.OpenAI.MaxRetries
			providerCfg.ReasoningEffort = profile.OpenAI.ReasoningEffort
		}

		return openai.New(providerCfg)
	case config.ProviderTypeGemini:
		providerCfg := gemini.ProviderConfig{
			APIKey:  profile.APIKey,
			BaseURL: profile.BaseURL,
		}
		if profile.Gemini != nil {
			providerCfg.APIVersion = profile.Gemini.APIVersion
			providerCfg.ThinkingBudget = profile.Gemini.ThinkingBudget
			providerCfg.IncludeThoughts = profile.Gemini.IncludeThoughts
		}

		return gemini.New(providerCfg)
	default:
		return nil, fmt.Errorf("unsupported type %q", profile.Type)
	}
}

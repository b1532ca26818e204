package llm

import (
	"fmt"
	"sort"
	"strings"

	"ex-augmenter/pkg/augmenter"
)

// Registry maps summary profile names to their providers. It is read-only
// after NewRegistry.
type Registry struct {
	profiles map[string]augmenter.LLMProvider
	keys     []string
}

// NewRegistry builds a registry from profile name to provider.
func NewRegistry(profiles map[string]augmenter.LLMProvider) (*Registry, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("llm registry: %w: no provider profiles", augmenter.ErrNotConfigured)
	}

	registry := &Registry{
		profiles: make(map[string]augmenter.LLMProvider, len(profiles)),
		keys:     make([]string, 0, len(profiles)),
	}
	for key, provider := range profiles {
		name := strings.TrimSpace(key)
		switch {
		case name == "":
			return nil, fmt.Errorf("llm registry: blank profile key")
		case provider == nil:
			return nil, fmt.Errorf("llm registry: profile %s has no provider", name)
		}
		if _, taken := registry.profiles[name]; taken {
			return nil, fmt.Errorf("llm registry: profile %s declared twice", name)
		}
		registry.profiles[name] = provider
		registry.keys = append(registry.keys, name)
	}
	sort.Strings(registry.keys)

	return registry, nil
}

// Profiles returns the configured profile names in order.
func (r *Registry) Profiles() []string {
	if r == nil {
		return nil
	}

	return append([]string(nil), r.keys...)
}

// Resolve returns the provider behind one profile name.
func (r *Registry) Resolve(profile string) (augmenter.LLMProvider, error) {
	name := strings.TrimSpace(profile)
	if r == nil {
		return nil, fmt.Errorf("resolve llm profile %q: %w", name, augmenter.ErrNotConfigured)
	}
	if provider, ok := r.profiles[name]; ok {
		return provider, nil
	}

	return nil, fmt.Errorf("resolve llm profile %q (have %s): %w",
		name, strings.Join(r.keys, ", "), augmenter.ErrNotConfigured)
}

var _ augmenter.LLMProviderRegistry = (*Registry)(nil)

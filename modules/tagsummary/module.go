// Package tagsummary generates short LLM summaries of the newest articles
// of each tag.
package tagsummary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ex-augmenter/pkg/augmenter"
	llmconfig "ex-augmenter/pkg/llm/config"
)

// Option mutates tag summary module configuration.
type Option func(*Module)

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// WithConfig sets the llm configuration used for generation.
func WithConfig(cfg llmconfig.Config) Option {
	return func(module *Module) {
		module.cfg = cfg
	}
}

// WithGenerator replaces the LLM summarizer.
func WithGenerator(generator Generator) Option {
	return func(module *Module) {
		if generator != nil {
			module.generator = generator
		}
	}
}

// Module owns the tag summary service.
type Module struct {
	logger    *slog.Logger
	cfg       llmconfig.Config
	generator Generator
	service   *Service
}

// New creates a tag summary module.
func New(options ...Option) *Module {
	module := &Module{
		logger: slog.Default(),
		cfg:    llmconfig.Default(),
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "tag-summary"
}

// Spec declares the store dependencies of the service.
func (m *Module) Spec() augmenter.ModuleSpec {
	return augmenter.ModuleSpec{
		AdditionalCapabilities: []augmenter.Capability{
			{
				Name:        "tag-summary-service",
				Description: "regenerates cached tag summaries from recent articles",
				RequiredServices: []string{
					augmenter.ServiceArticleStore,
					augmenter.ServiceTagStore,
				},
			},
		},
	}
}

// OnRegister builds the service and registers it for routes and other modules.
func (m *Module) OnRegister(_ context.Context, runtime augmenter.ModuleRuntime) error {
	services := runtime.Services()

	logger, err := augmenter.ResolveAs[*slog.Logger](services, augmenter.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, augmenter.ErrServiceNotFound):
	default:
		return fmt.Errorf("tag summary resolve logger: %w", err)
	}

	articles, err := augmenter.ResolveAs[augmenter.ArticleStore](services, augmenter.ServiceArticleStore)
	if err != nil {
		return fmt.Errorf("tag summary resolve article store: %w", err)
	}
	tags, err := augmenter.ResolveAs[augmenter.TagStore](services, augmenter.ServiceTagStore)
	if err != nil {
		return fmt.Errorf("tag summary resolve tag store: %w", err)
	}

	if m.generator == nil {
		providers, err := augmenter.ResolveAs[augmenter.LLMProviderRegistry](services, augmenter.ServiceLLMProviderRegistry)
		switch {
		case err == nil:
		case errors.Is(err, augmenter.ErrServiceNotFound):
			m.logger.Warn("llm provider registry not configured, tag summaries will fail for tags with articles")
			providers = nil
		default:
			return fmt.Errorf("tag summary resolve llm providers: %w", err)
		}

		summarizer, err := NewSummarizer(m.cfg, providers)
		if err != nil {
			return fmt.Errorf("tag summary build summarizer: %w", err)
		}
		m.generator = summarizer
	}

	m.service = NewService(tags, articles, m.generator, m.logger)
	if err := services.Register(augmenter.ServiceTagSummaries, m.service); err != nil {
		return fmt.Errorf("tag summary register service %s: %w", augmenter.ServiceTagSummaries, err)
	}

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(ctx context.Context) error {
	m.logger.InfoContext(ctx, "tag summary module started",
		"module", m.Name(),
		"provider", m.cfg.Summary.Provider,
		"model", m.cfg.Summary.Model,
	)

	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

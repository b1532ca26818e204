// Package related keeps each published article's related list in sync with
// articles that share its tags.
package related

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ex-augmenter/pkg/augmenter"
)

// Option mutates related module configuration.
type Option func(*Module)

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// WithServiceOptions forwards options to the service built during registration.
func WithServiceOptions(options ...ServiceOption) Option {
	return func(module *Module) {
		module.serviceOptions = append(module.serviceOptions, options...)
	}
}

// Module refreshes related articles and tag summaries after article writes.
type Module struct {
	logger         *slog.Logger
	serviceOptions []ServiceOption

	services  augmenter.ServiceRegistry
	related   augmenter.RelatedArticlesService
	summaries augmenter.TagSummaryService
}

// New creates a related-articles module.
func New(options ...Option) *Module {
	module := &Module{logger: slog.Default()}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "related-articles"
}

// Spec declares the published article handler.
func (m *Module) Spec() augmenter.ModuleSpec {
	return augmenter.ModuleSpec{
		Handlers: []augmenter.ModuleHandler{
			{
				Capability: augmenter.Capability{
					Name:        "related-articles-refresh",
					Description: "refreshes tag summaries and related articles for a live article and its neighbours",
					Interest: augmenter.InterestSet{
						Kinds: []augmenter.EventKind{
							augmenter.EventKindEntryCreated,
							augmenter.EventKindEntryUpdated,
							augmenter.EventKindEntryPublished,
						},
						ContentTypes:     []augmenter.ContentType{augmenter.ContentTypeArticle},
						RequirePublished: true,
					},
					RequiredServices: []string{augmenter.ServiceArticleStore},
				},
				Subscription: augmenter.NewDefaultSubscriptionSpec("related-articles-refresh"),
				Handler:      m.handleEvent,
			},
		},
	}
}

// OnRegister builds the related service and registers it for other modules.
func (m *Module) OnRegister(_ context.Context, runtime augmenter.ModuleRuntime) error {
	logger, err := augmenter.ResolveAs[*slog.Logger](runtime.Services(), augmenter.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, augmenter.ErrServiceNotFound):
	default:
		return fmt.Errorf("related resolve logger: %w", err)
	}

	articles, err := augmenter.ResolveAs[augmenter.ArticleStore](runtime.Services(), augmenter.ServiceArticleStore)
	if err != nil {
		return fmt.Errorf("related resolve article store: %w", err)
	}
	options := append([]ServiceOption{WithServiceLogger(m.logger)}, m.serviceOptions...)
	service := NewService(articles, options...)
	m.related = service
	m.services = runtime.Services()

	if err := runtime.Services().Register(augmenter.ServiceRelatedArticles, service); err != nil {
		return fmt.Errorf("related register service %s: %w", augmenter.ServiceRelatedArticles, err)
	}

	return nil
}

// OnStart resolves the optional tag summary service. It is registered by a
// module that may come after this one.
func (m *Module) OnStart(ctx context.Context) error {
	if m.summaries == nil && m.services != nil {
		summaries, err := augmenter.ResolveAs[augmenter.TagSummaryService](m.services, augmenter.ServiceTagSummaries)
		switch {
		case err == nil:
			m.summaries = summaries
		case errors.Is(err, augmenter.ErrServiceNotFound):
		default:
			return fmt.Errorf("related resolve tag summaries: %w", err)
		}
	}

	m.logger.InfoContext(ctx, "related articles module started",
		"module", m.Name(),
		"tag_summaries", m.summaries != nil,
	)

	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func (m *Module) handleEvent(ctx context.Context, event *augmenter.Event) error {
	if event.Context.SkipRelatedLifecycle {
		return nil
	}
	if event.OnlyChanged(augmenter.FieldRelatedArticles) {
		return nil
	}
	if !event.Entry.IsPublished() || m.related == nil {
		return nil
	}

	documentID := event.Entry.DocumentID
	if m.summaries != nil {
		if err := m.summaries.UpdateTagsForArticle(ctx, documentID); err != nil {
			m.logger.ErrorContext(ctx,
				"tag summary refresh failed",
				"document_id", documentID,
				"error", err,
			)
		}
	}

	if err := m.related.HandleArticleChange(ctx, documentID, true); err != nil {
		return fmt.Errorf("related articles handle %s %s: %w", event.Kind, documentID, err)
	}

	return nil
}

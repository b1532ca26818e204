// Package searchindex mirrors live articles and videos into the search index.
package searchindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"ex-augmenter/pkg/algolia"
	"ex-augmenter/pkg/augmenter"
)

// DefaultIndexes maps indexed content types to index names.
var DefaultIndexes = map[augmenter.ContentType]string{
	augmenter.ContentTypeArticle: "articles",
}

// Option mutates search index module configuration.
type Option func(*Module)

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// WithIndexes replaces the content type to index name mapping.
func WithIndexes(indexes map[augmenter.ContentType]string) Option {
	return func(module *Module) {
		if len(indexes) > 0 {
			module.indexes = maps.Clone(indexes)
		}
	}
}

// WithClock overrides the time source used for undated records.
func WithClock(clock func() time.Time) Option {
	return func(module *Module) {
		if clock != nil {
			module.clock = clock
		}
	}
}

// Module saves live entries into their index and removes withdrawn ones.
type Module struct {
	logger  *slog.Logger
	indexes map[augmenter.ContentType]string
	clock   func() time.Time
	index   augmenter.SearchIndex
}

// New creates a search index module.
func New(options ...Option) *Module {
	module := &Module{
		logger:  slog.Default(),
		indexes: maps.Clone(DefaultIndexes),
		clock:   time.Now,
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "search-index"
}

// Spec declares the lifecycle handler for every indexed content type.
func (m *Module) Spec() augmenter.ModuleSpec {
	contentTypes := slices.Sorted(maps.Keys(m.indexes))

	return augmenter.ModuleSpec{
		Handlers: []augmenter.ModuleHandler{
			{
				Capability: augmenter.Capability{
					Name:        "search-index-sync",
					Description: "saves live entries into the search index and removes withdrawn ones",
					Interest: augmenter.InterestSet{
						Kinds: []augmenter.EventKind{
							augmenter.EventKindEntryCreated,
							augmenter.EventKindEntryUpdated,
							augmenter.EventKindEntryPublished,
							augmenter.EventKindEntryUnpublished,
							augmenter.EventKindEntryDeleted,
						},
						ContentTypes: contentTypes,
					},
					RequiredServices: []string{augmenter.ServiceSearchIndex},
				},
				Subscription: augmenter.NewDefaultSubscriptionSpec("search-index-sync"),
				Handler:      m.handleEvent,
			},
		},
	}
}

// OnRegister resolves the search index client.
func (m *Module) OnRegister(_ context.Context, runtime augmenter.ModuleRuntime) error {
	logger, err := augmenter.ResolveAs[*slog.Logger](runtime.Services(), augmenter.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, augmenter.ErrServiceNotFound):
	default:
		return fmt.Errorf("search index resolve logger: %w", err)
	}

	index, err := augmenter.ResolveAs[augmenter.SearchIndex](runtime.Services(), augmenter.ServiceSearchIndex)
	if err != nil {
		return fmt.Errorf("search index resolve client: %w", err)
	}
	m.index = index

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(ctx context.Context) error {
	m.logger.InfoContext(ctx, "search index module started", "module", m.Name(), "indexes", len(m.indexes))
	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func (m *Module) handleEvent(ctx context.Context, event *augmenter.Event) error {
	entry := event.Entry
	indexName, ok := m.indexes[entry.ContentType]
	if !ok {
		return nil
	}

	switch event.Kind {
	case augmenter.EventKindEntryUnpublished, augmenter.EventKindEntryDeleted:
		return m.remove(ctx, indexName, entry)
	}
	if !entry.IsPublished() {
		return nil
	}

	record, ok := algolia.Transform(entry, m.clock())
	if !ok {
		m.logger.WarnContext(ctx,
			"entry not indexable",
			"content_type", entry.ContentType,
			"document_id", entry.DocumentID,
		)
		return nil
	}
	if err := m.index.SaveObject(ctx, indexName, record); err != nil {
		return fmt.Errorf("search index save %s %s: %w", entry.ContentType, entry.DocumentID, err)
	}
	m.logger.DebugContext(ctx, "search record saved", "index", indexName, "object_id", record.ObjectID())

	return nil
}

func (m *Module) remove(ctx context.Context, indexName string, entry augmenter.Entry) error {
	if entry.DocumentID == "" {
		return nil
	}
	if err := m.index.DeleteObject(ctx, indexName, entry.DocumentID); err != nil {
		return fmt.Errorf("search index delete %s %s: %w", entry.ContentType, entry.DocumentID, err)
	}
	m.logger.DebugContext(ctx, "search record removed", "index", indexName, "object_id", entry.DocumentID)

	return nil
}

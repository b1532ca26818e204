// Package publication stamps editorial publication dates and triggers site
// rebuilds when application content goes live.
package publication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ex-augmenter/pkg/augmenter"
)

// Option mutates publication module configuration.
type Option func(*Module)

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// WithClock overrides the time source used for publication dates.
func WithClock(clock func() time.Time) Option {
	return func(module *Module) {
		if clock != nil {
			module.clock = clock
		}
	}
}

// Module maintains publicationDate and announces newly live content.
type Module struct {
	logger    *slog.Logger
	clock     func() time.Time
	entries   augmenter.EntryStore
	publisher augmenter.SitePublisher
}

// New creates a publication module.
func New(options ...Option) *Module {
	module := &Module{
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "publication"
}

// Spec declares the stamping hook and the live-transition handlers.
func (m *Module) Spec() augmenter.ModuleSpec {
	return augmenter.ModuleSpec{
		WriteHooks: []augmenter.ModuleWriteHook{
			{
				Capability: augmenter.Capability{
					Name:        "publication-date-stamp",
					Description: "sets publicationDate when a dated draft is first published",
					Interest: augmenter.InterestSet{
						Operations: []augmenter.WriteOperation{augmenter.WriteOperationUpdate},
						RequireAPI: true,
					},
				},
				Hook: m.stampOnPublish,
			},
		},
		Handlers: []augmenter.ModuleHandler{
			{
				Capability: augmenter.Capability{
					Name:        "site-publish-on-live",
					Description: "triggers a site rebuild when a draft goes live",
					Interest: augmenter.InterestSet{
						Kinds: []augmenter.EventKind{
							augmenter.EventKindEntryUpdated,
							augmenter.EventKindEntryPublished,
						},
						RequireAPI: true,
					},
					RequiredServices: []string{augmenter.ServiceSitePublisher},
				},
				Subscription: augmenter.NewDefaultSubscriptionSpec("site-publish-on-live"),
				Handler:      m.handleWentLive,
			},
			{
				Capability: augmenter.Capability{
					Name:        "site-publish-on-create",
					Description: "stamps and announces entries created directly as live",
					Interest: augmenter.InterestSet{
						Kinds:            []augmenter.EventKind{augmenter.EventKindEntryCreated},
						RequireAPI:       true,
						RequirePublished: true,
					},
					RequiredServices: []string{
						augmenter.ServiceSitePublisher,
						augmenter.ServiceEntryStore,
					},
				},
				Subscription: augmenter.NewDefaultSubscriptionSpec("site-publish-on-create"),
				Handler:      m.handleCreatedLive,
			},
		},
	}
}

// OnRegister resolves the entry store and site publisher.
func (m *Module) OnRegister(_ context.Context, runtime augmenter.ModuleRuntime) error {
	services := runtime.Services()

	logger, err := augmenter.ResolveAs[*slog.Logger](services, augmenter.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, augmenter.ErrServiceNotFound):
	default:
		return fmt.Errorf("publication resolve logger: %w", err)
	}

	entries, err := augmenter.ResolveAs[augmenter.EntryStore](services, augmenter.ServiceEntryStore)
	if err != nil {
		return fmt.Errorf("publication resolve entry store: %w", err)
	}
	publisher, err := augmenter.ResolveAs[augmenter.SitePublisher](services, augmenter.ServiceSitePublisher)
	if err != nil {
		return fmt.Errorf("publication resolve site publisher: %w", err)
	}
	m.entries = entries
	m.publisher = publisher

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func (m *Module) stampOnPublish(_ context.Context, req *augmenter.WriteRequest, current *augmenter.Entry) error {
	if current == nil || !req.ContentType.IsPublicationDated() {
		return nil
	}
	beingPublished := req.Publish && current.PublishedAt == nil
	if !beingPublished || req.PublicationDate != nil || current.PublicationDate != nil {
		return nil
	}

	now := m.clock()
	req.PublicationDate = &now

	return nil
}

func (m *Module) handleWentLive(ctx context.Context, event *augmenter.Event) error {
	if !event.BecameLive() {
		return nil
	}
	if err := m.publisher.TriggerPublish(ctx); err != nil {
		return fmt.Errorf("publication trigger site publish for %s %s: %w",
			event.Entry.ContentType, event.Entry.DocumentID, err)
	}

	return nil
}

func (m *Module) handleCreatedLive(ctx context.Context, event *augmenter.Event) error {
	entry := event.Entry
	if entry.ContentType == augmenter.ContentTypeContact {
		return nil
	}

	if entry.ContentType.IsPublicationDated() && entry.PublicationDate == nil {
		err := m.entries.SetPublicationDate(ctx, entry.ContentType, entry.DocumentID, m.clock(), augmenter.WriteOptions{})
		if err != nil {
			m.logger.ErrorContext(ctx,
				"publication date stamp failed",
				"content_type", entry.ContentType,
				"document_id", entry.DocumentID,
				"error", err,
			)
		}
	}

	if err := m.publisher.TriggerPublish(ctx); err != nil {
		return fmt.Errorf("publication trigger site publish for new %s %s: %w",
			entry.ContentType, entry.DocumentID, err)
	}

	return nil
}

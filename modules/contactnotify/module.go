// Package contactnotify announces new contact submissions.
package contactnotify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ex-augmenter/pkg/augmenter"
)

// Module forwards created contacts to the contact notifier.
//
// It runs on its own bus subscription so a slow webhook never delays the
// write that created the contact.
type Module struct {
	logger   *slog.Logger
	notifier augmenter.ContactNotifier
}

// New creates a contact notification module.
func New() *Module {
	return &Module{logger: slog.Default()}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "contact-notify"
}

// Spec declares the contact created handler.
func (m *Module) Spec() augmenter.ModuleSpec {
	return augmenter.ModuleSpec{
		Handlers: []augmenter.ModuleHandler{
			{
				Capability: augmenter.Capability{
					Name:        "contact-notify",
					Description: "sends a notification for every new contact submission",
					Interest: augmenter.InterestSet{
						Kinds:        []augmenter.EventKind{augmenter.EventKindEntryCreated},
						ContentTypes: []augmenter.ContentType{augmenter.ContentTypeContact},
					},
					RequiredServices: []string{augmenter.ServiceContactNotifier},
				},
				Subscription: augmenter.NewDefaultSubscriptionSpec("contact-notify"),
				Handler:      m.handleEvent,
			},
		},
	}
}

// OnRegister resolves the notifier.
func (m *Module) OnRegister(_ context.Context, runtime augmenter.ModuleRuntime) error {
	logger, err := augmenter.ResolveAs[*slog.Logger](runtime.Services(), augmenter.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, augmenter.ErrServiceNotFound):
	default:
		return fmt.Errorf("contact notify resolve logger: %w", err)
	}

	notifier, err := augmenter.ResolveAs[augmenter.ContactNotifier](runtime.Services(), augmenter.ServiceContactNotifier)
	if err != nil {
		return fmt.Errorf("contact notify resolve notifier: %w", err)
	}
	m.notifier = notifier

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

func (m *Module) handleEvent(ctx context.Context, event *augmenter.Event) error {
	if event.Entry.Contact == nil {
		m.logger.WarnContext(ctx, "contact event without contact payload", "document_id", event.Entry.DocumentID)
	}
	if err := m.notifier.NotifyContact(ctx, event.Entry.Contact); err != nil {
		return fmt.Errorf("contact notify %s: %w", event.Entry.DocumentID, err)
	}

	return nil
}

package augmenter

import (
	"fmt"
	"time"
)

// EventKind identifies one lifecycle transition of a stored document.
type EventKind string

const (
	// EventKindEntryCreated is emitted after a document is created.
	EventKindEntryCreated EventKind = "entry.created"
	// EventKindEntryUpdated is emitted after a document is updated.
	EventKindEntryUpdated EventKind = "entry.updated"
	// EventKindEntryPublished is emitted after a document version goes live.
	EventKindEntryPublished EventKind = "entry.published"
	// EventKindEntryUnpublished is emitted after a live document is withdrawn.
	EventKindEntryUnpublished EventKind = "entry.unpublished"
	// EventKindEntryDeleted is emitted after a document is deleted.
	EventKindEntryDeleted EventKind = "entry.deleted"
)

// Validate checks whether this kind is supported.
func (k EventKind) Validate() error {
	switch k {
	case EventKindEntryCreated, EventKindEntryUpdated, EventKindEntryPublished,
		EventKindEntryUnpublished, EventKindEntryDeleted:
		return nil
	default:
		return fmt.Errorf("unsupported event kind %q", k)
	}
}

// EntryState is the stored state of a document before the write.
type EntryState struct {
	PublishedAt     *time.Time
	PublicationDate *time.Time
}

// Event is one after-write lifecycle notification.
type Event struct {
	// ID uniquely identifies this event.
	ID string
	// Kind is the lifecycle transition.
	Kind EventKind
	// OccurredAt is when the write completed.
	OccurredAt time.Time
	// Source names the store backend or ingress that produced the event.
	Source string
	// Entry is the stored snapshot after the write.
	Entry Entry
	// Previous is the stored state before the write, when the producer knows it.
	Previous *EntryState
	// ChangedFields lists the platform field names the write touched.
	//
	// Nil means the producer does not know which fields changed.
	ChangedFields []string
	// Context is the write context supplied by the writer.
	Context WriteContext
}

// Validate checks event invariants before dispatch.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if err := e.Kind.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing occurred_at", ErrInvalidEvent)
	}
	if e.Entry.ContentType == "" {
		return fmt.Errorf("%w: missing content type", ErrInvalidEvent)
	}
	if e.Entry.Article != nil && e.Entry.ContentType != ContentTypeArticle {
		return fmt.Errorf("%w: article payload on %s", ErrInvalidEvent, e.Entry.ContentType)
	}
	if e.Entry.Contact != nil && e.Entry.ContentType != ContentTypeContact {
		return fmt.Errorf("%w: contact payload on %s", ErrInvalidEvent, e.Entry.ContentType)
	}

	return nil
}

// OnlyChanged reports whether the write touched exactly one field, named field.
func (e *Event) OnlyChanged(field string) bool {
	if e == nil {
		return false
	}

	return len(e.ChangedFields) == 1 && e.ChangedFields[0] == field
}

// BecameLive reports whether this write moved a draft document to a live version.
//
// Events without a known previous state only count when their kind is published.
func (e *Event) BecameLive() bool {
	if e == nil || !e.Entry.IsPublished() {
		return false
	}
	if e.Previous == nil {
		return e.Kind == EventKindEntryPublished
	}

	return e.Previous.PublishedAt == nil
}

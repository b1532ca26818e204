package augmenter

import (
	"context"
	"time"
)

// Sortable document fields.
const (
	SortFieldPublishedAt     = "publishedAt"
	SortFieldPublicationDate = "publicationDate"
	SortFieldUpdatedAt       = "updatedAt"
	SortFieldCreatedAt       = "createdAt"
)

// Sort orders query results by one field.
type Sort struct {
	Field string
	Desc  bool
}

// ArticleQuery selects articles. Zero-valued fields do not filter.
type ArticleQuery struct {
	// TagSlugs keeps articles carrying at least one of these tag slugs.
	TagSlugs []string
	// TagDocumentIDs keeps articles carrying at least one of these tags.
	TagDocumentIDs []string
	// ExcludeDocumentID drops one article from the result.
	ExcludeDocumentID string
	// PublishedOnly keeps live articles only.
	PublishedOnly bool
	// Sort is applied in order.
	Sort []Sort
	// Limit bounds the result size when positive.
	Limit int
}

// TagQuery selects tags. Zero-valued fields do not filter.
type TagQuery struct {
	// UpdatedAfter keeps tags updated strictly after this instant.
	UpdatedAfter *time.Time
	// Limit bounds the result size when positive.
	Limit int
}

// ArticleStore reads and writes articles.
//
// Find methods populate tags and related article references.
// Missing documents are reported with ErrNotFound.
type ArticleStore interface {
	FindArticle(ctx context.Context, documentID string) (*Article, error)
	FindArticles(ctx context.Context, query ArticleQuery) ([]Article, error)
	UpdateArticle(ctx context.Context, documentID string, input ArticleInput, opts WriteOptions) (*Article, error)
	PublishArticle(ctx context.Context, documentID string, opts WriteOptions) (*Article, error)
}

// TagStore reads and writes tags.
type TagStore interface {
	FindTag(ctx context.Context, documentID string) (*Tag, error)
	FindTags(ctx context.Context, query TagQuery) ([]Tag, error)
	UpdateTag(ctx context.Context, documentID string, input TagInput, opts WriteOptions) (*Tag, error)
	PublishTag(ctx context.Context, documentID string, opts WriteOptions) (*Tag, error)
}

// EntryStore performs content-type-neutral writes.
type EntryStore interface {
	// SetPublicationDate stamps the editorial date on a live publication-dated entry.
	SetPublicationDate(ctx context.Context, contentType ContentType, documentID string, at time.Time, opts WriteOptions) error
}

// DocumentStore is the full document port one backend provides.
type DocumentStore interface {
	ArticleStore
	TagStore
	EntryStore
	// Close releases backend resources.
	Close() error
}

// EchoFilter recognizes lifecycle notifications caused by this service's own writes.
//
// Backends that learn about writes asynchronously (webhooks) implement it so
// ingress can restore the write options the platform does not echo back.
type EchoFilter interface {
	// ConsumeEcho reports and forgets the oldest remembered write for the document.
	ConsumeEcho(contentType ContentType, documentID string) (WriteOptions, bool)
}

package augmenter

import (
	"context"
	"fmt"
	"time"
)

// Field names as the platform reports them in write payloads.
const (
	FieldTitle             = "title"
	FieldSlug              = "slug"
	FieldContent           = "content"
	FieldExcerpt           = "excerpt"
	FieldRegenerateExcerpt = "regenerateExcerpt"
	FieldArticleType       = "articleType"
	FieldHighlight         = "highlight"
	FieldTags              = "tags"
	FieldRelatedArticles   = "relatedArticles"
	FieldPublicationDate   = "publicationDate"
	FieldPublishedAt       = "publishedAt"
	FieldSummary           = "summary"
	FieldSummaryCacheKey   = "summaryCacheKey"
)

// WriteContext carries caller intent through one store write into lifecycle handlers.
type WriteContext struct {
	// SkipRelatedLifecycle marks writes issued by the related-articles refresh
	// so that its own publish does not trigger another refresh.
	SkipRelatedLifecycle bool
}

// WriteOptions controls one store write.
type WriteOptions struct {
	// SuppressEvents skips after-write lifecycle events entirely.
	SuppressEvents bool
	// Context is attached to every lifecycle event the write produces.
	Context WriteContext
}

// WriteOperation identifies the kind of pending write seen by before-write hooks.
type WriteOperation string

const (
	// WriteOperationCreate is a new document write.
	WriteOperationCreate WriteOperation = "create"
	// WriteOperationUpdate is a write against an existing document.
	WriteOperationUpdate WriteOperation = "update"
)

// ArticleInput is a partial article write. Nil fields are left untouched.
type ArticleInput struct {
	Title             *string
	Slug              *string
	Content           *string
	Excerpt           *string
	RegenerateExcerpt *bool
	ArticleType       *string
	Highlight         *bool
	Cover             *Media
	// Tags holds tag document ids.
	Tags *[]string
	// RelatedArticles holds related article document ids in display order.
	RelatedArticles *[]string
}

// Fields returns the platform field names present in this input.
func (in ArticleInput) Fields() []string {
	fields := make([]string, 0, 10)
	if in.Title != nil {
		fields = append(fields, FieldTitle)
	}
	if in.Slug != nil {
		fields = append(fields, FieldSlug)
	}
	if in.Content != nil {
		fields = append(fields, FieldContent)
	}
	if in.Excerpt != nil {
		fields = append(fields, FieldExcerpt)
	}
	if in.RegenerateExcerpt != nil {
		fields = append(fields, FieldRegenerateExcerpt)
	}
	if in.ArticleType != nil {
		fields = append(fields, FieldArticleType)
	}
	if in.Highlight != nil {
		fields = append(fields, FieldHighlight)
	}
	if in.Cover != nil {
		fields = append(fields, "cover")
	}
	if in.Tags != nil {
		fields = append(fields, FieldTags)
	}
	if in.RelatedArticles != nil {
		fields = append(fields, FieldRelatedArticles)
	}

	return fields
}

// TagInput is a partial tag write.
type TagInput struct {
	Name            *string
	Slug            *string
	Summary         *string
	SummaryCacheKey *string
}

// Fields returns the platform field names present in this input.
func (in TagInput) Fields() []string {
	fields := make([]string, 0, 4)
	if in.Name != nil {
		fields = append(fields, "name")
	}
	if in.Slug != nil {
		fields = append(fields, FieldSlug)
	}
	if in.Summary != nil {
		fields = append(fields, FieldSummary)
	}
	if in.SummaryCacheKey != nil {
		fields = append(fields, FieldSummaryCacheKey)
	}

	return fields
}

// WriteRequest is one pending write handed to before-write hooks.
//
// Hooks may mutate the request in place; stores persist the mutated request.
type WriteRequest struct {
	Operation   WriteOperation
	ContentType ContentType
	DocumentID  string
	// Publish reports whether this write makes the document live.
	Publish bool
	// PublicationDate is the editorial date being written, when any.
	PublicationDate *time.Time
	// Article holds the article payload for article writes.
	Article *ArticleInput
	Context WriteContext
}

// Fields returns the platform field names this write touches.
func (r *WriteRequest) Fields() []string {
	if r == nil {
		return nil
	}

	fields := make([]string, 0, 12)
	if r.Article != nil {
		fields = append(fields, r.Article.Fields()...)
	}
	if r.PublicationDate != nil {
		fields = append(fields, FieldPublicationDate)
	}
	if r.Publish {
		fields = append(fields, FieldPublishedAt)
	}

	return fields
}

// Validate checks the structural request contract.
func (r *WriteRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil write request", ErrInvalidWrite)
	}
	switch r.Operation {
	case WriteOperationCreate:
	case WriteOperationUpdate:
		if r.DocumentID == "" {
			return fmt.Errorf("%w: update without document id", ErrInvalidWrite)
		}
	default:
		return fmt.Errorf("%w: unsupported operation %q", ErrInvalidWrite, r.Operation)
	}
	if r.ContentType == "" {
		return fmt.Errorf("%w: missing content type", ErrInvalidWrite)
	}
	if r.Article != nil && r.ContentType != ContentTypeArticle {
		return fmt.Errorf("%w: article payload on %s", ErrInvalidWrite, r.ContentType)
	}

	return nil
}

// WriteHook inspects and optionally mutates one pending write.
//
// current is the stored snapshot before the write and is nil for creates.
type WriteHook func(ctx context.Context, req *WriteRequest, current *Entry) error

// WriteInterceptor runs before-write hooks.
type WriteInterceptor interface {
	// BeforeWrite runs every matching hook in registration order.
	BeforeWrite(ctx context.Context, req *WriteRequest, current *Entry) error
}

// Lifecycle is the hook surface stores drive around their writes.
type Lifecycle interface {
	WriteInterceptor
	EventSink
}

// String returns a pointer to value.
func String(value string) *string {
	return &value
}

// Bool returns a pointer to value.
func Bool(value bool) *bool {
	return &value
}

// Time returns a pointer to value.
func Time(value time.Time) *time.Time {
	return &value
}

// Strings returns a pointer to a copy of values.
func Strings(values ...string) *[]string {
	copied := append([]string{}, values...)
	return &copied
}

// Deref returns the pointed-to value or the zero value.
func Deref[T any](value *T) T {
	var zero T
	if value == nil {
		return zero
	}

	return *value
}

package augmenter

import (
	"context"
	"fmt"
)

// Canonical service registry keys.
const (
	ServiceLogger          = "augmenter.logger"
	ServiceArticleStore    = "augmenter.article_store"
	ServiceTagStore        = "augmenter.tag_store"
	ServiceEntryStore      = "augmenter.entry_store"
	ServiceRelatedArticles = "augmenter.related_articles"
	ServiceTagSummaries    = "augmenter.tag_summaries"
	ServiceContactNotifier = "augmenter.contact_notifier"
	ServiceSitePublisher   = "augmenter.site_publisher"
	ServiceSearchIndex     = "augmenter.search_index"
)

// ServiceRegistry provides runtime dependency injection to modules.
type ServiceRegistry interface {
	// Register binds a singleton service value to a stable name.
	Register(name string, service any) error
	// Resolve returns a registered service by name.
	Resolve(name string) (any, error)
}

// ResolveAs resolves a service and casts it to the requested type.
func ResolveAs[T any](registry ServiceRegistry, name string) (T, error) {
	var zero T

	service, err := registry.Resolve(name)
	if err != nil {
		return zero, fmt.Errorf("resolve service %s: %w", name, err)
	}

	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("resolve service %s: type assertion failed", name)
	}

	return typed, nil
}

// RelatedArticlesService recomputes related-article lists.
type RelatedArticlesService interface {
	// UpdateRelatedArticles recomputes one article's related list.
	UpdateRelatedArticles(ctx context.Context, documentID string) error
	// HandleArticleChange refreshes one article and, when propagate is set,
	// its most recent tag neighbours.
	HandleArticleChange(ctx context.Context, documentID string, propagate bool) error
}

// TagSummaryService maintains generated tag summaries.
type TagSummaryService interface {
	// UpdateTagSummary regenerates one tag summary unless its cache key is current.
	UpdateTagSummary(ctx context.Context, tagDocumentID string) (*Tag, error)
	// UpdateTagsForArticle refreshes the summaries of every tag on one article.
	UpdateTagsForArticle(ctx context.Context, articleDocumentID string) error
}

// ContactNotifier announces new contact submissions.
type ContactNotifier interface {
	NotifyContact(ctx context.Context, contact *Contact) error
}

// SitePublisher triggers a rebuild of the public site.
type SitePublisher interface {
	TriggerPublish(ctx context.Context) error
}

// SearchIndex stores search records.
type SearchIndex interface {
	SaveObject(ctx context.Context, index string, record map[string]any) error
	DeleteObject(ctx context.Context, index string, objectID string) error
}

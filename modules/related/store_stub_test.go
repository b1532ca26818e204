package related

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"ex-augmenter/pkg/augmenter"
)

type writeCall struct {
	documentID string
	related    []string
	publish    bool
	opts       augmenter.WriteOptions
}

type articleStoreStub struct {
	mu        sync.Mutex
	articles  map[string]augmenter.Article
	writes    []writeCall
	failFind  map[string]error
	failWrite map[string]error
}

func newArticleStoreStub(articles ...augmenter.Article) *articleStoreStub {
	store := &articleStoreStub{
		articles:  make(map[string]augmenter.Article, len(articles)),
		failFind:  make(map[string]error),
		failWrite: make(map[string]error),
	}
	for _, article := range articles {
		store.articles[article.DocumentID] = article
	}

	return store
}

func (s *articleStoreStub) FindArticle(_ context.Context, documentID string) (*augmenter.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failFind[documentID]; err != nil {
		return nil, err
	}
	article, ok := s.articles[documentID]
	if !ok {
		return nil, augmenter.ErrNotFound
	}

	return &article, nil
}

func (s *articleStoreStub) FindArticles(_ context.Context, query augmenter.ArticleQuery) ([]augmenter.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []augmenter.Article
	for _, article := range s.articles {
		if article.DocumentID == query.ExcludeDocumentID {
			continue
		}
		if query.PublishedOnly && !article.IsPublished() {
			continue
		}
		if len(query.TagSlugs) > 0 && !slices.ContainsFunc(article.TagSlugs(), func(slug string) bool {
			return slices.Contains(query.TagSlugs, slug)
		}) {
			continue
		}
		found = append(found, article)
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].DocumentID < found[j].DocumentID
	})
	if len(query.Sort) > 0 && query.Sort[0].Field == augmenter.SortFieldPublishedAt {
		sort.SliceStable(found, func(i, j int) bool {
			return found[i].PublishedAt.After(*found[j].PublishedAt)
		})
	}
	if query.Limit > 0 && len(found) > query.Limit {
		found = found[:query.Limit]
	}

	return found, nil
}

func (s *articleStoreStub) UpdateArticle(
	_ context.Context,
	documentID string,
	input augmenter.ArticleInput,
	opts augmenter.WriteOptions,
) (*augmenter.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failWrite[documentID]; err != nil {
		return nil, err
	}
	article, ok := s.articles[documentID]
	if !ok {
		return nil, augmenter.ErrNotFound
	}
	call := writeCall{documentID: documentID, opts: opts}
	if input.RelatedArticles != nil {
		call.related = slices.Clone(*input.RelatedArticles)
		article.RelatedArticles = article.RelatedArticles[:0:0]
		for _, id := range *input.RelatedArticles {
			article.RelatedArticles = append(article.RelatedArticles, augmenter.ArticleRef{DocumentID: id})
		}
	}
	s.articles[documentID] = article
	s.writes = append(s.writes, call)

	return &article, nil
}

func (s *articleStoreStub) PublishArticle(
	_ context.Context,
	documentID string,
	opts augmenter.WriteOptions,
) (*augmenter.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	article, ok := s.articles[documentID]
	if !ok {
		return nil, augmenter.ErrNotFound
	}
	s.writes = append(s.writes, writeCall{documentID: documentID, publish: true, opts: opts})

	return &article, nil
}

func (s *articleStoreStub) writesFor(documentID string) []writeCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	var calls []writeCall
	for _, call := range s.writes {
		if call.documentID == documentID {
			calls = append(calls, call)
		}
	}

	return calls
}

func (s *articleStoreStub) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.writes)
}

func withRelated(article augmenter.Article, ids ...string) augmenter.Article {
	for _, id := range ids {
		article.RelatedArticles = append(article.RelatedArticles, augmenter.ArticleRef{DocumentID: id})
	}

	return article
}

type moduleRuntimeStub struct {
	registry augmenter.ServiceRegistry
}

func (s moduleRuntimeStub) Services() augmenter.ServiceRegistry {
	return s.registry
}

func (moduleRuntimeStub) Subscribe(
	context.Context,
	augmenter.InterestSet,
	augmenter.SubscriptionSpec,
	augmenter.EventHandler,
) (augmenter.Subscription, error) {
	return nil, nil
}

type serviceRegistryStub struct {
	values map[string]any
}

func newServiceRegistryStub() *serviceRegistryStub {
	return &serviceRegistryStub{values: make(map[string]any)}
}

func (s *serviceRegistryStub) Register(name string, service any) error {
	if name == "" {
		return errors.New("empty service name")
	}
	if _, exists := s.values[name]; exists {
		return augmenter.ErrServiceAlreadyRegistered
	}
	s.values[name] = service

	return nil
}

func (s *serviceRegistryStub) Resolve(name string) (any, error) {
	value, ok := s.values[name]
	if !ok {
		return nil, augmenter.ErrServiceNotFound
	}

	return value, nil
}

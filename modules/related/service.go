package related

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ex-augmenter/pkg/augmenter"

	"golang.org/x/sync/errgroup"
)

const (
	defaultCandidateLimit = 50
	defaultNeighbourLimit = 5
)

// Service recomputes related-article lists from shared tags.
type Service struct {
	articles       augmenter.ArticleStore
	logger         *slog.Logger
	candidateLimit int
	neighbourLimit int
	relatedLimit   int
}

// ServiceOption mutates service configuration.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(service *Service) {
		if logger != nil {
			service.logger = logger
		}
	}
}

// WithNeighbourLimit bounds how many tag neighbours one change refreshes.
func WithNeighbourLimit(limit int) ServiceOption {
	return func(service *Service) {
		if limit > 0 {
			service.neighbourLimit = limit
		}
	}
}

// NewService creates a related-articles service over articles.
func NewService(articles augmenter.ArticleStore, options ...ServiceOption) *Service {
	service := &Service{
		articles:       articles,
		logger:         slog.Default(),
		candidateLimit: defaultCandidateLimit,
		neighbourLimit: defaultNeighbourLimit,
		relatedLimit:   defaultRelatedLimit,
	}
	for _, option := range options {
		option(service)
	}

	return service
}

// UpdateRelatedArticles recomputes one article's related list and republishes
// the article when the list changed.
//
// A missing article is logged and ignored.
func (s *Service) UpdateRelatedArticles(ctx context.Context, documentID string) error {
	article, err := s.articles.FindArticle(ctx, documentID)
	if errors.Is(err, augmenter.ErrNotFound) {
		s.logger.WarnContext(ctx, "related articles source not found", "document_id", documentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("update related articles %s: %w", documentID, err)
	}

	if len(article.Tags) == 0 {
		return s.clearRelated(ctx, article)
	}

	slugs := article.TagSlugs()
	candidates, err := s.articles.FindArticles(ctx, augmenter.ArticleQuery{
		TagSlugs:          slugs,
		ExcludeDocumentID: documentID,
		PublishedOnly:     true,
		Limit:             s.candidateLimit,
	})
	if err != nil {
		return fmt.Errorf("update related articles %s find candidates: %w", documentID, err)
	}

	next := rankRelated(slugs, candidates, s.relatedLimit)
	if sameOrder(article.RelatedDocumentIDs(), next) {
		s.logger.DebugContext(ctx,
			"related articles already up to date",
			"document_id", documentID,
			"title", article.Title,
		)
		return nil
	}

	if _, err := s.articles.UpdateArticle(ctx, documentID, augmenter.ArticleInput{
		RelatedArticles: &next,
	}, augmenter.WriteOptions{SuppressEvents: true}); err != nil {
		return fmt.Errorf("update related articles %s write: %w", documentID, err)
	}
	if _, err := s.articles.PublishArticle(ctx, documentID, internalWrite()); err != nil {
		return fmt.Errorf("update related articles %s publish: %w", documentID, err)
	}

	s.logger.InfoContext(ctx,
		"related articles updated",
		"document_id", documentID,
		"title", article.Title,
		"related", len(next),
		"tags", len(slugs),
	)

	return nil
}

func (s *Service) clearRelated(ctx context.Context, article *augmenter.Article) error {
	if len(article.RelatedArticles) == 0 {
		return nil
	}

	empty := []string{}
	if _, err := s.articles.UpdateArticle(ctx, article.DocumentID, augmenter.ArticleInput{
		RelatedArticles: &empty,
	}, augmenter.WriteOptions{SuppressEvents: true}); err != nil {
		return fmt.Errorf("clear related articles %s: %w", article.DocumentID, err)
	}
	if !article.IsPublished() {
		s.logger.InfoContext(ctx, "related articles cleared on draft", "document_id", article.DocumentID)
		return nil
	}
	if _, err := s.articles.PublishArticle(ctx, article.DocumentID, internalWrite()); err != nil {
		return fmt.Errorf("clear related articles %s publish: %w", article.DocumentID, err)
	}
	s.logger.InfoContext(ctx, "related articles cleared and republished", "document_id", article.DocumentID)

	return nil
}

// HandleArticleChange refreshes one article and, when propagate is set, the
// most recently published articles sharing a tag with it.
//
// A failed self refresh is logged and returned after the neighbours ran.
// Neighbour failures are logged and do not stop other neighbours.
func (s *Service) HandleArticleChange(ctx context.Context, documentID string, propagate bool) error {
	selfErr := s.UpdateRelatedArticles(ctx, documentID)
	if selfErr != nil {
		s.logger.ErrorContext(ctx, "related articles self refresh failed",
			"document_id", documentID,
			"error", selfErr,
		)
	}
	if !propagate {
		return selfErr
	}

	article, err := s.articles.FindArticle(ctx, documentID)
	if errors.Is(err, augmenter.ErrNotFound) {
		return selfErr
	}
	if err != nil {
		return errors.Join(selfErr, fmt.Errorf("handle article change %s: %w", documentID, err))
	}
	if len(article.Tags) == 0 {
		return selfErr
	}

	neighbours, err := s.articles.FindArticles(ctx, augmenter.ArticleQuery{
		TagSlugs:          article.TagSlugs(),
		ExcludeDocumentID: documentID,
		PublishedOnly:     true,
		Sort:              []augmenter.Sort{{Field: augmenter.SortFieldPublishedAt, Desc: true}},
		Limit:             s.neighbourLimit,
	})
	if err != nil {
		return errors.Join(selfErr, fmt.Errorf("handle article change %s find neighbours: %w", documentID, err))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, neighbour := range neighbours {
		neighbourID := neighbour.DocumentID
		group.Go(func() error {
			if err := s.UpdateRelatedArticles(groupCtx, neighbourID); err != nil {
				s.logger.ErrorContext(groupCtx,
					"related articles neighbour refresh failed",
					"document_id", documentID,
					"neighbour_id", neighbourID,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = group.Wait()

	return selfErr
}

func internalWrite() augmenter.WriteOptions {
	return augmenter.WriteOptions{
		Context: augmenter.WriteContext{SkipRelatedLifecycle: true},
	}
}

var _ augmenter.RelatedArticlesService = (*Service)(nil)

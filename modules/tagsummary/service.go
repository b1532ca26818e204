package tagsummary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"ex-augmenter/pkg/augmenter"

	"golang.org/x/sync/errgroup"
)

const defaultSourceLimit = 5

// Service keeps tag summaries in sync with the newest articles of each tag.
type Service struct {
	tags      augmenter.TagStore
	articles  augmenter.ArticleStore
	generator Generator
	logger    *slog.Logger
}

// NewService creates a tag summary service.
func NewService(
	tags augmenter.TagStore,
	articles augmenter.ArticleStore,
	generator Generator,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		tags:      tags,
		articles:  articles,
		generator: generator,
		logger:    logger,
	}
}

// UpdateTagSummary regenerates and publishes one tag summary when its source
// articles changed since the last generation.
//
// A missing tag is logged and yields a nil tag without error.
func (s *Service) UpdateTagSummary(ctx context.Context, tagDocumentID string) (*augmenter.Tag, error) {
	tag, err := s.tags.FindTag(ctx, tagDocumentID)
	if errors.Is(err, augmenter.ErrNotFound) {
		s.logger.WarnContext(ctx, "tag not found", "tag_document_id", tagDocumentID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update tag summary %s: %w", tagDocumentID, err)
	}

	sources, err := s.articles.FindArticles(ctx, augmenter.ArticleQuery{
		TagDocumentIDs: []string{tagDocumentID},
		PublishedOnly:  true,
		Sort: []augmenter.Sort{
			{Field: augmenter.SortFieldPublicationDate, Desc: true},
			{Field: augmenter.SortFieldPublishedAt, Desc: true},
		},
		Limit: defaultSourceLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("update tag summary %s find articles: %w", tagDocumentID, err)
	}

	fingerprint := Fingerprint(tag.Slug, sources)
	if tag.SummaryCacheKey == fingerprint && tag.Summary != "" {
		s.logger.DebugContext(ctx, "tag summary up to date", "tag", tag.Name, "tag_document_id", tagDocumentID)
		return tag, nil
	}

	s.logger.InfoContext(ctx, "updating tag summary", "tag", tag.Name, "tag_document_id", tagDocumentID, "sources", len(sources))
	summary, err := s.generator.Summarize(ctx, tag.Name, briefsFrom(sources))
	if err != nil {
		return nil, fmt.Errorf("update tag summary %s: %w", tagDocumentID, err)
	}

	if _, err := s.tags.UpdateTag(ctx, tagDocumentID, augmenter.TagInput{
		Summary:         augmenter.String(summary),
		SummaryCacheKey: augmenter.String(fingerprint),
	}, augmenter.WriteOptions{}); err != nil {
		return nil, fmt.Errorf("update tag summary %s write: %w", tagDocumentID, err)
	}
	published, err := s.tags.PublishTag(ctx, tagDocumentID, augmenter.WriteOptions{})
	if err != nil {
		return nil, fmt.Errorf("update tag summary %s publish: %w", tagDocumentID, err)
	}

	s.logger.InfoContext(ctx, "tag summary updated", "tag", tag.Name, "tag_document_id", tagDocumentID)

	return published, nil
}

// UpdateTagsForArticle refreshes every tag of one article concurrently.
//
// Every tag is attempted; failures are joined into the returned error.
func (s *Service) UpdateTagsForArticle(ctx context.Context, articleDocumentID string) error {
	article, err := s.articles.FindArticle(ctx, articleDocumentID)
	if errors.Is(err, augmenter.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("update tags for article %s: %w", articleDocumentID, err)
	}

	var (
		mu       sync.Mutex
		failures []error
	)
	group, groupCtx := errgroup.WithContext(ctx)
	for _, tag := range article.Tags {
		tagID := tag.DocumentID
		group.Go(func() error {
			if _, err := s.UpdateTagSummary(groupCtx, tagID); err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()

	if err := errors.Join(failures...); err != nil {
		return fmt.Errorf("update tags for article %s: %w", articleDocumentID, err)
	}

	return nil
}

func briefsFrom(articles []augmenter.Article) []ArticleBrief {
	briefs := make([]ArticleBrief, 0, len(articles))
	for _, article := range articles {
		brief := ArticleBrief{
			Title:       article.Title,
			Description: article.Excerpt,
			URL:         "/articles/" + article.Slug,
		}
		switch {
		case article.PublicationDate != nil:
			brief.Date = formatTime(*article.PublicationDate)
		case article.PublishedAt != nil:
			brief.Date = formatTime(*article.PublishedAt)
		}
		briefs = append(briefs, brief)
	}

	return briefs
}

var _ augmenter.TagSummaryService = (*Service)(nil)

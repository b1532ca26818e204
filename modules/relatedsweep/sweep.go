package relatedsweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"ex-augmenter/pkg/augmenter"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultLookback covers one six hour schedule period plus overlap.
	DefaultLookback = 6*time.Hour + 15*time.Minute

	defaultConcurrency = 8
)

// Result summarizes one sweep.
type Result struct {
	Since     time.Time
	Tags      int
	Articles  int
	Succeeded int
	Failed    int
}

// Sweeper refreshes related articles of every live article whose tags
// changed recently.
type Sweeper struct {
	tags        augmenter.TagStore
	articles    augmenter.ArticleStore
	related     augmenter.RelatedArticlesService
	logger      *slog.Logger
	clock       func() time.Time
	lookback    time.Duration
	concurrency int
}

// SweeperOption mutates sweeper configuration.
type SweeperOption func(*Sweeper)

// WithSweeperLogger sets the sweeper logger.
func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(sweeper *Sweeper) {
		if logger != nil {
			sweeper.logger = logger
		}
	}
}

// WithClock overrides the sweep time source.
func WithClock(clock func() time.Time) SweeperOption {
	return func(sweeper *Sweeper) {
		if clock != nil {
			sweeper.clock = clock
		}
	}
}

// WithLookback sets how far back tag updates are considered.
func WithLookback(lookback time.Duration) SweeperOption {
	return func(sweeper *Sweeper) {
		if lookback > 0 {
			sweeper.lookback = lookback
		}
	}
}

// WithConcurrency bounds concurrent article refreshes.
func WithConcurrency(concurrency int) SweeperOption {
	return func(sweeper *Sweeper) {
		if concurrency > 0 {
			sweeper.concurrency = concurrency
		}
	}
}

// NewSweeper creates a sweeper.
func NewSweeper(
	tags augmenter.TagStore,
	articles augmenter.ArticleStore,
	related augmenter.RelatedArticlesService,
	options ...SweeperOption,
) *Sweeper {
	sweeper := &Sweeper{
		tags:        tags,
		articles:    articles,
		related:     related,
		logger:      slog.Default(),
		clock:       time.Now,
		lookback:    DefaultLookback,
		concurrency: defaultConcurrency,
	}
	for _, option := range options {
		option(sweeper)
	}

	return sweeper
}

// RunOnce performs one sweep. Per-article failures are counted, not returned.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	result := Result{Since: s.clock().Add(-s.lookback)}

	tags, err := s.tags.FindTags(ctx, augmenter.TagQuery{UpdatedAfter: &result.Since})
	if err != nil {
		return result, fmt.Errorf("related sweep find tags: %w", err)
	}
	result.Tags = len(tags)
	if len(tags) == 0 {
		s.logger.DebugContext(ctx, "related sweep found no updated tags", "since", result.Since)
		return result, nil
	}

	tagIDs := make([]string, 0, len(tags))
	for _, tag := range tags {
		tagIDs = append(tagIDs, tag.DocumentID)
	}
	s.logger.InfoContext(ctx, "related sweep found updated tags", "tags", len(tags), "since", result.Since)

	articles, err := s.articles.FindArticles(ctx, augmenter.ArticleQuery{
		TagDocumentIDs: tagIDs,
		PublishedOnly:  true,
	})
	if err != nil {
		return result, fmt.Errorf("related sweep find articles: %w", err)
	}
	result.Articles = len(articles)
	if len(articles) == 0 {
		return result, nil
	}

	var succeeded, failed atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for _, article := range articles {
		documentID := article.DocumentID
		group.Go(func() error {
			if err := s.related.UpdateRelatedArticles(groupCtx, documentID); err != nil {
				failed.Add(1)
				s.logger.ErrorContext(groupCtx, "related sweep article failed", "document_id", documentID, "error", err)
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = group.Wait()

	result.Succeeded = int(succeeded.Load())
	result.Failed = int(failed.Load())
	s.logger.InfoContext(ctx,
		"related sweep completed",
		"articles", result.Articles,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)

	return result, nil
}

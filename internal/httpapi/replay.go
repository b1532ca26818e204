package httpapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ex-augmenter/pkg/augmenter"
)

// hookReplayer runs before-write hooks over writes that reached the platform
// without passing through a store, then persists whatever the hooks changed.
//
// Follow-up writes suppress lifecycle events; their webhooks come back as
// echoes and are dropped.
type hookReplayer struct {
	interceptor augmenter.WriteInterceptor
	articles    augmenter.ArticleStore
	entries     augmenter.EntryStore
}

func (r *hookReplayer) replay(ctx context.Context, event *augmenter.Event) error {
	req, current := replayRequest(event)
	if req == nil {
		return nil
	}
	if err := r.interceptor.BeforeWrite(ctx, req, current); err != nil {
		return fmt.Errorf("replay write hooks %s %s: %w", req.ContentType, req.DocumentID, err)
	}

	opts := augmenter.WriteOptions{SuppressEvents: true, Context: event.Context}
	var errs []error
	if input, changed := articleChanges(event.Entry.Article, req.Article); changed {
		if err := r.persistArticle(ctx, event, input, opts); err != nil {
			errs = append(errs, err)
		}
	}
	if event.Entry.PublicationDate == nil && req.PublicationDate != nil {
		at := *req.PublicationDate
		err := r.entries.SetPublicationDate(ctx, event.Entry.ContentType, event.Entry.DocumentID, at, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("replay publication date %s: %w", event.Entry.DocumentID, err))
		} else {
			applyPublicationDate(&event.Entry, at)
		}
	}

	return errors.Join(errs...)
}

// replayRequest rebuilds the write the platform performed. Publish webhooks
// are treated as draft-to-live transitions, the same way events without a
// previous state are.
func replayRequest(event *augmenter.Event) (*augmenter.WriteRequest, *augmenter.Entry) {
	var operation augmenter.WriteOperation
	switch event.Kind {
	case augmenter.EventKindEntryCreated:
		operation = augmenter.WriteOperationCreate
	case augmenter.EventKindEntryUpdated, augmenter.EventKindEntryPublished:
		operation = augmenter.WriteOperationUpdate
	default:
		return nil, nil
	}
	entry := event.Entry
	if !entry.ContentType.IsAPI() || entry.DocumentID == "" {
		return nil, nil
	}

	req := &augmenter.WriteRequest{
		Operation:   operation,
		ContentType: entry.ContentType,
		DocumentID:  entry.DocumentID,
		Publish:     event.Kind == augmenter.EventKindEntryPublished,
		Context:     event.Context,
	}
	if entry.PublicationDate != nil {
		req.PublicationDate = augmenter.Time(*entry.PublicationDate)
	}
	if article := entry.Article; article != nil {
		req.Article = &augmenter.ArticleInput{
			Content:           augmenter.String(article.Content),
			RegenerateExcerpt: augmenter.Bool(article.RegenerateExcerpt),
		}
		if article.Excerpt != "" {
			req.Article.Excerpt = augmenter.String(article.Excerpt)
		}
	}
	if operation == augmenter.WriteOperationCreate {
		return req, nil
	}

	current := entry
	if req.Publish {
		current.PublishedAt = nil
	}

	return req, &current
}

func articleChanges(article *augmenter.Article, written *augmenter.ArticleInput) (augmenter.ArticleInput, bool) {
	if article == nil || written == nil {
		return augmenter.ArticleInput{}, false
	}

	var input augmenter.ArticleInput
	changed := false
	if excerpt := augmenter.Deref(written.Excerpt); excerpt != article.Excerpt {
		input.Excerpt = augmenter.String(excerpt)
		changed = true
	}
	if regenerate := augmenter.Deref(written.RegenerateExcerpt); regenerate != article.RegenerateExcerpt {
		input.RegenerateExcerpt = augmenter.Bool(regenerate)
		changed = true
	}

	return input, changed
}

// persistArticle writes hook changes to the draft and, for publish webhooks,
// republishes so the live version matches.
func (r *hookReplayer) persistArticle(
	ctx context.Context,
	event *augmenter.Event,
	input augmenter.ArticleInput,
	opts augmenter.WriteOptions,
) error {
	documentID := event.Entry.DocumentID
	if _, err := r.articles.UpdateArticle(ctx, documentID, input, opts); err != nil {
		return fmt.Errorf("replay article %s: %w", documentID, err)
	}
	if event.Kind == augmenter.EventKindEntryPublished {
		if _, err := r.articles.PublishArticle(ctx, documentID, opts); err != nil {
			return fmt.Errorf("replay article %s publish: %w", documentID, err)
		}
	}

	article := *event.Entry.Article
	if input.Excerpt != nil {
		article.Excerpt = *input.Excerpt
	}
	if input.RegenerateExcerpt != nil {
		article.RegenerateExcerpt = *input.RegenerateExcerpt
	}
	event.Entry.Article = &article

	return nil
}

func applyPublicationDate(entry *augmenter.Entry, at time.Time) {
	entry.PublicationDate = augmenter.Time(at)
	switch {
	case entry.Article != nil:
		article := *entry.Article
		article.PublicationDate = augmenter.Time(at)
		entry.Article = &article
	case entry.Video != nil:
		video := *entry.Video
		video.PublicationDate = augmenter.Time(at)
		entry.Video = &video
	}
}

package strapi

import (
	"context"
	"fmt"
	"net/url"

	"ex-augmenter/pkg/augmenter"
)

const tagsPath = "/api/tags"

func (s *Store) FindTag(ctx context.Context, documentID string) (*augmenter.Tag, error) {
	var response singleResponse[tagDTO]
	if err := s.findDocument(ctx, tagsPath+"/"+url.PathEscape(documentID), url.Values{}, &response); err != nil {
		return nil, fmt.Errorf("find tag %s: %w", documentID, err)
	}

	tag, err := response.Data.toTag()
	if err != nil {
		return nil, fmt.Errorf("find tag %s: %w", documentID, err)
	}

	return &tag, nil
}

// FindTags lists tag drafts, most recently updated first.
func (s *Store) FindTags(ctx context.Context, query augmenter.TagQuery) ([]augmenter.Tag, error) {
	params := url.Values{}
	params.Set("status", "draft")
	params.Set("sort[0]", augmenter.SortFieldUpdatedAt+":desc")
	if query.UpdatedAfter != nil {
		params.Set("filters[updatedAt][$gt]", formatTime(*query.UpdatedAfter))
	}

	dtos, err := listAll[tagDTO](ctx, s, tagsPath, params, query.Limit)
	if err != nil {
		return nil, fmt.Errorf("find tags: %w", err)
	}
	tags, err := toTags(dtos)
	if err != nil {
		return nil, fmt.Errorf("find tags: %w", err)
	}

	return tags, nil
}

// UpdateTag writes input to the tag draft.
func (s *Store) UpdateTag(
	ctx context.Context,
	documentID string,
	input augmenter.TagInput,
	opts augmenter.WriteOptions,
) (*augmenter.Tag, error) {
	data := make(map[string]any)
	setIfPresent(data, "name", input.Name)
	setIfPresent(data, augmenter.FieldSlug, input.Slug)
	setIfPresent(data, augmenter.FieldSummary, input.Summary)
	setIfPresent(data, augmenter.FieldSummaryCacheKey, input.SummaryCacheKey)

	return s.writeTag(ctx, documentID, data, false, opts)
}

// PublishTag publishes the current tag draft.
func (s *Store) PublishTag(ctx context.Context, documentID string, opts augmenter.WriteOptions) (*augmenter.Tag, error) {
	return s.writeTag(ctx, documentID, map[string]any{}, true, opts)
}

func (s *Store) writeTag(
	ctx context.Context,
	documentID string,
	data map[string]any,
	publish bool,
	opts augmenter.WriteOptions,
) (*augmenter.Tag, error) {
	operation := "update"
	if publish {
		operation = "publish"
	}

	current, err := s.FindTag(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("%s tag: %w", operation, err)
	}
	currentEntry := augmenter.TagEntry(*current)
	req := &augmenter.WriteRequest{
		Operation:   augmenter.WriteOperationUpdate,
		ContentType: augmenter.ContentTypeTag,
		DocumentID:  documentID,
		Publish:     publish,
		Context:     opts.Context,
	}
	if err := s.interceptor.BeforeWrite(ctx, req, &currentEntry); err != nil {
		return nil, fmt.Errorf("%s tag %s: %w", operation, documentID, err)
	}

	var response singleResponse[tagDTO]
	if err := s.write(ctx, augmenter.ContentTypeTag, documentID, data, req.Publish, opts, nil, &response); err != nil {
		return nil, fmt.Errorf("%s tag %s: %w", operation, documentID, err)
	}
	written, err := response.Data.toTag()
	if err != nil {
		return nil, fmt.Errorf("%s tag %s: %w", operation, documentID, err)
	}

	return &written, nil
}

package strapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"ex-augmenter/pkg/augmenter"
)

const articlesPath = "/api/articles"

// articlePopulate returns the populate parameters every article read uses.
func articlePopulate() url.Values {
	query := url.Values{}
	query.Set("populate[tags]", "true")
	query.Set("populate[cover]", "true")
	query.Set("populate[relatedArticles][fields][0]", "documentId")

	return query
}

// FindArticle loads one article with tags and related references populated.
func (s *Store) FindArticle(ctx context.Context, documentID string) (*augmenter.Article, error) {
	var response singleResponse[articleDTO]
	if err := s.findDocument(ctx, articlesPath+"/"+url.PathEscape(documentID), articlePopulate(), &response); err != nil {
		return nil, fmt.Errorf("find article %s: %w", documentID, err)
	}

	article, err := response.Data.toArticle()
	if err != nil {
		return nil, fmt.Errorf("find article %s: %w", documentID, err)
	}

	return &article, nil
}

// FindArticles lists articles matching query.
//
// Without PublishedOnly the draft versions are listed, which covers every document.
func (s *Store) FindArticles(ctx context.Context, query augmenter.ArticleQuery) ([]augmenter.Article, error) {
	params, err := articleQueryParams(query)
	if err != nil {
		return nil, fmt.Errorf("find articles: %w", err)
	}

	dtos, err := listAll[articleDTO](ctx, s, articlesPath, params, query.Limit)
	if err != nil {
		return nil, fmt.Errorf("find articles: %w", err)
	}

	articles := make([]augmenter.Article, 0, len(dtos))
	for _, dto := range dtos {
		article, err := dto.toArticle()
		if err != nil {
			return nil, fmt.Errorf("find articles: %w", err)
		}
		articles = append(articles, article)
	}

	return articles, nil
}

func articleQueryParams(query augmenter.ArticleQuery) (url.Values, error) {
	params := articlePopulate()
	for i, slug := range query.TagSlugs {
		params.Set("filters[tags][slug][$in]["+strconv.Itoa(i)+"]", slug)
	}
	for i, id := range query.TagDocumentIDs {
		params.Set("filters[tags][documentId][$in]["+strconv.Itoa(i)+"]", id)
	}
	if query.ExcludeDocumentID != "" {
		params.Set("filters[documentId][$ne]", query.ExcludeDocumentID)
	}
	if query.PublishedOnly {
		params.Set("status", "published")
	} else {
		params.Set("status", "draft")
	}
	for i, sort := range query.Sort {
		switch sort.Field {
		case augmenter.SortFieldPublishedAt, augmenter.SortFieldPublicationDate,
			augmenter.SortFieldUpdatedAt, augmenter.SortFieldCreatedAt:
		default:
			return nil, fmt.Errorf("unsupported sort field %q", sort.Field)
		}
		direction := "asc"
		if sort.Desc {
			direction = "desc"
		}
		params.Set("sort["+strconv.Itoa(i)+"]", sort.Field+":"+direction)
	}

	return params, nil
}

// UpdateArticle writes input to the article draft.
func (s *Store) UpdateArticle(
	ctx context.Context,
	documentID string,
	input augmenter.ArticleInput,
	opts augmenter.WriteOptions,
) (*augmenter.Article, error) {
	return s.writeArticle(ctx, documentID, &input, false, opts)
}

// PublishArticle publishes the current article draft.
func (s *Store) PublishArticle(ctx context.Context, documentID string, opts augmenter.WriteOptions) (*augmenter.Article, error) {
	return s.writeArticle(ctx, documentID, nil, true, opts)
}

func (s *Store) writeArticle(
	ctx context.Context,
	documentID string,
	input *augmenter.ArticleInput,
	publish bool,
	opts augmenter.WriteOptions,
) (*augmenter.Article, error) {
	operation := "update"
	if publish {
		operation = "publish"
	}

	current, err := s.FindArticle(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("%s article: %w", operation, err)
	}
	currentEntry := augmenter.ArticleEntry(*current)

	req := &augmenter.WriteRequest{
		Operation:   augmenter.WriteOperationUpdate,
		ContentType: augmenter.ContentTypeArticle,
		DocumentID:  documentID,
		Publish:     publish,
		Article:     input,
		Context:     opts.Context,
	}
	if err := s.interceptor.BeforeWrite(ctx, req, &currentEntry); err != nil {
		return nil, fmt.Errorf("%s article %s: %w", operation, documentID, err)
	}

	data := articleData(req)
	if len(data) == 0 && !req.Publish {
		return current, nil
	}

	var response singleResponse[articleDTO]
	if err := s.write(ctx, augmenter.ContentTypeArticle, documentID, data, req.Publish, opts, articlePopulate(), &response); err != nil {
		return nil, fmt.Errorf("%s article %s: %w", operation, documentID, err)
	}
	written, err := response.Data.toArticle()
	if err != nil {
		return nil, fmt.Errorf("%s article %s: %w", operation, documentID, err)
	}
	s.logger.DebugContext(ctx, "strapi article written",
		"document_id", documentID,
		"operation", operation,
		"fields", req.Fields(),
	)

	return &written, nil
}

// articleData maps a write request onto the REST payload.
//
// Media uploads are not modelled over REST, so cover writes are ignored.
func articleData(req *augmenter.WriteRequest) map[string]any {
	data := make(map[string]any)
	if in := req.Article; in != nil {
		setIfPresent(data, augmenter.FieldTitle, in.Title)
		setIfPresent(data, augmenter.FieldSlug, in.Slug)
		setIfPresent(data, augmenter.FieldContent, in.Content)
		setIfPresent(data, augmenter.FieldExcerpt, in.Excerpt)
		setIfPresent(data, augmenter.FieldRegenerateExcerpt, in.RegenerateExcerpt)
		setIfPresent(data, augmenter.FieldArticleType, in.ArticleType)
		setIfPresent(data, augmenter.FieldHighlight, in.Highlight)
		if in.Tags != nil {
			data[augmenter.FieldTags] = relationSet(*in.Tags)
		}
		if in.RelatedArticles != nil {
			data[augmenter.FieldRelatedArticles] = relationSet(*in.RelatedArticles)
		}
	}
	if req.PublicationDate != nil {
		data[augmenter.FieldPublicationDate] = formatTime(*req.PublicationDate)
	}

	return data
}

func setIfPresent[T any](data map[string]any, field string, value *T) {
	if value != nil {
		data[field] = *value
	}
}

// relationSet replaces a relation with document ids in order.
func relationSet(documentIDs []string) map[string]any {
	return map[string]any{"set": append([]string{}, documentIDs...)}
}

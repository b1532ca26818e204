// Package algolia turns stored documents into search records and writes them
// to an Algolia index.
package algolia

import (
	"strings"
	"time"

	"ex-augmenter/pkg/augmenter"
)

// Record is one search object as Algolia stores it.
type Record map[string]any

// ObjectID returns the record's objectID.
func (r Record) ObjectID() string {
	objectID, _ := r["objectID"].(string)
	return objectID
}

// isoMillis matches JavaScript's Date.prototype.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Transform maps an article or video entry to its search record.
//
// ok is false for other content types and for entries missing documentId,
// title or slug; those are not indexed.
func Transform(entry augmenter.Entry, now time.Time) (record Record, ok bool) {
	switch entry.ContentType {
	case augmenter.ContentTypeArticle:
		if entry.Article == nil {
			return nil, false
		}
		return transformArticle(*entry.Article, now)
	case augmenter.ContentTypeVideo:
		if entry.Video == nil {
			return nil, false
		}
		return transformVideo(*entry.Video, now)
	default:
		return nil, false
	}
}

func transformArticle(article augmenter.Article, now time.Time) (Record, bool) {
	if article.DocumentID == "" || article.Title == "" || article.Slug == "" {
		return nil, false
	}

	description := article.Excerpt
	if description == "" {
		description = augmenter.ExtractExcerpt(article.Content)
	}
	tags, tagSlugs := tagRecords(article.Tags)
	date := recordDate(article.PublicationDate, article.PublishedAt, article.CreatedAt, now)

	searchTags := append([]string{}, tagSlugs...)
	if article.ArticleType != "" {
		searchTags = append(searchTags, article.ArticleType)
	}
	if article.Highlight {
		searchTags = append(searchTags, "highlighted")
	}

	record := Record{
		"objectID":        article.DocumentID,
		"id":              article.ID,
		"title":           article.Title,
		"content":         fullContent(article.Title, description, tags),
		"description":     description,
		"slug":            article.Slug,
		"url":             "/articles/" + article.Slug,
		"type":            "article",
		"tags":            tags,
		"highlight":       article.Highlight,
		"date":            date.UnixMilli(),
		"publicationDate": date.UTC().Format(isoMillis),
		"_tags":           searchTags,
	}
	if article.ArticleType != "" {
		record["articleType"] = article.ArticleType
	}
	if image := imageRecord(article.Cover, article.Title); image != nil {
		record["image"] = image
	}

	return record, true
}

func transformVideo(video augmenter.Video, now time.Time) (Record, bool) {
	if video.DocumentID == "" || video.Title == "" || video.Slug == "" {
		return nil, false
	}

	tags, tagSlugs := tagRecords(video.Tags)
	date := recordDate(video.PublicationDate, video.PublishedAt, video.CreatedAt, now)

	record := Record{
		"objectID":        video.DocumentID,
		"id":              video.ID,
		"title":           video.Title,
		"content":         fullContent(video.Title, video.Description, tags),
		"description":     augmenter.ExtractExcerpt(video.Description),
		"slug":            video.Slug,
		"url":             "/videos/" + video.Slug,
		"type":            "video",
		"tags":            tags,
		"date":            date.UnixMilli(),
		"publicationDate": date.UTC().Format(isoMillis),
		"_tags":           tagSlugs,
	}
	if image := imageRecord(video.Thumbnail, video.Title); image != nil {
		record["image"] = image
	}

	return record, true
}

func tagRecords(tags []augmenter.Tag) ([]map[string]string, []string) {
	records := make([]map[string]string, 0, len(tags))
	slugs := make([]string, 0, len(tags))
	for _, tag := range tags {
		records = append(records, map[string]string{"name": tag.Name, "slug": tag.Slug})
		slugs = append(slugs, tag.Slug)
	}

	return records, slugs
}

func fullContent(title string, description string, tags []map[string]string) string {
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag["name"])
	}

	return title + " " + description + " " + strings.Join(names, " ")
}

func recordDate(publicationDate *time.Time, publishedAt *time.Time, createdAt time.Time, now time.Time) time.Time {
	switch {
	case publicationDate != nil:
		return *publicationDate
	case publishedAt != nil:
		return *publishedAt
	case !createdAt.IsZero():
		return createdAt
	default:
		return now
	}
}

func imageRecord(media *augmenter.Media, title string) map[string]any {
	if media == nil {
		return nil
	}
	alt := media.AlternativeText
	if alt == "" {
		alt = title
	}

	return map[string]any{
		"url":    media.URL,
		"alt":    alt,
		"width":  media.Width,
		"height": media.Height,
	}
}

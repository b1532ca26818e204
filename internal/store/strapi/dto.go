package strapi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ex-augmenter/pkg/augmenter"
)

// Date-only fields come back as plain calendar dates.
const dateLayout = "2006-01-02"

type mediaDTO struct {
	URL             string  `json:"url"`
	AlternativeText *string `json:"alternativeText"`
	Width           *int    `json:"width"`
	Height          *int    `json:"height"`
}

type documentDTO struct {
	ID              int64   `json:"id"`
	DocumentID      string  `json:"documentId"`
	CreatedAt       *string `json:"createdAt"`
	UpdatedAt       *string `json:"updatedAt"`
	PublishedAt     *string `json:"publishedAt"`
	PublicationDate *string `json:"publicationDate"`
}

type tagDTO struct {
	documentDTO
	Name            string  `json:"name"`
	Slug            string  `json:"slug"`
	Summary         *string `json:"summary"`
	SummaryCacheKey *string `json:"summaryCacheKey"`
}

type articleRefDTO struct {
	ID         int64  `json:"id"`
	DocumentID string `json:"documentId"`
}

type articleDTO struct {
	documentDTO
	Title             string          `json:"title"`
	Slug              string          `json:"slug"`
	Content           *string         `json:"content"`
	Excerpt           *string         `json:"excerpt"`
	RegenerateExcerpt *bool           `json:"regenerateExcerpt"`
	ArticleType       *string         `json:"articleType"`
	Highlight         *bool           `json:"highlight"`
	Cover             *mediaDTO       `json:"cover"`
	Tags              []tagDTO        `json:"tags"`
	RelatedArticles   []articleRefDTO `json:"relatedArticles"`
}

type videoDTO struct {
	documentDTO
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description"`
	Thumbnail   *mediaDTO `json:"thumbnail"`
	Tags        []tagDTO  `json:"tags"`
}

type contactDTO struct {
	documentDTO
	Firstname          string  `json:"firstname"`
	Lastname           string  `json:"lastname"`
	Email              string  `json:"email"`
	Source             *string `json:"source"`
	CompanyName        *string `json:"companyName"`
	CompanyWebsite     *string `json:"companyWebsite"`
	SponsorshipInquiry *bool   `json:"sponsorshipInquiry"`
	BudgetRange        *string `json:"budgetRange"`
	AdditionalInfo     *string `json:"additionalInfo"`
}

type singleResponse[T any] struct {
	Data T `json:"data"`
}

type paginationDTO struct {
	Page      int `json:"page"`
	PageSize  int `json:"pageSize"`
	PageCount int `json:"pageCount"`
	Total     int `json:"total"`
	Start     int `json:"start"`
	Limit     int `json:"limit"`
}

type listResponse[T any] struct {
	Data []T `json:"data"`
	Meta struct {
		Pagination paginationDTO `json:"pagination"`
	} `json:"meta"`
}

type errorResponse struct {
	Error struct {
		Status  int    `json:"status"`
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

// parseTime accepts full timestamps and date-only values; blank means unset.
func parseTime(field string, value *string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	raw := strings.TrimSpace(*value)
	if raw == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		parsed = parsed.UTC()
		return &parsed, nil
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s %q: unsupported time format", field, raw)
	}

	return &parsed, nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

type documentTimes struct {
	createdAt       time.Time
	updatedAt       time.Time
	publishedAt     *time.Time
	publicationDate *time.Time
}

func (d documentDTO) times() (documentTimes, error) {
	var times documentTimes

	createdAt, err := parseTime("createdAt", d.CreatedAt)
	if err != nil {
		return documentTimes{}, err
	}
	updatedAt, err := parseTime("updatedAt", d.UpdatedAt)
	if err != nil {
		return documentTimes{}, err
	}
	if times.publishedAt, err = parseTime("publishedAt", d.PublishedAt); err != nil {
		return documentTimes{}, err
	}
	if times.publicationDate, err = parseTime("publicationDate", d.PublicationDate); err != nil {
		return documentTimes{}, err
	}
	times.createdAt = augmenter.Deref(createdAt)
	times.updatedAt = augmenter.Deref(updatedAt)

	return times, nil
}

func (m *mediaDTO) toMedia() *augmenter.Media {
	if m == nil || m.URL == "" {
		return nil
	}

	return &augmenter.Media{
		URL:             m.URL,
		AlternativeText: augmenter.Deref(m.AlternativeText),
		Width:           augmenter.Deref(m.Width),
		Height:          augmenter.Deref(m.Height),
	}
}

func (d tagDTO) toTag() (augmenter.Tag, error) {
	times, err := d.times()
	if err != nil {
		return augmenter.Tag{}, fmt.Errorf("tag %s: %w", d.DocumentID, err)
	}

	return augmenter.Tag{
		ID:              d.ID,
		DocumentID:      d.DocumentID,
		Name:            d.Name,
		Slug:            d.Slug,
		Summary:         augmenter.Deref(d.Summary),
		SummaryCacheKey: augmenter.Deref(d.SummaryCacheKey),
		CreatedAt:       times.createdAt,
		UpdatedAt:       times.updatedAt,
		PublishedAt:     times.publishedAt,
	}, nil
}

func toTags(dtos []tagDTO) ([]augmenter.Tag, error) {
	tags := make([]augmenter.Tag, 0, len(dtos))
	for _, dto := range dtos {
		tag, err := dto.toTag()
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}

	return tags, nil
}

func (d articleDTO) toArticle() (augmenter.Article, error) {
	times, err := d.times()
	if err != nil {
		return augmenter.Article{}, fmt.Errorf("article %s: %w", d.DocumentID, err)
	}
	tags, err := toTags(d.Tags)
	if err != nil {
		return augmenter.Article{}, fmt.Errorf("article %s: %w", d.DocumentID, err)
	}
	related := make([]augmenter.ArticleRef, 0, len(d.RelatedArticles))
	for _, ref := range d.RelatedArticles {
		related = append(related, augmenter.ArticleRef{ID: ref.ID, DocumentID: ref.DocumentID})
	}

	return augmenter.Article{
		ID:                d.ID,
		DocumentID:        d.DocumentID,
		Title:             d.Title,
		Slug:              d.Slug,
		Content:           augmenter.Deref(d.Content),
		Excerpt:           augmenter.Deref(d.Excerpt),
		RegenerateExcerpt: augmenter.Deref(d.RegenerateExcerpt),
		ArticleType:       augmenter.Deref(d.ArticleType),
		Highlight:         augmenter.Deref(d.Highlight),
		Cover:             d.Cover.toMedia(),
		Tags:              tags,
		RelatedArticles:   related,
		PublicationDate:   times.publicationDate,
		PublishedAt:       times.publishedAt,
		CreatedAt:         times.createdAt,
		UpdatedAt:         times.updatedAt,
	}, nil
}

func (d videoDTO) toVideo() (augmenter.Video, error) {
	times, err := d.times()
	if err != nil {
		return augmenter.Video{}, fmt.Errorf("video %s: %w", d.DocumentID, err)
	}
	tags, err := toTags(d.Tags)
	if err != nil {
		return augmenter.Video{}, fmt.Errorf("video %s: %w", d.DocumentID, err)
	}

	return augmenter.Video{
		ID:              d.ID,
		DocumentID:      d.DocumentID,
		Title:           d.Title,
		Slug:            d.Slug,
		Description:     augmenter.Deref(d.Description),
		Thumbnail:       d.Thumbnail.toMedia(),
		Tags:            tags,
		PublicationDate: times.publicationDate,
		PublishedAt:     times.publishedAt,
		CreatedAt:       times.createdAt,
		UpdatedAt:       times.updatedAt,
	}, nil
}

func (d contactDTO) toContact() augmenter.Contact {
	return augmenter.Contact{
		ID:                 d.ID,
		DocumentID:         d.DocumentID,
		Firstname:          d.Firstname,
		Lastname:           d.Lastname,
		Email:              d.Email,
		Source:             augmenter.Deref(d.Source),
		CompanyName:        augmenter.Deref(d.CompanyName),
		CompanyWebsite:     augmenter.Deref(d.CompanyWebsite),
		SponsorshipInquiry: augmenter.Deref(d.SponsorshipInquiry),
		BudgetRange:        augmenter.Deref(d.BudgetRange),
		AdditionalInfo:     augmenter.Deref(d.AdditionalInfo),
	}
}

// DecodeEntry converts one platform entry payload, as carried by webhooks and
// REST responses, into a neutral entry.
//
// Unknown application content types decode to an entry without a payload.
func DecodeEntry(contentType augmenter.ContentType, raw json.RawMessage) (augmenter.Entry, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return augmenter.Entry{}, fmt.Errorf("decode entry %s: empty payload", contentType)
	}

	switch contentType {
	case augmenter.ContentTypeArticle:
		var dto articleDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return augmenter.Entry{}, fmt.Errorf("decode entry %s: %w", contentType, err)
		}
		article, err := dto.toArticle()
		if err != nil {
			return augmenter.Entry{}, fmt.Errorf("decode entry %s: %w", contentType, err)
		}
		return augmenter.ArticleEntry(article), nil
	case augmenter.ContentTypeVideo:
		var dto videoDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return augmenter.Entry{}, fmt.Errorf("decode entry %s: %w", contentType, err)
		}
		video, err := dto.toVideo()
		if err != nil {
			return augmenter.Entry{}, fmt.Errorf("decode entry %s: %w", contentType, err)
		}
		return augmenter.VideoEntry(video), nil
	case augmenter.ContentTypeTag:
		var dto tagDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return augmenter.Entry{}, fmt.Errorf("decode entry %s: %w", contentType, err)
		}
		tag, err := dto.toTag()
		if err != nil {
			return augmenter.Entry{}, fmt.Errorf("decode entry %s: %w", contentType, err)
		}
		return augmenter.TagEntry(tag), nil
	}

	var dto contactDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return augmenter.Entry{}, fmt.Errorf("decode entry %s: %w", contentType, err)
	}
	times, err := dto.times()
	if err != nil {
		return augmenter.Entry{}, fmt.Errorf("decode entry %s: %w", contentType, err)
	}
	entry := augmenter.Entry{
		ContentType:     contentType,
		ID:              dto.ID,
		DocumentID:      dto.DocumentID,
		PublishedAt:     times.publishedAt,
		PublicationDate: times.publicationDate,
		CreatedAt:       times.createdAt,
		UpdatedAt:       times.updatedAt,
	}
	if contentType == augmenter.ContentTypeContact {
		contact := dto.toContact()
		entry.Contact = &contact
	}

	return entry, nil
}

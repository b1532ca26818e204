package augmenter

import (
	"strings"
	"time"
)

// ContentType is the platform uid of one content model, for example api::article.article.
type ContentType string

const (
	// ContentTypeArticle identifies long-form articles.
	ContentTypeArticle ContentType = "api::article.article"
	// ContentTypeVideo identifies video entries.
	ContentTypeVideo ContentType = "api::video.video"
	// ContentTypePointer identifies link-out pointer entries.
	ContentTypePointer ContentType = "api::pointer.pointer"
	// ContentTypeContact identifies contact form submissions.
	ContentTypeContact ContentType = "api::contact.contact"
	// ContentTypeTag identifies taxonomy tags.
	ContentTypeTag ContentType = "api::tag.tag"
)

const apiContentTypePrefix = "api::"

// IsAPI reports whether this uid belongs to the application API namespace.
func (c ContentType) IsAPI() bool {
	return strings.HasPrefix(string(c), apiContentTypePrefix)
}

// IsPublicationDated reports whether entries of this type carry an editorial publicationDate.
func (c ContentType) IsPublicationDated() bool {
	switch c {
	case ContentTypeArticle, ContentTypeVideo, ContentTypePointer:
		return true
	default:
		return false
	}
}

// Media is one uploaded asset reference.
type Media struct {
	URL             string `json:"url"`
	AlternativeText string `json:"alternativeText,omitempty"`
	Width           int    `json:"width,omitempty"`
	Height          int    `json:"height,omitempty"`
}

// Tag is one taxonomy entry with its cached generated summary.
type Tag struct {
	ID              int64      `json:"id"`
	DocumentID      string     `json:"documentId"`
	Name            string     `json:"name"`
	Slug            string     `json:"slug"`
	Summary         string     `json:"summary"`
	SummaryCacheKey string     `json:"summaryCacheKey"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	PublishedAt     *time.Time `json:"publishedAt"`
}

// ArticleRef is one relation pointer to another article.
type ArticleRef struct {
	ID         int64  `json:"id,omitempty"`
	DocumentID string `json:"documentId"`
}

// Article is one long-form article document.
type Article struct {
	ID                int64        `json:"id"`
	DocumentID        string       `json:"documentId"`
	Title             string       `json:"title"`
	Slug              string       `json:"slug"`
	Content           string       `json:"content"`
	Excerpt           string       `json:"excerpt"`
	RegenerateExcerpt bool         `json:"regenerateExcerpt"`
	ArticleType       string       `json:"articleType,omitempty"`
	Highlight         bool         `json:"highlight"`
	Cover             *Media       `json:"cover,omitempty"`
	Tags              []Tag        `json:"tags,omitempty"`
	RelatedArticles   []ArticleRef `json:"relatedArticles,omitempty"`
	PublicationDate   *time.Time   `json:"publicationDate"`
	PublishedAt       *time.Time   `json:"publishedAt"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// IsPublished reports whether the article has a live version.
func (a Article) IsPublished() bool {
	return a.PublishedAt != nil
}

// TagSlugs returns the slugs of all populated tags in relation order.
func (a Article) TagSlugs() []string {
	slugs := make([]string, 0, len(a.Tags))
	for _, tag := range a.Tags {
		slugs = append(slugs, tag.Slug)
	}

	return slugs
}

// RelatedDocumentIDs returns related article document ids in relation order.
func (a Article) RelatedDocumentIDs() []string {
	ids := make([]string, 0, len(a.RelatedArticles))
	for _, related := range a.RelatedArticles {
		ids = append(ids, related.DocumentID)
	}

	return ids
}

// Video is one video document.
type Video struct {
	ID              int64      `json:"id"`
	DocumentID      string     `json:"documentId"`
	Title           string     `json:"title"`
	Slug            string     `json:"slug"`
	Description     string     `json:"description"`
	Thumbnail       *Media     `json:"thumbnail,omitempty"`
	Tags            []Tag      `json:"tags,omitempty"`
	PublicationDate *time.Time `json:"publicationDate"`
	PublishedAt     *time.Time `json:"publishedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Contact is one contact form submission.
type Contact struct {
	ID                 int64  `json:"id,omitempty"`
	DocumentID         string `json:"documentId,omitempty"`
	Firstname          string `json:"firstname"`
	Lastname           string `json:"lastname"`
	Email              string `json:"email"`
	Source             string `json:"source,omitempty"`
	CompanyName        string `json:"companyName,omitempty"`
	CompanyWebsite     string `json:"companyWebsite,omitempty"`
	SponsorshipInquiry bool   `json:"sponsorshipInquiry"`
	BudgetRange        string `json:"budgetRange,omitempty"`
	AdditionalInfo     string `json:"additionalInfo,omitempty"`
}

// Entry is a content-type-neutral snapshot of one stored document.
//
// At most one typed payload is set and it always matches ContentType.
// Pointer entries carry no payload.
type Entry struct {
	ContentType     ContentType
	ID              int64
	DocumentID      string
	PublishedAt     *time.Time
	PublicationDate *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Article *Article
	Video   *Video
	Contact *Contact
	Tag     *Tag
}

// IsPublished reports whether the entry has a live version.
func (e Entry) IsPublished() bool {
	return e.PublishedAt != nil
}

// ArticleEntry wraps an article snapshot into a neutral entry.
func ArticleEntry(article Article) Entry {
	return Entry{
		ContentType:     ContentTypeArticle,
		ID:              article.ID,
		DocumentID:      article.DocumentID,
		PublishedAt:     article.PublishedAt,
		PublicationDate: article.PublicationDate,
		CreatedAt:       article.CreatedAt,
		UpdatedAt:       article.UpdatedAt,
		Article:         &article,
	}
}

// VideoEntry wraps a video snapshot into a neutral entry.
func VideoEntry(video Video) Entry {
	return Entry{
		ContentType:     ContentTypeVideo,
		ID:              video.ID,
		DocumentID:      video.DocumentID,
		PublishedAt:     video.PublishedAt,
		PublicationDate: video.PublicationDate,
		CreatedAt:       video.CreatedAt,
		UpdatedAt:       video.UpdatedAt,
		Video:           &video,
	}
}

// TagEntry wraps a tag snapshot into a neutral entry.
func TagEntry(tag Tag) Entry {
	return Entry{
		ContentType: ContentTypeTag,
		ID:          tag.ID,
		DocumentID:  tag.DocumentID,
		PublishedAt: tag.PublishedAt,
		CreatedAt:   tag.CreatedAt,
		UpdatedAt:   tag.UpdatedAt,
		Tag:         &tag,
	}
}

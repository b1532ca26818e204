package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ex-augmenter/pkg/augmenter"
)

// CreateOptions controls one document creation.
type CreateOptions struct {
	augmenter.WriteOptions
	// Publish creates the document live.
	Publish bool
	// PublicationDate is the editorial date written with the document.
	PublicationDate *time.Time
}

// VideoInput is the payload of a created video.
type VideoInput struct {
	Title       string
	Slug        string
	Description string
	Thumbnail   *augmenter.Media
	// Tags holds tag document ids.
	Tags []string
}

// PointerInput is the payload of a created pointer.
type PointerInput struct {
	Title string
	URL   string
}

// tables maps each modeled content type to its table.
var tables = map[augmenter.ContentType]string{
	augmenter.ContentTypeArticle: "articles",
	augmenter.ContentTypeVideo:   "videos",
	augmenter.ContentTypePointer: "pointers",
	augmenter.ContentTypeTag:     "tags",
	augmenter.ContentTypeContact: "contacts",
}

const videoColumns = `v.id, v.document_id, v.title, v.slug, v.description,
	v.thumbnail_url, v.thumbnail_alt, v.thumbnail_width, v.thumbnail_height,
	v.publication_date, v.published_at, v.created_at, v.updated_at`

func scanVideo(row rowScanner) (augmenter.Video, error) {
	var (
		video           augmenter.Video
		thumbURL        sql.NullString
		thumbAlt        sql.NullString
		thumbWidth      sql.NullInt64
		thumbHeight     sql.NullInt64
		publicationDate sql.NullInt64
		publishedAt     sql.NullInt64
		createdAt       int64
		updatedAt       int64
	)
	if err := row.Scan(
		&video.ID,
		&video.DocumentID,
		&video.Title,
		&video.Slug,
		&video.Description,
		&thumbURL,
		&thumbAlt,
		&thumbWidth,
		&thumbHeight,
		&publicationDate,
		&publishedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return augmenter.Video{}, err
	}
	video.Thumbnail = mediaFromNull(thumbURL, thumbAlt, thumbWidth, thumbHeight)
	video.PublicationDate = timeFromNull(publicationDate)
	video.PublishedAt = timeFromNull(publishedAt)
	video.CreatedAt = timeFromUnix(createdAt)
	video.UpdatedAt = timeFromUnix(updatedAt)

	return video, nil
}

// FindVideo loads one video with its tags.
func (s *Store) FindVideo(ctx context.Context, documentID string) (*augmenter.Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos v WHERE v.document_id = ?`, documentID)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find video %s: %w", documentID, augmenter.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find video %s: %w", documentID, err)
	}
	tags, err := s.loadVideoTags(ctx, s.db, documentID)
	if err != nil {
		return nil, fmt.Errorf("find video %s: %w", documentID, err)
	}
	video.Tags = tags

	return &video, nil
}

// CreateVideo inserts one video after running before-create hooks.
func (s *Store) CreateVideo(ctx context.Context, input VideoInput, opts CreateOptions) (*augmenter.Video, error) {
	documentID := s.newID()
	req := &augmenter.WriteRequest{
		Operation:       augmenter.WriteOperationCreate,
		ContentType:     augmenter.ContentTypeVideo,
		DocumentID:      documentID,
		Publish:         opts.Publish,
		PublicationDate: opts.PublicationDate,
		Context:         opts.Context,
	}
	if err := s.lifecycle.BeforeWrite(ctx, req, nil); err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}

	now := s.timestamp()
	var publishedAt sql.NullInt64
	if req.Publish {
		publishedAt = sql.NullInt64{Int64: now, Valid: true}
	}
	var thumbURL, thumbAlt sql.NullString
	var thumbWidth, thumbHeight sql.NullInt64
	if input.Thumbnail != nil {
		thumbURL = sql.NullString{String: input.Thumbnail.URL, Valid: true}
		thumbAlt = sql.NullString{String: input.Thumbnail.AlternativeText, Valid: true}
		thumbWidth = sql.NullInt64{Int64: int64(input.Thumbnail.Width), Valid: true}
		thumbHeight = sql.NullInt64{Int64: int64(input.Thumbnail.Height), Valid: true}
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO videos (document_id, title, slug, description, thumbnail_url, thumbnail_alt,
				thumbnail_width, thumbnail_height, publication_date, published_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			documentID, input.Title, input.Slug, input.Description, thumbURL, thumbAlt,
			thumbWidth, thumbHeight, nullTime(req.PublicationDate), publishedAt, now, now,
		); err != nil {
			return fmt.Errorf("insert: %w", err)
		}

		return replaceRelation(ctx, tx, "video_tags", "video_id", "tag_id", documentID, input.Tags)
	})
	if err != nil {
		return nil, fmt.Errorf("create video %s: %w", documentID, err)
	}

	created, err := s.FindVideo(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("create video %s: %w", documentID, err)
	}
	s.emit(ctx, augmenter.EventKindEntryCreated, augmenter.VideoEntry(*created), nil, req.Fields(), opts.WriteOptions)

	return created, nil
}

// CreatePointer inserts one pointer after running before-create hooks.
func (s *Store) CreatePointer(ctx context.Context, input PointerInput, opts CreateOptions) (*augmenter.Entry, error) {
	documentID := s.newID()
	req := &augmenter.WriteRequest{
		Operation:       augmenter.WriteOperationCreate,
		ContentType:     augmenter.ContentTypePointer,
		DocumentID:      documentID,
		Publish:         opts.Publish,
		PublicationDate: opts.PublicationDate,
		Context:         opts.Context,
	}
	if err := s.lifecycle.BeforeWrite(ctx, req, nil); err != nil {
		return nil, fmt.Errorf("create pointer: %w", err)
	}

	now := s.timestamp()
	var publishedAt sql.NullInt64
	if req.Publish {
		publishedAt = sql.NullInt64{Int64: now, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO pointers (document_id, title, url, publication_date, published_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		documentID, input.Title, input.URL, nullTime(req.PublicationDate), publishedAt, now, now,
	); err != nil {
		return nil, fmt.Errorf("create pointer %s: %w", documentID, err)
	}

	created, err := s.FindEntry(ctx, augmenter.ContentTypePointer, documentID)
	if err != nil {
		return nil, fmt.Errorf("create pointer %s: %w", documentID, err)
	}
	s.emit(ctx, augmenter.EventKindEntryCreated, *created, nil, req.Fields(), opts.WriteOptions)

	return created, nil
}

// CreateContact stores one contact submission.
//
// Contacts have no draft state and are live on creation.
func (s *Store) CreateContact(ctx context.Context, contact augmenter.Contact, opts augmenter.WriteOptions) (*augmenter.Contact, error) {
	documentID := s.newID()
	req := &augmenter.WriteRequest{
		Operation:   augmenter.WriteOperationCreate,
		ContentType: augmenter.ContentTypeContact,
		DocumentID:  documentID,
		Publish:     true,
		Context:     opts.Context,
	}
	if err := s.lifecycle.BeforeWrite(ctx, req, nil); err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}

	now := s.timestamp()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (document_id, firstname, lastname, email, source, company_name, company_website,
			sponsorship_inquiry, budget_range, additional_info, created_at, updated_at, published_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		documentID, contact.Firstname, contact.Lastname, contact.Email, contact.Source,
		contact.CompanyName, contact.CompanyWebsite, boolInt(contact.SponsorshipInquiry),
		contact.BudgetRange, contact.AdditionalInfo, now, now, now,
	); err != nil {
		return nil, fmt.Errorf("create contact %s: %w", documentID, err)
	}

	created, err := s.FindEntry(ctx, augmenter.ContentTypeContact, documentID)
	if err != nil {
		return nil, fmt.Errorf("create contact %s: %w", documentID, err)
	}
	s.emit(ctx, augmenter.EventKindEntryCreated, *created, nil, req.Fields(), opts)

	return created.Contact, nil
}

// FindEntry loads one document of any modeled content type as a neutral entry.
func (s *Store) FindEntry(ctx context.Context, contentType augmenter.ContentType, documentID string) (*augmenter.Entry, error) {
	switch contentType {
	case augmenter.ContentTypeArticle:
		article, err := s.FindArticle(ctx, documentID)
		if err != nil {
			return nil, err
		}
		entry := augmenter.ArticleEntry(*article)
		return &entry, nil
	case augmenter.ContentTypeVideo:
		video, err := s.FindVideo(ctx, documentID)
		if err != nil {
			return nil, err
		}
		entry := augmenter.VideoEntry(*video)
		return &entry, nil
	case augmenter.ContentTypeTag:
		tag, err := s.FindTag(ctx, documentID)
		if err != nil {
			return nil, err
		}
		entry := augmenter.TagEntry(*tag)
		return &entry, nil
	case augmenter.ContentTypePointer:
		return s.findPointer(ctx, documentID)
	case augmenter.ContentTypeContact:
		return s.findContact(ctx, documentID)
	default:
		return nil, fmt.Errorf("find entry %s %s: %w", contentType, documentID, augmenter.ErrUnsupportedContentType)
	}
}

func (s *Store) findPointer(ctx context.Context, documentID string) (*augmenter.Entry, error) {
	var (
		entry           augmenter.Entry
		title           string
		pointerURL      string
		publicationDate sql.NullInt64
		publishedAt     sql.NullInt64
		createdAt       int64
		updatedAt       int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, title, url, publication_date, published_at, created_at, updated_at
		 FROM pointers WHERE document_id = ?`, documentID,
	).Scan(&entry.ID, &entry.DocumentID, &title, &pointerURL, &publicationDate, &publishedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find pointer %s: %w", documentID, augmenter.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find pointer %s: %w", documentID, err)
	}
	entry.ContentType = augmenter.ContentTypePointer
	entry.PublicationDate = timeFromNull(publicationDate)
	entry.PublishedAt = timeFromNull(publishedAt)
	entry.CreatedAt = timeFromUnix(createdAt)
	entry.UpdatedAt = timeFromUnix(updatedAt)

	return &entry, nil
}

func (s *Store) findContact(ctx context.Context, documentID string) (*augmenter.Entry, error) {
	var (
		contact     augmenter.Contact
		sponsorship int
		createdAt   int64
		updatedAt   int64
		publishedAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, firstname, lastname, email, source, company_name, company_website,
			sponsorship_inquiry, budget_range, additional_info, created_at, updated_at, published_at
		 FROM contacts WHERE document_id = ?`, documentID,
	).Scan(
		&contact.ID, &contact.DocumentID, &contact.Firstname, &contact.Lastname, &contact.Email,
		&contact.Source, &contact.CompanyName, &contact.CompanyWebsite, &sponsorship,
		&contact.BudgetRange, &contact.AdditionalInfo, &createdAt, &updatedAt, &publishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find contact %s: %w", documentID, augmenter.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find contact %s: %w", documentID, err)
	}
	contact.SponsorshipInquiry = sponsorship != 0

	return &augmenter.Entry{
		ContentType: augmenter.ContentTypeContact,
		ID:          contact.ID,
		DocumentID:  contact.DocumentID,
		PublishedAt: timeFromNull(publishedAt),
		CreatedAt:   timeFromUnix(createdAt),
		UpdatedAt:   timeFromUnix(updatedAt),
		Contact:     &contact,
	}, nil
}

// SetPublicationDate stamps the editorial date on a live publication-dated entry.
func (s *Store) SetPublicationDate(
	ctx context.Context,
	contentType augmenter.ContentType,
	documentID string,
	at time.Time,
	opts augmenter.WriteOptions,
) error {
	if !contentType.IsPublicationDated() {
		return fmt.Errorf("set publication date %s %s: %w", contentType, documentID, augmenter.ErrUnsupportedContentType)
	}

	current, err := s.FindEntry(ctx, contentType, documentID)
	if err != nil {
		return fmt.Errorf("set publication date: %w", err)
	}
	req := &augmenter.WriteRequest{
		Operation:       augmenter.WriteOperationUpdate,
		ContentType:     contentType,
		DocumentID:      documentID,
		PublicationDate: &at,
		Context:         opts.Context,
	}
	if err := s.lifecycle.BeforeWrite(ctx, req, current); err != nil {
		return fmt.Errorf("set publication date %s %s: %w", contentType, documentID, err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE `+tables[contentType]+` SET publication_date = ?, updated_at = ? WHERE document_id = ?`,
		nullTime(req.PublicationDate), s.timestamp(), documentID,
	); err != nil {
		return fmt.Errorf("set publication date %s %s: %w", contentType, documentID, err)
	}

	written, err := s.FindEntry(ctx, contentType, documentID)
	if err != nil {
		return fmt.Errorf("set publication date %s %s: %w", contentType, documentID, err)
	}
	s.emit(ctx, augmenter.EventKindEntryUpdated, *written, stateOf(*current), req.Fields(), opts)

	return nil
}

// Unpublish withdraws the live version of one document.
func (s *Store) Unpublish(
	ctx context.Context,
	contentType augmenter.ContentType,
	documentID string,
	opts augmenter.WriteOptions,
) error {
	table, ok := tables[contentType]
	if !ok {
		return fmt.Errorf("unpublish %s %s: %w", contentType, documentID, augmenter.ErrUnsupportedContentType)
	}

	current, err := s.FindEntry(ctx, contentType, documentID)
	if err != nil {
		return fmt.Errorf("unpublish: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET published_at = NULL, updated_at = ? WHERE document_id = ?`,
		s.timestamp(), documentID,
	); err != nil {
		return fmt.Errorf("unpublish %s %s: %w", contentType, documentID, err)
	}

	written, err := s.FindEntry(ctx, contentType, documentID)
	if err != nil {
		return fmt.Errorf("unpublish %s %s: %w", contentType, documentID, err)
	}
	s.emit(ctx, augmenter.EventKindEntryUnpublished, *written, stateOf(*current), []string{augmenter.FieldPublishedAt}, opts)

	return nil
}

// Delete removes one document and its relations.
//
// The deleted event carries the last stored snapshot.
func (s *Store) Delete(
	ctx context.Context,
	contentType augmenter.ContentType,
	documentID string,
	opts augmenter.WriteOptions,
) error {
	table, ok := tables[contentType]
	if !ok {
		return fmt.Errorf("delete %s %s: %w", contentType, documentID, augmenter.ErrUnsupportedContentType)
	}

	current, err := s.FindEntry(ctx, contentType, documentID)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete %s %s: %w", contentType, documentID, err)
	}

	s.emit(ctx, augmenter.EventKindEntryDeleted, *current, stateOf(*current), nil, opts)

	return nil
}

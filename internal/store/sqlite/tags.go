package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ex-augmenter/pkg/augmenter"
)

const tagColumns = `t.id, t.document_id, t.name, t.slug, t.summary, t.summary_cache_key,
	t.created_at, t.updated_at, t.published_at`

func scanTag(row rowScanner) (augmenter.Tag, error) {
	var (
		tag         augmenter.Tag
		createdAt   int64
		updatedAt   int64
		publishedAt sql.NullInt64
	)
	if err := row.Scan(
		&tag.ID,
		&tag.DocumentID,
		&tag.Name,
		&tag.Slug,
		&tag.Summary,
		&tag.SummaryCacheKey,
		&createdAt,
		&updatedAt,
		&publishedAt,
	); err != nil {
		return augmenter.Tag{}, err
	}
	tag.CreatedAt = timeFromUnix(createdAt)
	tag.UpdatedAt = timeFromUnix(updatedAt)
	tag.PublishedAt = timeFromNull(publishedAt)

	return tag, nil
}

// FindTag loads one tag by document id.
func (s *Store) FindTag(ctx context.Context, documentID string) (*augmenter.Tag, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tagColumns+` FROM tags t WHERE t.document_id = ?`, documentID)
	tag, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find tag %s: %w", documentID, augmenter.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find tag %s: %w", documentID, err)
	}

	return &tag, nil
}

// FindTags lists tags, most recently updated first.
func (s *Store) FindTags(ctx context.Context, query augmenter.TagQuery) ([]augmenter.Tag, error) {
	clauses := make([]string, 0, 1)
	args := make([]any, 0, 2)
	if query.UpdatedAfter != nil {
		clauses = append(clauses, "t.updated_at > ?")
		args = append(args, query.UpdatedAfter.UTC().UnixNano())
	}

	statement := `SELECT ` + tagColumns + ` FROM tags t`
	if len(clauses) > 0 {
		statement += " WHERE " + strings.Join(clauses, " AND ")
	}
	statement += " ORDER BY t.updated_at DESC, t.id ASC"
	if query.Limit > 0 {
		statement += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := s.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("find tags: %w", err)
	}
	defer rows.Close()

	tags := make([]augmenter.Tag, 0)
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("find tags: scan: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find tags: %w", err)
	}

	return tags, nil
}

// CreateTag inserts one tag.
func (s *Store) CreateTag(ctx context.Context, input augmenter.TagInput, opts CreateOptions) (*augmenter.Tag, error) {
	name := strings.TrimSpace(augmenter.Deref(input.Name))
	slug := strings.TrimSpace(augmenter.Deref(input.Slug))
	if name == "" || slug == "" {
		return nil, fmt.Errorf("create tag: %w: name and slug are required", augmenter.ErrInvalidWrite)
	}

	documentID := s.newID()
	req := &augmenter.WriteRequest{
		Operation:   augmenter.WriteOperationCreate,
		ContentType: augmenter.ContentTypeTag,
		DocumentID:  documentID,
		Publish:     opts.Publish,
		Context:     opts.Context,
	}
	if err := s.lifecycle.BeforeWrite(ctx, req, nil); err != nil {
		return nil, fmt.Errorf("create tag %s: %w", slug, err)
	}

	now := s.timestamp()
	var publishedAt sql.NullInt64
	if req.Publish {
		publishedAt = sql.NullInt64{Int64: now, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (document_id, name, slug, summary, summary_cache_key, created_at, updated_at, published_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		documentID, name, slug,
		augmenter.Deref(input.Summary), augmenter.Deref(input.SummaryCacheKey),
		now, now, publishedAt,
	); err != nil {
		return nil, fmt.Errorf("create tag %s: %w", slug, err)
	}

	created, err := s.FindTag(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("create tag %s: %w", slug, err)
	}
	s.emit(ctx, augmenter.EventKindEntryCreated, augmenter.TagEntry(*created), nil, input.Fields(), opts.WriteOptions)

	return created, nil
}

// UpdateTag applies a partial tag write.
func (s *Store) UpdateTag(
	ctx context.Context,
	documentID string,
	input augmenter.TagInput,
	opts augmenter.WriteOptions,
) (*augmenter.Tag, error) {
	current, err := s.FindTag(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("update tag: %w", err)
	}
	currentEntry := augmenter.TagEntry(*current)

	req := &augmenter.WriteRequest{
		Operation:   augmenter.WriteOperationUpdate,
		ContentType: augmenter.ContentTypeTag,
		DocumentID:  documentID,
		Context:     opts.Context,
	}
	if err := s.lifecycle.BeforeWrite(ctx, req, &currentEntry); err != nil {
		return nil, fmt.Errorf("update tag %s: %w", documentID, err)
	}

	sets := []string{"updated_at = ?"}
	args := []any{s.timestamp()}
	if input.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *input.Name)
	}
	if input.Slug != nil {
		sets = append(sets, "slug = ?")
		args = append(args, *input.Slug)
	}
	if input.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *input.Summary)
	}
	if input.SummaryCacheKey != nil {
		sets = append(sets, "summary_cache_key = ?")
		args = append(args, *input.SummaryCacheKey)
	}
	args = append(args, documentID)

	if _, err := s.db.ExecContext(ctx,
		`UPDATE tags SET `+strings.Join(sets, ", ")+` WHERE document_id = ?`, args...,
	); err != nil {
		return nil, fmt.Errorf("update tag %s: %w", documentID, err)
	}

	updated, err := s.FindTag(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("update tag %s: %w", documentID, err)
	}
	s.emit(ctx, augmenter.EventKindEntryUpdated, augmenter.TagEntry(*updated), stateOf(currentEntry), input.Fields(), opts)

	return updated, nil
}

// PublishTag makes the current tag version live.
func (s *Store) PublishTag(ctx context.Context, documentID string, opts augmenter.WriteOptions) (*augmenter.Tag, error) {
	current, err := s.FindTag(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("publish tag: %w", err)
	}
	currentEntry := augmenter.TagEntry(*current)

	req := &augmenter.WriteRequest{
		Operation:   augmenter.WriteOperationUpdate,
		ContentType: augmenter.ContentTypeTag,
		DocumentID:  documentID,
		Publish:     true,
		Context:     opts.Context,
	}
	if err := s.lifecycle.BeforeWrite(ctx, req, &currentEntry); err != nil {
		return nil, fmt.Errorf("publish tag %s: %w", documentID, err)
	}

	now := s.timestamp()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE tags SET published_at = ?, updated_at = ? WHERE document_id = ?`, now, now, documentID,
	); err != nil {
		return nil, fmt.Errorf("publish tag %s: %w", documentID, err)
	}

	published, err := s.FindTag(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("publish tag %s: %w", documentID, err)
	}
	s.emit(ctx, augmenter.EventKindEntryPublished, augmenter.TagEntry(*published), stateOf(currentEntry), req.Fields(), opts)

	return published, nil
}

func (s *Store) loadArticleTags(ctx context.Context, q queryer, articleID string) ([]augmenter.Tag, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM article_tags at JOIN tags t ON t.document_id = at.tag_id
		 WHERE at.article_id = ? ORDER BY at.position`, articleID)
	if err != nil {
		return nil, fmt.Errorf("load tags for article %s: %w", articleID, err)
	}
	defer rows.Close()

	return collectTags(rows)
}

func (s *Store) loadVideoTags(ctx context.Context, q queryer, videoID string) ([]augmenter.Tag, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM video_tags vt JOIN tags t ON t.document_id = vt.tag_id
		 WHERE vt.video_id = ? ORDER BY vt.position`, videoID)
	if err != nil {
		return nil, fmt.Errorf("load tags for video %s: %w", videoID, err)
	}
	defer rows.Close()

	return collectTags(rows)
}

func collectTags(rows *sql.Rows) ([]augmenter.Tag, error) {
	tags := make([]augmenter.Tag, 0)
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}

	return tags, nil
}

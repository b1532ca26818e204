package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ex-augmenter/pkg/augmenter"
)

const articleColumns = `a.id, a.document_id, a.title, a.slug, a.content, a.excerpt, a.regenerate_excerpt,
	a.article_type, a.highlight, a.cover_url, a.cover_alt, a.cover_width, a.cover_height,
	a.publication_date, a.published_at, a.created_at, a.updated_at`

var articleSortColumns = map[string]string{
	augmenter.SortFieldPublishedAt:     "a.published_at",
	augmenter.SortFieldPublicationDate: "a.publication_date",
	augmenter.SortFieldUpdatedAt:       "a.updated_at",
	augmenter.SortFieldCreatedAt:       "a.created_at",
}

func scanArticle(row rowScanner) (augmenter.Article, error) {
	var (
		article         augmenter.Article
		regenerate      int
		highlight       int
		coverURL        sql.NullString
		coverAlt        sql.NullString
		coverWidth      sql.NullInt64
		coverHeight     sql.NullInt64
		publicationDate sql.NullInt64
		publishedAt     sql.NullInt64
		createdAt       int64
		updatedAt       int64
	)
	if err := row.Scan(
		&article.ID,
		&article.DocumentID,
		&article.Title,
		&article.Slug,
		&article.Content,
		&article.Excerpt,
		&regenerate,
		&article.ArticleType,
		&highlight,
		&coverURL,
		&coverAlt,
		&coverWidth,
		&coverHeight,
		&publicationDate,
		&publishedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return augmenter.Article{}, err
	}
	article.RegenerateExcerpt = regenerate != 0
	article.Highlight = highlight != 0
	article.Cover = mediaFromNull(coverURL, coverAlt, coverWidth, coverHeight)
	article.PublicationDate = timeFromNull(publicationDate)
	article.PublishedAt = timeFromNull(publishedAt)
	article.CreatedAt = timeFromUnix(createdAt)
	article.UpdatedAt = timeFromUnix(updatedAt)

	return article, nil
}

// FindArticle loads one article with its tags and related references.
func (s *Store) FindArticle(ctx context.Context, documentID string) (*augmenter.Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles a WHERE a.document_id = ?`, documentID)
	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find article %s: %w", documentID, augmenter.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find article %s: %w", documentID, err)
	}
	if err := s.populateArticle(ctx, &article); err != nil {
		return nil, fmt.Errorf("find article %s: %w", documentID, err)
	}

	return &article, nil
}

// FindArticles lists articles matching query with tags and related references populated.
func (s *Store) FindArticles(ctx context.Context, query augmenter.ArticleQuery) ([]augmenter.Article, error) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, len(query.TagSlugs)+len(query.TagDocumentIDs)+2)

	if len(query.TagSlugs) > 0 {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM article_tags at JOIN tags t ON t.document_id = at.tag_id
			WHERE at.article_id = a.document_id AND t.slug IN (`+placeholders(len(query.TagSlugs))+`))`)
		for _, slug := range query.TagSlugs {
			args = append(args, slug)
		}
	}
	if len(query.TagDocumentIDs) > 0 {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM article_tags at
			WHERE at.article_id = a.document_id AND at.tag_id IN (`+placeholders(len(query.TagDocumentIDs))+`))`)
		for _, id := range query.TagDocumentIDs {
			args = append(args, id)
		}
	}
	if query.ExcludeDocumentID != "" {
		clauses = append(clauses, "a.document_id <> ?")
		args = append(args, query.ExcludeDocumentID)
	}
	if query.PublishedOnly {
		clauses = append(clauses, "a.published_at IS NOT NULL")
	}

	statement := `SELECT ` + articleColumns + ` FROM articles a`
	if len(clauses) > 0 {
		statement += " WHERE " + strings.Join(clauses, " AND ")
	}

	orderBy := make([]string, 0, len(query.Sort)+1)
	for _, sort := range query.Sort {
		column, ok := articleSortColumns[sort.Field]
		if !ok {
			return nil, fmt.Errorf("find articles: unsupported sort field %q", sort.Field)
		}
		if sort.Desc {
			orderBy = append(orderBy, column+" DESC NULLS LAST")
		} else {
			orderBy = append(orderBy, column+" ASC NULLS LAST")
		}
	}
	orderBy = append(orderBy, "a.id ASC")
	statement += " ORDER BY " + strings.Join(orderBy, ", ")

	if query.Limit > 0 {
		statement += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := s.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("find articles: %w", err)
	}
	articles := make([]augmenter.Article, 0)
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("find articles: scan: %w", err)
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("find articles: %w", err)
	}
	// The single pooled connection must be released before relations load.
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("find articles: close rows: %w", err)
	}

	for idx := range articles {
		if err := s.populateArticle(ctx, &articles[idx]); err != nil {
			return nil, fmt.Errorf("find articles: %w", err)
		}
	}

	return articles, nil
}

func (s *Store) populateArticle(ctx context.Context, article *augmenter.Article) error {
	tags, err := s.loadArticleTags(ctx, s.db, article.DocumentID)
	if err != nil {
		return err
	}
	article.Tags = tags

	rows, err := s.db.QueryContext(ctx,
		`SELECT r.related_id, a2.id FROM article_related r LEFT JOIN articles a2 ON a2.document_id = r.related_id
		 WHERE r.article_id = ? ORDER BY r.position`, article.DocumentID)
	if err != nil {
		return fmt.Errorf("load related articles for %s: %w", article.DocumentID, err)
	}
	defer rows.Close()

	related := make([]augmenter.ArticleRef, 0)
	for rows.Next() {
		var (
			ref augmenter.ArticleRef
			id  sql.NullInt64
		)
		if err := rows.Scan(&ref.DocumentID, &id); err != nil {
			return fmt.Errorf("scan related article for %s: %w", article.DocumentID, err)
		}
		ref.ID = id.Int64
		related = append(related, ref)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate related articles for %s: %w", article.DocumentID, err)
	}
	article.RelatedArticles = related

	return nil
}

// CreateArticle inserts one article after running before-create hooks.
func (s *Store) CreateArticle(
	ctx context.Context,
	input augmenter.ArticleInput,
	opts CreateOptions,
) (*augmenter.Article, error) {
	documentID := s.newID()
	req := &augmenter.WriteRequest{
		Operation:       augmenter.WriteOperationCreate,
		ContentType:     augmenter.ContentTypeArticle,
		DocumentID:      documentID,
		Publish:         opts.Publish,
		PublicationDate: opts.PublicationDate,
		Article:         &input,
		Context:         opts.Context,
	}
	if err := s.lifecycle.BeforeWrite(ctx, req, nil); err != nil {
		return nil, fmt.Errorf("create article: %w", err)
	}

	now := s.timestamp()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO articles (document_id, created_at, updated_at) VALUES (?, ?, ?)`,
			documentID, now, now,
		); err != nil {
			return fmt.Errorf("insert: %w", err)
		}

		return applyArticleWrite(ctx, tx, documentID, req, now)
	})
	if err != nil {
		return nil, fmt.Errorf("create article %s: %w", documentID, err)
	}

	created, err := s.FindArticle(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("create article %s: %w", documentID, err)
	}
	s.emit(ctx, augmenter.EventKindEntryCreated, augmenter.ArticleEntry(*created), nil, req.Fields(), opts.WriteOptions)

	return created, nil
}

// UpdateArticle applies a partial article write after running before-update hooks.
func (s *Store) UpdateArticle(
	ctx context.Context,
	documentID string,
	input augmenter.ArticleInput,
	opts augmenter.WriteOptions,
) (*augmenter.Article, error) {
	return s.writeArticle(ctx, documentID, &input, false, opts)
}

// PublishArticle makes the current article version live.
//
// Like the content platform, publishing stamps a fresh publishedAt.
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
	kind := augmenter.EventKindEntryUpdated
	if publish {
		operation = "publish"
		kind = augmenter.EventKindEntryPublished
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
	if err := s.lifecycle.BeforeWrite(ctx, req, &currentEntry); err != nil {
		return nil, fmt.Errorf("%s article %s: %w", operation, documentID, err)
	}

	now := s.timestamp()
	if err := s.inTx(ctx, func(tx *sql.Tx) error {
		return applyArticleWrite(ctx, tx, documentID, req, now)
	}); err != nil {
		return nil, fmt.Errorf("%s article %s: %w", operation, documentID, err)
	}

	written, err := s.FindArticle(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("%s article %s: %w", operation, documentID, err)
	}
	s.emit(ctx, kind, augmenter.ArticleEntry(*written), stateOf(currentEntry), req.Fields(), opts)

	return written, nil
}

// applyArticleWrite persists the (possibly hook-mutated) request inside tx.
func applyArticleWrite(ctx context.Context, tx *sql.Tx, documentID string, req *augmenter.WriteRequest, now int64) error {
	sets := []string{"updated_at = ?"}
	args := []any{now}

	input := req.Article
	if input != nil {
		if input.Title != nil {
			sets = append(sets, "title = ?")
			args = append(args, *input.Title)
		}
		if input.Slug != nil {
			sets = append(sets, "slug = ?")
			args = append(args, *input.Slug)
		}
		if input.Content != nil {
			sets = append(sets, "content = ?")
			args = append(args, *input.Content)
		}
		if input.Excerpt != nil {
			sets = append(sets, "excerpt = ?")
			args = append(args, *input.Excerpt)
		}
		if input.RegenerateExcerpt != nil {
			sets = append(sets, "regenerate_excerpt = ?")
			args = append(args, boolInt(*input.RegenerateExcerpt))
		}
		if input.ArticleType != nil {
			sets = append(sets, "article_type = ?")
			args = append(args, *input.ArticleType)
		}
		if input.Highlight != nil {
			sets = append(sets, "highlight = ?")
			args = append(args, boolInt(*input.Highlight))
		}
		if input.Cover != nil {
			sets = append(sets, "cover_url = ?", "cover_alt = ?", "cover_width = ?", "cover_height = ?")
			args = append(args, input.Cover.URL, input.Cover.AlternativeText, input.Cover.Width, input.Cover.Height)
		}
	}
	if req.PublicationDate != nil {
		sets = append(sets, "publication_date = ?")
		args = append(args, nullTime(req.PublicationDate))
	}
	if req.Publish {
		sets = append(sets, "published_at = ?")
		args = append(args, now)
	}
	args = append(args, documentID)

	if _, err := tx.ExecContext(ctx, `UPDATE articles SET `+strings.Join(sets, ", ")+` WHERE document_id = ?`, args...); err != nil {
		return fmt.Errorf("update columns: %w", err)
	}

	if input == nil {
		return nil
	}
	if input.Tags != nil {
		if err := replaceRelation(ctx, tx, "article_tags", "article_id", "tag_id", documentID, *input.Tags); err != nil {
			return fmt.Errorf("replace tags: %w", err)
		}
	}
	if input.RelatedArticles != nil {
		if err := replaceRelation(ctx, tx, "article_related", "article_id", "related_id", documentID, *input.RelatedArticles); err != nil {
			return fmt.Errorf("replace related articles: %w", err)
		}
	}

	return nil
}

// replaceRelation rewrites one ordered relation. Table and column names are
// package constants, never caller input.
func replaceRelation(
	ctx context.Context,
	tx *sql.Tx,
	table string,
	ownerColumn string,
	targetColumn string,
	ownerID string,
	targetIDs []string,
) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+ownerColumn+` = ?`, ownerID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}

	seen := make(map[string]struct{}, len(targetIDs))
	position := 0
	for _, targetID := range targetIDs {
		if _, duplicate := seen[targetID]; duplicate {
			continue
		}
		seen[targetID] = struct{}{}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+table+` (`+ownerColumn+`, `+targetColumn+`, position) VALUES (?, ?, ?)`,
			ownerID, targetID, position,
		); err != nil {
			return fmt.Errorf("insert %s %s: %w", table, targetID, err)
		}
		position++
	}

	return nil
}

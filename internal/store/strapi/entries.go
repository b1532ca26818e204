package strapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"ex-augmenter/pkg/augmenter"
)

// FindEntry loads any supported document as a neutral entry.
func (s *Store) FindEntry(ctx context.Context, contentType augmenter.ContentType, documentID string) (*augmenter.Entry, error) {
	path, err := collectionPath(contentType)
	if err != nil {
		return nil, fmt.Errorf("find entry: %w", err)
	}
	query := url.Values{}
	if contentType == augmenter.ContentTypeArticle {
		query = articlePopulate()
	}

	var response singleResponse[json.RawMessage]
	if err := s.findDocument(ctx, path+"/"+url.PathEscape(documentID), query, &response); err != nil {
		return nil, fmt.Errorf("find entry %s %s: %w", contentType, documentID, err)
	}
	entry, err := DecodeEntry(contentType, response.Data)
	if err != nil {
		return nil, fmt.Errorf("find entry %s %s: %w", contentType, documentID, err)
	}

	return &entry, nil
}

// SetPublicationDate stamps publicationDate and republishes the entry so the
// live version carries it.
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
	if err := s.interceptor.BeforeWrite(ctx, req, current); err != nil {
		return fmt.Errorf("set publication date %s %s: %w", contentType, documentID, err)
	}

	data := map[string]any{}
	if req.PublicationDate != nil {
		data[augmenter.FieldPublicationDate] = formatTime(*req.PublicationDate)
	}
	if err := s.write(ctx, contentType, documentID, data, current.IsPublished(), opts, nil, nil); err != nil {
		return fmt.Errorf("set publication date %s %s: %w", contentType, documentID, err)
	}

	return nil
}

package strapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ex-augmenter/pkg/augmenter"
)

const maxErrorBody = 4 << 10

// Store reads and writes documents through the Strapi v5 REST API.
//
// Before-write hooks run locally before each request. After-write events are
// not produced here: the platform reports every write through webhooks, and
// ConsumeEcho lets webhook ingress recognize the writes this store issued.
type Store struct {
	baseURL     string
	apiToken    string
	client      *http.Client
	interceptor augmenter.WriteInterceptor
	logger      *slog.Logger
	echoes      *echoTracker
	pageSize    int
}

type options struct {
	logger         *slog.Logger
	client         *http.Client
	requestTimeout time.Duration
	echoTTL        time.Duration
	pageSize       int
	now            func() time.Time
}

// Option configures New.
type Option func(*options)

// WithLogger configures the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.client = client
		}
	}
}

// WithRequestTimeout bounds every REST call.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.requestTimeout = timeout
		}
	}
}

// WithEchoTTL configures how long own writes wait for their webhooks.
func WithEchoTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.echoTTL = ttl
		}
	}
}

// WithPageSize configures the page size of unbounded listings.
func WithPageSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.pageSize = size
		}
	}
}

// WithClock replaces the clock used for echo expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates a REST store for baseURL authenticated with apiToken.
func New(baseURL string, apiToken string, interceptor augmenter.WriteInterceptor, opts ...Option) (*Store, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("new strapi store: empty base url")
	}
	if interceptor == nil {
		return nil, fmt.Errorf("new strapi store: nil interceptor")
	}

	cfg := options{
		logger:         slog.Default(),
		requestTimeout: defaultRequestTimeout,
		echoTTL:        defaultEchoTTL,
		pageSize:       defaultPageSize,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.client == nil {
		cfg.client = &http.Client{Timeout: cfg.requestTimeout}
	}

	return &Store{
		baseURL:     baseURL,
		apiToken:    apiToken,
		client:      cfg.client,
		interceptor: interceptor,
		logger:      cfg.logger,
		echoes:      newEchoTracker(cfg.echoTTL, cfg.now),
		pageSize:    cfg.pageSize,
	}, nil
}

// Close releases idle connections.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// ConsumeEcho reports the write options of the oldest own write still
// awaiting a webhook for the document.
func (s *Store) ConsumeEcho(contentType augmenter.ContentType, documentID string) (augmenter.WriteOptions, bool) {
	return s.echoes.consume(contentType, documentID)
}

// collectionPath returns the REST collection path for a content type.
func collectionPath(contentType augmenter.ContentType) (string, error) {
	switch contentType {
	case augmenter.ContentTypeArticle:
		return "/api/articles", nil
	case augmenter.ContentTypeVideo:
		return "/api/videos", nil
	case augmenter.ContentTypePointer:
		return "/api/pointers", nil
	case augmenter.ContentTypeTag:
		return "/api/tags", nil
	case augmenter.ContentTypeContact:
		return "/api/contacts", nil
	default:
		return "", fmt.Errorf("%w: %s", augmenter.ErrUnsupportedContentType, contentType)
	}
}

// do performs one REST call and decodes a JSON response into out.
//
// 404 responses map to augmenter.ErrNotFound.
func (s *Store) do(ctx context.Context, method string, path string, query url.Values, body any, out any) error {
	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: marshal body: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s %s: new request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s %s: %w", method, path, augmenter.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: %w", method, path, decodeAPIError(resp))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}

	return nil
}

// APIError is a non-2xx platform response.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("strapi status %d", e.StatusCode)
	}

	return fmt.Sprintf("strapi status %d: %s: %s", e.StatusCode, e.Name, e.Message)
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apiErr
	}
	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		apiErr.Name = parsed.Error.Name
		apiErr.Message = parsed.Error.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))

	return apiErr
}

// findDocument loads the live version of a document, falling back to its draft.
func (s *Store) findDocument(ctx context.Context, path string, query url.Values, out any) error {
	published := cloneValues(query)
	published.Set("status", "published")
	err := s.do(ctx, http.MethodGet, path, published, nil, out)
	if err == nil || !errors.Is(err, augmenter.ErrNotFound) {
		return err
	}

	draft := cloneValues(query)
	draft.Set("status", "draft")

	return s.do(ctx, http.MethodGet, path, draft, nil, out)
}

// listAll pages through a collection. limit > 0 issues one bounded request.
func listAll[T any](ctx context.Context, s *Store, path string, query url.Values, limit int) ([]T, error) {
	if limit > 0 {
		bounded := cloneValues(query)
		bounded.Set("pagination[start]", "0")
		bounded.Set("pagination[limit]", fmt.Sprint(limit))

		var response listResponse[T]
		if err := s.do(ctx, http.MethodGet, path, bounded, nil, &response); err != nil {
			return nil, err
		}
		return response.Data, nil
	}

	items := make([]T, 0)
	for page := 1; ; page++ {
		paged := cloneValues(query)
		paged.Set("pagination[page]", fmt.Sprint(page))
		paged.Set("pagination[pageSize]", fmt.Sprint(s.pageSize))

		var response listResponse[T]
		if err := s.do(ctx, http.MethodGet, path, paged, nil, &response); err != nil {
			return nil, err
		}
		items = append(items, response.Data...)
		if page >= response.Meta.Pagination.PageCount || len(response.Data) == 0 {
			return items, nil
		}
	}
}

// write issues one PUT and remembers it for echo matching.
func (s *Store) write(
	ctx context.Context,
	contentType augmenter.ContentType,
	documentID string,
	data map[string]any,
	publish bool,
	opts augmenter.WriteOptions,
	query url.Values,
	out any,
) error {
	path, err := collectionPath(contentType)
	if err != nil {
		return err
	}
	if query == nil {
		query = url.Values{}
	}
	notifications := 1
	if publish {
		query.Set("status", "published")
		// Publishing through an update reports both entry.update and entry.publish.
		notifications = 2
	}

	// Remember first: the webhook can arrive before the response.
	seq := s.echoes.remember(contentType, documentID, opts, notifications)

	if err := s.do(ctx, http.MethodPut, path+"/"+url.PathEscape(documentID), query, map[string]any{"data": data}, out); err != nil {
		s.echoes.retract(contentType, documentID, seq)
		return err
	}

	return nil
}

func cloneValues(values url.Values) url.Values {
	cloned := make(url.Values, len(values))
	for key, items := range values {
		cloned[key] = append([]string(nil), items...)
	}

	return cloned
}

var (
	_ augmenter.DocumentStore = (*Store)(nil)
	_ augmenter.EchoFilter    = (*Store)(nil)
)

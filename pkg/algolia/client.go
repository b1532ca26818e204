package algolia

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ex-augmenter/pkg/augmenter"

	"github.com/algolia/algoliasearch-client-go/v4/algolia/call"
	"github.com/algolia/algoliasearch-client-go/v4/algolia/search"
	"github.com/algolia/algoliasearch-client-go/v4/algolia/transport"
)

const defaultRequestTimeout = 10 * time.Second

// Client writes records through the official Algolia search client.
type Client struct {
	api *search.APIClient
}

type clientOptions struct {
	host       *transport.StatefulHost
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures NewClient.
type Option func(*clientOptions) error

// WithBaseURL sends every call to one host instead of the application's
// Algolia cluster.
func WithBaseURL(baseURL string) Option {
	return func(o *clientOptions) error {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed == "" {
			return nil
		}
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return fmt.Errorf("parse base url: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("parse base url %q: must include scheme and host", trimmed)
		}
		host := transport.NewStatefulHost(parsed.Scheme, parsed.Host, call.IsReadWrite)
		o.host = &host
		return nil
	}
}

// WithHTTPClient sends requests through client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) error {
		o.httpClient = client
		return nil
	}
}

// WithTimeout bounds each read and write call.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) error {
		if timeout > 0 {
			o.timeout = timeout
		}
		return nil
	}
}

// NewClient creates an admin client for one application.
//
// A missing application id or key yields augmenter.ErrNotConfigured.
func NewClient(appID string, apiKey string, opts ...Option) (*Client, error) {
	appID = strings.TrimSpace(appID)
	apiKey = strings.TrimSpace(apiKey)
	if appID == "" || apiKey == "" {
		return nil, fmt.Errorf("new algolia client: %w", augmenter.ErrNotConfigured)
	}

	options := clientOptions{timeout: defaultRequestTimeout}
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, fmt.Errorf("new algolia client: %w", err)
		}
	}

	cfg := search.SearchConfiguration{
		Configuration: transport.Configuration{
			AppID:        appID,
			ApiKey:       apiKey,
			ReadTimeout:  options.timeout,
			WriteTimeout: options.timeout,
		},
	}
	if options.host != nil {
		cfg.Hosts = []transport.StatefulHost{*options.host}
	}
	if options.httpClient != nil {
		cfg.Requester = clientRequester{client: options.httpClient}
	}

	api, err := search.NewClientWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("new algolia client: %w", err)
	}

	return &Client{api: api}, nil
}

// SaveObject adds or replaces the record with its objectID.
func (c *Client) SaveObject(ctx context.Context, index string, record map[string]any) error {
	objectID, _ := record["objectID"].(string)
	if objectID == "" {
		return fmt.Errorf("save object in %s: missing objectID", index)
	}

	request := c.api.NewApiAddOrUpdateObjectRequest(index, objectID, record)
	if _, err := c.api.AddOrUpdateObject(request, search.WithContext(ctx)); err != nil {
		return fmt.Errorf("save object %s in %s: %w", objectID, index, err)
	}

	return nil
}

// DeleteObject removes one record. Deleting a missing record succeeds.
func (c *Client) DeleteObject(ctx context.Context, index string, objectID string) error {
	if objectID == "" {
		return fmt.Errorf("delete object in %s: missing objectID", index)
	}

	request := c.api.NewApiDeleteObjectRequest(index, objectID)
	if _, err := c.api.DeleteObject(request, search.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete object %s in %s: %w", objectID, index, err)
	}

	return nil
}

// clientRequester adapts an *http.Client to the transport requester. The
// client's own timeout applies; per-call timeouts come from the request
// context.
type clientRequester struct {
	client *http.Client
}

func (r clientRequester) Request(req *http.Request, _ time.Duration, _ time.Duration) (*http.Response, error) {
	return r.client.Do(req)
}

var _ augmenter.SearchIndex = (*Client)(nil)

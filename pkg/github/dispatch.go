// Package github triggers site rebuilds through GitHub repository dispatch events.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ex-augmenter/pkg/augmenter"

	"golang.org/x/oauth2"
)

const (
	defaultAPIURL         = "https://api.github.com"
	defaultEventType      = "strapi-publish"
	defaultRequestTimeout = 10 * time.Second
	maxErrorBody          = 4 << 10
)

// Config describes the dispatch target.
type Config struct {
	// Token authenticates the dispatch call.
	Token string
	// Repository is "owner/name".
	Repository string
	// EventType is sent as event_type. Empty selects "strapi-publish".
	EventType string
	// APIURL overrides https://api.github.com.
	APIURL string
	// Timeout bounds one dispatch call. Zero selects 10s.
	Timeout time.Duration
}

// Dispatcher sends repository_dispatch events.
//
// A Dispatcher without token or repository warns and skips every trigger.
type Dispatcher struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures New.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	baseClient *http.Client
}

// WithLogger configures the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBaseHTTPClient sets the transport-level client wrapped by the OAuth2 token source.
func WithBaseHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.baseClient = client
		}
	}
}

// New creates a dispatcher for cfg.
func New(cfg Config, opts ...Option) (*Dispatcher, error) {
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.Repository = strings.Trim(strings.TrimSpace(cfg.Repository), "/")
	cfg.EventType = strings.TrimSpace(cfg.EventType)
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if cfg.EventType == "" {
		cfg.EventType = defaultEventType
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("new github dispatcher: timeout must be >= 0")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	if cfg.Repository != "" {
		if owner, name, ok := strings.Cut(cfg.Repository, "/"); !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			return nil, fmt.Errorf("new github dispatcher: repository %q must be owner/name", cfg.Repository)
		}
	}

	resolved := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&resolved)
	}

	dispatcher := &Dispatcher{cfg: cfg, logger: resolved.logger}
	if cfg.Token != "" {
		ctx := context.Background()
		if resolved.baseClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, resolved.baseClient)
		}
		dispatcher.httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.Token,
			TokenType:   "Bearer",
		}))
		dispatcher.httpClient.Timeout = cfg.Timeout
	}

	return dispatcher, nil
}

// Configured reports whether triggers reach GitHub.
func (d *Dispatcher) Configured() bool {
	return d.cfg.Token != "" && d.cfg.Repository != ""
}

// TriggerPublish sends one repository_dispatch event.
func (d *Dispatcher) TriggerPublish(ctx context.Context) error {
	if !d.Configured() {
		d.logger.WarnContext(ctx, "github dispatch not configured, skipping site publish")
		return nil
	}

	payload, err := json.Marshal(map[string]string{"event_type": d.cfg.EventType})
	if err != nil {
		return fmt.Errorf("trigger publish: marshal body: %w", err)
	}
	endpoint := d.cfg.APIURL + "/repos/" + d.cfg.Repository + "/dispatches"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("trigger publish: new request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("trigger publish %s: %w", d.cfg.Repository, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("trigger publish %s: github status %d: %s", d.cfg.Repository, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	d.logger.InfoContext(ctx, "github site publish dispatched",
		"repository", d.cfg.Repository,
		"event_type", d.cfg.EventType,
	)

	return nil
}

var _ augmenter.SitePublisher = (*Dispatcher)(nil)

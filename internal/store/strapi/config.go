package strapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"ex-augmenter/pkg/augmenter"
)

// StoreType is the configuration token for the Strapi REST store.
const StoreType = "strapi"

const (
	defaultBaseURL        = "http://localhost:1337"
	defaultRequestTimeout = 30 * time.Second
	defaultEchoTTL        = 2 * time.Minute
	defaultPageSize       = 100
)

type runtimeConfig struct {
	BaseURL        string `json:"base_url"`
	APIToken       string `json:"api_token"`
	RequestTimeout string `json:"request_timeout"`
	EchoTTL        string `json:"echo_ttl"`
	PageSize       int    `json:"page_size"`
}

type parsedRuntimeConfig struct {
	baseURL        string
	apiToken       string
	requestTimeout time.Duration
	echoTTL        time.Duration
	pageSize       int
}

// BuildFromConfig builds the REST store from a JSON config payload.
func BuildFromConfig(logger *slog.Logger, lifecycle augmenter.WriteInterceptor, rawConfig []byte) (*Store, error) {
	cfg, err := parseRuntimeConfig(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("parse strapi store config: %w", err)
	}

	return New(cfg.baseURL, cfg.apiToken, lifecycle,
		WithLogger(logger),
		WithRequestTimeout(cfg.requestTimeout),
		WithEchoTTL(cfg.echoTTL),
		WithPageSize(cfg.pageSize),
	)
}

func parseRuntimeConfig(raw []byte) (parsedRuntimeConfig, error) {
	cfg := parsedRuntimeConfig{
		baseURL:        defaultBaseURL,
		requestTimeout: defaultRequestTimeout,
		echoTTL:        defaultEchoTTL,
		pageSize:       defaultPageSize,
	}
	if len(raw) == 0 {
		return parsedRuntimeConfig{}, fmt.Errorf("missing config")
	}

	var parsed runtimeConfig
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return parsedRuntimeConfig{}, fmt.Errorf("unmarshal: %w", err)
	}

	if baseURL := strings.TrimRight(strings.TrimSpace(parsed.BaseURL), "/"); baseURL != "" {
		cfg.baseURL = baseURL
	}
	if _, err := url.ParseRequestURI(cfg.baseURL); err != nil {
		return parsedRuntimeConfig{}, fmt.Errorf("parse base_url: %w", err)
	}
	cfg.apiToken = strings.TrimSpace(parsed.APIToken)
	if cfg.apiToken == "" {
		return parsedRuntimeConfig{}, fmt.Errorf("api_token is required")
	}
	if parsed.PageSize > 0 {
		cfg.pageSize = parsed.PageSize
	}

	durations := []struct {
		name   string
		value  string
		target *time.Duration
	}{
		{name: "request_timeout", value: parsed.RequestTimeout, target: &cfg.requestTimeout},
		{name: "echo_ttl", value: parsed.EchoTTL, target: &cfg.echoTTL},
	}
	for _, duration := range durations {
		value := strings.TrimSpace(duration.value)
		if value == "" {
			continue
		}
		parsedDuration, err := time.ParseDuration(value)
		if err != nil {
			return parsedRuntimeConfig{}, fmt.Errorf("parse %s: %w", duration.name, err)
		}
		if parsedDuration <= 0 {
			return parsedRuntimeConfig{}, fmt.Errorf("parse %s: must be > 0", duration.name)
		}
		*duration.target = parsedDuration
	}

	return cfg, nil
}

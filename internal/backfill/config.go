// Package backfill generates missing tag summaries for every tag in the
// platform by calling the service's own summary route.
package backfill

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	defaultStrapiURL    = "http://localhost:1337"
	defaultServiceURL   = "http://localhost:8080"
	defaultPageSize     = 100
	defaultConcurrency  = 2
	defaultShouldWait   = true
	defaultShouldDryRun = false
)

// Config controls one backfill run.
type Config struct {
	// StrapiURL is the platform base URL tags are listed from.
	StrapiURL string
	// StrapiToken authenticates tag listing.
	StrapiToken string
	// ServiceURL is the base URL of the summary route.
	ServiceURL string
	// ServiceToken authenticates summary route calls.
	ServiceToken string
	PageSize     int
	Concurrency  int
	// Wait asks the route to finish each summary before responding.
	Wait   bool
	DryRun bool
}

// LookupFunc reads one environment variable.
type LookupFunc func(name string) (string, bool)

// ConfigFromEnv reads STRAPI_API_TOKEN (required), STRAPI_URL, AUGMENTER_URL,
// AUGMENTER_API_TOKEN, PAGE_SIZE, CONCURRENCY, WAIT and DRY_RUN.
func ConfigFromEnv(lookup LookupFunc) (Config, error) {
	token := envString(lookup, "STRAPI_API_TOKEN", "")
	if token == "" {
		return Config{}, fmt.Errorf("missing STRAPI_API_TOKEN env var")
	}

	cfg := Config{
		StrapiURL:    normalizeURL(envString(lookup, "STRAPI_URL", defaultStrapiURL)),
		StrapiToken:  token,
		ServiceURL:   normalizeURL(envString(lookup, "AUGMENTER_URL", defaultServiceURL)),
		ServiceToken: envString(lookup, "AUGMENTER_API_TOKEN", token),
		PageSize:     envInt(lookup, "PAGE_SIZE", defaultPageSize),
		Concurrency:  envInt(lookup, "CONCURRENCY", defaultConcurrency),
		Wait:         envBool(lookup, "WAIT", defaultShouldWait),
		DryRun:       envBool(lookup, "DRY_RUN", defaultShouldDryRun),
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	return cfg, nil
}

func envString(lookup LookupFunc, name string, fallback string) string {
	raw, ok := lookup(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}

	return strings.TrimSpace(raw)
}

// envInt falls back on unset or non-numeric values.
func envInt(lookup LookupFunc, name string, fallback int) int {
	raw, ok := lookup(name)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}

	return parsed
}

// envBool treats only true, 1 and yes as true once the variable is set.
func envBool(lookup LookupFunc, name string, fallback bool) bool {
	raw, ok := lookup(name)
	if !ok {
		return fallback
	}

	return raw == "true" || raw == "1" || raw == "yes"
}

func normalizeURL(raw string) string {
	return strings.TrimRight(raw, "/")
}

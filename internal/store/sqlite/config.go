package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ex-augmenter/pkg/augmenter"
)

// StoreType is the configuration token for the embedded store.
const StoreType = "sqlite"

const (
	defaultDatabasePath = ".cache/augmenter.db"
	defaultBusyTimeout  = 5 * time.Second
)

type runtimeConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
}

type parsedRuntimeConfig struct {
	path        string
	busyTimeout time.Duration
}

// BuildFromConfig opens the embedded store described by a JSON config payload.
//
// An empty payload selects the default database path.
func BuildFromConfig(
	ctx context.Context,
	logger *slog.Logger,
	lifecycle augmenter.Lifecycle,
	rawConfig []byte,
) (*Store, error) {
	cfg, err := parseRuntimeConfig(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("parse sqlite store config: %w", err)
	}

	return Open(ctx, cfg.path, lifecycle,
		WithLogger(logger),
		WithBusyTimeout(cfg.busyTimeout),
	)
}

func parseRuntimeConfig(raw []byte) (parsedRuntimeConfig, error) {
	cfg := parsedRuntimeConfig{
		path:        defaultDatabasePath,
		busyTimeout: defaultBusyTimeout,
	}
	if len(raw) == 0 {
		return cfg, nil
	}

	var parsed runtimeConfig
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return parsedRuntimeConfig{}, fmt.Errorf("unmarshal: %w", err)
	}
	if path := strings.TrimSpace(parsed.Path); path != "" {
		cfg.path = path
	}
	if timeout := strings.TrimSpace(parsed.BusyTimeout); timeout != "" {
		parsedTimeout, err := time.ParseDuration(timeout)
		if err != nil {
			return parsedRuntimeConfig{}, fmt.Errorf("parse busy_timeout: %w", err)
		}
		if parsedTimeout <= 0 {
			return parsedRuntimeConfig{}, fmt.Errorf("parse busy_timeout: must be > 0")
		}
		cfg.busyTimeout = parsedTimeout
	}

	return cfg, nil
}

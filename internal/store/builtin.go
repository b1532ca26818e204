package store

import (
	"context"
	"fmt"
	"log/slog"

	"ex-augmenter/internal/store/sqlite"
	"ex-augmenter/internal/store/strapi"
	"ex-augmenter/pkg/augmenter"
)

// NewBuiltinRegistry constructs the store registry with all built-in backends.
func NewBuiltinRegistry() (*Registry, error) {
	return NewRegistry([]Descriptor{
		{
			Type: strapi.StoreType,
			Builder: func(
				_ context.Context,
				definition Definition,
				lifecycle augmenter.Lifecycle,
				logger *slog.Logger,
			) (augmenter.DocumentStore, error) {
				documentStore, err := strapi.BuildFromConfig(logger, lifecycle, definition.Config)
				if err != nil {
					return nil, fmt.Errorf("build strapi store from config: %w", err)
				}

				return documentStore, nil
			},
		},
		{
			Type: sqlite.StoreType,
			Builder: func(
				ctx context.Context,
				definition Definition,
				lifecycle augmenter.Lifecycle,
				logger *slog.Logger,
			) (augmenter.DocumentStore, error) {
				documentStore, err := sqlite.BuildFromConfig(ctx, logger, lifecycle, definition.Config)
				if err != nil {
					return nil, fmt.Errorf("build sqlite store from config: %w", err)
				}

				return documentStore, nil
			},
		},
	})
}

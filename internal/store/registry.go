package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"ex-augmenter/pkg/augmenter"
)

// Definition describes the configured document-store backend.
type Definition struct {
	// Type identifies which builder should construct the store.
	Type string
	// Config stores backend-specific JSON payload.
	Config []byte
}

// BuilderFunc builds one store from its configured definition.
//
// lifecycle receives before-write hooks and after-write events for writes
// the store performs.
type BuilderFunc func(
	ctx context.Context,
	definition Definition,
	lifecycle augmenter.Lifecycle,
	logger *slog.Logger,
) (augmenter.DocumentStore, error)

// Descriptor binds one store type token to its builder.
type Descriptor struct {
	// Type is the backend token from configuration (for example "strapi").
	Type string
	// Builder constructs the store.
	Builder BuilderFunc
}

// Registry maps store types to builders.
type Registry struct {
	builders map[string]BuilderFunc
	types    []string
}

// NewRegistry creates one immutable store registry from descriptors.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	builders := make(map[string]BuilderFunc, len(descriptors))
	types := make([]string, 0, len(descriptors))
	for _, descriptor := range descriptors {
		if descriptor.Type == "" {
			return nil, fmt.Errorf("new registry: empty descriptor type")
		}
		if descriptor.Builder == nil {
			return nil, fmt.Errorf("new registry type %s: nil builder", descriptor.Type)
		}
		if _, exists := builders[descriptor.Type]; exists {
			return nil, fmt.Errorf("new registry type %s: duplicate", descriptor.Type)
		}

		builders[descriptor.Type] = descriptor.Builder
		types = append(types, descriptor.Type)
	}
	sort.Strings(types)

	return &Registry{
		builders: builders,
		types:    types,
	}, nil
}

// Types returns all registered store types in sorted order.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}

	return append([]string(nil), r.types...)
}

// Supports reports whether storeType has a registered builder.
func (r *Registry) Supports(storeType string) bool {
	if r == nil {
		return false
	}
	_, exists := r.builders[storeType]

	return exists
}

// Build constructs the configured store.
func (r *Registry) Build(
	ctx context.Context,
	definition Definition,
	lifecycle augmenter.Lifecycle,
	logger *slog.Logger,
) (augmenter.DocumentStore, error) {
	if r == nil {
		return nil, fmt.Errorf("build store: nil registry")
	}
	if definition.Type == "" {
		return nil, fmt.Errorf("build store: empty type")
	}
	if lifecycle == nil {
		return nil, fmt.Errorf("build store %s: nil lifecycle", definition.Type)
	}
	if logger == nil {
		logger = slog.Default()
	}

	builder, exists := r.builders[definition.Type]
	if !exists {
		return nil, fmt.Errorf("build store %s: unsupported type", definition.Type)
	}

	documentStore, err := builder(ctx, definition, lifecycle, logger)
	if err != nil {
		return nil, fmt.Errorf("build store %s: %w", definition.Type, err)
	}
	if documentStore == nil {
		return nil, fmt.Errorf("build store %s: nil store", definition.Type)
	}

	return documentStore, nil
}

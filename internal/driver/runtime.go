package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"ex-augmenter/pkg/augmenter"
)

// Definition describes one configured driver entry.
type Definition struct {
	// Name is the stable configured driver instance identifier.
	Name string
	// Type identifies which builder should construct this driver.
	Type string
	// Enabled controls whether this definition is active.
	Enabled bool
	// Config stores driver-type-specific JSON payload.
	Config []byte
}

// Host is the kernel surface drivers are built against.
type Host interface {
	// Services exposes services registered by modules.
	Services() augmenter.ServiceRegistry
	augmenter.WriteInterceptor
}

// BuilderFunc builds one driver from one configured definition.
type BuilderFunc func(ctx context.Context, definition Definition, host Host, logger *slog.Logger) (augmenter.Driver, error)

// Descriptor binds one driver type token to a builder.
type Descriptor struct {
	// Type is the driver type token from configuration (for example "http").
	Type string
	// Builder constructs one driver instance for this type.
	Builder BuilderFunc
}

// Registry maps driver types to builders.
type Registry struct {
	builders map[string]BuilderFunc
	types    []string
}

// NewRegistry creates one immutable driver registry from descriptors.
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

// Types returns all registered driver types in deterministic sorted order.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}

	return append([]string(nil), r.types...)
}

// BuildEnabled builds all enabled driver definitions against host.
//
// Modules must be registered first so that the services drivers depend on
// are resolvable.
func (r *Registry) BuildEnabled(
	ctx context.Context,
	definitions []Definition,
	host Host,
	logger *slog.Logger,
) ([]augmenter.Driver, error) {
	if r == nil {
		return nil, fmt.Errorf("build drivers: nil registry")
	}
	if host == nil {
		return nil, fmt.Errorf("build drivers: nil host")
	}
	if logger == nil {
		logger = slog.Default()
	}

	drivers := make([]augmenter.Driver, 0, len(definitions))
	seenNames := make(map[string]struct{}, len(definitions))
	for _, definition := range definitions {
		if !definition.Enabled {
			continue
		}
		if definition.Name == "" {
			return nil, fmt.Errorf("build driver: empty name")
		}
		if _, exists := seenNames[definition.Name]; exists {
			return nil, fmt.Errorf("build driver %s: duplicate name", definition.Name)
		}
		seenNames[definition.Name] = struct{}{}
		if definition.Type == "" {
			return nil, fmt.Errorf("build driver %s: empty type", definition.Name)
		}

		builder, exists := r.builders[definition.Type]
		if !exists {
			return nil, fmt.Errorf("build driver %s type %s: unsupported type", definition.Name, definition.Type)
		}

		built, err := builder(ctx, definition, host, logger.With("driver", definition.Name))
		if err != nil {
			return nil, fmt.Errorf("build driver %s type %s: %w", definition.Name, definition.Type, err)
		}
		if built == nil {
			return nil, fmt.Errorf("build driver %s type %s: nil driver", definition.Name, definition.Type)
		}

		drivers = append(drivers, built)
	}

	return drivers, nil
}

package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ex-augmenter/internal/httpapi"
	"ex-augmenter/pkg/augmenter"
)

// NewBuiltinRegistry constructs the driver registry with all built-in drivers.
func NewBuiltinRegistry() (*Registry, error) {
	return NewRegistry([]Descriptor{
		{
			Type:    httpapi.DriverType,
			Builder: buildHTTP,
		},
	})
}

func buildHTTP(_ context.Context, definition Definition, host Host, logger *slog.Logger) (augmenter.Driver, error) {
	deps, err := httpDependencies(host)
	if err != nil {
		return nil, fmt.Errorf("resolve http dependencies: %w", err)
	}

	server, err := httpapi.BuildFromConfig(definition.Name, logger, definition.Config, deps)
	if err != nil {
		return nil, fmt.Errorf("build http server from config: %w", err)
	}

	return server, nil
}

// httpDependencies resolves the services the HTTP surface calls. Article and
// entry stores are optional and only enable write hook replay.
func httpDependencies(host Host) (httpapi.Dependencies, error) {
	services := host.Services()
	tags, err := augmenter.ResolveAs[augmenter.TagStore](services, augmenter.ServiceTagStore)
	if err != nil {
		return httpapi.Dependencies{}, err
	}
	summaries, err := augmenter.ResolveAs[augmenter.TagSummaryService](services, augmenter.ServiceTagSummaries)
	if err != nil {
		return httpapi.Dependencies{}, err
	}

	deps := httpapi.Dependencies{
		Tags:        tags,
		Summaries:   summaries,
		Interceptor: host,
	}
	if articles, err := augmenter.ResolveAs[augmenter.ArticleStore](services, augmenter.ServiceArticleStore); err == nil {
		deps.Articles = articles
	} else if !errors.Is(err, augmenter.ErrServiceNotFound) {
		return httpapi.Dependencies{}, err
	}
	if entries, err := augmenter.ResolveAs[augmenter.EntryStore](services, augmenter.ServiceEntryStore); err == nil {
		deps.Entries = entries
	} else if !errors.Is(err, augmenter.ErrServiceNotFound) {
		return httpapi.Dependencies{}, err
	}
	if echo, ok := tags.(augmenter.EchoFilter); ok {
		deps.Echo = echo
	}

	return deps, nil
}

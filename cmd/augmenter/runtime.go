package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"ex-augmenter/internal/driver"
	"ex-augmenter/internal/kernel"
	"ex-augmenter/internal/store"
	"ex-augmenter/modules/contactnotify"
	"ex-augmenter/modules/excerpt"
	"ex-augmenter/modules/publication"
	"ex-augmenter/modules/related"
	"ex-augmenter/modules/relatedsweep"
	"ex-augmenter/modules/searchindex"
	"ex-augmenter/modules/tagsummary"
	"ex-augmenter/pkg/algolia"
	"ex-augmenter/pkg/augmenter"
	"ex-augmenter/pkg/github"
	"ex-augmenter/pkg/llm"
	"ex-augmenter/pkg/slack"
)

// runtimeOptions selects which optional pieces one command assembles.
type runtimeOptions struct {
	// withSweep registers the scheduled related sweep module.
	withSweep bool
	// withDrivers builds the configured ingress drivers.
	withDrivers bool
}

// appRuntime is one assembled kernel with its backing store.
type appRuntime struct {
	kernel *kernel.Kernel
	store  augmenter.DocumentStore
	sweep  *relatedsweep.Module
	logger *slog.Logger
}

func newLogger(cfg appConfig) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.logLevel}))
}

func buildKernelRuntime(logger *slog.Logger, cfg appConfig) *kernel.Kernel {
	return kernel.New(
		kernel.WithLogger(logger),
		kernel.WithModuleHookTimeout(cfg.moduleHookTimeout),
		kernel.WithShutdownTimeout(cfg.shutdownTimeout),
		kernel.WithDefaultSubscriptionBuffer(cfg.subscriptionBuffer),
		kernel.WithDefaultSubscriptionWorkers(cfg.subscriptionWorkers),
		kernel.WithDefaultHandlerTimeout(cfg.handlerTimeout),
	)
}

// buildRuntime wires store, clients, modules and drivers in dependency order.
// Drivers are built last so they can resolve the services modules publish.
func buildRuntime(ctx context.Context, logger *slog.Logger, cfg appConfig, opts runtimeOptions) (*appRuntime, error) {
	kernelRuntime := buildKernelRuntime(logger, cfg)
	if err := kernelRuntime.RegisterService(augmenter.ServiceLogger, logger); err != nil {
		return nil, fmt.Errorf("register logger service: %w", err)
	}

	storeRegistry, err := store.NewBuiltinRegistry()
	if err != nil {
		return nil, fmt.Errorf("new builtin store registry: %w", err)
	}
	documentStore, err := storeRegistry.Build(ctx, cfg.store, kernelRuntime, logger.With("store", cfg.store.Type))
	if err != nil {
		return nil, err
	}

	runtime := &appRuntime{kernel: kernelRuntime, store: documentStore, logger: logger}
	if err := runtime.register(ctx, cfg, opts); err != nil {
		return nil, errors.Join(err, documentStore.Close())
	}

	return runtime, nil
}

func (r *appRuntime) register(ctx context.Context, cfg appConfig, opts runtimeOptions) error {
	if err := registerRuntimeServices(r.kernel, r.logger, r.store, cfg); err != nil {
		return err
	}
	sweep, err := registerRuntimeModules(ctx, r.kernel, r.logger, cfg, opts.withSweep)
	if err != nil {
		return err
	}
	r.sweep = sweep

	if !opts.withDrivers {
		return nil
	}
	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		return fmt.Errorf("new builtin driver registry: %w", err)
	}
	drivers, err := registry.BuildEnabled(ctx, cfg.drivers, r.kernel, r.logger)
	if err != nil {
		return fmt.Errorf("build drivers: %w", err)
	}

	return registerRuntimeDrivers(r.kernel, drivers)
}

type namedService struct {
	name    string
	service any
}

func registerRuntimeServices(
	kernelRuntime *kernel.Kernel,
	logger *slog.Logger,
	documentStore augmenter.DocumentStore,
	cfg appConfig,
) error {
	services := []namedService{
		{name: augmenter.ServiceArticleStore, service: augmenter.ArticleStore(documentStore)},
		{name: augmenter.ServiceTagStore, service: augmenter.TagStore(documentStore)},
		{name: augmenter.ServiceEntryStore, service: augmenter.EntryStore(documentStore)},
	}

	providers, err := llm.BuildRegistry(cfg.llm)
	if err != nil {
		return fmt.Errorf("build llm providers: %w", err)
	}
	if providers != nil {
		logger.Info("llm providers configured", "profiles", providers.Profiles())
		services = append(services, namedService{
			name:    augmenter.ServiceLLMProviderRegistry,
			service: augmenter.LLMProviderRegistry(providers),
		})
	}

	notifier := slack.New(cfg.slackWebhookURL, slack.WithLogger(logger.With("client", "slack")))
	services = append(services, namedService{name: augmenter.ServiceContactNotifier, service: augmenter.ContactNotifier(notifier)})

	dispatcher, err := github.New(cfg.github, github.WithLogger(logger.With("client", "github")))
	if err != nil {
		return fmt.Errorf("build github dispatcher: %w", err)
	}
	services = append(services, namedService{name: augmenter.ServiceSitePublisher, service: augmenter.SitePublisher(dispatcher)})

	searchClient, err := newSearchClient(cfg.algolia)
	if err != nil {
		return err
	}
	if searchClient != nil {
		services = append(services, namedService{
			name:    augmenter.ServiceSearchIndex,
			service: augmenter.SearchIndex(searchClient),
		})
	} else {
		logger.Info("search indexing disabled", "reason", "algolia credentials not configured")
	}

	for _, entry := range services {
		if err := kernelRuntime.RegisterService(entry.name, entry.service); err != nil {
			return fmt.Errorf("register service %s: %w", entry.name, err)
		}
	}

	return nil
}

// newSearchClient returns nil when credentials are absent.
func newSearchClient(cfg algoliaConfig) (*algolia.Client, error) {
	var opts []algolia.Option
	if cfg.baseURL != "" {
		opts = append(opts, algolia.WithBaseURL(cfg.baseURL))
	}
	client, err := algolia.NewClient(cfg.appID, cfg.apiKey, opts...)
	if errors.Is(err, augmenter.ErrNotConfigured) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("build algolia client: %w", err)
	}

	return client, nil
}

func registerRuntimeModules(
	ctx context.Context,
	kernelRuntime *kernel.Kernel,
	logger *slog.Logger,
	cfg appConfig,
	withSweep bool,
) (*relatedsweep.Module, error) {
	modules := []augmenter.Module{
		excerpt.New(),
		publication.New(),
		contactnotify.New(),
	}
	if _, err := kernelRuntime.Services().Resolve(augmenter.ServiceSearchIndex); err == nil {
		modules = append(modules, searchindex.New(searchindex.WithIndexes(cfg.algolia.indexes)))
	}
	modules = append(modules,
		related.New(related.WithServiceOptions(related.WithNeighbourLimit(cfg.neighbourLimit))),
		tagsummary.New(tagsummary.WithConfig(cfg.llm)),
	)

	var sweep *relatedsweep.Module
	if withSweep {
		sweepOptions := []relatedsweep.SweeperOption{
			relatedsweep.WithSweeperLogger(logger.With("module", "relatedsweep")),
		}
		if cfg.sweep.lookback > 0 {
			sweepOptions = append(sweepOptions, relatedsweep.WithLookback(cfg.sweep.lookback))
		}
		if cfg.sweep.concurrency > 0 {
			sweepOptions = append(sweepOptions, relatedsweep.WithConcurrency(cfg.sweep.concurrency))
		}
		moduleOptions := []relatedsweep.Option{relatedsweep.WithSweeperOptions(sweepOptions...)}
		if cfg.sweep.schedule != "" {
			moduleOptions = append(moduleOptions, relatedsweep.WithSchedule(cfg.sweep.schedule))
		}
		if cfg.sweep.location != nil {
			moduleOptions = append(moduleOptions, relatedsweep.WithLocation(cfg.sweep.location))
		}
		sweep = relatedsweep.New(moduleOptions...)
		modules = append(modules, sweep)
	}

	for _, module := range modules {
		if err := kernelRuntime.RegisterModule(ctx, module); err != nil {
			return nil, fmt.Errorf("register %s module: %w", module.Name(), err)
		}
	}

	return sweep, nil
}

func registerRuntimeDrivers(kernelRuntime *kernel.Kernel, drivers []augmenter.Driver) error {
	for _, runtimeDriver := range drivers {
		if err := kernelRuntime.RegisterDriver(runtimeDriver); err != nil {
			return fmt.Errorf("register driver %s: %w", runtimeDriver.Name(), err)
		}
	}

	return nil
}

// close lets pending events finish, shuts down modules and releases the store.
func (r *appRuntime) close(ctx context.Context) error {
	return errors.Join(r.kernel.WaitIdle(ctx), r.kernel.Shutdown(ctx), r.store.Close())
}

// Package relatedsweep periodically refreshes related articles for articles
// whose tags changed.
package relatedsweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ex-augmenter/pkg/augmenter"

	"github.com/robfig/cron/v3"
)

const (
	// JobName identifies the sweep in logs.
	JobName = "relatedArticlesUpdate"
	// DefaultSchedule runs the sweep every six hours on the hour.
	DefaultSchedule = "0 */6 * * *"
)

// Option mutates sweep module configuration.
type Option func(*Module)

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// WithSchedule sets the five-field cron rule.
func WithSchedule(schedule string) Option {
	return func(module *Module) {
		if schedule != "" {
			module.schedule = schedule
		}
	}
}

// WithLocation sets the time zone the schedule is evaluated in.
func WithLocation(location *time.Location) Option {
	return func(module *Module) {
		if location != nil {
			module.location = location
		}
	}
}

// WithSweeperOptions forwards options to the sweeper built during registration.
func WithSweeperOptions(options ...SweeperOption) Option {
	return func(module *Module) {
		module.sweeperOptions = append(module.sweeperOptions, options...)
	}
}

// Module runs the sweeper on a cron schedule.
type Module struct {
	logger         *slog.Logger
	schedule       string
	location       *time.Location
	sweeperOptions []SweeperOption
	sweeper        *Sweeper

	mu      sync.Mutex
	cron    *cron.Cron
	stopRun context.CancelFunc
}

// New creates a sweep module.
func New(options ...Option) *Module {
	module := &Module{
		logger:   slog.Default(),
		schedule: DefaultSchedule,
		location: time.Local,
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "related-sweep"
}

// Spec declares the services the sweep reads and refreshes through.
func (m *Module) Spec() augmenter.ModuleSpec {
	return augmenter.ModuleSpec{
		AdditionalCapabilities: []augmenter.Capability{
			{
				Name:        "related-sweep",
				Description: "refreshes related articles of live articles whose tags changed recently",
				RequiredServices: []string{
					augmenter.ServiceTagStore,
					augmenter.ServiceArticleStore,
					augmenter.ServiceRelatedArticles,
				},
			},
		},
	}
}

// OnRegister builds the sweeper and validates the schedule.
func (m *Module) OnRegister(_ context.Context, runtime augmenter.ModuleRuntime) error {
	services := runtime.Services()

	logger, err := augmenter.ResolveAs[*slog.Logger](services, augmenter.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, augmenter.ErrServiceNotFound):
	default:
		return fmt.Errorf("related sweep resolve logger: %w", err)
	}

	if _, err := cron.ParseStandard(m.schedule); err != nil {
		return fmt.Errorf("related sweep parse schedule %q: %w", m.schedule, err)
	}

	tags, err := augmenter.ResolveAs[augmenter.TagStore](services, augmenter.ServiceTagStore)
	if err != nil {
		return fmt.Errorf("related sweep resolve tag store: %w", err)
	}
	articles, err := augmenter.ResolveAs[augmenter.ArticleStore](services, augmenter.ServiceArticleStore)
	if err != nil {
		return fmt.Errorf("related sweep resolve article store: %w", err)
	}
	related, err := augmenter.ResolveAs[augmenter.RelatedArticlesService](services, augmenter.ServiceRelatedArticles)
	if err != nil {
		return fmt.Errorf("related sweep resolve related articles: %w", err)
	}

	options := append([]SweeperOption{WithSweeperLogger(m.logger)}, m.sweeperOptions...)
	m.sweeper = NewSweeper(tags, articles, related, options...)

	return nil
}

// OnStart schedules the sweep.
func (m *Module) OnStart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sweeper == nil {
		return fmt.Errorf("related sweep start: module not registered")
	}
	if m.cron != nil {
		return nil
	}

	runCtx, stopRun := context.WithCancel(context.WithoutCancel(ctx))
	scheduler := cron.New(
		cron.WithLocation(m.location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := scheduler.AddFunc(m.schedule, func() { m.run(runCtx) }); err != nil {
		stopRun()
		return fmt.Errorf("related sweep schedule %q: %w", m.schedule, err)
	}
	scheduler.Start()

	m.cron = scheduler
	m.stopRun = stopRun
	m.logger.InfoContext(ctx, "related sweep scheduled",
		"job", JobName,
		"schedule", m.schedule,
		"location", m.location.String(),
	)

	return nil
}

// OnShutdown stops the scheduler and waits for a running sweep.
func (m *Module) OnShutdown(ctx context.Context) error {
	m.mu.Lock()
	scheduler, stopRun := m.cron, m.stopRun
	m.cron, m.stopRun = nil, nil
	m.mu.Unlock()

	if scheduler == nil {
		return nil
	}

	stopped := scheduler.Stop()
	select {
	case <-stopped.Done():
		stopRun()
		return nil
	case <-ctx.Done():
		stopRun()
		<-stopped.Done()
		return fmt.Errorf("related sweep shutdown: %w", ctx.Err())
	}
}

// RunOnce runs the sweep immediately.
func (m *Module) RunOnce(ctx context.Context) (Result, error) {
	if m.sweeper == nil {
		return Result{}, fmt.Errorf("related sweep run: module not registered")
	}

	return m.sweeper.RunOnce(ctx)
}

func (m *Module) run(ctx context.Context) {
	if _, err := m.sweeper.RunOnce(ctx); err != nil {
		m.logger.ErrorContext(ctx, "related sweep failed", "job", JobName, "error", err)
	}
}

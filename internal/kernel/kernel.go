package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ex-augmenter/pkg/augmenter"
)

// Kernel orchestrates modules, drivers, before-write hooks and the event bus.
//
// It implements augmenter.Lifecycle so document stores can drive hooks
// around their writes.
type Kernel struct {
	cfg config

	bus      *EventBus
	services *ServiceRegistry

	mu          sync.RWMutex
	modules     map[string]*moduleRecord
	moduleOrder []string
	writeHooks  []writeHookRecord
	drivers     map[string]augmenter.Driver
	driverOrder []string

	runMu   sync.Mutex
	running bool
}

// New creates a new kernel runtime.
func New(options ...Option) *Kernel {
	cfg := defaultConfig()
	for _, option := range options {
		option(&cfg)
	}

	return &Kernel{
		cfg:      cfg,
		bus:      NewEventBus(cfg.subscriptionBuffer, cfg.subscriptionWorker, cfg.handlerTimeout, cfg.onAsyncError),
		services: NewServiceRegistry(),
		modules:  make(map[string]*moduleRecord),
		drivers:  make(map[string]augmenter.Driver),
	}
}

// EventBus exposes the kernel event bus to integration code.
func (k *Kernel) EventBus() augmenter.EventBus {
	return k.bus
}

// Services exposes the kernel service registry.
func (k *Kernel) Services() augmenter.ServiceRegistry {
	return k.services
}

// RegisterService registers a runtime service singleton.
func (k *Kernel) RegisterService(name string, service any) error {
	if err := k.services.Register(name, service); err != nil {
		return fmt.Errorf("register service %s: %w", name, err)
	}

	return nil
}

// Publish dispatches one after-write lifecycle event to module subscriptions.
func (k *Kernel) Publish(ctx context.Context, event *augmenter.Event) error {
	return k.bus.Publish(ctx, event)
}

// BeforeWrite runs every matching before-write hook in registration order.
//
// The first hook failure aborts the write.
func (k *Kernel) BeforeWrite(ctx context.Context, req *augmenter.WriteRequest, current *augmenter.Entry) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("before write: %w", err)
	}

	k.mu.RLock()
	hooks := append([]writeHookRecord(nil), k.writeHooks...)
	k.mu.RUnlock()

	for _, record := range hooks {
		if !record.capability.Interest.MatchesWrite(req) {
			continue
		}
		scope := fmt.Sprintf("module %s hook %s", record.moduleName, record.capability.Name)
		if err := runSafely(scope, func() error {
			return record.hook(ctx, req, current)
		}); err != nil {
			return fmt.Errorf("before write %s %s: %w", req.ContentType, req.DocumentID, err)
		}
	}

	return nil
}

// RegisterModule registers a lifecycle-aware module, runs optional registration,
// and wires declarative handlers and write hooks.
func (k *Kernel) RegisterModule(ctx context.Context, module augmenter.Module) error {
	if module == nil {
		return fmt.Errorf("register module: nil module")
	}
	name := module.Name()
	if name == "" {
		return fmt.Errorf("register module: empty module name")
	}
	moduleSpec := module.Spec()
	if err := validateModuleSpec(moduleSpec); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}

	record := &moduleRecord{
		name:         name,
		module:       module,
		capabilities: moduleSpec.Capabilities(),
	}
	if err := k.validateCapabilityDependencies(record.capabilities); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}

	k.mu.Lock()
	if _, exists := k.modules[name]; exists {
		k.mu.Unlock()
		return fmt.Errorf("register module %s: %w", name, augmenter.ErrModuleAlreadyRegistered)
	}
	k.modules[name] = record
	k.moduleOrder = append(k.moduleOrder, name)
	k.mu.Unlock()

	runtime := &moduleRuntime{
		moduleName: name,
		services:   k.services,
		bus:        k.bus,
		record:     record,
	}

	hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
	defer cancel()

	if registrar, ok := module.(augmenter.ModuleRegistrar); ok {
		if err := runSafely("module "+name+" OnRegister", func() error {
			return registrar.OnRegister(hookCtx, runtime)
		}); err != nil {
			k.rollbackModuleRegistration(ctx, name, record)
			return fmt.Errorf("register module %s: %w", name, err)
		}
	}

	if err := k.registerDeclaredHandlers(hookCtx, name, runtime, moduleSpec.Handlers); err != nil {
		k.rollbackModuleRegistration(ctx, name, record)
		return fmt.Errorf("register module %s: %w", name, err)
	}

	k.mu.Lock()
	for _, declared := range moduleSpec.WriteHooks {
		k.writeHooks = append(k.writeHooks, writeHookRecord{
			moduleName: name,
			capability: declared.Capability,
			hook:       declared.Hook,
		})
	}
	k.mu.Unlock()

	k.cfg.logger.DebugContext(ctx, "module registered",
		"module", name,
		"handlers", len(moduleSpec.Handlers),
		"write_hooks", len(moduleSpec.WriteHooks),
	)

	return nil
}

// RegisterDriver registers an ingress driver.
func (k *Kernel) RegisterDriver(driver augmenter.Driver) error {
	if driver == nil {
		return fmt.Errorf("register driver: nil driver")
	}
	name := driver.Name()
	if name == "" {
		return fmt.Errorf("register driver: empty name")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if _, exists := k.drivers[name]; exists {
		return fmt.Errorf("register driver %s: %w", name, augmenter.ErrDriverAlreadyRegistered)
	}

	k.drivers[name] = driver
	k.driverOrder = append(k.driverOrder, name)

	return nil
}

// Run starts modules and drivers and blocks until cancellation or a fatal driver error.
//
// Without drivers Run blocks until ctx is canceled.
func (k *Kernel) Run(ctx context.Context) error {
	if err := k.startRun(); err != nil {
		return err
	}
	defer k.finishRun()

	if err := k.startModules(ctx); err != nil {
		shutdownErr := k.shutdownAll(ctx)
		return errors.Join(err, shutdownErr)
	}

	runCtx, runCancel := context.WithCancel(ctx)
	driverErr, waitDrivers := k.startDrivers(runCtx)

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-driverErr:
		runErr = err
	}

	runCancel()
	waitDrivers()

	shutdownErr := k.shutdownAll(ctx)

	if isContextCancellation(runErr) {
		runErr = nil
	}

	return errors.Join(runErr, shutdownErr)
}

// WaitIdle blocks until the bus has no queued or running events.
//
// One-shot commands call it before Shutdown so asynchronous follow-ups of
// their writes complete.
func (k *Kernel) WaitIdle(ctx context.Context) error {
	return k.bus.WaitIdle(ctx)
}

// Shutdown tears down modules and the bus without running drivers.
//
// One-shot commands use it after driving modules directly.
func (k *Kernel) Shutdown(ctx context.Context) error {
	return k.shutdownAll(ctx)
}

func (k *Kernel) startRun() error {
	k.runMu.Lock()
	defer k.runMu.Unlock()

	if k.running {
		return fmt.Errorf("kernel run: already running")
	}
	k.running = true

	return nil
}

func (k *Kernel) finishRun() {
	k.runMu.Lock()
	k.running = false
	k.runMu.Unlock()
}

// StartModules invokes OnStart in registration order with per-module timeouts.
func (k *Kernel) StartModules(ctx context.Context) error {
	return k.startModules(ctx)
}

func (k *Kernel) startModules(ctx context.Context) error {
	for _, record := range k.orderedModules() {
		hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
		err := runSafely("module "+record.name+" OnStart", func() error {
			return record.module.OnStart(hookCtx)
		})
		cancel()
		if err != nil {
			return fmt.Errorf("start module %s: %w", record.name, err)
		}
	}
	k.cfg.logger.InfoContext(ctx, "kernel modules started",
		"modules", k.moduleNames(),
		"services", k.services.Names(),
	)

	return nil
}

func (k *Kernel) moduleNames() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return append([]string(nil), k.moduleOrder...)
}

// startDrivers runs all registered drivers concurrently and returns a channel
// carrying the first fatal driver error and a wait function bounded by the
// shutdown timeout.
func (k *Kernel) startDrivers(ctx context.Context) (<-chan error, func()) {
	errChannel := make(chan error, 1)
	done := make(chan struct{})
	workerWG := &sync.WaitGroup{}

	drivers := k.orderedDrivers()
	for _, driver := range drivers {
		workerWG.Add(1)
		go func(adapter augmenter.Driver) {
			defer workerWG.Done()
			err := runSafely("driver "+adapter.Name()+" Start", func() error {
				return adapter.Start(ctx, k)
			})
			if err == nil || isContextCancellation(err) {
				return
			}
			select {
			case errChannel <- fmt.Errorf("run driver %s: %w", adapter.Name(), err):
			default:
			}
		}(driver)
	}

	go func() {
		workerWG.Wait()
		close(done)
	}()

	wait := func() {
		select {
		case <-done:
		case <-time.After(k.cfg.shutdownTimeout):
			k.cfg.logger.Warn("drivers did not stop before shutdown timeout", "timeout", k.cfg.shutdownTimeout)
		}
	}

	// All drivers returning cleanly is not an exit condition; the kernel keeps
	// serving bus subscribers until ctx is canceled.
	return errChannel, wait
}

// shutdownAll tears down drivers, modules, and bus in a bounded timeout window.
// It uses WithoutCancel so cleanup still runs after parent cancellation.
func (k *Kernel) shutdownAll(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.shutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := k.shutdownDrivers(shutdownCtx); err != nil {
		shutdownErr = errors.Join(shutdownErr, err)
	}
	if err := k.shutdownModules(shutdownCtx); err != nil {
		shutdownErr = errors.Join(shutdownErr, err)
	}
	if err := k.bus.Close(shutdownCtx); err != nil {
		shutdownErr = errors.Join(shutdownErr, err)
	}

	if shutdownErr != nil {
		return fmt.Errorf("kernel shutdown: %w", shutdownErr)
	}

	return nil
}

// shutdownDrivers executes driver Shutdown in reverse registration order.
func (k *Kernel) shutdownDrivers(ctx context.Context) error {
	drivers := k.orderedDrivers()

	var shutdownErr error
	for idx := len(drivers) - 1; idx >= 0; idx-- {
		driver := drivers[idx]
		err := runSafely("driver "+driver.Name()+" Shutdown", func() error {
			return driver.Shutdown(ctx)
		})
		if err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown driver %s: %w", driver.Name(), err))
		}
	}

	return shutdownErr
}

// shutdownModules closes module subscriptions and invokes OnShutdown in reverse order.
func (k *Kernel) shutdownModules(ctx context.Context) error {
	records := k.orderedModules()

	var shutdownErr error
	for idx := len(records) - 1; idx >= 0; idx-- {
		record := records[idx]
		if err := record.closeSubscriptions(ctx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown module %s subscriptions: %w", record.name, err))
		}
		hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
		err := runSafely("module "+record.name+" OnShutdown", func() error {
			return record.module.OnShutdown(hookCtx)
		})
		cancel()
		if err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown module %s: %w", record.name, err))
		}
	}

	return shutdownErr
}

func (k *Kernel) orderedModules() []*moduleRecord {
	k.mu.RLock()
	defer k.mu.RUnlock()

	records := make([]*moduleRecord, 0, len(k.moduleOrder))
	for _, name := range k.moduleOrder {
		if record, exists := k.modules[name]; exists {
			records = append(records, record)
		}
	}

	return records
}

func (k *Kernel) orderedDrivers() []augmenter.Driver {
	k.mu.RLock()
	defer k.mu.RUnlock()

	drivers := make([]augmenter.Driver, 0, len(k.driverOrder))
	for _, name := range k.driverOrder {
		if driver, exists := k.drivers[name]; exists {
			drivers = append(drivers, driver)
		}
	}

	return drivers
}

// rollbackModuleRegistration removes a partially registered module after OnRegister failure.
func (k *Kernel) rollbackModuleRegistration(ctx context.Context, name string, record *moduleRecord) {
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.moduleHookTimeout)
	defer cancel()

	if err := record.closeSubscriptions(rollbackCtx); err != nil {
		k.cfg.onAsyncError(rollbackCtx, "rollback module registration "+name, nil, err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.modules, name)
	k.moduleOrder = removeOrderedName(k.moduleOrder, name)
}

// validateCapabilityDependencies checks required services declared by capabilities.
func (k *Kernel) validateCapabilityDependencies(capabilities []augmenter.Capability) error {
	for _, capability := range capabilities {
		for _, serviceName := range capability.RequiredServices {
			if _, err := k.services.Resolve(serviceName); err != nil {
				return fmt.Errorf("capability %s requires service %s: %w", capability.Name, serviceName, err)
			}
		}
	}

	return nil
}

func (k *Kernel) registerDeclaredHandlers(
	ctx context.Context,
	moduleName string,
	runtime *moduleRuntime,
	handlers []augmenter.ModuleHandler,
) error {
	for idx, declared := range handlers {
		spec := declared.Subscription
		if spec.Name == "" {
			spec.Name = fmt.Sprintf("%s-handler-%d", moduleName, idx+1)
		}
		if _, err := runtime.Subscribe(ctx, declared.Capability.Interest, spec, declared.Handler); err != nil {
			return fmt.Errorf("register handler %s for capability %s: %w", spec.Name, declared.Capability.Name, err)
		}
	}

	return nil
}

// validateModuleSpec ensures declarative module definitions are coherent.
func validateModuleSpec(spec augmenter.ModuleSpec) error {
	seenCapabilities := make(map[string]struct{})
	seenSubscriptions := make(map[string]struct{}, len(spec.Handlers))

	claim := func(name string) error {
		if name == "" {
			return fmt.Errorf("empty capability name")
		}
		if _, exists := seenCapabilities[name]; exists {
			return fmt.Errorf("duplicate capability name %s", name)
		}
		seenCapabilities[name] = struct{}{}
		return nil
	}

	for idx, handler := range spec.Handlers {
		if err := claim(handler.Capability.Name); err != nil {
			return fmt.Errorf("module handler %d: %w", idx, err)
		}
		if handler.Handler == nil {
			return fmt.Errorf("module handler %s: nil handler", handler.Capability.Name)
		}
		if handler.Subscription.Name != "" {
			if _, exists := seenSubscriptions[handler.Subscription.Name]; exists {
				return fmt.Errorf("module handler %s: duplicate subscription name %s", handler.Capability.Name, handler.Subscription.Name)
			}
			seenSubscriptions[handler.Subscription.Name] = struct{}{}
		}
	}
	for idx, hook := range spec.WriteHooks {
		if err := claim(hook.Capability.Name); err != nil {
			return fmt.Errorf("module write hook %d: %w", idx, err)
		}
		if hook.Hook == nil {
			return fmt.Errorf("module write hook %s: nil hook", hook.Capability.Name)
		}
	}
	for idx, capability := range spec.AdditionalCapabilities {
		if err := claim(capability.Name); err != nil {
			return fmt.Errorf("additional capability %d: %w", idx, err)
		}
	}

	return nil
}

func removeOrderedName(ordered []string, target string) []string {
	filtered := make([]string, 0, len(ordered))
	for _, item := range ordered {
		if item != target {
			filtered = append(filtered, item)
		}
	}

	return filtered
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

var _ augmenter.Lifecycle = (*Kernel)(nil)

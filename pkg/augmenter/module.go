package augmenter

import "context"

// ModuleRuntime provides kernel facilities to modules during registration.
type ModuleRuntime interface {
	// Services exposes the service registry for dependency lookup.
	Services() ServiceRegistry
	// Subscribe registers an asynchronous event handler owned by the module.
	Subscribe(ctx context.Context, interest InterestSet, spec SubscriptionSpec, handler EventHandler) (Subscription, error)
}

// ModuleHandler binds one capability to one asynchronous lifecycle handler.
type ModuleHandler struct {
	Capability   Capability
	Subscription SubscriptionSpec
	Handler      EventHandler
}

// ModuleWriteHook binds one capability to one synchronous before-write hook.
//
// The capability interest selects writes by operation and content type.
type ModuleWriteHook struct {
	Capability Capability
	Hook       WriteHook
}

// ModuleSpec declares everything the kernel wires for a module.
type ModuleSpec struct {
	Handlers               []ModuleHandler
	WriteHooks             []ModuleWriteHook
	AdditionalCapabilities []Capability
}

// Capabilities returns every declared capability, in declaration order.
func (s ModuleSpec) Capabilities() []Capability {
	capabilities := make([]Capability, 0, len(s.Handlers)+len(s.WriteHooks)+len(s.AdditionalCapabilities))
	for _, handler := range s.Handlers {
		capabilities = append(capabilities, handler.Capability)
	}
	for _, hook := range s.WriteHooks {
		capabilities = append(capabilities, hook.Capability)
	}
	capabilities = append(capabilities, s.AdditionalCapabilities...)

	return capabilities
}

// Module is a lifecycle-aware plugin contract.
//
// Modules must be concurrency-safe because handlers can run on multiple workers.
type Module interface {
	// Name returns a stable module identifier.
	Name() string
	// Spec returns declarative handlers, hooks and capabilities.
	Spec() ModuleSpec
	// OnStart is called when the kernel begins runtime execution.
	OnStart(ctx context.Context) error
	// OnShutdown is called during orderly shutdown.
	OnShutdown(ctx context.Context) error
}

// Driver adapts an external surface (HTTP ingress, schedulers) into the kernel.
//
// Drivers own their transport and publish lifecycle events through sink.
type Driver interface {
	// Name returns a stable driver identifier.
	Name() string
	// Start runs the driver until context cancellation or fatal error.
	Start(ctx context.Context, sink EventSink) error
	// Shutdown stops resources that are not tied to the Start context.
	Shutdown(ctx context.Context) error
}

// ModuleRegistrar is implemented by modules that resolve services or register
// their own services when added to the kernel.
type ModuleRegistrar interface {
	// OnRegister is called once when the module is registered.
	OnRegister(ctx context.Context, runtime ModuleRuntime) error
}

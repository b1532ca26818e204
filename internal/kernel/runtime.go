package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ex-augmenter/pkg/augmenter"
)

// moduleRecord stores module metadata and subscriptions managed by the kernel.
type moduleRecord struct {
	name          string
	module        augmenter.Module
	capabilities  []augmenter.Capability
	subscriptions []augmenter.Subscription
	subMu         sync.Mutex
}

func (m *moduleRecord) addSubscription(subscription augmenter.Subscription) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subscriptions = append(m.subscriptions, subscription)
}

// closeSubscriptions closes all tracked subscriptions and aggregates close errors.
// Repeated calls are no-ops.
func (m *moduleRecord) closeSubscriptions(ctx context.Context) error {
	m.subMu.Lock()
	subscriptions := m.subscriptions
	m.subscriptions = nil
	m.subMu.Unlock()

	var closeErr error
	for _, subscription := range subscriptions {
		if err := subscription.Close(ctx); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close subscription %s: %w", subscription.Name(), err))
		}
	}

	return closeErr
}

// moduleRuntime is the kernel-owned implementation of augmenter.ModuleRuntime.
type moduleRuntime struct {
	moduleName string
	services   augmenter.ServiceRegistry
	bus        augmenter.EventBus
	record     *moduleRecord
}

// Services returns the kernel service registry visible to the module.
func (r *moduleRuntime) Services() augmenter.ServiceRegistry {
	return r.services
}

// Subscribe registers a module-owned subscription after capability checks.
func (r *moduleRuntime) Subscribe(
	ctx context.Context,
	interest augmenter.InterestSet,
	spec augmenter.SubscriptionSpec,
	handler augmenter.EventHandler,
) (augmenter.Subscription, error) {
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("%s-subscription", r.moduleName)
	}
	if err := assertSubscriptionAllowed(r.record.capabilities, interest); err != nil {
		return nil, fmt.Errorf("module %s subscribe %s: %w", r.moduleName, spec.Name, err)
	}

	subscription, err := r.bus.Subscribe(ctx, interest, spec, handler)
	if err != nil {
		return nil, fmt.Errorf("module %s subscribe %s: %w", r.moduleName, spec.Name, err)
	}

	r.record.addSubscription(subscription)

	return subscription, nil
}

// assertSubscriptionAllowed enforces capability negotiation at registration time.
// A module can only subscribe to interests covered by at least one declared capability.
func assertSubscriptionAllowed(capabilities []augmenter.Capability, interest augmenter.InterestSet) error {
	if len(capabilities) == 0 {
		return fmt.Errorf("%w: no declared capability", augmenter.ErrInvalidSubscription)
	}

	for _, capability := range capabilities {
		if capability.Interest.Allows(interest) {
			return nil
		}
	}

	return fmt.Errorf("%w: interest not covered by declared capabilities", augmenter.ErrInvalidSubscription)
}

// writeHookRecord is one registered before-write hook.
type writeHookRecord struct {
	moduleName string
	capability augmenter.Capability
	hook       augmenter.WriteHook
}

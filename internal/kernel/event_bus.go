package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ex-augmenter/pkg/augmenter"
)

const idlePollInterval = 5 * time.Millisecond

// AsyncErrorHandler receives failures from background workers.
//
// event is nil when the failure is not tied to one event.
type AsyncErrorHandler func(ctx context.Context, scope string, event *augmenter.Event, err error)

// EventBus is the kernel asynchronous pub/sub implementation.
type EventBus struct {
	mu                    sync.RWMutex
	nextID                int64
	closed                bool
	subscriptions         map[int64]*busSubscription
	defaultBuffer         int
	defaultWorkers        int
	defaultHandlerTimeout time.Duration
	onAsyncError          AsyncErrorHandler
}

// NewEventBus creates an asynchronous event bus with bounded queues.
func NewEventBus(
	defaultBuffer int,
	defaultWorkers int,
	defaultHandlerTimeout time.Duration,
	onAsyncError AsyncErrorHandler,
) *EventBus {
	return &EventBus{
		subscriptions:         make(map[int64]*busSubscription),
		defaultBuffer:         defaultBuffer,
		defaultWorkers:        defaultWorkers,
		defaultHandlerTimeout: defaultHandlerTimeout,
		onAsyncError:          onAsyncError,
	}
}

// Publish dispatches an event to all matching subscribers.
//
// Drops caused by backpressure are reported to the async error sink and do not
// fail the publish; the writer that produced the event has already committed.
func (b *EventBus) Publish(ctx context.Context, event *augmenter.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	subs, err := b.snapshotSubscriptions()
	if err != nil {
		return fmt.Errorf("publish event %s: %w", event.Kind, err)
	}

	var publishErrs []error
	for _, sub := range subs {
		if !sub.interest.Matches(event) {
			continue
		}
		if err := sub.enqueue(ctx, event); err != nil {
			if errors.Is(err, augmenter.ErrEventDropped) || errors.Is(err, augmenter.ErrSubscriptionClosed) {
				b.reportAsyncError(ctx, sub.spec.Name, event, err)
				continue
			}
			publishErrs = append(publishErrs, err)
		}
	}

	if len(publishErrs) > 0 {
		return fmt.Errorf("publish event %s: %w", event.Kind, errors.Join(publishErrs...))
	}

	return nil
}

// Subscribe registers a bounded asynchronous consumer.
func (b *EventBus) Subscribe(
	ctx context.Context,
	interest augmenter.InterestSet,
	spec augmenter.SubscriptionSpec,
	handler augmenter.EventHandler,
) (augmenter.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", spec.Name, err)
	}
	if handler == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", spec.Name)
	}

	subID := atomic.AddInt64(&b.nextID, 1)
	spec, err := b.normalizeSpec(spec, subID)
	if err != nil {
		return nil, err
	}
	sub := newBusSubscription(subID, interest, spec, handler, b)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.signalClose()
		return nil, fmt.Errorf("subscribe %s: bus closed", spec.Name)
	}
	b.subscriptions[subID] = sub

	return sub, nil
}

// WaitIdle blocks until every subscription queue is empty and no handler is
// running, including events published by handlers while waiting.
func (b *EventBus) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		b.mu.RLock()
		var pending int64
		for _, sub := range b.subscriptions {
			pending += sub.pending.Load()
		}
		b.mu.RUnlock()
		if pending == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait idle: %d event(s) pending: %w", pending, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close stops all active subscriptions and rejects further publishes and subscribes.
func (b *EventBus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*busSubscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	b.subscriptions = make(map[int64]*busSubscription)
	b.mu.Unlock()

	var closeErrs []error
	for _, sub := range subs {
		if err := sub.shutdown(ctx); err != nil {
			closeErrs = append(closeErrs, err)
		}
	}

	if len(closeErrs) > 0 {
		return fmt.Errorf("close event bus: %w", errors.Join(closeErrs...))
	}

	return nil
}

// snapshotSubscriptions returns a stable copy for lock-free publish fan-out.
func (b *EventBus) snapshotSubscriptions() ([]*busSubscription, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("bus closed")
	}

	subs := make([]*busSubscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}

	return subs, nil
}

// normalizeSpec applies runtime defaults when callers omit optional fields.
func (b *EventBus) normalizeSpec(spec augmenter.SubscriptionSpec, subID int64) (augmenter.SubscriptionSpec, error) {
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("subscription-%d", subID)
	}
	if spec.Buffer <= 0 {
		spec.Buffer = b.defaultBuffer
	}
	if spec.Workers <= 0 {
		spec.Workers = b.defaultWorkers
	}
	if spec.HandlerTimeout <= 0 {
		spec.HandlerTimeout = b.defaultHandlerTimeout
	}
	switch spec.Backpressure {
	case "":
		spec.Backpressure = augmenter.BackpressureDropNewest
	case augmenter.BackpressureDropNewest, augmenter.BackpressureDropOldest, augmenter.BackpressureBlock:
	default:
		return augmenter.SubscriptionSpec{}, fmt.Errorf(
			"subscribe %s: backpressure %q: %w",
			spec.Name,
			spec.Backpressure,
			augmenter.ErrInvalidSubscription,
		)
	}

	return spec, nil
}

// unsubscribe removes and shuts down a subscription by id.
func (b *EventBus) unsubscribe(ctx context.Context, subID int64) error {
	b.mu.Lock()
	sub, found := b.subscriptions[subID]
	if found {
		delete(b.subscriptions, subID)
	}
	b.mu.Unlock()

	if !found {
		return nil
	}

	if err := sub.shutdown(ctx); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", sub.spec.Name, err)
	}

	return nil
}

func (b *EventBus) reportAsyncError(ctx context.Context, scope string, event *augmenter.Event, err error) {
	if b.onAsyncError != nil {
		b.onAsyncError(ctx, scope, event, err)
	}
}

// busSubscription owns queueing and worker lifecycle for a single subscriber.
// Queue closure is driven by context cancellation rather than channel close.
type busSubscription struct {
	id       int64
	interest augmenter.InterestSet
	spec     augmenter.SubscriptionSpec
	handler  augmenter.EventHandler
	queue    chan *augmenter.Event
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	closed   atomic.Bool
	once     sync.Once
	bus      *EventBus
	// pending counts queued plus in-flight events.
	pending atomic.Int64
}

func newBusSubscription(
	subID int64,
	interest augmenter.InterestSet,
	spec augmenter.SubscriptionSpec,
	handler augmenter.EventHandler,
	bus *EventBus,
) *busSubscription {
	subCtx, cancel := context.WithCancel(context.Background())
	sub := &busSubscription{
		id:       subID,
		interest: cloneInterestSet(interest),
		spec:     spec,
		handler:  handler,
		queue:    make(chan *augmenter.Event, spec.Buffer),
		ctx:      subCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
		bus:      bus,
	}

	sub.startWorkers()

	return sub
}

// cloneInterestSet copies owned slices so caller mutation does not affect matching.
func cloneInterestSet(interest augmenter.InterestSet) augmenter.InterestSet {
	cloned := interest
	if len(interest.Kinds) > 0 {
		cloned.Kinds = append([]augmenter.EventKind(nil), interest.Kinds...)
	}
	if len(interest.ContentTypes) > 0 {
		cloned.ContentTypes = append([]augmenter.ContentType(nil), interest.ContentTypes...)
	}
	if len(interest.Operations) > 0 {
		cloned.Operations = append([]augmenter.WriteOperation(nil), interest.Operations...)
	}

	return cloned
}

// Name returns the stable subscription name.
func (s *busSubscription) Name() string {
	return s.spec.Name
}

// Close unregisters this subscription from its parent bus.
func (s *busSubscription) Close(ctx context.Context) error {
	return s.bus.unsubscribe(ctx, s.id)
}

// enqueue applies the configured backpressure policy for the subscriber queue.
func (s *busSubscription) enqueue(ctx context.Context, event *augmenter.Event) error {
	if s.closed.Load() {
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, augmenter.ErrSubscriptionClosed)
	}

	s.pending.Add(1)
	var err error
	switch s.spec.Backpressure {
	case augmenter.BackpressureDropNewest:
		select {
		case s.queue <- event:
		default:
			err = fmt.Errorf("enqueue %s: %w", s.spec.Name, augmenter.ErrEventDropped)
		}
	case augmenter.BackpressureDropOldest:
		err = s.enqueueDropOldest(event)
	case augmenter.BackpressureBlock:
		select {
		case s.queue <- event:
		case <-ctx.Done():
			err = fmt.Errorf("enqueue %s: %w", s.spec.Name, ctx.Err())
		case <-s.ctx.Done():
			err = fmt.Errorf("enqueue %s: %w", s.spec.Name, augmenter.ErrSubscriptionClosed)
		}
	default:
		err = fmt.Errorf("enqueue %s: %w", s.spec.Name, augmenter.ErrInvalidSubscription)
	}
	if err != nil {
		s.pending.Add(-1)
	}

	return err
}

// enqueueDropOldest evicts one queued event before enqueueing the new event.
func (s *busSubscription) enqueueDropOldest(event *augmenter.Event) error {
	select {
	case s.queue <- event:
		return nil
	default:
	}

	select {
	case evicted := <-s.queue:
		s.pending.Add(-1)
		s.bus.reportAsyncError(s.ctx, s.spec.Name, evicted, fmt.Errorf("evict %s: %w", s.spec.Name, augmenter.ErrEventDropped))
	default:
	}

	select {
	case s.queue <- event:
		return nil
	default:
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, augmenter.ErrEventDropped)
	}
}

// startWorkers launches worker goroutines and closes done after all workers exit.
func (s *busSubscription) startWorkers() {
	workerWG := &sync.WaitGroup{}
	for workerID := range s.spec.Workers {
		workerWG.Add(1)
		go s.runWorker(workerWG, workerID)
	}

	go func() {
		workerWG.Wait()
		close(s.done)
	}()
}

// runWorker drains the queue until subscription context cancellation.
func (s *busSubscription) runWorker(workerWG *sync.WaitGroup, workerID int) {
	defer workerWG.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.queue:
			if err := s.handleEvent(s.ctx, workerID, event); err != nil {
				s.bus.reportAsyncError(s.ctx, s.spec.Name, event, err)
			}
			s.pending.Add(-1)
		}
	}
}

// handleEvent executes one handler call with timeout and panic recovery.
func (s *busSubscription) handleEvent(ctx context.Context, workerID int, event *augmenter.Event) error {
	handlerCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.spec.HandlerTimeout > 0 {
		handlerCtx, cancel = context.WithTimeout(ctx, s.spec.HandlerTimeout)
	}
	defer cancel()

	scope := fmt.Sprintf("subscription %s worker %d", s.spec.Name, workerID)
	if err := runSafely(scope, func() error {
		return s.handler(handlerCtx, event)
	}); err != nil {
		return fmt.Errorf("handle event %s %s: %w", event.Kind, event.Entry.DocumentID, err)
	}

	return nil
}

// signalClose marks the subscription closed exactly once and cancels workers.
func (s *busSubscription) signalClose() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
	})
}

// shutdown waits for worker exit or returns when the supplied context expires.
func (s *busSubscription) shutdown(ctx context.Context) error {
	s.signalClose()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown subscription %s: %w", s.spec.Name, ctx.Err())
	}
}

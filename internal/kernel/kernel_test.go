package kernel

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ex-augmenter/pkg/augmenter"
)

func TestRegisterModuleRequiredServices(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		services   []string
		wantErrSub string
	}{
		{
			name:       "article store missing",
			wantErrSub: "requires service augmenter.article_store",
		},
		{
			name:       "tag summaries missing",
			services:   []string{augmenter.ServiceArticleStore},
			wantErrSub: "requires service augmenter.tag_summaries",
		},
		{
			name:     "all present",
			services: []string{augmenter.ServiceArticleStore, augmenter.ServiceTagSummaries},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			kernelRuntime := New()
			for _, name := range testCase.services {
				if err := kernelRuntime.RegisterService(name, &tagStoreService{}); err != nil {
					t.Fatalf("register %s failed: %v", name, err)
				}
			}

			module := &stubModule{
				name: "related",
				spec: augmenter.ModuleSpec{
					AdditionalCapabilities: []augmenter.Capability{{
						Name:             "refresh-related",
						RequiredServices: []string{augmenter.ServiceArticleStore, augmenter.ServiceTagSummaries},
					}},
				},
			}
			err := kernelRuntime.RegisterModule(context.Background(), module)
			if testCase.wantErrSub == "" {
				if err != nil {
					t.Fatalf("register module failed: %v", err)
				}
				return
			}
			if !errors.Is(err, augmenter.ErrServiceNotFound) || !strings.Contains(err.Error(), testCase.wantErrSub) {
				t.Fatalf("error = %v, want %q", err, testCase.wantErrSub)
			}
			if module.registered.Load() != 0 {
				t.Fatal("OnRegister ran for a module with missing services")
			}
		})
	}
}

func TestRegisterModuleRollsBackFailedRegistration(t *testing.T) {
	t.Parallel()

	kernelRuntime := New()
	t.Cleanup(func() {
		_ = kernelRuntime.EventBus().Close(context.Background())
	})

	articleEvents := augmenter.InterestSet{
		ContentTypes: []augmenter.ContentType{augmenter.ContentTypeArticle},
	}
	var handled atomic.Int32
	failing := &stubModule{
		name: "searchindex",
		spec: augmenter.ModuleSpec{
			AdditionalCapabilities: []augmenter.Capability{{Name: "index-articles", Interest: articleEvents}},
		},
		onRegister: func(ctx context.Context, runtime augmenter.ModuleRuntime) error {
			_, err := runtime.Subscribe(ctx, articleEvents, augmenter.SubscriptionSpec{Name: "index"},
				func(context.Context, *augmenter.Event) error {
					handled.Add(1)
					return nil
				})
			if err != nil {
				return err
			}
			return errors.New("algolia credentials rejected")
		},
	}
	err := kernelRuntime.RegisterModule(context.Background(), failing)
	if err == nil || !strings.Contains(err.Error(), "algolia credentials rejected") {
		t.Fatalf("error = %v, want OnRegister failure", err)
	}

	if err := kernelRuntime.Publish(context.Background(), newTestEvent("e1", augmenter.EventKindEntryCreated)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := kernelRuntime.WaitIdle(ctx); err != nil {
		t.Fatalf("wait idle failed: %v", err)
	}
	if got := handled.Load(); got != 0 {
		t.Fatalf("rolled back handler ran %d time(s)", got)
	}

	if err := kernelRuntime.RegisterModule(context.Background(), &stubModule{name: "searchindex"}); err != nil {
		t.Fatalf("re-register after rollback failed: %v", err)
	}
}

func TestKernelRunOrdersModuleLifecycle(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		trace []string
	)
	record := func(step string) {
		mu.Lock()
		trace = append(trace, step)
		mu.Unlock()
	}

	kernelRuntime := New(WithModuleHookTimeout(time.Second), WithShutdownTimeout(2*time.Second))
	for _, name := range []string{"excerpt", "publication", "related"} {
		if err := kernelRuntime.RegisterModule(context.Background(), &stubModule{name: name, trace: record}); err != nil {
			t.Fatalf("register %s failed: %v", name, err)
		}
	}
	driver := &stubDriver{name: "http"}
	if err := kernelRuntime.RegisterDriver(driver); err != nil {
		t.Fatalf("register driver failed: %v", err)
	}
	if err := kernelRuntime.RegisterDriver(&stubDriver{name: "http"}); !errors.Is(err, augmenter.ErrDriverAlreadyRegistered) {
		t.Fatalf("duplicate driver error = %v, want %v", err, augmenter.ErrDriverAlreadyRegistered)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() {
		runDone <- kernelRuntime.Run(runCtx)
	}()

	eventually(t, 2*time.Second, func() bool { return driver.started.Load() == 1 })
	cancel()

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("kernel run failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("kernel run did not exit")
	}

	if driver.stopped.Load() != 1 {
		t.Fatal("driver Shutdown was not called")
	}
	want := []string{
		"excerpt start", "publication start", "related start",
		"related shutdown", "publication shutdown", "excerpt shutdown",
	}
	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(trace, want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
}

func TestModuleSubscribeCapabilityGate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		spec     augmenter.ModuleSpec
		interest augmenter.InterestSet
		wantErr  bool
	}{
		{
			name:     "no capability",
			interest: augmenter.InterestSet{ContentTypes: []augmenter.ContentType{augmenter.ContentTypeContact}},
			wantErr:  true,
		},
		{
			name: "content type outside capability",
			spec: augmenter.ModuleSpec{
				AdditionalCapabilities: []augmenter.Capability{{
					Name:     "contacts",
					Interest: augmenter.InterestSet{ContentTypes: []augmenter.ContentType{augmenter.ContentTypeContact}},
				}},
			},
			interest: augmenter.InterestSet{ContentTypes: []augmenter.ContentType{augmenter.ContentTypeArticle}},
			wantErr:  true,
		},
		{
			name: "created contacts within capability",
			spec: augmenter.ModuleSpec{
				AdditionalCapabilities: []augmenter.Capability{{
					Name:     "contacts",
					Interest: augmenter.InterestSet{ContentTypes: []augmenter.ContentType{augmenter.ContentTypeContact}},
				}},
			},
			interest: augmenter.InterestSet{
				Kinds:        []augmenter.EventKind{augmenter.EventKindEntryCreated},
				ContentTypes: []augmenter.ContentType{augmenter.ContentTypeContact},
			},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			kernelRuntime := New()
			t.Cleanup(func() {
				_ = kernelRuntime.EventBus().Close(context.Background())
			})

			module := &stubModule{
				name: "contactnotify",
				spec: testCase.spec,
				onRegister: func(ctx context.Context, runtime augmenter.ModuleRuntime) error {
					_, err := runtime.Subscribe(ctx, testCase.interest, augmenter.SubscriptionSpec{},
						func(context.Context, *augmenter.Event) error { return nil })
					return err
				},
			}

			err := kernelRuntime.RegisterModule(context.Background(), module)
			if testCase.wantErr != (err != nil) {
				t.Fatalf("error = %v, want error %v", err, testCase.wantErr)
			}
			if testCase.wantErr && !errors.Is(err, augmenter.ErrInvalidSubscription) {
				t.Fatalf("error = %v, want %v", err, augmenter.ErrInvalidSubscription)
			}
		})
	}
}

func TestKernelReportsHandlerPanics(t *testing.T) {
	t.Parallel()

	reported := make(chan error, 1)
	kernelRuntime := New(WithAsyncErrorHandler(func(_ context.Context, _ string, _ *augmenter.Event, err error) {
		reported <- err
	}))
	t.Cleanup(func() {
		_ = kernelRuntime.EventBus().Close(context.Background())
	})

	module := &stubModule{
		name: "related",
		spec: augmenter.ModuleSpec{
			Handlers: []augmenter.ModuleHandler{
				articleHandler("refresh-related", "", func(context.Context, *augmenter.Event) error {
					panic("neighbour list corrupted")
				}),
			},
		},
	}
	if err := kernelRuntime.RegisterModule(context.Background(), module); err != nil {
		t.Fatalf("register module failed: %v", err)
	}
	if err := kernelRuntime.Publish(context.Background(), newTestEvent("e1", augmenter.EventKindEntryCreated)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case err := <-reported:
		var panicErr *PanicError
		if !errors.As(err, &panicErr) {
			t.Fatalf("reported error = %v, want *PanicError", err)
		}
		if panicErr.Value != "neighbour list corrupted" || len(panicErr.Stack) == 0 {
			t.Fatalf("panic error = %+v, want value and stack", panicErr)
		}
		if !strings.Contains(panicErr.Scope, "related-handler-1") {
			t.Fatalf("panic scope = %q, want default subscription name", panicErr.Scope)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for panic report")
	}
}

func TestRegisterModuleSpecValidation(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, *augmenter.Event) error { return nil }
	noopHook := func(context.Context, *augmenter.WriteRequest, *augmenter.Entry) error { return nil }

	tests := []struct {
		name       string
		spec       augmenter.ModuleSpec
		wantErrSub string
	}{
		{
			name:       "unnamed handler capability",
			spec:       augmenter.ModuleSpec{Handlers: []augmenter.ModuleHandler{articleHandler("", "", noop)}},
			wantErrSub: "empty capability name",
		},
		{
			name: "two handlers share a capability",
			spec: augmenter.ModuleSpec{Handlers: []augmenter.ModuleHandler{
				articleHandler("index", "", noop),
				articleHandler("index", "", noop),
			}},
			wantErrSub: "duplicate capability name",
		},
		{
			name:       "handler without function",
			spec:       augmenter.ModuleSpec{Handlers: []augmenter.ModuleHandler{articleHandler("index", "", nil)}},
			wantErrSub: "nil handler",
		},
		{
			name: "two handlers share a subscription",
			spec: augmenter.ModuleSpec{Handlers: []augmenter.ModuleHandler{
				articleHandler("index", "search", noop),
				articleHandler("delete", "search", noop),
			}},
			wantErrSub: "duplicate subscription name",
		},
		{
			name: "additional capability repeats handler capability",
			spec: augmenter.ModuleSpec{
				Handlers:               []augmenter.ModuleHandler{articleHandler("index", "", noop)},
				AdditionalCapabilities: []augmenter.Capability{{Name: "index"}},
			},
			wantErrSub: "duplicate capability name",
		},
		{
			name: "write hook without function",
			spec: augmenter.ModuleSpec{
				WriteHooks: []augmenter.ModuleWriteHook{{Capability: augmenter.Capability{Name: "excerpt"}}},
			},
			wantErrSub: "nil hook",
		},
		{
			name: "write hook repeats handler capability",
			spec: augmenter.ModuleSpec{
				Handlers: []augmenter.ModuleHandler{articleHandler("excerpt", "", noop)},
				WriteHooks: []augmenter.ModuleWriteHook{
					{Capability: augmenter.Capability{Name: "excerpt"}, Hook: noopHook},
				},
			},
			wantErrSub: "duplicate capability name",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			kernelRuntime := New()
			err := kernelRuntime.RegisterModule(context.Background(), &stubModule{name: "invalid", spec: testCase.spec})
			if err == nil || !strings.Contains(err.Error(), testCase.wantErrSub) {
				t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSub)
			}
		})
	}
}

// articleHandler declares a handler for article lifecycle events.
func articleHandler(capability string, subscription string, handler augmenter.EventHandler) augmenter.ModuleHandler {
	return augmenter.ModuleHandler{
		Capability: augmenter.Capability{
			Name: capability,
			Interest: augmenter.InterestSet{
				ContentTypes: []augmenter.ContentType{augmenter.ContentTypeArticle},
			},
		},
		Subscription: augmenter.SubscriptionSpec{Name: subscription},
		Handler:      handler,
	}
}

type stubModule struct {
	name string
	spec augmenter.ModuleSpec

	onRegister func(ctx context.Context, runtime augmenter.ModuleRuntime) error
	trace      func(step string)

	registered atomic.Int32
	started    atomic.Int32
	shutdown   atomic.Int32
}

func (m *stubModule) Name() string {
	return m.name
}

func (m *stubModule) Spec() augmenter.ModuleSpec {
	return m.spec
}

func (m *stubModule) OnRegister(ctx context.Context, runtime augmenter.ModuleRuntime) error {
	m.registered.Add(1)
	if m.onRegister != nil {
		return m.onRegister(ctx, runtime)
	}

	return nil
}

func (m *stubModule) OnStart(_ context.Context) error {
	m.started.Add(1)
	if m.trace != nil {
		m.trace(m.name + " start")
	}
	return nil
}

func (m *stubModule) OnShutdown(_ context.Context) error {
	m.shutdown.Add(1)
	if m.trace != nil {
		m.trace(m.name + " shutdown")
	}
	return nil
}

type stubDriver struct {
	name string

	started atomic.Int32
	stopped atomic.Int32
}

func (d *stubDriver) Name() string {
	return d.name
}

func (d *stubDriver) Start(ctx context.Context, _ augmenter.EventSink) error {
	d.started.Add(1)
	<-ctx.Done()
	return nil
}

func (d *stubDriver) Shutdown(_ context.Context) error {
	d.stopped.Add(1)
	return nil
}

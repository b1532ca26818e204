package related

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"ex-augmenter/pkg/augmenter"
)

func TestModuleOnRegister(t *testing.T) {
	tests := []struct {
		name             string
		services         map[string]any
		wantErrSubstring string
	}{
		{
			name: "registers related service",
			services: map[string]any{
				augmenter.ServiceLogger:       slog.Default(),
				augmenter.ServiceArticleStore: newArticleStoreStub(),
			},
		},
		{
			name: "invalid logger type fails",
			services: map[string]any{
				augmenter.ServiceLogger:       struct{}{},
				augmenter.ServiceArticleStore: newArticleStoreStub(),
			},
			wantErrSubstring: "related resolve logger",
		},
		{
			name:             "missing article store fails",
			services:         map[string]any{},
			wantErrSubstring: "related resolve article store",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			registry := newServiceRegistryStub()
			for name, service := range testCase.services {
				if err := registry.Register(name, service); err != nil {
					t.Fatalf("register service %s failed: %v", name, err)
				}
			}

			module := New()
			err := module.OnRegister(context.Background(), moduleRuntimeStub{registry: registry})
			if testCase.wantErrSubstring != "" {
				if err == nil || !strings.Contains(err.Error(), testCase.wantErrSubstring) {
					t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSubstring)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			resolved, err := registry.Resolve(augmenter.ServiceRelatedArticles)
			if err != nil {
				t.Fatalf("resolve related service failed: %v", err)
			}
			if _, ok := resolved.(augmenter.RelatedArticlesService); !ok {
				t.Fatalf("resolved service type = %T", resolved)
			}
		})
	}
}

func TestModuleOnStartResolvesTagSummaries(t *testing.T) {
	t.Parallel()

	registry := newServiceRegistryStub()
	if err := registry.Register(augmenter.ServiceArticleStore, newArticleStoreStub()); err != nil {
		t.Fatalf("register store failed: %v", err)
	}
	module := New()
	if err := module.OnRegister(context.Background(), moduleRuntimeStub{registry: registry}); err != nil {
		t.Fatalf("OnRegister failed: %v", err)
	}

	summaries := &tagSummaryStub{}
	if err := registry.Register(augmenter.ServiceTagSummaries, summaries); err != nil {
		t.Fatalf("register summaries failed: %v", err)
	}
	if err := module.OnStart(context.Background()); err != nil {
		t.Fatalf("OnStart failed: %v", err)
	}
	if module.summaries != summaries {
		t.Fatal("tag summary service was not resolved on start")
	}
}

func TestModuleHandleEvent(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	live := augmenter.ArticleEntry(article("a1", now, "go"))
	draft := augmenter.ArticleEntry(draftArticle("a1", now, "go"))

	tests := []struct {
		name       string
		event      *augmenter.Event
		relatedErr error
		wantCalls  []string
		wantErr    bool
	}{
		{
			name:      "published update refreshes summaries then related",
			event:     &augmenter.Event{Kind: augmenter.EventKindEntryUpdated, Entry: live, ChangedFields: []string{augmenter.FieldTitle}},
			wantCalls: []string{"summaries:a1", "related:a1:true"},
		},
		{
			name:  "internal write is skipped",
			event: &augmenter.Event{Kind: augmenter.EventKindEntryPublished, Entry: live, Context: augmenter.WriteContext{SkipRelatedLifecycle: true}},
		},
		{
			name:  "related only change is skipped",
			event: &augmenter.Event{Kind: augmenter.EventKindEntryUpdated, Entry: live, ChangedFields: []string{augmenter.FieldRelatedArticles}},
		},
		{
			name:  "draft is skipped",
			event: &augmenter.Event{Kind: augmenter.EventKindEntryCreated, Entry: draft},
		},
		{
			name:       "related failure is returned",
			event:      &augmenter.Event{Kind: augmenter.EventKindEntryCreated, Entry: live},
			relatedErr: errors.New("store down"),
			wantCalls:  []string{"summaries:a1", "related:a1:true"},
			wantErr:    true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			recorder := &callRecorder{}
			module := New()
			module.related = &relatedStub{recorder: recorder, err: testCase.relatedErr}
			module.summaries = &tagSummaryStub{recorder: recorder}

			err := module.handleEvent(context.Background(), testCase.event)
			if testCase.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := recorder.list(); !slices.Equal(got, testCase.wantCalls) {
				t.Fatalf("calls = %v, want %v", got, testCase.wantCalls)
			}
		})
	}
}

func TestModuleHandleEventContinuesAfterSummaryFailure(t *testing.T) {
	t.Parallel()

	recorder := &callRecorder{}
	module := New()
	module.related = &relatedStub{recorder: recorder}
	module.summaries = &tagSummaryStub{recorder: recorder, err: errors.New("llm down")}

	event := &augmenter.Event{
		Kind:  augmenter.EventKindEntryPublished,
		Entry: augmenter.ArticleEntry(article("a1", time.Now(), "go")),
	}
	if err := module.handleEvent(context.Background(), event); err != nil {
		t.Fatalf("handleEvent failed: %v", err)
	}
	if got := recorder.list(); !slices.Equal(got, []string{"summaries:a1", "related:a1:true"}) {
		t.Fatalf("calls = %v", got)
	}
}

func TestModuleSpecInterest(t *testing.T) {
	t.Parallel()

	spec := New().Spec()
	if len(spec.Handlers) != 1 {
		t.Fatalf("handlers = %d, want 1", len(spec.Handlers))
	}
	interest := spec.Handlers[0].Capability.Interest
	video := augmenter.VideoEntry(augmenter.Video{DocumentID: "v1", PublishedAt: augmenter.Time(time.Now())})
	if interest.Matches(&augmenter.Event{Kind: augmenter.EventKindEntryPublished, Entry: video}) {
		t.Fatal("interest must not match videos")
	}
	if interest.Matches(&augmenter.Event{Kind: augmenter.EventKindEntryDeleted, Entry: augmenter.ArticleEntry(article("a", time.Now()))}) {
		t.Fatal("interest must not match deletes")
	}
}

type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *callRecorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.calls)
}

type relatedStub struct {
	recorder *callRecorder
	err      error
}

func (s *relatedStub) UpdateRelatedArticles(_ context.Context, documentID string) error {
	s.recorder.add("update:" + documentID)
	return s.err
}

func (s *relatedStub) HandleArticleChange(_ context.Context, documentID string, propagate bool) error {
	if propagate {
		s.recorder.add("related:" + documentID + ":true")
	} else {
		s.recorder.add("related:" + documentID + ":false")
	}

	return s.err
}

type tagSummaryStub struct {
	recorder *callRecorder
	err      error
}

func (s *tagSummaryStub) UpdateTagSummary(context.Context, string) (*augmenter.Tag, error) {
	return nil, s.err
}

func (s *tagSummaryStub) UpdateTagsForArticle(_ context.Context, documentID string) error {
	if s.recorder != nil {
		s.recorder.add("summaries:" + documentID)
	}

	return s.err
}

package httpapi

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"ex-augmenter/pkg/augmenter"
)

func newTestServer(t *testing.T, cfg Config, deps Dependencies) *Server {
	t.Helper()

	if deps.Tags == nil {
		deps.Tags = &tagStoreStub{}
	}
	if deps.Summaries == nil {
		deps.Summaries = &summaryStub{}
	}
	server, err := New("http-test", cfg, deps,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }),
	)
	if err != nil {
		t.Fatalf("new server failed: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Shutdown(context.Background()); err != nil {
			t.Errorf("shutdown failed: %v", err)
		}
	})

	return server
}

type tagStoreStub struct {
	tags map[string]augmenter.Tag
	err  error
}

func (s *tagStoreStub) FindTag(_ context.Context, documentID string) (*augmenter.Tag, error) {
	if s.err != nil {
		return nil, s.err
	}
	tag, ok := s.tags[documentID]
	if !ok {
		return nil, augmenter.ErrNotFound
	}

	return &tag, nil
}

func (s *tagStoreStub) FindTags(context.Context, augmenter.TagQuery) ([]augmenter.Tag, error) {
	return nil, nil
}

func (s *tagStoreStub) UpdateTag(context.Context, string, augmenter.TagInput, augmenter.WriteOptions) (*augmenter.Tag, error) {
	return nil, nil
}

func (s *tagStoreStub) PublishTag(context.Context, string, augmenter.WriteOptions) (*augmenter.Tag, error) {
	return nil, nil
}

type summaryStub struct {
	mu      sync.Mutex
	calls   []string
	result  *augmenter.Tag
	err     error
	release chan struct{}
	done    chan string
}

func (s *summaryStub) UpdateTagSummary(ctx context.Context, documentID string) (*augmenter.Tag, error) {
	s.mu.Lock()
	s.calls = append(s.calls, documentID)
	s.mu.Unlock()

	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.done != nil {
		s.done <- documentID
	}

	return s.result, s.err
}

func (s *summaryStub) UpdateTagsForArticle(context.Context, string) error {
	return nil
}

func (s *summaryStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.calls)
}

type sinkStub struct {
	mu     sync.Mutex
	events []*augmenter.Event
	err    error
}

func (s *sinkStub) Publish(_ context.Context, event *augmenter.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)

	return nil
}

func (s *sinkStub) published() []*augmenter.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*augmenter.Event(nil), s.events...)
}

type echoStub struct {
	opts map[string]augmenter.WriteOptions
}

func (e *echoStub) ConsumeEcho(_ augmenter.ContentType, documentID string) (augmenter.WriteOptions, bool) {
	opts, ok := e.opts[documentID]
	if ok {
		delete(e.opts, documentID)
	}

	return opts, ok
}

type interceptorFunc func(ctx context.Context, req *augmenter.WriteRequest, current *augmenter.Entry) error

func (f interceptorFunc) BeforeWrite(ctx context.Context, req *augmenter.WriteRequest, current *augmenter.Entry) error {
	return f(ctx, req, current)
}

type articleWrite struct {
	documentID string
	input      augmenter.ArticleInput
	publish    bool
	opts       augmenter.WriteOptions
}

type articleStoreStub struct {
	writes []articleWrite
	err    error
}

func (s *articleStoreStub) FindArticle(context.Context, string) (*augmenter.Article, error) {
	return nil, augmenter.ErrNotFound
}

func (s *articleStoreStub) FindArticles(context.Context, augmenter.ArticleQuery) ([]augmenter.Article, error) {
	return nil, nil
}

func (s *articleStoreStub) UpdateArticle(
	_ context.Context,
	documentID string,
	input augmenter.ArticleInput,
	opts augmenter.WriteOptions,
) (*augmenter.Article, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.writes = append(s.writes, articleWrite{documentID: documentID, input: input, opts: opts})

	return &augmenter.Article{DocumentID: documentID}, nil
}

func (s *articleStoreStub) PublishArticle(
	_ context.Context,
	documentID string,
	opts augmenter.WriteOptions,
) (*augmenter.Article, error) {
	s.writes = append(s.writes, articleWrite{documentID: documentID, publish: true, opts: opts})

	return &augmenter.Article{DocumentID: documentID}, nil
}

type stampCall struct {
	contentType augmenter.ContentType
	documentID  string
	at          time.Time
	opts        augmenter.WriteOptions
}

type entryStoreStub struct {
	calls []stampCall
	err   error
}

func (s *entryStoreStub) SetPublicationDate(
	_ context.Context,
	contentType augmenter.ContentType,
	documentID string,
	at time.Time,
	opts augmenter.WriteOptions,
) error {
	s.calls = append(s.calls, stampCall{contentType: contentType, documentID: documentID, at: at, opts: opts})

	return s.err
}

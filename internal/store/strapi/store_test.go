package strapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ex-augmenter/pkg/augmenter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "secret-token"

func TestFindArticleFallsBackToDraft(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		statuses []string
	)
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		assert.Equal(t, "/api/articles/a1", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("populate[tags]"))
		assert.Equal(t, "documentId", r.URL.Query().Get("populate[relatedArticles][fields][0]"))

		status := r.URL.Query().Get("status")
		mu.Lock()
		statuses = append(statuses, status)
		mu.Unlock()
		if status == "published" {
			writeJSON(w, http.StatusNotFound, `{"data":null,"error":{"status":404,"name":"NotFoundError","message":"Not Found"}}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"data":{
			"id": 7, "documentId": "a1", "title": "Draft", "slug": "draft",
			"createdAt": "2024-05-01T10:00:00.000Z", "updatedAt": "2024-05-02T10:00:00.000Z",
			"publishedAt": null, "publicationDate": "2024-05-01",
			"tags": [{"id": 1, "documentId": "t1", "name": "Go", "slug": "go"}],
			"relatedArticles": [{"id": 9, "documentId": "a9"}]
		}}`)
	})

	article, err := store.FindArticle(context.Background(), "a1")
	require.NoError(t, err)
	mu.Lock()
	require.Equal(t, []string{"published", "draft"}, statuses)
	mu.Unlock()
	require.Equal(t, "Draft", article.Title)
	require.False(t, article.IsPublished())
	require.Equal(t, []string{"go"}, article.TagSlugs())
	require.Equal(t, []string{"a9"}, article.RelatedDocumentIDs())
	require.NotNil(t, article.PublicationDate)
	require.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), *article.PublicationDate)
}

func TestFindArticleNotFound(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, `{}`)
	})

	_, err := store.FindArticle(context.Background(), "missing")
	require.ErrorIs(t, err, augmenter.ErrNotFound)
}

func TestFindArticlesBuildsQuery(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		got []string
	)
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		mu.Lock()
		defer mu.Unlock()
		got = append(got,
			query.Get("filters[tags][slug][$in][0]"),
			query.Get("filters[tags][slug][$in][1]"),
			query.Get("filters[documentId][$ne]"),
			query.Get("status"),
			query.Get("sort[0]"),
			query.Get("pagination[limit]"),
		)
		writeJSON(w, http.StatusOK, `{"data":[{"documentId":"a2","title":"Two","publishedAt":"2024-05-03T00:00:00Z"}],"meta":{"pagination":{"start":0,"limit":3,"total":1}}}`)
	})

	articles, err := store.FindArticles(context.Background(), augmenter.ArticleQuery{
		TagSlugs:          []string{"go", "rust"},
		ExcludeDocumentID: "a1",
		PublishedOnly:     true,
		Sort:              []augmenter.Sort{{Field: augmenter.SortFieldPublishedAt, Desc: true}},
		Limit:             3,
	})
	require.NoError(t, err)
	require.Len(t, articles, 1)
	require.Equal(t, "a2", articles[0].DocumentID)
	mu.Lock()
	require.Equal(t, []string{"go", "rust", "a1", "published", "publishedAt:desc", "3"}, got)
	mu.Unlock()
}

func TestFindArticlesRejectsUnknownSort(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("unexpected request")
		writeJSON(w, http.StatusOK, `{"data":[]}`)
	})

	_, err := store.FindArticles(context.Background(), augmenter.ArticleQuery{
		Sort: []augmenter.Sort{{Field: "title"}},
	})
	require.ErrorContains(t, err, "unsupported sort field")
}

func TestFindTagsPagesThroughAll(t *testing.T) {
	t.Parallel()

	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		assert.Equal(t, "2024-05-01T00:00:00Z", query.Get("filters[updatedAt][$gt]"))
		assert.Equal(t, "updatedAt:desc", query.Get("sort[0]"))
		assert.Equal(t, "1", query.Get("pagination[pageSize]"))

		switch query.Get("pagination[page]") {
		case "1":
			writeJSON(w, http.StatusOK, `{"data":[{"documentId":"t1","slug":"go"}],"meta":{"pagination":{"page":1,"pageSize":1,"pageCount":2,"total":2}}}`)
		case "2":
			writeJSON(w, http.StatusOK, `{"data":[{"documentId":"t2","slug":"rust"}],"meta":{"pagination":{"page":2,"pageSize":1,"pageCount":2,"total":2}}}`)
		default:
			t.Errorf("unexpected page %q", query.Get("pagination[page]"))
		}
	}, WithPageSize(1))

	tags, err := store.FindTags(context.Background(), augmenter.TagQuery{UpdatedAfter: &since})
	require.NoError(t, err)
	require.Len(t, tags, 2)
	require.Equal(t, "go", tags[0].Slug)
	require.Equal(t, "rust", tags[1].Slug)
}

func TestUpdateArticleRunsHooksAndRemembersEcho(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		body map[string]map[string]any
	)
	store, interceptor := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, `{"data":{"documentId":"a1","title":"Hello","content":"Body.","publishedAt":"2024-05-01T00:00:00Z"}}`)
		case http.MethodPut:
			assert.Empty(t, r.URL.Query().Get("status"))
			raw, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			mu.Lock()
			assert.NoError(t, json.Unmarshal(raw, &body))
			mu.Unlock()
			writeJSON(w, http.StatusOK, `{"data":{"documentId":"a1","title":"Hello","excerpt":"Body."}}`)
		}
	})
	interceptor.hook = func(req *augmenter.WriteRequest, current *augmenter.Entry) error {
		require.NotNil(t, current.Article)
		req.Article.Excerpt = augmenter.String(current.Article.Content)
		return nil
	}

	opts := augmenter.WriteOptions{Context: augmenter.WriteContext{SkipRelatedLifecycle: true}}
	written, err := store.UpdateArticle(context.Background(), "a1", augmenter.ArticleInput{
		RelatedArticles: augmenter.Strings("a2", "a3"),
	}, opts)
	require.NoError(t, err)
	require.Equal(t, "Body.", written.Excerpt)

	mu.Lock()
	require.Equal(t, "Body.", body["data"]["excerpt"])
	require.Equal(t, map[string]any{"set": []any{"a2", "a3"}}, body["data"]["relatedArticles"])
	mu.Unlock()
	require.Len(t, interceptor.requests(), 1)

	echoed, ok := store.ConsumeEcho(augmenter.ContentTypeArticle, "a1")
	require.True(t, ok)
	require.Equal(t, opts, echoed)
	_, ok = store.ConsumeEcho(augmenter.ContentTypeArticle, "a1")
	require.False(t, ok)
}

func TestPublishArticleExpectsTwoNotifications(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			assert.Equal(t, "published", r.URL.Query().Get("status"))
		}
		writeJSON(w, http.StatusOK, `{"data":{"documentId":"a1","publishedAt":"2024-05-01T00:00:00Z"}}`)
	})

	opts := augmenter.WriteOptions{SuppressEvents: true}
	_, err := store.PublishArticle(context.Background(), "a1", opts)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		echoed, ok := store.ConsumeEcho(augmenter.ContentTypeArticle, "a1")
		require.True(t, ok)
		require.True(t, echoed.SuppressEvents)
	}
	_, ok := store.ConsumeEcho(augmenter.ContentTypeArticle, "a1")
	require.False(t, ok)
}

func TestFailedWriteRetractsEcho(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			writeJSON(w, http.StatusBadRequest, `{"data":null,"error":{"status":400,"name":"ValidationError","message":"slug must be unique"}}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"data":{"documentId":"t1","slug":"go"}}`)
	})

	_, err := store.UpdateTag(context.Background(), "t1", augmenter.TagInput{Slug: augmenter.String("go")}, augmenter.WriteOptions{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, "ValidationError", apiErr.Name)

	_, ok := store.ConsumeEcho(augmenter.ContentTypeTag, "t1")
	require.False(t, ok)
}

func TestBeforeWriteErrorSkipsRequest(t *testing.T) {
	t.Parallel()

	hookErr := errors.New("rejected")
	store, interceptor := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		writeJSON(w, http.StatusOK, `{"data":{"documentId":"t1","slug":"go"}}`)
	})
	interceptor.hook = func(*augmenter.WriteRequest, *augmenter.Entry) error { return hookErr }

	_, err := store.PublishTag(context.Background(), "t1", augmenter.WriteOptions{})
	require.ErrorIs(t, err, hookErr)
}

func TestSetPublicationDate(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		body string
	)
	store, interceptor := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/videos/v1", r.URL.Path)
		if r.Method == http.MethodPut {
			assert.Equal(t, "published", r.URL.Query().Get("status"))
			raw, _ := io.ReadAll(r.Body)
			mu.Lock()
			body = string(raw)
			mu.Unlock()
		}
		writeJSON(w, http.StatusOK, `{"data":{"documentId":"v1","publishedAt":"2024-05-01T00:00:00Z"}}`)
	})

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := store.SetPublicationDate(context.Background(), augmenter.ContentTypeVideo, "v1", at, augmenter.WriteOptions{})
	require.NoError(t, err)
	mu.Lock()
	require.JSONEq(t, `{"data":{"publicationDate":"2024-05-01T12:00:00Z"}}`, body)
	mu.Unlock()

	requests := interceptor.requests()
	require.Len(t, requests, 1)
	require.Equal(t, []string{augmenter.FieldPublicationDate}, requests[0].Fields())

	err = store.SetPublicationDate(context.Background(), augmenter.ContentTypeTag, "t1", at, augmenter.WriteOptions{})
	require.ErrorIs(t, err, augmenter.ErrUnsupportedContentType)
}

func TestEchoTrackerExpires(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tracker := newEchoTracker(time.Minute, func() time.Time { return now })

	tracker.remember(augmenter.ContentTypeArticle, "a1", augmenter.WriteOptions{SuppressEvents: true}, 1)
	now = now.Add(2 * time.Minute)
	tracker.remember(augmenter.ContentTypeArticle, "a1", augmenter.WriteOptions{}, 1)

	opts, ok := tracker.consume(augmenter.ContentTypeArticle, "a1")
	require.True(t, ok)
	require.False(t, opts.SuppressEvents)
	_, ok = tracker.consume(augmenter.ContentTypeArticle, "a1")
	require.False(t, ok)
	require.Empty(t, tracker.pending)
}

func TestEchoTrackerRetractsOnlyFailedWrite(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tracker := newEchoTracker(time.Minute, func() time.Time { return now })

	failed := tracker.remember(augmenter.ContentTypeArticle, "a1", augmenter.WriteOptions{SuppressEvents: true}, 1)
	tracker.remember(augmenter.ContentTypeArticle, "a1", augmenter.WriteOptions{Context: augmenter.WriteContext{SkipRelatedLifecycle: true}}, 2)
	tracker.retract(augmenter.ContentTypeArticle, "a1", failed)

	for range 2 {
		opts, ok := tracker.consume(augmenter.ContentTypeArticle, "a1")
		require.True(t, ok)
		require.False(t, opts.SuppressEvents)
		require.True(t, opts.Context.SkipRelatedLifecycle)
	}
	_, ok := tracker.consume(augmenter.ContentTypeArticle, "a1")
	require.False(t, ok)

	tracker.retract(augmenter.ContentTypeArticle, "a1", failed)
	require.Empty(t, tracker.pending)
	require.Zero(t, tracker.remember(augmenter.ContentTypeArticle, "a1", augmenter.WriteOptions{}, 0))
}

func TestDecodeEntry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType augmenter.ContentType
		raw         string
		wantErr     string
		check       func(t *testing.T, entry augmenter.Entry)
	}{
		{
			name:        "article with date-only publication date",
			contentType: augmenter.ContentTypeArticle,
			raw:         `{"id":1,"documentId":"a1","title":"T","publicationDate":"2024-05-01","publishedAt":"2024-05-02T08:00:00.000Z"}`,
			check: func(t *testing.T, entry augmenter.Entry) {
				require.NotNil(t, entry.Article)
				require.Equal(t, "T", entry.Article.Title)
				require.True(t, entry.IsPublished())
				require.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), *entry.PublicationDate)
			},
		},
		{
			name:        "contact",
			contentType: augmenter.ContentTypeContact,
			raw:         `{"documentId":"c1","firstname":"Ada","email":"ada@example.com","sponsorshipInquiry":true}`,
			check: func(t *testing.T, entry augmenter.Entry) {
				require.NotNil(t, entry.Contact)
				require.Equal(t, "Ada", entry.Contact.Firstname)
				require.True(t, entry.Contact.SponsorshipInquiry)
			},
		},
		{
			name:        "unknown content type keeps document fields",
			contentType: "api::page.page",
			raw:         `{"documentId":"p1","publishedAt":"2024-05-02T08:00:00Z"}`,
			check: func(t *testing.T, entry augmenter.Entry) {
				require.Equal(t, "p1", entry.DocumentID)
				require.Nil(t, entry.Article)
				require.Nil(t, entry.Contact)
				require.True(t, entry.IsPublished())
			},
		},
		{
			name:        "empty payload",
			contentType: augmenter.ContentTypeArticle,
			raw:         `null`,
			wantErr:     "empty payload",
		},
		{
			name:        "bad timestamp",
			contentType: augmenter.ContentTypeTag,
			raw:         `{"documentId":"t1","updatedAt":"yesterday"}`,
			wantErr:     "unsupported time format",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			entry, err := DecodeEntry(testCase.contentType, json.RawMessage(testCase.raw))
			if testCase.wantErr != "" {
				require.ErrorContains(t, err, testCase.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, testCase.contentType, entry.ContentType)
			testCase.check(t, entry)
		})
	}
}

func TestParseRuntimeConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    parsedRuntimeConfig
		wantErr string
	}{
		{
			name: "defaults",
			raw:  `{"api_token":"tok"}`,
			want: parsedRuntimeConfig{
				baseURL:        defaultBaseURL,
				apiToken:       "tok",
				requestTimeout: defaultRequestTimeout,
				echoTTL:        defaultEchoTTL,
				pageSize:       defaultPageSize,
			},
		},
		{
			name: "overrides",
			raw:  `{"base_url":"https://cms.example.com/","api_token":" tok ","request_timeout":"5s","echo_ttl":"30s","page_size":25}`,
			want: parsedRuntimeConfig{
				baseURL:        "https://cms.example.com",
				apiToken:       "tok",
				requestTimeout: 5 * time.Second,
				echoTTL:        30 * time.Second,
				pageSize:       25,
			},
		},
		{name: "missing", raw: ``, wantErr: "missing config"},
		{name: "missing token", raw: `{"base_url":"http://cms"}`, wantErr: "api_token is required"},
		{name: "bad duration", raw: `{"api_token":"tok","echo_ttl":"soon"}`, wantErr: "parse echo_ttl"},
		{name: "negative duration", raw: `{"api_token":"tok","request_timeout":"-1s"}`, wantErr: "must be > 0"},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseRuntimeConfig([]byte(testCase.raw))
			if testCase.wantErr != "" {
				require.ErrorContains(t, err, testCase.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, testCase.want, got)
		})
	}
}

func newTestStore(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Store, *hookInterceptor) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	interceptor := &hookInterceptor{}
	store, err := New(server.URL, testToken, interceptor, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store, interceptor
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.Copy(w, strings.NewReader(body))
}

type hookInterceptor struct {
	mu       sync.Mutex
	hook     func(req *augmenter.WriteRequest, current *augmenter.Entry) error
	recorded []augmenter.WriteRequest
}

func (h *hookInterceptor) BeforeWrite(_ context.Context, req *augmenter.WriteRequest, current *augmenter.Entry) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if h.hook != nil {
		if err := h.hook(req, current); err != nil {
			return err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.recorded = append(h.recorded, *req)

	return nil
}

func (h *hookInterceptor) requests() []augmenter.WriteRequest {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]augmenter.WriteRequest(nil), h.recorded...)
}

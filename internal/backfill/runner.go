package backfill

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ex-augmenter/internal/store/strapi"
	"ex-augmenter/pkg/augmenter"
)

const defaultRequestTimeout = 3 * time.Minute

// Report summarizes one run.
type Report struct {
	Fetched    int
	Candidates int
	Succeeded  int
	Failed     int
}

// Option mutates runner construction.
type Option func(*Runner)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(runner *Runner) {
		if client != nil {
			runner.client = client
		}
	}
}

// WithLogger configures the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(runner *Runner) {
		if logger != nil {
			runner.logger = logger
		}
	}
}

// TagLister lists every tag of the platform.
type TagLister interface {
	FindTags(ctx context.Context, query augmenter.TagQuery) ([]augmenter.Tag, error)
}

// OpenTagStore connects a read-only Strapi store for tag listing.
func OpenTagStore(cfg Config, logger *slog.Logger) (*strapi.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := strapi.New(cfg.StrapiURL, cfg.StrapiToken, readOnlyWrites{},
		strapi.WithPageSize(cfg.PageSize),
		strapi.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("backfill open tag store: %w", err)
	}

	return store, nil
}

// readOnlyWrites refuses every store write.
type readOnlyWrites struct{}

func (readOnlyWrites) BeforeWrite(_ context.Context, req *augmenter.WriteRequest, _ *augmenter.Entry) error {
	return fmt.Errorf("backfill is read-only: refused %s write of %s", req.ContentType, req.DocumentID)
}

// Runner lists tags and refreshes those without a summary.
type Runner struct {
	cfg    Config
	tags   TagLister
	client *http.Client
	logger *slog.Logger
	out    io.Writer
	outMu  sync.Mutex
}

// NewRunner creates a runner that lists tags from tags and prints progress
// lines to out.
func NewRunner(cfg Config, tags TagLister, out io.Writer, options ...Option) *Runner {
	runner := &Runner{
		cfg:    cfg,
		tags:   tags,
		client: &http.Client{Timeout: defaultRequestTimeout},
		logger: slog.Default(),
		out:    out,
	}
	if runner.out == nil {
		runner.out = io.Discard
	}
	for _, option := range options {
		option(runner)
	}

	return runner
}

// Run executes one backfill. Per-tag failures are counted, not returned.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	r.printf("strapi=%s service=%s pageSize=%d concurrency=%d wait=%t dryRun=%t\n",
		r.cfg.StrapiURL, r.cfg.ServiceURL, r.cfg.PageSize, r.cfg.Concurrency, r.cfg.Wait, r.cfg.DryRun)

	tags, err := r.tags.FindTags(ctx, augmenter.TagQuery{})
	if err != nil {
		return Report{}, fmt.Errorf("backfill list tags: %w", err)
	}
	candidates := make([]augmenter.Tag, 0, len(tags))
	for _, tag := range tags {
		if strings.TrimSpace(tag.Summary) == "" {
			candidates = append(candidates, tag)
		}
	}

	report := Report{Fetched: len(tags), Candidates: len(candidates)}
	r.printf("Fetched %d tag(s). Missing summary: %d.\n", report.Fetched, report.Candidates)
	if len(candidates) == 0 {
		return report, nil
	}

	var (
		countMu   sync.Mutex
		processed int
	)
	record := func(ok bool) int {
		countMu.Lock()
		defer countMu.Unlock()
		processed++
		if ok {
			report.Succeeded++
		} else {
			report.Failed++
		}
		return processed
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.cfg.Concurrency)
	for _, tag := range candidates {
		group.Go(func() error {
			name := tag.Name
			if name == "" {
				name = "unknown"
			}
			if tag.DocumentID == "" {
				record(false)
				r.printf("Skipping tag without documentId (name=%q)\n", name)
				return nil
			}
			if r.cfg.DryRun {
				r.printf("[DRY_RUN] Would update summary for tag %q (%s)\n", name, tag.DocumentID)
				return nil
			}

			if err := r.updateSummary(groupCtx, tag.DocumentID); err != nil {
				done := record(false)
				r.logger.Error("tag summary backfill failed", "document_id", tag.DocumentID, "error", err)
				r.printf("Failed updating summary for tag %q (%s) [%d/%d]\n", name, tag.DocumentID, done, len(candidates))
				return nil
			}
			done := record(true)
			r.printf("Updated summary for tag %q (%s) [%d/%d]\n", name, tag.DocumentID, done, len(candidates))
			return nil
		})
	}
	_ = group.Wait()

	r.printf("Done. total=%d succeeded=%d failed=%d\n", report.Candidates, report.Succeeded, report.Failed)

	return report, nil
}

// updateSummary asks the service to regenerate one tag summary.
func (r *Runner) updateSummary(ctx context.Context, documentID string) error {
	endpoint := r.cfg.ServiceURL + "/api/tags/" + url.PathEscape(documentID) + "/update-summary"
	if r.cfg.Wait {
		endpoint += "?wait=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.ServiceToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("HTTP %d for %s: %s", resp.StatusCode, endpoint, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

func (r *Runner) printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	_, _ = fmt.Fprintf(r.out, format, args...)
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"ex-augmenter/pkg/augmenter"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const eventSource = "sqlite"

// Store is an embedded document store that drives the same lifecycle hooks
// the content platform drives in production.
//
// Every write runs lifecycle.BeforeWrite against the stored snapshot, commits,
// and then publishes one lifecycle event unless the caller suppressed events.
type Store struct {
	db        *sql.DB
	lifecycle augmenter.Lifecycle
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

type options struct {
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
	busyTimeout time.Duration
}

// Option configures Open.
type Option func(*options)

// WithLogger configures the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator replaces the document id generator.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		if newID != nil {
			o.newID = newID
		}
	}
}

// WithBusyTimeout configures how long writers wait on a locked database.
func WithBusyTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.busyTimeout = timeout
		}
	}
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string, lifecycle augmenter.Lifecycle, opts ...Option) (*Store, error) {
	if lifecycle == nil {
		return nil, fmt.Errorf("open sqlite store: nil lifecycle")
	}
	cfg := options{
		logger:      slog.Default(),
		now:         time.Now,
		newID:       uuid.NewString,
		busyTimeout: defaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("open sqlite store: create directory %s: %w", dir, err)
		}
	}

	query := url.Values{}
	query.Add("_pragma", "foreign_keys(1)")
	query.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.busyTimeout.Milliseconds()))
	query.Add("_pragma", "journal_mode(WAL)")
	db, err := sql.Open("sqlite", path+"?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite store %s: %w", path, err)
	}
	// One connection keeps transactions and in-memory databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite store %s: apply schema: %w", path, err)
	}

	return &Store{
		db:        db,
		lifecycle: lifecycle,
		logger:    cfg.logger,
		now:       cfg.now,
		newID:     cfg.newID,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite store: %w", err)
	}

	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// emit publishes one lifecycle event for a committed write.
//
// The write is already durable, so publish failures are logged rather than returned.
func (s *Store) emit(
	ctx context.Context,
	kind augmenter.EventKind,
	entry augmenter.Entry,
	previous *augmenter.EntryState,
	fields []string,
	opts augmenter.WriteOptions,
) {
	if opts.SuppressEvents {
		return
	}

	event := &augmenter.Event{
		ID:            uuid.NewString(),
		Kind:          kind,
		OccurredAt:    s.now().UTC(),
		Source:        eventSource,
		Entry:         entry,
		Previous:      previous,
		ChangedFields: fields,
		Context:       opts.Context,
	}
	if err := s.lifecycle.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "sqlite store lifecycle publish failed",
			"event_kind", kind,
			"content_type", entry.ContentType,
			"document_id", entry.DocumentID,
			"error", err,
		)
	}
}

func (s *Store) timestamp() int64 {
	return s.now().UTC().UnixNano()
}

func stateOf(entry augmenter.Entry) *augmenter.EntryState {
	return &augmenter.EntryState{
		PublishedAt:     entry.PublishedAt,
		PublicationDate: entry.PublicationDate,
	}
}

func nullTime(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: value.UTC().UnixNano(), Valid: true}
}

func timeFromNull(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed := time.Unix(0, value.Int64).UTC()

	return &parsed
}

func timeFromUnix(value int64) time.Time {
	return time.Unix(0, value).UTC()
}

func mediaFromNull(mediaURL, alt sql.NullString, width, height sql.NullInt64) *augmenter.Media {
	if !mediaURL.Valid || mediaURL.String == "" {
		return nil
	}

	return &augmenter.Media{
		URL:             mediaURL.String,
		AlternativeText: alt.String,
		Width:           int(width.Int64),
		Height:          int(height.Int64),
	}
}

func boolInt(value bool) int {
	if value {
		return 1
	}

	return 0
}

func placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	marks := make([]byte, 0, count*2-1)
	for idx := range count {
		if idx > 0 {
			marks = append(marks, ',')
		}
		marks = append(marks, '?')
	}

	return string(marks)
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var _ augmenter.DocumentStore = (*Store)(nil)

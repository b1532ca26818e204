package strapi

import (
	"slices"
	"sync"
	"time"

	"ex-augmenter/pkg/augmenter"
)

type echoKey struct {
	contentType augmenter.ContentType
	documentID  string
}

type echoEntry struct {
	seq       uint64
	opts      augmenter.WriteOptions
	remaining int
	expiresAt time.Time
}

// echoTracker remembers this service's own writes until the platform
// webhooks that report them arrive.
type echoTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	nextSeq uint64
	pending map[echoKey][]echoEntry
}

func newEchoTracker(ttl time.Duration, now func() time.Time) *echoTracker {
	return &echoTracker{
		ttl:     ttl,
		now:     now,
		pending: make(map[echoKey][]echoEntry),
	}
}

// remember records one write expected to come back as notifications webhooks.
// The returned sequence identifies the write for retract; zero means nothing
// was recorded.
func (t *echoTracker) remember(
	contentType augmenter.ContentType,
	documentID string,
	opts augmenter.WriteOptions,
	notifications int,
) uint64 {
	if notifications <= 0 {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextSeq++
	key := echoKey{contentType: contentType, documentID: documentID}
	t.pending[key] = append(t.pending[key], echoEntry{
		seq:       t.nextSeq,
		opts:      opts,
		remaining: notifications,
		expiresAt: t.now().Add(t.ttl),
	})

	return t.nextSeq
}

// retract forgets the remembered write with sequence seq, used when it failed.
// Other writes pending for the same document keep their order.
func (t *echoTracker) retract(contentType augmenter.ContentType, documentID string, seq uint64) {
	if seq == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := echoKey{contentType: contentType, documentID: documentID}
	entries := slices.DeleteFunc(t.pending[key], func(entry echoEntry) bool {
		return entry.seq == seq
	})
	if len(entries) == 0 {
		delete(t.pending, key)
		return
	}
	t.pending[key] = entries
}

func (t *echoTracker) consume(contentType augmenter.ContentType, documentID string) (augmenter.WriteOptions, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := echoKey{contentType: contentType, documentID: documentID}
	entries := t.pending[key]
	now := t.now()
	for len(entries) > 0 && now.After(entries[0].expiresAt) {
		entries = entries[1:]
	}
	if len(entries) == 0 {
		delete(t.pending, key)
		return augmenter.WriteOptions{}, false
	}

	head := &entries[0]
	opts := head.opts
	head.remaining--
	if head.remaining == 0 {
		entries = entries[1:]
	}
	if len(entries) == 0 {
		delete(t.pending, key)
	} else {
		t.pending[key] = entries
	}

	return opts, true
}

package augmenter

import (
	"testing"
	"time"
)

func TestInterestSetMatches(t *testing.T) {
	t.Parallel()

	published := ArticleEntry(Article{DocumentID: "a1", PublishedAt: Time(time.Now())})
	draft := ArticleEntry(Article{DocumentID: "a2"})

	tests := []struct {
		name     string
		interest InterestSet
		event    *Event
		want     bool
	}{
		{
			name:     "empty interest matches everything",
			interest: InterestSet{},
			event:    &Event{Kind: EventKindEntryCreated, Entry: draft},
			want:     true,
		},
		{
			name:     "kind mismatch",
			interest: InterestSet{Kinds: []EventKind{EventKindEntryCreated}},
			event:    &Event{Kind: EventKindEntryUpdated, Entry: draft},
		},
		{
			name:     "content type mismatch",
			interest: InterestSet{ContentTypes: []ContentType{ContentTypeContact}},
			event:    &Event{Kind: EventKindEntryCreated, Entry: draft},
		},
		{
			name:     "requires published",
			interest: InterestSet{RequirePublished: true},
			event:    &Event{Kind: EventKindEntryCreated, Entry: draft},
		},
		{
			name:     "published passes",
			interest: InterestSet{RequirePublished: true, ContentTypes: []ContentType{ContentTypeArticle}},
			event:    &Event{Kind: EventKindEntryCreated, Entry: published},
			want:     true,
		},
		{
			name:     "requires api namespace",
			interest: InterestSet{RequireAPI: true},
			event:    &Event{Kind: EventKindEntryCreated, Entry: Entry{ContentType: "plugin::upload.file"}},
		},
		{
			name:     "nil event",
			interest: InterestSet{},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := testCase.interest.Matches(testCase.event); got != testCase.want {
				t.Fatalf("Matches() = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestInterestSetAllows(t *testing.T) {
	t.Parallel()

	capability := InterestSet{
		Kinds:        []EventKind{EventKindEntryCreated, EventKindEntryUpdated},
		ContentTypes: []ContentType{ContentTypeArticle},
	}

	tests := []struct {
		name   string
		filter InterestSet
		want   bool
	}{
		{
			name:   "narrower filter allowed",
			filter: InterestSet{Kinds: []EventKind{EventKindEntryCreated}, ContentTypes: []ContentType{ContentTypeArticle}},
			want:   true,
		},
		{
			name:   "extra kind rejected",
			filter: InterestSet{Kinds: []EventKind{EventKindEntryDeleted}, ContentTypes: []ContentType{ContentTypeArticle}},
		},
		{
			name:   "unbounded content types rejected",
			filter: InterestSet{Kinds: []EventKind{EventKindEntryCreated}},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := capability.Allows(testCase.filter); got != testCase.want {
				t.Fatalf("Allows() = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestInterestSetMatchesWrite(t *testing.T) {
	t.Parallel()

	interest := InterestSet{
		Operations:   []WriteOperation{WriteOperationUpdate},
		ContentTypes: []ContentType{ContentTypeArticle, ContentTypeVideo},
	}
	if !interest.MatchesWrite(&WriteRequest{Operation: WriteOperationUpdate, ContentType: ContentTypeVideo}) {
		t.Fatal("MatchesWrite(update video) = false, want true")
	}
	if interest.MatchesWrite(&WriteRequest{Operation: WriteOperationCreate, ContentType: ContentTypeVideo}) {
		t.Fatal("MatchesWrite(create video) = true, want false")
	}
	if interest.MatchesWrite(&WriteRequest{Operation: WriteOperationUpdate, ContentType: ContentTypeTag}) {
		t.Fatal("MatchesWrite(update tag) = true, want false")
	}
}

func TestNewDefaultSubscriptionSpec(t *testing.T) {
	t.Parallel()

	spec := NewDefaultSubscriptionSpec("worker")
	if spec.Name != "worker" {
		t.Fatalf("name = %s, want worker", spec.Name)
	}
	if spec.Buffer != 0 || spec.Workers != 0 || spec.HandlerTimeout != 0 || spec.Backpressure != "" {
		t.Fatalf("spec = %+v, want kernel defaults", spec)
	}
}

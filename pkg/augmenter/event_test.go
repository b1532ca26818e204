package augmenter

import (
	"errors"
	"testing"
	"time"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	valid := func() *Event {
		return &Event{
			ID:         "e1",
			Kind:       EventKindEntryUpdated,
			OccurredAt: now,
			Entry:      ArticleEntry(Article{DocumentID: "a1"}),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Event) *Event
		wantErr bool
	}{
		{name: "valid", mutate: func(e *Event) *Event { return e }},
		{name: "nil", mutate: func(*Event) *Event { return nil }, wantErr: true},
		{name: "missing id", mutate: func(e *Event) *Event { e.ID = ""; return e }, wantErr: true},
		{name: "unknown kind", mutate: func(e *Event) *Event { e.Kind = "entry.touched"; return e }, wantErr: true},
		{name: "zero time", mutate: func(e *Event) *Event { e.OccurredAt = time.Time{}; return e }, wantErr: true},
		{name: "missing content type", mutate: func(e *Event) *Event { e.Entry.ContentType = ""; return e }, wantErr: true},
		{
			name: "payload mismatch",
			mutate: func(e *Event) *Event {
				e.Entry.ContentType = ContentTypeVideo
				return e
			},
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := testCase.mutate(valid()).Validate()
			if testCase.wantErr {
				if !errors.Is(err, ErrInvalidEvent) {
					t.Fatalf("Validate() error = %v, want ErrInvalidEvent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
		})
	}
}

func TestEventBecameLive(t *testing.T) {
	t.Parallel()

	live := Time(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tests := []struct {
		name  string
		event *Event
		want  bool
	}{
		{
			name:  "draft to live",
			event: &Event{Kind: EventKindEntryUpdated, Entry: Entry{PublishedAt: live}, Previous: &EntryState{}},
			want:  true,
		},
		{
			name:  "already live",
			event: &Event{Kind: EventKindEntryUpdated, Entry: Entry{PublishedAt: live}, Previous: &EntryState{PublishedAt: live}},
		},
		{
			name:  "still draft",
			event: &Event{Kind: EventKindEntryUpdated, Previous: &EntryState{}},
		},
		{
			name:  "unknown previous publish",
			event: &Event{Kind: EventKindEntryPublished, Entry: Entry{PublishedAt: live}},
			want:  true,
		},
		{
			name:  "unknown previous update",
			event: &Event{Kind: EventKindEntryUpdated, Entry: Entry{PublishedAt: live}},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := testCase.event.BecameLive(); got != testCase.want {
				t.Fatalf("BecameLive() = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestEventOnlyChanged(t *testing.T) {
	t.Parallel()

	event := &Event{ChangedFields: []string{FieldRelatedArticles}}
	if !event.OnlyChanged(FieldRelatedArticles) {
		t.Fatal("OnlyChanged(relatedArticles) = false, want true")
	}

	event.ChangedFields = append(event.ChangedFields, FieldTitle)
	if event.OnlyChanged(FieldRelatedArticles) {
		t.Fatal("OnlyChanged(relatedArticles) = true with two fields, want false")
	}

	event.ChangedFields = nil
	if event.OnlyChanged(FieldRelatedArticles) {
		t.Fatal("OnlyChanged(relatedArticles) = true with unknown fields, want false")
	}
}

func TestWriteRequestFields(t *testing.T) {
	t.Parallel()

	req := &WriteRequest{
		Operation:       WriteOperationUpdate,
		ContentType:     ContentTypeArticle,
		DocumentID:      "a1",
		Publish:         true,
		PublicationDate: Time(time.Now()),
		Article: &ArticleInput{
			Content:         String("body"),
			RelatedArticles: Strings("b", "c"),
		},
	}

	got := req.Fields()
	want := []string{FieldContent, FieldRelatedArticles, FieldPublicationDate, FieldPublishedAt}
	if len(got) != len(want) {
		t.Fatalf("Fields() = %v, want %v", got, want)
	}
	for index := range want {
		if got[index] != want[index] {
			t.Fatalf("Fields()[%d] = %s, want %s", index, got[index], want[index])
		}
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

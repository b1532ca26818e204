package excerpt

import (
	"context"
	"testing"

	"ex-augmenter/pkg/augmenter"
)

func TestBeforeCreate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		input       *augmenter.ArticleInput
		wantExcerpt *string
	}{
		{
			name:        "fills missing excerpt",
			input:       &augmenter.ArticleInput{Content: augmenter.String("## Hi\n\nThere *you*\n\nrest")},
			wantExcerpt: augmenter.String("Hi There you"),
		},
		{
			name:        "keeps written excerpt",
			input:       &augmenter.ArticleInput{Content: augmenter.String("body"), Excerpt: augmenter.String("mine")},
			wantExcerpt: augmenter.String("mine"),
		},
		{
			name:        "empty excerpt is replaced",
			input:       &augmenter.ArticleInput{Content: augmenter.String("body"), Excerpt: augmenter.String("")},
			wantExcerpt: augmenter.String("body"),
		},
		{
			name:  "no content leaves excerpt unset",
			input: &augmenter.ArticleInput{Title: augmenter.String("t")},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			req := &augmenter.WriteRequest{
				Operation:   augmenter.WriteOperationCreate,
				ContentType: augmenter.ContentTypeArticle,
				Article:     testCase.input,
			}
			if err := beforeCreate(context.Background(), req, nil); err != nil {
				t.Fatalf("beforeCreate failed: %v", err)
			}
			assertExcerpt(t, req.Article.Excerpt, testCase.wantExcerpt)
		})
	}
}

func TestBeforeUpdate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		input          *augmenter.ArticleInput
		wantExcerpt    *string
		wantRegenReset bool
	}{
		{
			name: "regenerate flag overwrites excerpt",
			input: &augmenter.ArticleInput{
				Content:           augmenter.String("New body"),
				Excerpt:           augmenter.String("old"),
				RegenerateExcerpt: augmenter.Bool(true),
			},
			wantExcerpt:    augmenter.String("New body"),
			wantRegenReset: true,
		},
		{
			name:           "missing excerpt with content",
			input:          &augmenter.ArticleInput{Content: augmenter.String("Body")},
			wantExcerpt:    augmenter.String("Body"),
			wantRegenReset: true,
		},
		{
			name:        "existing excerpt without flag is kept",
			input:       &augmenter.ArticleInput{Content: augmenter.String("Body"), Excerpt: augmenter.String("keep")},
			wantExcerpt: augmenter.String("keep"),
		},
		{
			name:  "flag without content does nothing",
			input: &augmenter.ArticleInput{RegenerateExcerpt: augmenter.Bool(true)},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			req := &augmenter.WriteRequest{
				Operation:   augmenter.WriteOperationUpdate,
				ContentType: augmenter.ContentTypeArticle,
				DocumentID:  "a1",
				Article:     testCase.input,
			}
			if err := beforeUpdate(context.Background(), req, nil); err != nil {
				t.Fatalf("beforeUpdate failed: %v", err)
			}
			assertExcerpt(t, req.Article.Excerpt, testCase.wantExcerpt)

			reset := req.Article.RegenerateExcerpt != nil && !*req.Article.RegenerateExcerpt
			if reset != testCase.wantRegenReset {
				t.Fatalf("regenerate reset = %v, want %v", reset, testCase.wantRegenReset)
			}
		})
	}
}

func TestHooksIgnoreRequestsWithoutArticle(t *testing.T) {
	t.Parallel()

	req := &augmenter.WriteRequest{Operation: augmenter.WriteOperationUpdate, ContentType: augmenter.ContentTypeArticle, DocumentID: "a1", Publish: true}
	if err := beforeUpdate(context.Background(), req, nil); err != nil {
		t.Fatalf("beforeUpdate failed: %v", err)
	}
	if err := beforeCreate(context.Background(), req, nil); err != nil {
		t.Fatalf("beforeCreate failed: %v", err)
	}
	if req.Article != nil {
		t.Fatal("hooks must not add an article payload")
	}
}

func assertExcerpt(t *testing.T, got *string, want *string) {
	t.Helper()

	switch {
	case want == nil && got != nil:
		t.Fatalf("excerpt = %q, want unset", *got)
	case want != nil && got == nil:
		t.Fatalf("excerpt unset, want %q", *want)
	case want != nil && *got != *want:
		t.Fatalf("excerpt = %q, want %q", *got, *want)
	}
}

// Package excerpt fills article excerpts from markdown content before writes.
package excerpt

import (
	"context"

	"ex-augmenter/pkg/augmenter"
)

// Module derives article excerpts in a before-write hook.
type Module struct{}

// New creates the excerpt module.
func New() *Module {
	return &Module{}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "excerpt"
}

// Spec declares the article before-write hooks.
func (m *Module) Spec() augmenter.ModuleSpec {
	return augmenter.ModuleSpec{
		WriteHooks: []augmenter.ModuleWriteHook{
			{
				Capability: augmenter.Capability{
					Name:        "article-excerpt-create",
					Description: "derives a missing excerpt from content on article create",
					Interest: augmenter.InterestSet{
						ContentTypes: []augmenter.ContentType{augmenter.ContentTypeArticle},
						Operations:   []augmenter.WriteOperation{augmenter.WriteOperationCreate},
					},
				},
				Hook: beforeCreate,
			},
			{
				Capability: augmenter.Capability{
					Name:        "article-excerpt-update",
					Description: "regenerates the excerpt on request or when it is missing",
					Interest: augmenter.InterestSet{
						ContentTypes: []augmenter.ContentType{augmenter.ContentTypeArticle},
						Operations:   []augmenter.WriteOperation{augmenter.WriteOperationUpdate},
					},
				},
				Hook: beforeUpdate,
			},
		},
	}
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func beforeCreate(_ context.Context, req *augmenter.WriteRequest, _ *augmenter.Entry) error {
	input := req.Article
	if input == nil {
		return nil
	}
	if augmenter.Deref(input.Excerpt) == "" && augmenter.Deref(input.Content) != "" {
		input.Excerpt = augmenter.String(augmenter.ExtractExcerpt(*input.Content))
	}

	return nil
}

// beforeUpdate only looks at the written data: a partial write without
// content never touches the excerpt.
func beforeUpdate(_ context.Context, req *augmenter.WriteRequest, _ *augmenter.Entry) error {
	input := req.Article
	if input == nil {
		return nil
	}
	content := augmenter.Deref(input.Content)
	if content == "" {
		return nil
	}

	regenerate := augmenter.Deref(input.RegenerateExcerpt)
	missing := augmenter.Deref(input.Excerpt) == ""
	if regenerate || missing {
		input.Excerpt = augmenter.String(augmenter.ExtractExcerpt(content))
		input.RegenerateExcerpt = augmenter.Bool(false)
	}

	return nil
}

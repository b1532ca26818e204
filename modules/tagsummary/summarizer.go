package tagsummary

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"ex-augmenter/pkg/augmenter"
	llmconfig "ex-augmenter/pkg/llm/config"
)

const (
	maxBriefs            = 5
	maxDescriptionLength = 300
)

var (
	summaryPreamblePattern = regexp.MustCompile(`(?i)^(here's a summary:|summary:|in summary:)`)
	newlineRunPattern      = regexp.MustCompile(`\n+`)
)

// ArticleBrief is the article digest sent to the model.
type ArticleBrief struct {
	Title       string
	Description string
	Date        string
	URL         string
}

// Generator turns article briefs into a tag summary.
type Generator interface {
	Summarize(ctx context.Context, tagName string, briefs []ArticleBrief) (string, error)
}

// Summarizer generates tag summaries through a configured LLM provider.
type Summarizer struct {
	providers augmenter.LLMProviderRegistry
	summary   llmconfig.Summary
	prompt    *template.Template
	timeout   time.Duration
}

// NewSummarizer builds a summarizer from llm configuration.
//
// providers may be nil; Summarize then fails for every tag with articles.
func NewSummarizer(cfg llmconfig.Config, providers augmenter.LLMProviderRegistry) (*Summarizer, error) {
	prompt, err := llmconfig.ParseUserPrompt(cfg.Summary.UserPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("new summarizer: %w", err)
	}

	return &Summarizer{
		providers: providers,
		summary:   cfg.Summary,
		prompt:    prompt,
		timeout:   cfg.RequestTimeout,
	}, nil
}

// Summarize returns a short neutral summary of briefs for tagName.
func (s *Summarizer) Summarize(ctx context.Context, tagName string, briefs []ArticleBrief) (string, error) {
	if len(briefs) == 0 {
		return fmt.Sprintf("No recent news articles found for %s.", tagName), nil
	}
	if s.providers == nil {
		return "", fmt.Errorf("summarize %s: %w: no llm provider configured", tagName, augmenter.ErrNotConfigured)
	}
	provider, err := s.providers.Resolve(s.summary.Provider)
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", tagName, err)
	}

	var prompt bytes.Buffer
	if err := s.prompt.Execute(&prompt, struct {
		TagName  string
		Articles string
	}{
		TagName:  tagName,
		Articles: renderBriefs(briefs),
	}); err != nil {
		return "", fmt.Errorf("summarize %s render prompt: %w", tagName, err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	stream, err := provider.GenerateStream(ctx, augmenter.LLMGenerateRequest{
		Model: s.summary.Model,
		Messages: []augmenter.LLMMessage{
			{Role: augmenter.LLMMessageRoleSystem, Content: s.summary.SystemPrompt},
			{Role: augmenter.LLMMessageRoleUser, Content: prompt.String()},
		},
		MaxOutputTokens: s.summary.MaxOutputTokens,
		Temperature:     s.summary.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", tagName, err)
	}
	text, err := augmenter.CollectText(ctx, stream)
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", tagName, err)
	}

	return cleanSummary(text), nil
}

func renderBriefs(briefs []ArticleBrief) string {
	if len(briefs) > maxBriefs {
		briefs = briefs[:maxBriefs]
	}

	rendered := make([]string, 0, len(briefs))
	for index, brief := range briefs {
		rendered = append(rendered, strconv.Itoa(index+1)+". "+brief.Title+"\n"+truncateDescription(brief.Description))
	}

	return strings.Join(rendered, "\n\n")
}

func truncateDescription(description string) string {
	runes := []rune(description)
	if len(runes) <= maxDescriptionLength {
		return description
	}

	return string(runes[:maxDescriptionLength]) + "..."
}

func cleanSummary(text string) string {
	text = strings.TrimSpace(text)
	text = summaryPreamblePattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	text = newlineRunPattern.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

var _ Generator = (*Summarizer)(nil)

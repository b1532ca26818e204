package sqlite

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"ex-augmenter/pkg/augmenter"

	"gopkg.in/yaml.v3"
)

// Fixture is a YAML document set loaded by the seed command.
//
// Tags are referenced by slug from articles and videos.
type Fixture struct {
	Tags     []FixtureTag     `yaml:"tags"`
	Articles []FixtureArticle `yaml:"articles"`
	Videos   []FixtureVideo   `yaml:"videos"`
	Pointers []FixturePointer `yaml:"pointers"`
	Contacts []FixtureContact `yaml:"contacts"`
}

// FixtureTag is one seeded tag.
type FixtureTag struct {
	Name string `yaml:"name"`
	Slug string `yaml:"slug"`
}

// FixtureMedia is one seeded media reference.
type FixtureMedia struct {
	URL    string `yaml:"url"`
	Alt    string `yaml:"alt"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// FixtureArticle is one seeded article.
type FixtureArticle struct {
	Title           string        `yaml:"title"`
	Slug            string        `yaml:"slug"`
	Content         string        `yaml:"content"`
	Excerpt         string        `yaml:"excerpt"`
	ArticleType     string        `yaml:"articleType"`
	Highlight       bool          `yaml:"highlight"`
	Cover           *FixtureMedia `yaml:"cover"`
	Tags            []string      `yaml:"tags"`
	Publish         bool          `yaml:"publish"`
	PublicationDate *time.Time    `yaml:"publicationDate"`
}

// FixtureVideo is one seeded video.
type FixtureVideo struct {
	Title           string        `yaml:"title"`
	Slug            string        `yaml:"slug"`
	Description     string        `yaml:"description"`
	Thumbnail       *FixtureMedia `yaml:"thumbnail"`
	Tags            []string      `yaml:"tags"`
	Publish         bool          `yaml:"publish"`
	PublicationDate *time.Time    `yaml:"publicationDate"`
}

// FixturePointer is one seeded pointer.
type FixturePointer struct {
	Title   string `yaml:"title"`
	URL     string `yaml:"url"`
	Publish bool   `yaml:"publish"`
}

// FixtureContact is one seeded contact submission.
type FixtureContact struct {
	Firstname          string `yaml:"firstname"`
	Lastname           string `yaml:"lastname"`
	Email              string `yaml:"email"`
	Source             string `yaml:"source"`
	CompanyName        string `yaml:"companyName"`
	CompanyWebsite     string `yaml:"companyWebsite"`
	SponsorshipInquiry bool   `yaml:"sponsorshipInquiry"`
	BudgetRange        string `yaml:"budgetRange"`
	AdditionalInfo     string `yaml:"additionalInfo"`
}

// SeedResult counts created documents per kind.
type SeedResult struct {
	Tags     int
	Articles int
	Videos   int
	Pointers int
	Contacts int
}

// LoadFixture reads and strictly decodes one YAML fixture file.
func LoadFixture(path string) (Fixture, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)

	var fixture Fixture
	if err := decoder.Decode(&fixture); err != nil {
		return Fixture{}, fmt.Errorf("decode fixture %s: %w", path, err)
	}

	return fixture, nil
}

// Seed creates every fixture document in order: tags, articles, videos,
// pointers, then contacts.
//
// Writes run through the lifecycle like any other write, so seeded articles
// trigger excerpt generation, related refresh and tag summaries.
func (s *Store) Seed(ctx context.Context, fixture Fixture) (SeedResult, error) {
	var result SeedResult

	tagIDs := make(map[string]string, len(fixture.Tags))
	for _, tag := range fixture.Tags {
		created, err := s.CreateTag(ctx, augmenter.TagInput{
			Name: augmenter.String(tag.Name),
			Slug: augmenter.String(tag.Slug),
		}, CreateOptions{Publish: true})
		if err != nil {
			return result, fmt.Errorf("seed tag %s: %w", tag.Slug, err)
		}
		tagIDs[created.Slug] = created.DocumentID
		result.Tags++
	}

	resolveTags := func(slugs []string) ([]string, error) {
		ids := make([]string, 0, len(slugs))
		for _, slug := range slugs {
			id, ok := tagIDs[slug]
			if !ok {
				return nil, fmt.Errorf("unknown tag slug %q", slug)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	for _, article := range fixture.Articles {
		tags, err := resolveTags(article.Tags)
		if err != nil {
			return result, fmt.Errorf("seed article %s: %w", article.Slug, err)
		}
		input := augmenter.ArticleInput{
			Title:       augmenter.String(article.Title),
			Slug:        augmenter.String(article.Slug),
			Content:     augmenter.String(article.Content),
			Excerpt:     augmenter.String(article.Excerpt),
			ArticleType: augmenter.String(article.ArticleType),
			Highlight:   augmenter.Bool(article.Highlight),
			Cover:       fixtureMedia(article.Cover),
			Tags:        &tags,
		}
		if _, err := s.CreateArticle(ctx, input, CreateOptions{
			Publish:         article.Publish,
			PublicationDate: article.PublicationDate,
		}); err != nil {
			return result, fmt.Errorf("seed article %s: %w", article.Slug, err)
		}
		result.Articles++
	}

	for _, video := range fixture.Videos {
		tags, err := resolveTags(video.Tags)
		if err != nil {
			return result, fmt.Errorf("seed video %s: %w", video.Slug, err)
		}
		if _, err := s.CreateVideo(ctx, VideoInput{
			Title:       video.Title,
			Slug:        video.Slug,
			Description: video.Description,
			Thumbnail:   fixtureMedia(video.Thumbnail),
			Tags:        tags,
		}, CreateOptions{
			Publish:         video.Publish,
			PublicationDate: video.PublicationDate,
		}); err != nil {
			return result, fmt.Errorf("seed video %s: %w", video.Slug, err)
		}
		result.Videos++
	}

	for _, pointer := range fixture.Pointers {
		if _, err := s.CreatePointer(ctx, PointerInput{
			Title: pointer.Title,
			URL:   pointer.URL,
		}, CreateOptions{Publish: pointer.Publish}); err != nil {
			return result, fmt.Errorf("seed pointer %s: %w", pointer.URL, err)
		}
		result.Pointers++
	}

	for _, contact := range fixture.Contacts {
		if _, err := s.CreateContact(ctx, augmenter.Contact{
			Firstname:          contact.Firstname,
			Lastname:           contact.Lastname,
			Email:              contact.Email,
			Source:             contact.Source,
			CompanyName:        contact.CompanyName,
			CompanyWebsite:     contact.CompanyWebsite,
			SponsorshipInquiry: contact.SponsorshipInquiry,
			BudgetRange:        contact.BudgetRange,
			AdditionalInfo:     contact.AdditionalInfo,
		}, augmenter.WriteOptions{}); err != nil {
			return result, fmt.Errorf("seed contact %s: %w", contact.Email, err)
		}
		result.Contacts++
	}

	return result, nil
}

func fixtureMedia(media *FixtureMedia) *augmenter.Media {
	if media == nil || media.URL == "" {
		return nil
	}

	return &augmenter.Media{
		URL:             media.URL,
		AlternativeText: media.Alt,
		Width:           media.Width,
		Height:          media.Height,
	}
}

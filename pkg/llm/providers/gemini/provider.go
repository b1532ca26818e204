package gemini

import (
	"context"
	"fmt"
	"iter"
	"math"
	"net/url"
	"strings"
	"time"
	"unicode"

	"ex-augmenter/pkg/augmenter"

	"google.golang.org/genai"
)

const defaultAPIVersion = "v1beta"

// ProviderConfig configures one Gemini-backed provider instance.
type ProviderConfig struct {
	// APIKey is the credential used to authenticate requests.
	APIKey string
	// BaseURL optionally overrides the Gemini endpoint.
	BaseURL string
	// APIVersion optionally overrides Gemini API version.
	//
	// Zero defaults to v1beta.
	APIVersion string
	// ThinkingBudget optionally sets the thinking token budget.
	//
	// Short outputs such as tag summaries usually want 0 so the output
	// token cap is not spent on thoughts.
	ThinkingBudget *int
	// IncludeThoughts optionally asks models to include thought parts.
	IncludeThoughts bool
}

// Provider is an LLM provider backed by the Google Gemini streaming API.
type Provider struct {
	models          geminiModelsClient
	thinkingBudget  *int32
	includeThoughts bool
}

type geminiModelsClient interface {
	GenerateContentStream(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) iter.Seq2[*genai.GenerateContentResponse, error]
}

// New builds one Gemini API provider instance.
func New(cfg ProviderConfig) (*Provider, error) {
	normalized, budget, err := normalizeProviderConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("new gemini provider: %w", err)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  normalized.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    normalized.BaseURL,
			APIVersion: normalized.APIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("new gemini client: %w", err)
	}
	if client == nil || client.Models == nil {
		return nil, fmt.Errorf("new gemini client: models client is nil")
	}

	return &Provider{
		models:          client.Models,
		thinkingBudget:  budget,
		includeThoughts: normalized.IncludeThoughts,
	}, nil
}

// GenerateStream starts one Gemini streaming request.
func (p *Provider) GenerateStream(
	ctx context.Context,
	req augmenter.LLMGenerateRequest,
) (augmenter.LLMStream, error) {
	if p == nil {
		return nil, fmt.Errorf("gemini generate stream: nil provider")
	}
	if ctx == nil {
		return nil, fmt.Errorf("gemini generate stream: nil context")
	}
	if p.models == nil {
		return nil, fmt.Errorf("gemini generate stream: models client is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("gemini generate stream validate request: %w", err)
	}

	contents, config, err := p.mapGenerateRequest(req)
	if err != nil {
		return nil, fmt.Errorf("gemini generate stream map request: %w", err)
	}
	// The caller context is the only deadline for streams.
	streamTimeout := time.Duration(0)
	config.HTTPOptions = &genai.HTTPOptions{Timeout: &streamTimeout}

	stream := p.models.GenerateContentStream(ctx, strings.TrimSpace(req.Model), contents, config)
	if stream == nil {
		return nil, fmt.Errorf("gemini generate stream: stream is nil")
	}

	return newGeminiStream(stream), nil
}

func (p *Provider) mapGenerateRequest(
	req augmenter.LLMGenerateRequest,
) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	systemParts := make([]string, 0, len(req.Messages))
	contents := make([]*genai.Content, 0, len(req.Messages))
	for index, message := range req.Messages {
		switch message.Role {
		case augmenter.LLMMessageRoleSystem:
			systemParts = append(systemParts, message.Content)
		case augmenter.LLMMessageRoleUser, augmenter.LLMMessageRoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  mapMessageRole(message.Role),
				Parts: []*genai.Part{{Text: message.Content}},
			})
		default:
			return nil, nil, fmt.Errorf("messages[%d] role: unsupported role %q", index, message.Role)
		}
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("missing non-system messages")
	}

	config := &genai.GenerateContentConfig{}
	if len(systemParts) > 0 {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(systemParts, "\n\n")}},
		}
	}
	if req.Temperature > 0 {
		temperature := float32(req.Temperature)
		config.Temperature = &temperature
	}
	if req.MaxOutputTokens > 0 {
		if req.MaxOutputTokens > math.MaxInt32 {
			return nil, nil, fmt.Errorf("max_output_tokens exceeds int32 range")
		}
		config.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if p.thinkingBudget != nil || p.includeThoughts {
		thinking := &genai.ThinkingConfig{IncludeThoughts: p.includeThoughts}
		if p.thinkingBudget != nil {
			budget := *p.thinkingBudget
			thinking.ThinkingBudget = &budget
		}
		config.ThinkingConfig = thinking
	}

	return contents, config, nil
}

func mapMessageRole(role augmenter.LLMMessageRole) string {
	if role == augmenter.LLMMessageRoleAssistant {
		return string(genai.RoleModel)
	}

	return string(genai.RoleUser)
}

func normalizeProviderConfig(cfg ProviderConfig) (ProviderConfig, *int32, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return ProviderConfig{}, nil, fmt.Errorf("missing api_key")
	}

	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL != "" {
		parsed, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return ProviderConfig{}, nil, fmt.Errorf("parse base_url: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return ProviderConfig{}, nil, fmt.Errorf("parse base_url: must include scheme and host")
		}
	}

	rawVersion := cfg.APIVersion
	cfg.APIVersion = strings.TrimSpace(cfg.APIVersion)
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if !isValidAPIVersion(cfg.APIVersion) {
		return ProviderConfig{}, nil, fmt.Errorf("invalid api_version %q", rawVersion)
	}

	var budget *int32
	if cfg.ThinkingBudget != nil {
		if *cfg.ThinkingBudget < 0 {
			return ProviderConfig{}, nil, fmt.Errorf("thinking_budget: must be >= 0")
		}
		if *cfg.ThinkingBudget > math.MaxInt32 {
			return ProviderConfig{}, nil, fmt.Errorf("thinking_budget: must fit int32")
		}
		value := int32(*cfg.ThinkingBudget)
		budget = &value
	}

	return cfg, budget, nil
}

func isValidAPIVersion(raw string) bool {
	if raw == "" {
		return false
	}
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		switch r {
		case '-', '.', '_':
			continue
		default:
			return false
		}
	}

	return true
}

var _ augmenter.LLMProvider = (*Provider)(nil)

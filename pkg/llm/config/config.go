package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/template"
	"time"
	"unicode"
)

const (
	defaultRequestTimeout = 60 * time.Second

	// ProviderTypeOpenAI selects the OpenAI Responses provider.
	ProviderTypeOpenAI = "openai"
	// ProviderTypeGemini selects the Gemini Developer API provider.
	ProviderTypeGemini = "gemini"

	defaultGeminiAPIVersion = "v1beta"

	// DefaultSummaryProvider is the provider profile created from OPENAI_API_KEY.
	DefaultSummaryProvider = "openai"
	// DefaultSummaryModel is used when neither configuration nor AI_MODEL_ID names a model.
	DefaultSummaryModel = "gpt-4o-mini"

	defaultSummaryMaxOutputTokens = 150
	defaultSummaryTemperature     = 0.3

	envOpenAIAPIKey = "OPENAI_API_KEY"
	envAIModelID    = "AI_MODEL_ID"
)

// DefaultSystemPrompt instructs the model how to summarize a tag.
const DefaultSystemPrompt = "You are a helpful assistant that creates concise, informative summaries about " +
	"collections of news articles. Always respond with 2-3 sentences that capture the key themes and insights " +
	"from the provided articles. Be neutral, factual, and avoid speculation."

// DefaultUserPromptTemplate renders the per-tag request.
//
// Template fields: .TagName and .Articles (the rendered numbered article list).
const DefaultUserPromptTemplate = `Create a concise 2-3 sentence summary of the latest news about "{{.TagName}}" based on these recent articles:

{{.Articles}}

Focus on the main themes, trends, or key developments. Be neutral and factual. Do not mention specific article titles or dates in your summary.`

// Config is the LLM configuration used by tag summary generation.
type Config struct {
	// RequestTimeout bounds one summary generation call.
	RequestTimeout time.Duration
	// Providers contains provider profiles keyed by profile name.
	Providers map[string]ProviderProfile
	// Summary selects the provider, model and prompts for tag summaries.
	Summary Summary
}

// ProviderProfile describes one named provider profile.
type ProviderProfile struct {
	// Type identifies provider implementation kind.
	Type string
	// APIKey is the provider credential.
	APIKey string
	// BaseURL optionally overrides provider API endpoint.
	BaseURL string
	// OpenAI carries OpenAI-specific options.
	OpenAI *OpenAIOptions
	// Gemini carries Gemini-specific options.
	Gemini *GeminiOptions
}

// OpenAIOptions carries OpenAI-specific profile options.
type OpenAIOptions struct {
	Organization    string
	Project         string
	MaxRetries      *int
	ReasoningEffort string
}

// GeminiOptions carries Gemini-specific profile options.
type GeminiOptions struct {
	// APIVersion selects the Gemini Developer API version.
	APIVersion string
	// ThinkingBudget optionally sets thinking token budget.
	ThinkingBudget *int
	// IncludeThoughts requests thought parts when supported.
	IncludeThoughts bool
}

// Summary configures tag summary generation.
type Summary struct {
	// Provider identifies which provider profile to resolve.
	Provider string
	// Model identifies which provider model name to call.
	Model string
	// MaxOutputTokens limits generated token count.
	MaxOutputTokens int
	// Temperature controls output randomness.
	Temperature float64
	// SystemPrompt is sent verbatim as the system message.
	SystemPrompt string
	// UserPromptTemplate is a text/template rendered per tag.
	UserPromptTemplate string
}

type fileConfig struct {
	RequestTimeout string                       `json:"request_timeout"`
	Providers      map[string]fileProviderEntry `json:"providers"`
	Summary        *fileSummary                 `json:"summary"`
}

type fileProviderEntry struct {
	Type    string           `json:"type"`
	APIKey  string           `json:"api_key"`
	BaseURL string           `json:"base_url"`
	OpenAI  *fileOpenAIEntry `json:"openai"`
	Gemini  *fileGeminiEntry `json:"gemini"`
}

type fileOpenAIEntry struct {
	Organization    string `json:"organization"`
	Project         string `json:"project"`
	MaxRetries      *int   `json:"max_retries"`
	ReasoningEffort string `json:"reasoning_effort"`
}

type fileGeminiEntry struct {
	APIVersion      string `json:"api_version"`
	ThinkingBudget  *int   `json:"thinking_budget"`
	IncludeThoughts bool   `json:"include_thoughts"`
}

type fileSummary struct {
	Provider           string   `json:"provider"`
	Model              string   `json:"model"`
	MaxOutputTokens    *int     `json:"max_output_tokens"`
	Temperature        *float64 `json:"temperature"`
	SystemPrompt       string   `json:"system_prompt"`
	UserPromptTemplate string   `json:"user_prompt_template"`
}

type rootRaw struct {
	Providers json.RawMessage `json:"providers"`
}

// Default returns the configuration used when no llm section is present.
func Default() Config {
	return Config{
		RequestTimeout: defaultRequestTimeout,
		Providers:      map[string]ProviderProfile{},
		Summary: Summary{
			Provider:           DefaultSummaryProvider,
			Model:              DefaultSummaryModel,
			MaxOutputTokens:    defaultSummaryMaxOutputTokens,
			Temperature:        defaultSummaryTemperature,
			SystemPrompt:       DefaultSystemPrompt,
			UserPromptTemplate: DefaultUserPromptTemplate,
		},
	}
}

// Parse decodes and validates one JSON llm section on top of Default.
//
// An empty payload yields Default.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return cfg, nil
	}

	if err := validateDuplicateProviderKeys(data); err != nil {
		return Config{}, fmt.Errorf("parse llm config: %w", err)
	}

	var parsed fileConfig
	if err := decodeStrictJSON(data, &parsed); err != nil {
		return Config{}, fmt.Errorf("parse llm config: %w", err)
	}

	if rawTimeout := strings.TrimSpace(parsed.RequestTimeout); rawTimeout != "" {
		timeout, err := time.ParseDuration(rawTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse llm config request_timeout: %w", err)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("parse llm config request_timeout: must be > 0")
		}
		cfg.RequestTimeout = timeout
	}

	for key, rawProvider := range parsed.Providers {
		profileKey := strings.TrimSpace(key)
		if profileKey == "" {
			return Config{}, fmt.Errorf("parse llm config providers: empty provider key")
		}
		if _, exists := cfg.Providers[profileKey]; exists {
			return Config{}, fmt.Errorf("parse llm config providers: duplicate provider key %s", profileKey)
		}
		cfg.Providers[profileKey] = parseProviderProfile(rawProvider)
	}

	if parsed.Summary != nil {
		applySummary(&cfg.Summary, *parsed.Summary)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ApplyEnv overlays OPENAI_API_KEY and AI_MODEL_ID.
//
// OPENAI_API_KEY fills the api_key of the default openai profile, creating the
// profile when the configuration does not declare it.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if cfg == nil || lookup == nil {
		return
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderProfile{}
	}

	if apiKey, ok := lookup(envOpenAIAPIKey); ok && strings.TrimSpace(apiKey) != "" {
		profile, exists := cfg.Providers[DefaultSummaryProvider]
		if !exists {
			profile = ProviderProfile{Type: ProviderTypeOpenAI}
		}
		if profile.Type == ProviderTypeOpenAI {
			profile.APIKey = strings.TrimSpace(apiKey)
			cfg.Providers[DefaultSummaryProvider] = profile
		}
	}
	if model, ok := lookup(envAIModelID); ok && strings.TrimSpace(model) != "" {
		cfg.Summary.Model = strings.TrimSpace(model)
	}
}

// SummaryEnabled reports whether the summary provider profile is configured.
func (cfg Config) SummaryEnabled() bool {
	_, exists := cfg.Providers[strings.TrimSpace(cfg.Summary.Provider)]
	return exists
}

// Validate checks configuration coherence.
//
// A summary provider that is not configured is allowed; generation then
// fails at call time the way a missing OPENAI_API_KEY does.
func (cfg Config) Validate() error {
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("validate llm config: request_timeout must be > 0")
	}
	for key, profile := range cfg.Providers {
		if err := validateProviderProfile(key, profile); err != nil {
			return fmt.Errorf("validate llm config providers[%s]: %w", key, err)
		}
	}
	if err := validateSummary(cfg.Summary); err != nil {
		return fmt.Errorf("validate llm config summary: %w", err)
	}

	return nil
}

func applySummary(summary *Summary, raw fileSummary) {
	if provider := strings.TrimSpace(raw.Provider); provider != "" {
		summary.Provider = provider
	}
	if model := strings.TrimSpace(raw.Model); model != "" {
		summary.Model = model
	}
	if raw.MaxOutputTokens != nil {
		summary.MaxOutputTokens = *raw.MaxOutputTokens
	}
	if raw.Temperature != nil {
		summary.Temperature = *raw.Temperature
	}
	if prompt := strings.TrimSpace(raw.SystemPrompt); prompt != "" {
		summary.SystemPrompt = prompt
	}
	if prompt := strings.TrimSpace(raw.UserPromptTemplate); prompt != "" {
		summary.UserPromptTemplate = prompt
	}
}

func parseProviderProfile(raw fileProviderEntry) ProviderProfile {
	profile := ProviderProfile{
		Type:    strings.ToLower(strings.TrimSpace(raw.Type)),
		APIKey:  strings.TrimSpace(raw.APIKey),
		BaseURL: strings.TrimSpace(raw.BaseURL),
	}
	if raw.OpenAI != nil {
		profile.OpenAI = &OpenAIOptions{
			Organization:    strings.TrimSpace(raw.OpenAI.Organization),
			Project:         strings.TrimSpace(raw.OpenAI.Project),
			MaxRetries:      cloneIntPointer(raw.OpenAI.MaxRetries),
			ReasoningEffort: strings.ToLower(strings.TrimSpace(raw.OpenAI.ReasoningEffort)),
		}
	}
	if raw.Gemini != nil {
		profile.Gemini = &GeminiOptions{
			APIVersion:      strings.TrimSpace(raw.Gemini.APIVersion),
			ThinkingBudget:  cloneIntPointer(raw.Gemini.ThinkingBudget),
			IncludeThoughts: raw.Gemini.IncludeThoughts,
		}
	}

	if profile.Type == ProviderTypeGemini {
		if profile.Gemini == nil {
			profile.Gemini = &GeminiOptions{}
		}
		if profile.Gemini.APIVersion == "" {
			profile.Gemini.APIVersion = defaultGeminiAPIVersion
		}
	}

	return profile
}

func validateProviderProfile(profileKey string, profile ProviderProfile) error {
	if strings.TrimSpace(profileKey) == "" {
		return fmt.Errorf("empty provider key")
	}

	switch strings.ToLower(strings.TrimSpace(profile.Type)) {
	case "":
		return fmt.Errorf("missing type")
	case ProviderTypeOpenAI:
		if strings.TrimSpace(profile.APIKey) == "" {
			return fmt.Errorf("missing api_key")
		}
		if profile.Gemini != nil {
			return fmt.Errorf("gemini options are only supported for gemini providers")
		}
		if profile.OpenAI != nil && profile.OpenAI.MaxRetries != nil && *profile.OpenAI.MaxRetries < 0 {
			return fmt.Errorf("invalid openai options: max_retries must be >= 0")
		}
	case ProviderTypeGemini:
		if strings.TrimSpace(profile.APIKey) == "" {
			return fmt.Errorf("missing api_key")
		}
		if profile.OpenAI != nil {
			return fmt.Errorf("openai options are only supported for openai providers")
		}
		if profile.Gemini != nil {
			if !isValidAPIVersion(profile.Gemini.APIVersion) {
				return fmt.Errorf("invalid gemini options: invalid api_version %q", profile.Gemini.APIVersion)
			}
			if profile.Gemini.ThinkingBudget != nil && *profile.Gemini.ThinkingBudget < 0 {
				return fmt.Errorf("invalid gemini options: thinking_budget must be >= 0")
			}
		}
	default:
		return fmt.Errorf("unsupported type %q", profile.Type)
	}

	if rawBaseURL := strings.TrimSpace(profile.BaseURL); rawBaseURL != "" {
		parsed, err := url.Parse(rawBaseURL)
		if err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid base_url: must include scheme and host")
		}
	}

	return nil
}

func validateSummary(summary Summary) error {
	if strings.TrimSpace(summary.Provider) == "" {
		return fmt.Errorf("missing provider")
	}
	if strings.TrimSpace(summary.Model) == "" {
		return fmt.Errorf("missing model")
	}
	if summary.MaxOutputTokens < 0 {
		return fmt.Errorf("max_output_tokens must be >= 0")
	}
	if summary.Temperature < 0 {
		return fmt.Errorf("temperature must be >= 0")
	}
	if strings.TrimSpace(summary.SystemPrompt) == "" {
		return fmt.Errorf("missing system_prompt")
	}
	if _, err := ParseUserPrompt(summary.UserPromptTemplate); err != nil {
		return err
	}

	return nil
}

// ParseUserPrompt compiles a user prompt template with strict key lookup.
func ParseUserPrompt(raw string) (*template.Template, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("missing user_prompt_template")
	}
	parsed, err := template.New("user-prompt").Option("missingkey=error").Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid user_prompt_template: %w", err)
	}

	return parsed, nil
}

func validateDuplicateProviderKeys(data []byte) error {
	var raw rootRaw
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode root json: %w", err)
	}
	if len(raw.Providers) == 0 || bytes.Equal(raw.Providers, []byte("null")) {
		return nil
	}

	seen := make(map[string]struct{})
	decoder := json.NewDecoder(bytes.NewReader(raw.Providers))
	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	delim, ok := token.(json.Delim)
	if !ok || delim != '{' {
		return fmt.Errorf("providers: expected object")
	}

	for decoder.More() {
		rawKey, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("providers: %w", err)
		}
		key, ok := rawKey.(string)
		if !ok {
			return fmt.Errorf("providers: expected string key")
		}
		trimmedKey := strings.TrimSpace(key)
		if _, exists := seen[trimmedKey]; exists {
			return fmt.Errorf("providers: duplicate provider key %s", trimmedKey)
		}
		seen[trimmedKey] = struct{}{}

		var discard json.RawMessage
		if err := decoder.Decode(&discard); err != nil {
			return fmt.Errorf("providers[%s]: %w", trimmedKey, err)
		}
	}
	if _, err := decoder.Token(); err != nil {
		return fmt.Errorf("providers: %w", err)
	}

	return nil
}

func decodeStrictJSON(data []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return fmt.Errorf("unexpected trailing content")
		}
		return fmt.Errorf("decode trailing json: %w", err)
	}

	return nil
}

func isValidAPIVersion(raw string) bool {
	if strings.TrimSpace(raw) == "" {
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

func cloneIntPointer(value *int) *int {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}

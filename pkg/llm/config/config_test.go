package config

import (
	"strings"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name             string
		body             string
		wantErrSubstring string
		assert           func(*testing.T, Config)
	}{
		{
			name: "empty payload yields defaults",
			body: "",
			assert: func(t *testing.T, cfg Config) {
				t.Helper()
				if cfg.RequestTimeout != defaultRequestTimeout {
					t.Fatalf("request timeout = %s, want %s", cfg.RequestTimeout, defaultRequestTimeout)
				}
				if cfg.Summary.Model != DefaultSummaryModel || cfg.Summary.Provider != DefaultSummaryProvider {
					t.Fatalf("summary = %+v, want default provider/model", cfg.Summary)
				}
				if cfg.Summary.MaxOutputTokens != 150 || cfg.Summary.Temperature != 0.3 {
					t.Fatalf("summary limits = %d/%v, want 150/0.3", cfg.Summary.MaxOutputTokens, cfg.Summary.Temperature)
				}
				if cfg.SummaryEnabled() {
					t.Fatal("summary enabled without providers")
				}
			},
		},
		{
			name: "valid openai and gemini config",
			body: `{
				"request_timeout":"45s",
				"providers":{
					"openai":{
						"type":"openai",
						"api_key":"sk-test",
						"base_url":"https://api.openai.com/v1",
						"openai":{"organization":"org-test","max_retries":3,"reasoning_effort":"Low"}
					},
					"gemini-main":{
						"type":"gemini",
						"api_key":"gm-test",
						"gemini":{"thinking_budget":0}
					}
				},
				"summary":{"provider":"gemini-main","model":"gemini-2.5-flash","max_output_tokens":200,"temperature":0}
			}`,
			assert: func(t *testing.T, cfg Config) {
				t.Helper()
				if cfg.RequestTimeout != 45*time.Second {
					t.Fatalf("request timeout = %s, want 45s", cfg.RequestTimeout)
				}
				openAI := cfg.Providers["openai"]
				if openAI.OpenAI == nil || openAI.OpenAI.ReasoningEffort != "low" || *openAI.OpenAI.MaxRetries != 3 {
					t.Fatalf("openai options = %+v, want normalized options", openAI.OpenAI)
				}
				gemini := cfg.Providers["gemini-main"]
				if gemini.Gemini == nil || gemini.Gemini.APIVersion != defaultGeminiAPIVersion {
					t.Fatalf("gemini options = %+v, want default api version", gemini.Gemini)
				}
				if cfg.Summary.Provider != "gemini-main" || cfg.Summary.MaxOutputTokens != 200 || cfg.Summary.Temperature != 0 {
					t.Fatalf("summary = %+v, want overrides", cfg.Summary)
				}
				if cfg.Summary.SystemPrompt != DefaultSystemPrompt {
					t.Fatal("system prompt should keep the default")
				}
				if !cfg.SummaryEnabled() {
					t.Fatal("summary should be enabled")
				}
			},
		},
		{
			name:             "duplicate provider keys",
			body:             `{"providers":{"a":{"type":"openai","api_key":"x"},"a":{"type":"openai","api_key":"y"}}}`,
			wantErrSubstring: "duplicate provider key a",
		},
		{
			name:             "unknown field",
			body:             `{"agents":[]}`,
			wantErrSubstring: "unknown field",
		},
		{
			name:             "invalid request timeout",
			body:             `{"request_timeout":"0s"}`,
			wantErrSubstring: "must be > 0",
		},
		{
			name:             "openai without api key",
			body:             `{"providers":{"openai":{"type":"openai"}}}`,
			wantErrSubstring: "missing api_key",
		},
		{
			name:             "unsupported provider type",
			body:             `{"providers":{"x":{"type":"anthropic","api_key":"k"}}}`,
			wantErrSubstring: "unsupported type",
		},
		{
			name:             "mismatched provider options",
			body:             `{"providers":{"x":{"type":"openai","api_key":"k","gemini":{}}}}`,
			wantErrSubstring: "only supported for gemini",
		},
		{
			name:             "negative thinking budget",
			body:             `{"providers":{"g":{"type":"gemini","api_key":"k","gemini":{"thinking_budget":-1}}}}`,
			wantErrSubstring: "thinking_budget",
		},
		{
			name:             "invalid base url",
			body:             `{"providers":{"x":{"type":"openai","api_key":"k","base_url":"localhost"}}}`,
			wantErrSubstring: "invalid base_url",
		},
		{
			name:             "invalid user prompt template",
			body:             `{"summary":{"user_prompt_template":"{{.TagName"}}`,
			wantErrSubstring: "invalid user_prompt_template",
		},
		{
			name:             "negative temperature",
			body:             `{"summary":{"temperature":-1}}`,
			wantErrSubstring: "temperature must be >= 0",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Parse([]byte(testCase.body))
			if testCase.wantErrSubstring != "" {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), testCase.wantErrSubstring) {
					t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSubstring)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if testCase.assert != nil {
				testCase.assert(t, cfg)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cfg        Config
		env        map[string]string
		wantKey    string
		wantModel  string
		wantExists bool
	}{
		{
			name:       "creates default openai profile",
			cfg:        Default(),
			env:        map[string]string{"OPENAI_API_KEY": " sk-env ", "AI_MODEL_ID": "gpt-4.1-mini"},
			wantKey:    "sk-env",
			wantModel:  "gpt-4.1-mini",
			wantExists: true,
		},
		{
			name: "overrides configured key",
			cfg: Config{
				RequestTimeout: time.Second,
				Providers:      map[string]ProviderProfile{"openai": {Type: ProviderTypeOpenAI, APIKey: "sk-file"}},
				Summary:        Summary{Model: "gpt-4o"},
			},
			env:        map[string]string{"OPENAI_API_KEY": "sk-env"},
			wantKey:    "sk-env",
			wantModel:  "gpt-4o",
			wantExists: true,
		},
		{
			name:      "no env keeps config",
			cfg:       Default(),
			env:       map[string]string{},
			wantModel: DefaultSummaryModel,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg := testCase.cfg
			cfg.ApplyEnv(func(key string) (string, bool) {
				value, ok := testCase.env[key]
				return value, ok
			})

			profile, exists := cfg.Providers[DefaultSummaryProvider]
			if exists != testCase.wantExists {
				t.Fatalf("profile exists = %v, want %v", exists, testCase.wantExists)
			}
			if exists && profile.APIKey != testCase.wantKey {
				t.Fatalf("api key = %q, want %q", profile.APIKey, testCase.wantKey)
			}
			if cfg.Summary.Model != testCase.wantModel {
				t.Fatalf("model = %q, want %q", cfg.Summary.Model, testCase.wantModel)
			}
		})
	}
}

func TestParseUserPromptRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	tmpl, err := ParseUserPrompt("{{.Missing}}")
	if err != nil {
		t.Fatalf("ParseUserPrompt failed: %v", err)
	}
	var builder strings.Builder
	if err := tmpl.Execute(&builder, map[string]string{"TagName": "go"}); err == nil {
		t.Fatal("expected execute error for missing key")
	}
}

package gemini

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"testing"

	"ex-augmenter/pkg/augmenter"

	"google.golang.org/genai"
)

func TestNewGeminiProviderConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		cfg              ProviderConfig
		wantErrSubstring string
	}{
		{
			name: "valid config",
			cfg: ProviderConfig{
				APIKey:         "gm-test",
				BaseURL:        "https://generativelanguage.googleapis.com/",
				APIVersion:     "v1beta",
				ThinkingBudget: ptrInt(0),
			},
		},
		{
			name:             "missing api key",
			cfg:              ProviderConfig{APIKey: "   "},
			wantErrSubstring: "missing api_key",
		},
		{
			name:             "invalid base url",
			cfg:              ProviderConfig{APIKey: "gm-test", BaseURL: "not a url"},
			wantErrSubstring: "parse base_url",
		},
		{
			name:             "invalid api version",
			cfg:              ProviderConfig{APIKey: "gm-test", APIVersion: "v1 beta"},
			wantErrSubstring: "invalid api_version",
		},
		{
			name:             "negative thinking budget",
			cfg:              ProviderConfig{APIKey: "gm-test", ThinkingBudget: ptrInt(-1)},
			wantErrSubstring: "thinking_budget",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			provider, err := New(testCase.cfg)
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
				t.Fatalf("New failed: %v", err)
			}
			if provider == nil {
				t.Fatal("expected provider instance")
			}
		})
	}
}

func TestGeminiProviderGenerateStreamValidation(t *testing.T) {
	t.Parallel()

	provider := &Provider{models: &modelsClientStub{stream: emptySeq()}}

	_, err := provider.GenerateStream(context.Background(), augmenter.LLMGenerateRequest{Model: "gemini-2.5-flash"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "validate request") {
		t.Fatalf("error = %v, want validate request error", err)
	}
}

func TestGeminiProviderGenerateStreamMapsRequest(t *testing.T) {
	t.Parallel()

	client := &modelsClientStub{
		stream: seqFromSteps([]streamStep{
			{response: textResponse([]*genai.Part{{Text: "thought", Thought: true}, {Text: "Go "}})},
			{response: textResponse([]*genai.Part{{Text: "news."}})},
		}),
	}
	budget := int32(0)
	provider := &Provider{models: client, thinkingBudget: &budget}

	stream, err := provider.GenerateStream(context.Background(), augmenter.LLMGenerateRequest{
		Model: " gemini-2.5-flash ",
		Messages: []augmenter.LLMMessage{
			{Role: augmenter.LLMMessageRoleSystem, Content: "sys-1"},
			{Role: augmenter.LLMMessageRoleSystem, Content: "sys-2"},
			{Role: augmenter.LLMMessageRoleUser, Content: "hello"},
			{Role: augmenter.LLMMessageRoleAssistant, Content: "hi"},
		},
		MaxOutputTokens: 150,
		Temperature:     0.3,
	})
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}

	if len(client.calls) != 1 {
		t.Fatalf("call count = %d, want 1", len(client.calls))
	}
	call := client.calls[0]
	if call.model != "gemini-2.5-flash" {
		t.Fatalf("model = %q, want gemini-2.5-flash", call.model)
	}
	if len(call.contents) != 2 {
		t.Fatalf("contents len = %d, want 2", len(call.contents))
	}
	if call.contents[0].Role != string(genai.RoleUser) || call.contents[1].Role != string(genai.RoleModel) {
		t.Fatalf("roles = %q,%q, want user,model", call.contents[0].Role, call.contents[1].Role)
	}
	if got := call.config.SystemInstruction.Parts[0].Text; got != "sys-1\n\nsys-2" {
		t.Fatalf("system instruction = %q, want joined system prompts", got)
	}
	if call.config.MaxOutputTokens != 150 {
		t.Fatalf("max output tokens = %d, want 150", call.config.MaxOutputTokens)
	}
	if call.config.Temperature == nil || *call.config.Temperature != float32(0.3) {
		t.Fatalf("temperature = %v, want 0.3", call.config.Temperature)
	}
	if call.config.ThinkingConfig == nil || call.config.ThinkingConfig.ThinkingBudget == nil ||
		*call.config.ThinkingConfig.ThinkingBudget != 0 {
		t.Fatalf("thinking config = %+v, want budget 0", call.config.ThinkingConfig)
	}
	if call.config.HTTPOptions == nil || call.config.HTTPOptions.Timeout == nil || *call.config.HTTPOptions.Timeout != 0 {
		t.Fatalf("http options = %+v, want disabled timeout", call.config.HTTPOptions)
	}

	text, err := augmenter.CollectText(context.Background(), stream)
	if err != nil {
		t.Fatalf("CollectText failed: %v", err)
	}
	if text != "Go news." {
		t.Fatalf("text = %q, want %q", text, "Go news.")
	}
}

func TestGeminiProviderRejectsSystemOnlyRequest(t *testing.T) {
	t.Parallel()

	provider := &Provider{models: &modelsClientStub{}}
	_, err := provider.GenerateStream(context.Background(), augmenter.LLMGenerateRequest{
		Model:    "gemini-2.5-flash",
		Messages: []augmenter.LLMMessage{{Role: augmenter.LLMMessageRoleSystem, Content: "sys"}},
	})
	if err == nil || !strings.Contains(err.Error(), "missing non-system messages") {
		t.Fatalf("error = %v, want missing non-system messages", err)
	}
}

func TestGeminiStreamEvents(t *testing.T) {
	t.Parallel()

	streamErr := errors.New("boom")
	tests := []struct {
		name      string
		steps     []streamStep
		wantKinds []augmenter.LLMGenerateChunkKind
		wantText  []string
		wantErr   func(error) bool
	}{
		{
			name: "thought and output parts keep order",
			steps: []streamStep{
				{response: textResponse([]*genai.Part{{Text: "a", Thought: true}, {Text: "b"}, {Text: ""}, {Text: "c"}})},
			},
			wantKinds: []augmenter.LLMGenerateChunkKind{
				augmenter.LLMGenerateChunkKindThinking,
				augmenter.LLMGenerateChunkKindOutputText,
				augmenter.LLMGenerateChunkKindOutputText,
			},
			wantText: []string{"a", "b", "c"},
			wantErr:  func(err error) bool { return errors.Is(err, io.EOF) },
		},
		{
			name: "empty candidates are skipped",
			steps: []streamStep{
				{response: &genai.GenerateContentResponse{}},
				{response: textResponse([]*genai.Part{{Text: "x"}})},
			},
			wantKinds: []augmenter.LLMGenerateChunkKind{augmenter.LLMGenerateChunkKindOutputText},
			wantText:  []string{"x"},
			wantErr:   func(err error) bool { return errors.Is(err, io.EOF) },
		},
		{
			name:    "stream error",
			steps:   []streamStep{{err: streamErr}},
			wantErr: func(err error) bool { return errors.Is(err, streamErr) },
		},
		{
			name:    "nil response",
			steps:   []streamStep{{}},
			wantErr: func(err error) bool { return err != nil && strings.Contains(err.Error(), "nil response") },
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			stream := newGeminiStream(seqFromSteps(testCase.steps))
			defer stream.Close()

			for index := range testCase.wantText {
				chunk, err := stream.Recv(context.Background())
				if err != nil {
					t.Fatalf("Recv[%d] failed: %v", index, err)
				}
				if chunk.Delta != testCase.wantText[index] || chunk.Kind != testCase.wantKinds[index] {
					t.Fatalf("chunk[%d] = %+v, want %q/%q", index, chunk, testCase.wantKinds[index], testCase.wantText[index])
				}
			}
			_, err := stream.Recv(context.Background())
			if !testCase.wantErr(err) {
				t.Fatalf("final Recv error = %v, unexpected", err)
			}
		})
	}
}

func TestGeminiStreamCloseIdempotentAndPostCloseEOF(t *testing.T) {
	t.Parallel()

	stream := newGeminiStream(seqFromSteps([]streamStep{{response: textResponse([]*genai.Part{{Text: "x"}})}}))
	if err := stream.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	_, err := stream.Recv(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Recv after close error = %v, want io.EOF", err)
	}
}

func TestGeminiStreamCanceledContext(t *testing.T) {
	t.Parallel()

	stream := newGeminiStream(seqFromSteps([]streamStep{{response: textResponse([]*genai.Part{{Text: "x"}})}}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stream.Recv(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Recv error = %v, want context.Canceled", err)
	}
}

type modelsClientStub struct {
	calls  []generateCall
	stream iter.Seq2[*genai.GenerateContentResponse, error]
}

type generateCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (s *modelsClientStub) GenerateContentStream(
	_ context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) iter.Seq2[*genai.GenerateContentResponse, error] {
	s.calls = append(s.calls, generateCall{model: model, contents: contents, config: config})
	if s.stream == nil {
		return emptySeq()
	}

	return s.stream
}

type streamStep struct {
	response *genai.GenerateContentResponse
	err      error
}

func seqFromSteps(steps []streamStep) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, step := range steps {
			if !yield(step.response, step.err) {
				return
			}
		}
	}
}

func emptySeq() iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(func(*genai.GenerateContentResponse, error) bool) {}
}

func textResponse(parts []*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func ptrInt(value int) *int {
	return &value
}

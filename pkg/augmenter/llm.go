package augmenter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ServiceLLMProviderRegistry is the canonical service registry key for LLM providers.
const ServiceLLMProviderRegistry = "augmenter.llm_provider_registry"

// LLMProviderRegistry resolves LLM providers by configured provider name.
//
// Implementations must be concurrency-safe.
type LLMProviderRegistry interface {
	// Resolve returns one configured provider by name.
	Resolve(provider string) (LLMProvider, error)
}

// LLMProvider exposes one stream-first text generation operation.
type LLMProvider interface {
	// GenerateStream starts one streaming generation request.
	GenerateStream(ctx context.Context, req LLMGenerateRequest) (LLMStream, error)
}

// LLMStream is a pull-based stream of generated text chunks.
type LLMStream interface {
	// Recv returns the next generated chunk.
	//
	// io.EOF is returned when the stream completes normally.
	Recv(ctx context.Context) (LLMGenerateChunk, error)
	// Close releases provider-side resources for this stream.
	Close() error
}

// LLMMessageRole identifies one message role in a generation request.
type LLMMessageRole string

const (
	// LLMMessageRoleSystem identifies system-level instructions.
	LLMMessageRoleSystem LLMMessageRole = "system"
	// LLMMessageRoleUser identifies user-authored turns.
	LLMMessageRoleUser LLMMessageRole = "user"
	// LLMMessageRoleAssistant identifies assistant-authored turns.
	LLMMessageRoleAssistant LLMMessageRole = "assistant"
)

// Validate checks whether this role value is supported.
func (r LLMMessageRole) Validate() error {
	switch r {
	case LLMMessageRoleSystem, LLMMessageRoleUser, LLMMessageRoleAssistant:
		return nil
	default:
		return fmt.Errorf("validate llm message role: unsupported role %q", r)
	}
}

// LLMMessage is one ordered message in a generation request.
type LLMMessage struct {
	Role    LLMMessageRole
	Content string
}

// Validate checks one message contract.
func (m LLMMessage) Validate() error {
	if err := m.Role.Validate(); err != nil {
		return fmt.Errorf("validate llm message: %w", err)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("validate llm message: missing content")
	}

	return nil
}

// LLMGenerateRequest describes one provider generation call.
type LLMGenerateRequest struct {
	// Model identifies which provider model should be used.
	Model string
	// Messages is the ordered conversation sent to the provider.
	Messages []LLMMessage
	// MaxOutputTokens optionally bounds generated output token count.
	MaxOutputTokens int
	// Temperature optionally controls output randomness.
	Temperature float64
}

// Validate checks one generation request contract.
func (r LLMGenerateRequest) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("validate llm generate request: missing model")
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("validate llm generate request: missing messages")
	}
	for index, message := range r.Messages {
		if err := message.Validate(); err != nil {
			return fmt.Errorf("validate llm generate request messages[%d]: %w", index, err)
		}
	}
	if r.MaxOutputTokens < 0 {
		return fmt.Errorf("validate llm generate request: max_output_tokens must be >= 0")
	}
	if r.Temperature < 0 {
		return fmt.Errorf("validate llm generate request: temperature must be >= 0")
	}

	return nil
}

// LLMGenerateChunkKind classifies one streamed chunk.
type LLMGenerateChunkKind string

const (
	// LLMGenerateChunkKindOutputText is user-visible answer text.
	LLMGenerateChunkKindOutputText LLMGenerateChunkKind = "output_text"
	// LLMGenerateChunkKindThinking is provider reasoning text that is never part of the answer.
	LLMGenerateChunkKindThinking LLMGenerateChunkKind = "thinking"
)

// LLMGenerateChunk carries incremental text from one stream.
type LLMGenerateChunk struct {
	// Kind classifies Delta. Empty means output text.
	Kind LLMGenerateChunkKind
	// Delta is the newly generated text segment.
	Delta string
}

// IsOutput reports whether the chunk belongs to the final answer.
func (c LLMGenerateChunk) IsOutput() bool {
	return c.Kind == "" || c.Kind == LLMGenerateChunkKindOutputText
}

// CollectText drains stream and returns the concatenated output text.
// The stream is always closed.
func CollectText(ctx context.Context, stream LLMStream) (text string, err error) {
	if stream == nil {
		return "", fmt.Errorf("collect llm text: nil stream")
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("collect llm text close: %w", closeErr)
		}
	}()

	var builder strings.Builder
	for {
		chunk, recvErr := stream.Recv(ctx)
		if errors.Is(recvErr, io.EOF) {
			return builder.String(), nil
		}
		if recvErr != nil {
			return "", fmt.Errorf("collect llm text: %w", recvErr)
		}
		if chunk.IsOutput() {
			builder.WriteString(chunk.Delta)
		}
	}
}

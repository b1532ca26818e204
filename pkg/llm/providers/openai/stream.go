package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"ex-augmenter/pkg/augmenter"

	"github.com/openai/openai-go/v3/responses"
)

type openAIResponseStream interface {
	Next() bool
	Current() responses.ResponseStreamEventUnion
	Err() error
	Close() error
}

// textStream yields output text deltas of one Responses call. Reasoning
// summaries and bookkeeping events are skipped; a response cut short by
// max_output_tokens ends the stream like a completed one.
//
// Recv is meant for one consumer; Close may race with it.
type textStream struct {
	events    openAIResponseStream
	ended     atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newOpenAIStream(events openAIResponseStream) *textStream {
	return &textStream{events: events}
}

func (s *textStream) Recv(ctx context.Context) (augmenter.LLMGenerateChunk, error) {
	for {
		if s.ended.Load() {
			return augmenter.LLMGenerateChunk{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			_ = s.Close()
			return augmenter.LLMGenerateChunk{}, fmt.Errorf("openai stream: %w", err)
		}
		if !s.events.Next() {
			s.ended.Store(true)
			return augmenter.LLMGenerateChunk{}, streamEndError(ctx, s.events.Err())
		}

		delta, end, err := readEvent(s.events.Current())
		if err != nil {
			s.ended.Store(true)
			return augmenter.LLMGenerateChunk{}, err
		}
		if end {
			s.ended.Store(true)
			return augmenter.LLMGenerateChunk{}, io.EOF
		}
		if delta != "" {
			return augmenter.LLMGenerateChunk{Kind: augmenter.LLMGenerateChunkKindOutputText, Delta: delta}, nil
		}
	}
}

func (s *textStream) Close() error {
	s.closeOnce.Do(func() {
		s.ended.Store(true)
		if err := s.events.Close(); err != nil {
			s.closeErr = fmt.Errorf("openai stream close: %w", err)
		}
	})

	return s.closeErr
}

func streamEndError(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return io.EOF
	case ctx.Err() != nil:
		return fmt.Errorf("openai stream: %w", ctx.Err())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("openai stream canceled: %w", err)
	default:
		return fmt.Errorf("openai stream next: %w", err)
	}
}

// readEvent returns the output text carried by event and whether the
// response is over.
func readEvent(event responses.ResponseStreamEventUnion) (string, bool, error) {
	switch event.Type {
	case "":
		return "", false, fmt.Errorf("openai stream parse event: missing type")
	case openAIEventOutputTextDelta:
		if !event.JSON.Delta.Valid() {
			return "", false, fmt.Errorf("openai stream parse event %s: missing delta", event.Type)
		}
		return event.Delta, false, nil
	case openAIEventCompleted, openAIEventIncomplete:
		return "", true, nil
	case openAIEventFailed:
		if message := event.Response.Error.Message; message != "" {
			return "", false, fmt.Errorf("openai response failed: %s", message)
		}
		return "", false, fmt.Errorf("openai response failed: status=%s", event.Response.Status)
	case openAIEventError:
		if event.Code != "" {
			return "", false, fmt.Errorf("openai stream error %s: %s", event.Code, event.Message)
		}
		return "", false, fmt.Errorf("openai stream error: %s", event.Message)
	default:
		return "", false, nil
	}
}

var _ augmenter.LLMStream = (*textStream)(nil)

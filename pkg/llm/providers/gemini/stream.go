package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"

	"ex-augmenter/pkg/augmenter"

	"google.golang.org/genai"
)

type geminiStream struct {
	mu sync.Mutex

	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()

	closed   bool
	finished bool
	pending  []augmenter.LLMGenerateChunk
}

func newGeminiStream(seq iter.Seq2[*genai.GenerateContentResponse, error]) *geminiStream {
	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop}
}

func (s *geminiStream) Recv(ctx context.Context) (augmenter.LLMGenerateChunk, error) {
	if ctx == nil {
		return augmenter.LLMGenerateChunk{}, fmt.Errorf("gemini stream recv: nil context")
	}

	for {
		if err := ctx.Err(); err != nil {
			_ = s.Close()
			return augmenter.LLMGenerateChunk{}, fmt.Errorf("gemini stream recv context: %w", err)
		}
		if chunk, ok := s.dequeuePending(); ok {
			return chunk, nil
		}

		response, err := s.nextResponse(ctx)
		if err != nil {
			return augmenter.LLMGenerateChunk{}, err
		}

		chunks, mapErr := mapGenerateContentResponse(response)
		if mapErr != nil {
			return augmenter.LLMGenerateChunk{}, mapErr
		}
		if len(chunks) == 0 {
			continue
		}
		s.enqueuePending(chunks[1:])

		return chunks[0], nil
	}
}

func (s *geminiStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.finished = true
	stop := s.stop
	s.stop = nil
	s.next = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}

	return nil
}

func (s *geminiStream) nextResponse(ctx context.Context) (*genai.GenerateContentResponse, error) {
	s.mu.Lock()
	if s.closed || s.finished || s.next == nil {
		s.finished = true
		s.mu.Unlock()
		return nil, io.EOF
	}
	next := s.next
	s.mu.Unlock()

	response, recvErr, ok := next()
	if !ok {
		s.markFinished()
		return nil, io.EOF
	}
	if recvErr != nil {
		s.markFinished()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("gemini stream context: %w", ctxErr)
		}
		if errors.Is(recvErr, context.Canceled) || errors.Is(recvErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("gemini stream canceled: %w", recvErr)
		}
		return nil, fmt.Errorf("gemini stream next: %w", recvErr)
	}

	return response, nil
}

func (s *geminiStream) markFinished() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
}

func (s *geminiStream) dequeuePending() (augmenter.LLMGenerateChunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return augmenter.LLMGenerateChunk{}, false
	}
	chunk := s.pending[0]
	s.pending = s.pending[1:]

	return chunk, true
}

func (s *geminiStream) enqueuePending(chunks []augmenter.LLMGenerateChunk) {
	if len(chunks) == 0 {
		return
	}

	s.mu.Lock()
	s.pending = append(s.pending, chunks...)
	s.mu.Unlock()
}

// mapGenerateContentResponse converts the first candidate's text parts into chunks.
func mapGenerateContentResponse(response *genai.GenerateContentResponse) ([]augmenter.LLMGenerateChunk, error) {
	if response == nil {
		return nil, fmt.Errorf("gemini stream parse response: nil response")
	}
	if len(response.Candidates) == 0 || response.Candidates[0] == nil || response.Candidates[0].Content == nil {
		return nil, nil
	}

	parts := response.Candidates[0].Content.Parts
	chunks := make([]augmenter.LLMGenerateChunk, 0, len(parts))
	for _, part := range parts {
		if part == nil || part.Text == "" {
			continue
		}
		kind := augmenter.LLMGenerateChunkKindOutputText
		if part.Thought {
			kind = augmenter.LLMGenerateChunkKindThinking
		}
		chunks = append(chunks, augmenter.LLMGenerateChunk{Kind: kind, Delta: part.Text})
	}

	return chunks, nil
}

var _ augmenter.LLMStream = (*geminiStream)(nil)

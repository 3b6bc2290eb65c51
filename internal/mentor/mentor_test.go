package mentor

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bisacoding/bisacoding/internal/file"
	"github.com/bisacoding/bisacoding/internal/llm"
	"github.com/bisacoding/bisacoding/store"
)

// fakeStream replays a scripted fragment sequence.
type fakeStream struct {
	events []*llm.StreamEvent
	index  int
	err    error
}

func (s *fakeStream) Recv() (*llm.StreamEvent, error) {
	if s.index < len(s.events) {
		event := s.events[s.index]
		s.index++
		return event, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

func (s *fakeStream) Close() {}

// fakeBackend scripts one outcome per attempt and records every request.
type fakeBackend struct {
	requests []*llm.CreateCompletionRequest
	script   func(attempt int) (llm.Stream, error)
}

func (b *fakeBackend) CreateCompletion(_ context.Context, request *llm.CreateCompletionRequest) (llm.Stream, error) {
	attempt := len(b.requests)
	b.requests = append(b.requests, request)
	return b.script(attempt)
}

func tokenStream(tokens ...string) *fakeStream {
	events := make([]*llm.StreamEvent, 0, len(tokens))
	for _, token := range tokens {
		events = append(events, &llm.StreamEvent{Token: token})
	}
	return &fakeStream{events: events}
}

func quotaError() error {
	return &openai.APIError{HTTPStatusCode: 429, Message: "quota exceeded"}
}

func newTestClient(backend llm.Client) *Client {
	return &Client{
		backend:        backend,
		apiKey:         "test-key",
		model:          "test-model",
		maxRetries:     2,
		retryBaseDelay: 5 * time.Millisecond,
	}
}

func userHistory(contents ...string) []*store.Message {
	messages := []*store.Message{{Role: llm.ModelRole, Content: store.SeedGreeting}}
	for _, content := range contents {
		messages = append(messages, &store.Message{Role: llm.UserRole, Content: content})
	}
	return messages
}

// collect gathers the callback traffic of one StreamReply call.
type collect struct {
	chunks    []string
	completes []string
	sources   []*llm.Source
}

func (c *collect) onChunk(text string) { c.chunks = append(c.chunks, text) }

func (c *collect) onComplete(fullText string, sources []*llm.Source) {
	c.completes = append(c.completes, fullText)
	c.sources = sources
}

func TestStreamReplyFoldsFragments(t *testing.T) {
	backend := &fakeBackend{script: func(int) (llm.Stream, error) {
		return tokenStream("Hel", "lo, ", "world"), nil
	}}
	client := newTestClient(backend)

	var got collect
	client.StreamReply(context.Background(), userHistory("hi"), got.onChunk, got.onComplete, nil)

	assert.Equal(t, []string{"Hel", "lo, ", "world"}, got.chunks)
	require.Len(t, got.completes, 1)
	assert.Equal(t, "Hello, world", got.completes[0])
}

func TestStreamReplyMissingCredential(t *testing.T) {
	backend := &fakeBackend{script: func(int) (llm.Stream, error) {
		t.Fatal("network layer must not be reached without a credential")
		return nil, nil
	}}
	client := newTestClient(backend)
	client.apiKey = ""

	var got collect
	client.StreamReply(context.Background(), userHistory("hi"), got.onChunk, got.onComplete, nil)

	assert.Empty(t, got.chunks)
	require.Len(t, got.completes, 1)
	assert.Equal(t, missingCredentialMessage, got.completes[0])
	assert.Empty(t, backend.requests)
}

func TestStreamReplyEmptyHistory(t *testing.T) {
	backend := &fakeBackend{script: func(int) (llm.Stream, error) {
		t.Fatal("no network call expected without a user message")
		return nil, nil
	}}
	client := newTestClient(backend)

	for _, history := range [][]*store.Message{
		{},
		{{Role: llm.ModelRole, Content: "greeting only"}},
	} {
		var got collect
		client.StreamReply(context.Background(), history, got.onChunk, got.onComplete, nil)
		require.Len(t, got.completes, 1)
		assert.Equal(t, noUserMessageNotice, got.completes[0])
		assert.Empty(t, backend.requests)
	}
}

func TestStreamReplyQuotaRetryThenSuccess(t *testing.T) {
	backend := &fakeBackend{script: func(attempt int) (llm.Stream, error) {
		if attempt < 2 {
			return nil, quotaError()
		}
		return tokenStream("recovered"), nil
	}}
	client := newTestClient(backend)

	var got collect
	client.StreamReply(context.Background(), userHistory("hi"), got.onChunk, got.onComplete, nil)

	assert.Len(t, backend.requests, 3)
	require.Len(t, got.completes, 1)
	assert.Equal(t, "recovered", got.completes[0])

	// Two retry notices precede the real content, with growing delays.
	require.GreaterOrEqual(t, len(got.chunks), 3)
	assert.Contains(t, got.chunks[0], "Rate limit")
	assert.Contains(t, got.chunks[0], "5ms")
	assert.Contains(t, got.chunks[1], "Rate limit")
	assert.Contains(t, got.chunks[1], "10ms")
	assert.Equal(t, "recovered", got.chunks[2])
}

func TestStreamReplyQuotaRetryExhaustion(t *testing.T) {
	backend := &fakeBackend{script: func(int) (llm.Stream, error) {
		return nil, quotaError()
	}}
	client := newTestClient(backend)

	var got collect
	client.StreamReply(context.Background(), userHistory("hi"), got.onChunk, got.onComplete, nil)

	// 1 initial attempt + 2 retries.
	assert.Len(t, backend.requests, 3)
	require.Len(t, got.completes, 1)
	assert.Equal(t, quotaExhaustedMessage, got.completes[0])
}

func TestStreamReplyNonQuotaErrorIsTerminal(t *testing.T) {
	backend := &fakeBackend{script: func(int) (llm.Stream, error) {
		return nil, errors.New("connection reset")
	}}
	client := newTestClient(backend)

	var got collect
	client.StreamReply(context.Background(), userHistory("hi"), got.onChunk, got.onComplete, nil)

	assert.Len(t, backend.requests, 1)
	require.Len(t, got.completes, 1)
	assert.Contains(t, got.completes[0], "[ERROR]")
	assert.Contains(t, got.completes[0], "connection reset")
}

func TestStreamReplyEmptyResponseIsFailure(t *testing.T) {
	backend := &fakeBackend{script: func(int) (llm.Stream, error) {
		return tokenStream(), nil
	}}
	client := newTestClient(backend)

	var got collect
	client.StreamReply(context.Background(), userHistory("hi"), got.onChunk, got.onComplete, nil)

	require.Len(t, got.completes, 1)
	assert.Equal(t, emptyResponseMessage, got.completes[0])
}

func TestStreamReplyRetainsLastSources(t *testing.T) {
	backend := &fakeBackend{script: func(int) (llm.Stream, error) {
		return &fakeStream{events: []*llm.StreamEvent{
			{Token: "a", Sources: []*llm.Source{{URI: "https://old.example", Title: "old"}}},
			{Token: "b"},
			{Token: "c", Sources: []*llm.Source{{URI: "https://new.example", Title: "new"}}},
		}}, nil
	}}
	client := newTestClient(backend)

	var got collect
	client.StreamReply(context.Background(), userHistory("hi"), got.onChunk, got.onComplete, nil)

	require.Len(t, got.completes, 1)
	assert.Equal(t, "abc", got.completes[0])
	require.Len(t, got.sources, 1)
	assert.Equal(t, "https://new.example", got.sources[0].URI)
}

func TestStreamReplyCancelledDuringRetryWait(t *testing.T) {
	backend := &fakeBackend{script: func(int) (llm.Stream, error) {
		return nil, quotaError()
	}}
	client := newTestClient(backend)
	client.retryBaseDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	var got collect
	go func() {
		client.StreamReply(ctx, userHistory("hi"), got.onChunk, got.onComplete, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("retry wait ignored cancellation")
	}
	require.Len(t, got.completes, 1)
	assert.Contains(t, got.completes[0], "[ERROR]")
}

func TestBuildTurnsSlicesFromFirstUserTurn(t *testing.T) {
	history := []*store.Message{
		{Role: llm.ModelRole, Content: "greeting"},
		{Role: llm.UserRole, Content: "question"},
		{Role: llm.ModelRole, Content: "answer"},
	}
	turns := buildTurns(history, 0, nil)
	require.Len(t, turns, 2)
	assert.Equal(t, llm.UserRole, turns[0].Role)
	assert.Equal(t, "question", turns[0].Content)
}

func TestBuildTurnsTruncationWindow(t *testing.T) {
	history := userHistory("one", "two", "three", "four")
	turns := buildTurns(history, 2, nil)
	require.Len(t, turns, 2)
	assert.Equal(t, "three", turns[0].Content)
	assert.Equal(t, "four", turns[1].Content)
}

func TestBuildTurnsTextAttachment(t *testing.T) {
	attachment := &file.Attachment{Name: "main.go", MimeType: "text/plain", Text: "package main"}
	turns := buildTurns(userHistory("review this"), 0, attachment)
	require.Len(t, turns, 1)
	assert.Contains(t, turns[0].Content, "review this")
	assert.Contains(t, turns[0].Content, "main.go")
	assert.Contains(t, turns[0].Content, "package main")
	assert.Nil(t, turns[0].Image)
}

func TestBuildTurnsImageAttachmentOnLastUserTurn(t *testing.T) {
	attachment := &file.Attachment{Name: "shot.png", MimeType: "image/png", Data: []byte{1, 2, 3}}
	history := append(userHistory("first"), &store.Message{Role: llm.ModelRole, Content: "reply"})
	history = append(history, &store.Message{Role: llm.UserRole, Content: "second"})
	history = append(history, &store.Message{Role: llm.ModelRole, Content: "trailing"})

	turns := buildTurns(history, 0, attachment)
	var imageTurns int
	for _, turn := range turns {
		if turn.Image == nil {
			continue
		}
		imageTurns++
		assert.Equal(t, "second", turn.Content)
		assert.Equal(t, "image/png", turn.Image.MimeType)
	}
	assert.Equal(t, 1, imageTurns)
}

func TestStreamReplySendsSystemInstruction(t *testing.T) {
	backend := &fakeBackend{script: func(int) (llm.Stream, error) {
		return tokenStream("ok"), nil
	}}
	client := newTestClient(backend)
	client.systemInstruction = "be helpful"

	var got collect
	client.StreamReply(context.Background(), userHistory("hi"), got.onChunk, got.onComplete, nil)

	require.Len(t, backend.requests, 1)
	assert.Equal(t, "be helpful", backend.requests[0].SystemInstruction)
	assert.Equal(t, "test-model", backend.requests[0].Model)
}

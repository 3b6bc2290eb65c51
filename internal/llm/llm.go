package llm

import (
	"context"
)

// Conversation role vocabulary. The store and mentor client speak user/model;
// backends translate to their own vocabulary.
const (
	UserRole  = "user"
	ModelRole = "model"
)

// Source is a grounding citation attached to a completion that used retrieval.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Image is an inline binary artifact attached to a turn.
type Image struct {
	Data     []byte
	MimeType string
}

// Turn is a single role-tagged entry of the conversation sent upstream.
type Turn struct {
	Role    string
	Content string
	// Set on at most one user turn.
	Image *Image
}

// CreateCompletionRequest describes one streaming completion exchange.
type CreateCompletionRequest struct {
	Model             string
	SystemInstruction string
	Turns             []*Turn
	Temperature       float32
	MaxTokens         int
}

// StreamEvent is one incremental fragment of a completion response.
type StreamEvent struct {
	Token string
	// Grounding citations carried by this fragment, if any. Backends that do
	// not support retrieval never set this.
	Sources []*Source
}

// Stream of completion fragments. Recv returns io.EOF when the stream ends
// normally. A stream is not resumable; restart via a fresh CreateCompletion.
type Stream interface {
	Recv() (*StreamEvent, error)
	Close()
}

// Client is a streaming chat-completion backend.
type Client interface {
	CreateCompletion(ctx context.Context, request *CreateCompletionRequest) (Stream, error)
}

// Package mentor implements the streaming client behind the Bisa Coding
// mentor: it turns a stored conversation into a completion request, relays
// the response incrementally through callbacks and retries quota failures
// with exponential backoff. Nothing here returns an error; every outcome,
// success or failure, arrives through the same callback channel.
package mentor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bisacoding/bisacoding/internal/configuration"
	"github.com/bisacoding/bisacoding/internal/file"
	"github.com/bisacoding/bisacoding/internal/llm"
	"github.com/bisacoding/bisacoding/store"
)

const missingCredentialMessage = `[ERROR] API key not found.

To fix this:
1. Set the api_key field in ~/.config/bisacoding/config.json, or
2. Export the ` + configuration.APIKeyEnvVariable + ` environment variable (a .env file works too).
3. Make sure the key has no leading or trailing spaces.`

const noUserMessageNotice = "[ERROR] You haven't sent a message yet."

const emptyResponseMessage = "[ERROR] Sorry, I can't answer right now. The model returned an empty response."

const quotaExhaustedMessage = "[ERROR] Sorry, I can't answer right now. The request quota is exhausted. " +
	"Wait a minute before sending the next message, or switch to a model with spare quota."

const invalidKeyMessage = "[ERROR] Sorry, I can't answer right now. Your API key is invalid or not " +
	"authorized for this model. Check it with your provider."

// OnChunk receives each incrementally streamed text fragment, in arrival order.
type OnChunk func(text string)

// OnComplete is invoked exactly once per call, with the full accumulated text
// (or an error-marked notice) and any grounding citations.
type OnComplete func(fullText string, sources []*llm.Source)

// Client streams mentor replies. A single outstanding call at a time is the
// expected usage; concurrent calls against the same project are unsupported
// and callers own their serialization.
type Client struct {
	backend llm.Client

	apiKey            string
	model             string
	systemInstruction string
	temperature       float32
	maxTokens         int
	requestTimeout    time.Duration

	// Most recent turns kept when building the request. 0 means unbounded.
	historyWindow int

	maxRetries     int
	retryBaseDelay time.Duration
}

// New instantiates a mentor client over the given completion backend.
func New(backend llm.Client, config *configuration.Config) *Client {
	return &Client{
		backend:           backend,
		apiKey:            config.APIKey,
		model:             config.Model,
		systemInstruction: config.SystemInstruction,
		temperature:       config.Temperature,
		maxTokens:         config.MaxTokens,
		requestTimeout:    time.Duration(config.RequestTimeout) * time.Second,
		historyWindow:     config.HistoryWindow,
		maxRetries:        config.MaxRetries,
		retryBaseDelay:    time.Duration(config.RetryBaseDelay) * time.Second,
	}
}

// StreamReply sends the conversation upstream and relays the reply.
//
// The history must contain at least one user message; otherwise the call
// completes immediately with a fixed notice and no request is made. The
// optional attachment rides on the last user turn: a text transcript is merged
// into its content, an image becomes an inline part. Cancelling the context
// aborts the in-flight stream and any pending retry delay.
func (c *Client) StreamReply(ctx context.Context, history []*store.Message, onChunk OnChunk, onComplete OnComplete, attachment *file.Attachment) {
	if c.apiKey == "" {
		onComplete(missingCredentialMessage, nil)
		return
	}

	turns := buildTurns(history, c.historyWindow, attachment)
	if turns == nil {
		onComplete(noUserMessageNotice, nil)
		return
	}

	// Bounded-retry loop. An explicit loop rather than re-entrant calls keeps
	// the attempt counter and cancellation in one place.
	for attempt := 0; ; attempt++ {
		fullText, sources, err := c.streamOnce(ctx, turns, onChunk)
		if err == nil {
			if fullText == "" {
				onComplete(emptyResponseMessage, nil)
				return
			}
			onComplete(fullText, sources)
			return
		}

		if llm.IsQuotaError(err) && attempt < c.maxRetries {
			delay := c.retryBaseDelay * (1 << attempt)
			onChunk(fmt.Sprintf("\n[Rate limit reached. Waiting %s before retrying...]\n", delay))
			if err := c.sleep(ctx, delay); err != nil {
				onComplete(terminalMessage(err), nil)
				return
			}
			continue
		}

		slog.Warn("mentor stream failed", "attempt", attempt, "error", err)
		onChunk("\n[The mentor could not finish this reply.]\n")
		onComplete(terminalMessage(err), nil)
		return
	}
}

// sleep until the delay elapses or the context is cancelled.
func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// streamOnce performs a single exchange: opens the stream, folds fragments
// into the full text, forwards each one to onChunk and retains the last
// non-empty citation set seen.
func (c *Client) streamOnce(ctx context.Context, turns []*llm.Turn, onChunk OnChunk) (string, []*llm.Source, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	request := &llm.CreateCompletionRequest{
		Model:             c.model,
		SystemInstruction: c.systemInstruction,
		Turns:             turns,
		Temperature:       c.temperature,
		MaxTokens:         c.maxTokens,
	}
	stream, err := c.backend.CreateCompletion(ctx, request)
	if err != nil {
		return "", nil, errors.Wrap(err, "creating completion stream")
	}
	defer stream.Close()

	var fullText strings.Builder
	var sources []*llm.Source
	for {
		event, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return fullText.String(), sources, nil
		}
		if err != nil {
			return "", nil, errors.Wrap(err, "receiving stream event")
		}
		if event.Token != "" {
			fullText.WriteString(event.Token)
			onChunk(event.Token)
		}
		if len(event.Sources) > 0 {
			sources = event.Sources
		}
	}
}

// buildTurns maps the stored history onto the wire vocabulary, slices it from
// the first user turn, applies the truncation window and places the
// attachment on the last user turn. Returns nil when no user turn exists.
func buildTurns(history []*store.Message, window int, attachment *file.Attachment) []*llm.Turn {
	rawTurns := make([]*llm.Turn, 0, len(history))
	for _, message := range history {
		role := llm.ModelRole
		if message.Role == llm.UserRole {
			role = llm.UserRole
		}
		rawTurns = append(rawTurns, &llm.Turn{Role: role, Content: message.Content})
	}

	firstUserIndex := -1
	for i, turn := range rawTurns {
		if turn.Role == llm.UserRole {
			firstUserIndex = i
			break
		}
	}
	if firstUserIndex == -1 {
		return nil
	}
	turns := rawTurns[firstUserIndex:]

	if window > 0 && len(turns) > window {
		turns = turns[len(turns)-window:]
	}

	if attachment != nil {
		for i := len(turns) - 1; i >= 0; i-- {
			if turns[i].Role != llm.UserRole {
				continue
			}
			if attachment.IsText() {
				turns[i].Content += attachment.Transcript()
			} else {
				turns[i].Image = &llm.Image{Data: attachment.Data, MimeType: attachment.MimeType}
			}
			break
		}
	}
	return turns
}

// terminalMessage converts a terminal failure into the user-visible notice.
func terminalMessage(err error) string {
	message := "Connection to the mentor failed."
	if err != nil {
		message = err.Error()
	}
	if strings.Contains(message, "403") || strings.Contains(message, "API key not valid") ||
		strings.Contains(message, "invalid_api_key") {
		return invalidKeyMessage
	}
	if llm.IsQuotaError(err) {
		return quotaExhaustedMessage
	}
	return fmt.Sprintf("[ERROR] Sorry, I can't answer right now. %s", message)
}

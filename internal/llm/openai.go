package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient speaks any OpenAI-compatible completion endpoint.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient instantiates and returns a new client.
func NewOpenAIClient(apiKey, apiHost string) *OpenAIClient {
	openAIConfig := openai.DefaultConfig(apiKey)
	if apiHost != "" {
		openAIConfig.BaseURL = apiHost
	}
	client := openai.NewClientWithConfig(openAIConfig)
	return &OpenAIClient{client: client}
}

// CreateCompletion opens a streaming chat completion.
func (c *OpenAIClient) CreateCompletion(ctx context.Context, request *CreateCompletionRequest) (Stream, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(request.Turns)+1)
	if request.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: request.SystemInstruction,
		})
	}
	for _, turn := range request.Turns {
		role := openai.ChatMessageRoleUser
		if turn.Role == ModelRole {
			role = openai.ChatMessageRoleAssistant
		}
		message := openai.ChatCompletionMessage{Role: role}
		if turn.Image != nil {
			// Multi-part message: the text followed by the inline image as a data URI.
			message.MultiContent = []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: turn.Content},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: fmt.Sprintf("data:%s;base64,%s",
							turn.Image.MimeType, base64.StdEncoding.EncodeToString(turn.Image.Data)),
						Detail: openai.ImageURLDetailAuto,
					},
				},
			}
		} else {
			message.Content = turn.Content
		}
		messages = append(messages, message)
	}

	openAIRequest := openai.ChatCompletionRequest{
		Model:       request.Model,
		Messages:    messages,
		Temperature: request.Temperature,
		MaxTokens:   request.MaxTokens,
		Stream:      true,
	}
	stream, err := c.client.CreateChatCompletionStream(ctx, openAIRequest)
	if err != nil {
		return nil, err
	}
	return &openAIStreamWrapper{stream: stream}, nil
}

// openAIStreamWrapper adapts the openai stream to our Stream interface.
type openAIStreamWrapper struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStreamWrapper) Recv() (*StreamEvent, error) {
	response, err := s.stream.Recv()
	if err != nil {
		return nil, err
	}
	event := &StreamEvent{}
	if len(response.Choices) > 0 {
		event.Token = response.Choices[0].Delta.Content
	}
	return event, nil
}

func (s *openAIStreamWrapper) Close() { s.stream.Close() }

package llm

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestIsQuotaError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"http 429", &openai.APIError{HTTPStatusCode: 429}, true},
		{"insufficient quota code", &openai.APIError{HTTPStatusCode: 400, Code: "insufficient_quota"}, true},
		{"rate limit code", &openai.APIError{HTTPStatusCode: 400, Code: "rate_limit_exceeded"}, true},
		{"plain 429 text", errors.New("upstream returned 429"), true},
		{"resource exhausted text", errors.New("rpc error: RESOURCE_EXHAUSTED"), true},
		{"rate limit text", errors.New("Rate limit reached for requests"), true},
		{"wrapped api error", errors.Wrap(&openai.APIError{HTTPStatusCode: 429}, "receiving stream event"), true},
		{"unrelated error", errors.New("connection reset by peer"), false},
		{"unrelated api error", &openai.APIError{HTTPStatusCode: 500, Code: "server_error"}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsQuotaError(test.err))
		})
	}
}

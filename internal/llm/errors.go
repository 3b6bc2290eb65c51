package llm

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// IsQuotaError reports whether the error is a rate-limit or quota-exhaustion
// failure from the completion endpoint. Quota errors are the only class the
// mentor client retries; everything else is terminal for the current call.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}

	var apiError *openai.APIError
	if errors.As(err, &apiError) {
		if apiError.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		if code, ok := apiError.Code.(string); ok {
			switch code {
			case "insufficient_quota", "rate_limit_exceeded":
				return true
			}
		}
	}

	// Some gateways surface the upstream status as plain text.
	message := err.Error()
	return strings.Contains(message, "429") ||
		strings.Contains(message, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(message), "rate limit")
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	apperrors "animgen/internal/errors"
)

// ErrMissingAPIKey is returned before any request is sent when no credential
// is configured.
var ErrMissingAPIKey = apperrors.NewPermanentError(
	errors.New("missing API key"),
	"API key not configured: set ANTHROPIC_API_KEY",
)

// mapHTTPError converts a non-2xx response into a classified error.
func mapHTTPError(status int, body []byte, headers http.Header) error {
	message := strings.TrimSpace(extractErrorMessage(body))
	if message == "" {
		message = http.StatusText(status)
	}
	base := fmt.Errorf("status %d: %s", status, message)

	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		retryAfter, _ := strconv.Atoi(strings.TrimSpace(headers.Get("Retry-After")))
		return &apperrors.TransientError{
			Err:        base,
			StatusCode: status,
			RetryAfter: retryAfter,
		}
	}
	return &apperrors.PermanentError{Err: base, StatusCode: status}
}

// extractErrorMessage pulls error.message out of the provider's JSON error
// envelope, falling back to the raw body.
func extractErrorMessage(body []byte) string {
	var envelope struct {
		Error *anthropicError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		if envelope.Error.Type != "" {
			return fmt.Sprintf("%s: %s", envelope.Error.Type, envelope.Error.Message)
		}
		return envelope.Error.Message
	}
	return string(body)
}

func wrapRequestError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperrors.NewTransientError(err, fmt.Sprintf("request failed: %v", err))
}

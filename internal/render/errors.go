package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrAuth               = errors.New("authentication error")
	ErrValidation         = errors.New("validation error")
	ErrArtifactNotFound   = errors.New("artifact not found")
	ErrCancelled          = errors.New("cancelled")
	ErrTimeout            = errors.New("timeout")
	ErrInvalidResponse    = errors.New("invalid response")
	ErrUnsupported        = errors.New("operation not supported")
)

// Wrap builds an error message that includes backend context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, backend, operation, message string, err error) error {
	detail := buildDetail(backend, operation, message)
	if marker == nil {
		marker = ErrInvalidResponse
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsCancelled reports whether an error represents a deliberate abort rather
// than a failure. Cancellation is never surfaced to the user as an error.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// ContextError maps a context failure onto the taxonomy so providers can
// return it directly after a select on ctx.Done().
func ContextError(ctx context.Context, backend, operation string) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return Wrap(ErrTimeout, backend, operation, "deadline exceeded", nil)
	case ctx.Err() != nil:
		return Wrap(ErrCancelled, backend, operation, "aborted", nil)
	default:
		return nil
	}
}

type errorEnvelope struct {
	Message string `json:"message"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Normalize prepares a raw failure message for display. Backends sometimes
// return a JSON error envelope as the message body; when they do, the nested
// message field is unwrapped. Anything else is returned verbatim.
func Normalize(msg string) string {
	trimmed := strings.TrimSpace(msg)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return msg
	}
	var envelope errorEnvelope
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return msg
	}
	if envelope.Error != nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	return msg
}

func buildDetail(backend, operation, message string) string {
	parts := make([]string, 0, 3)
	if backend = strings.TrimSpace(backend); backend != "" {
		parts = append(parts, backend)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "render failure"
	}
	return strings.Join(parts, ": ")
}

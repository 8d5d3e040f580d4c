package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// ErrServiceFailure matches every error raised by the completion service
var ErrServiceFailure = errors.New("completion service failure")

// ErrMaxToolRounds is returned when the model keeps calling tools past the limit
var ErrMaxToolRounds = errors.New("maximum tool rounds exceeded")

// ServiceError wraps a failure from the completion service
type ServiceError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrServiceFailure) hold for any ServiceError
func (e *ServiceError) Is(target error) bool {
	return target == ErrServiceFailure
}

// Temporary reports whether the same request may succeed later
func (e *ServiceError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusRequestTimeout,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return IsRetryableError(e.Err)
}

// IsRetryableError checks if an error looks transient
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"econnreset", "etimedout", "connection reset", "rate limit", "timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// wrapServiceError turns a provider error into a *ServiceError.
// Context cancellation is passed through untouched.
func wrapServiceError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}

	wrapped := &ServiceError{Provider: provider, Err: err}

	var oaiErr *openai.Error
	var antErr *anthropic.Error
	switch {
	case errors.As(err, &oaiErr):
		wrapped.StatusCode = oaiErr.StatusCode
	case errors.As(err, &antErr):
		wrapped.StatusCode = antErr.StatusCode
	}
	return wrapped
}

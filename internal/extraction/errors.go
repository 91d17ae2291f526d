package extraction

import (
	"context"
	"errors"
	"fmt"
)

// ErrMalformedResponse marks a successful HTTP response whose envelope could not be read
var ErrMalformedResponse = errors.New("malformed provider response")

const pdfHint = "If it's a PDF, please convert it to an image first."

// UploadError is returned when an uploaded file cannot be opened as an image
type UploadError struct {
	Filename string
	Cause    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("Error opening the file: %v. %s", e.Cause, pdfHint)
}

func (e *UploadError) Unwrap() error {
	return e.Cause
}

// TransportError is returned when the provider could not be reached
type TransportError struct {
	Provider string
	Cause    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("calling %s API: %v", e.Provider, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ProviderError is returned when the provider answers with a non-200 status,
// or with a 200 whose envelope is unusable (Cause wraps ErrMalformedResponse).
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Cause      error
}

func (e *ProviderError) Error() string {
	if errors.Is(e.Cause, ErrMalformedResponse) {
		return "Error: the extraction service returned a response that could not be read"
	}
	return fmt.Sprintf("Error: %d - %s", e.StatusCode, e.Body)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

func malformed(provider string, statusCode int, body string, format string, args ...any) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: statusCode,
		Body:       body,
		Cause:      fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...)),
	}
}

// UserMessage renders err as the message shown next to the upload control
func UserMessage(err error) string {
	var uploadErr *UploadError
	var providerErr *ProviderError
	var transportErr *TransportError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &uploadErr):
		return uploadErr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "Error: the extraction took too long and was stopped. Please try again."
	case errors.Is(err, context.Canceled):
		return "Error: the extraction was canceled."
	case errors.As(err, &providerErr):
		return providerErr.Error()
	case errors.As(err, &transportErr):
		return "Error: could not reach the extraction service. Please try again."
	default:
		return "Error: the invoice could not be processed."
	}
}

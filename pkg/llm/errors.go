package llm

import "fmt"

// ErrorKind distinguishes a provider that cannot be reached or used from
// a provider that answered with something we could not interpret.
type ErrorKind string

const (
	// KindUnavailable covers missing credentials, network failures,
	// timeouts and 5xx/429 responses.
	KindUnavailable ErrorKind = "unavailable"

	// KindProtocol covers malformed responses, unsupported operations
	// and 4xx rejections of a well-formed request.
	KindProtocol ErrorKind = "protocol"
)

// ProviderError is the typed error for all provider failures.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm provider %s: %s: %s: %v", e.Provider, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("llm provider %s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewUnavailableError reports a provider that could not serve the call.
func NewUnavailableError(provider, message string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindUnavailable, Message: message, Err: err}
}

// NewProtocolError reports a response or request shape mismatch.
func NewProtocolError(provider, message string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindProtocol, Message: message, Err: err}
}

// IsUnavailable reports whether err is a provider-unavailable error.
func IsUnavailable(err error) bool {
	pe, ok := err.(*ProviderError)
	return ok && pe.Kind == KindUnavailable
}

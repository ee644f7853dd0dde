package llm

import "fmt"

// TransportError reports a failed backend call. It is the only error kind
// the retry policy treats as transient.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports a backend response missing the expected text content.
type ParseError struct {
	Provider string
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parsing response: %s", e.Provider, e.Reason)
}

// ConfigurationError reports provider misconfiguration or a prompt shape
// the backend does not support, such as more than one system message.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

package reader

import (
	"errors"
	"fmt"
)

// FetchError reports a failed outbound call: transport failure, timeout or a
// non-2xx status.
type FetchError struct {
	Source     string
	Endpoint   string
	Symbol     string
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	target := e.Endpoint
	if e.Symbol != "" {
		target = fmt.Sprintf("%s (%s)", e.Endpoint, e.Symbol)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch %s: status %d: %s", e.Source, target, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s fetch %s: %v", e.Source, target, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a response whose shape could not be recognised.
type ParseError struct {
	Source   string
	Endpoint string
	Symbol   string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("%s parse %s (%s): %v", e.Source, e.Endpoint, e.Symbol, e.Err)
	}
	return fmt.Sprintf("%s parse %s: %v", e.Source, e.Endpoint, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsFetchError reports whether err wraps a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsParseError reports whether err wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Kind classifies err for metrics labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsParseError(err):
		return "parse"
	case IsFetchError(err):
		return "fetch"
	default:
		return "other"
	}
}

package homework

import (
	"errors"
	"fmt"
)

// Fetch error kinds. Match them with errors.Is; *FetchError carries the
// kind and the underlying cause.
var (
	ErrConnection = errors.New("connection failed")
	ErrTimeout    = errors.New("request timed out")
	ErrHTTPStatus = errors.New("unexpected http status")
	ErrDecode     = errors.New("malformed response body")
)

// FetchError is returned by Fetcher.Fetch for every failed poll.
type FetchError struct {
	Kind error
	// StatusCode is set for ErrHTTPStatus.
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := "homework fetch: " + e.Kind.Error()
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (%d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindName is a short stable label for logs.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrHTTPStatus):
		return "http_status"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrConnection):
		return "connection"
	default:
		return "other"
	}
}

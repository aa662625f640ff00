package fetch

import (
	"fmt"
)

// ExhaustedError indicates every attempt failed at the transport level. It
// carries the last underlying error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e ExhaustedError) Error() string {
	return fmt.Sprintf("fetch failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e ExhaustedError) Unwrap() error {
	return e.Err
}

// MalformedResponseError indicates the endpoint answered but the body was not
// valid JSON. It is never retried.
type MalformedResponseError struct {
	Err error
}

func (e MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %v", e.Err)
}

func (e MalformedResponseError) Unwrap() error {
	return e.Err
}

// UnexpectedError indicates a failure outside the retryable transport class,
// e.g. an unparseable URL or a cancelled context. It aborts the retry loop.
type UnexpectedError struct {
	Err error
}

func (e UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected fetch error: %v", e.Err)
}

func (e UnexpectedError) Unwrap() error {
	return e.Err
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMorePages is returned by a source once pagination is exhausted.
	ErrNoMorePages = errors.New("no more pages")
	ErrNotFound    = errors.New("not found")
)

// ParseError means a page's structure was not recognized.
type ParseError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.URL, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StoreError means a transactional write or read against the record store failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// InvalidStateError reports misuse of a stateful component.
type InvalidStateError struct {
	Op    string
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state for %s: %s", e.Op, e.State)
}

// FetchFailure is a page the source could not deliver.
type FetchFailure struct {
	URL    string
	Reason string
	Err    error
}

func (e *FetchFailure) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
}

func (e *FetchFailure) Unwrap() error { return e.Err }

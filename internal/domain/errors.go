package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound marks an unknown conversation or session reference.
var ErrNotFound = errors.New("not found")

// ErrInvalidRole rejects an item whose role is not user, assistant or system.
var ErrInvalidRole = errors.New("invalid role")

// RetrievalError wraps an embedding or similarity-search failure. The turn
// pipeline degrades to an empty context when it sees one.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// CompletionError wraps a language-model backend failure.
type CompletionError struct {
	Model string
	Err   error
}

func (e *CompletionError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("completion failed: %v", e.Err)
	}
	return fmt.Sprintf("completion failed (model=%s): %v", e.Model, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// StoreError wraps a persistence-layer failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsRetrieval(err error) bool {
	var target *RetrievalError
	return errors.As(err, &target)
}

func IsCompletion(err error) bool {
	var target *CompletionError
	return errors.As(err, &target)
}

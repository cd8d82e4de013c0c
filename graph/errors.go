package graph

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDocumentExists indicates a commit lost the fingerprint uniqueness
// race: another writer recorded the same document first.
var ErrDocumentExists = errors.New("document fingerprint already recorded")

// ErrUnsupported indicates the store does not implement an operation
// (the in-memory store has no procedure support, for example).
var ErrUnsupported = errors.New("operation not supported by this store")

// StoreError wraps a failed store operation with the operation name.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("graph store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

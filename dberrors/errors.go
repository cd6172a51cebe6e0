// Package dberrors defines the error kinds shared by the pager, node
// codec, and B+Tree layers. I/O failures are wrapped by WrapIo with
// github.com/pkg/errors, so a caller that cares can still recover a
// stack trace via errors.Cause/fmt's "%+v"; the other error kinds are
// returned as plain values without a stack trace.
package dberrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// IoError wraps any read/write/seek/open failure from the pager. It is
// fatal: once returned, the engine that produced it should be treated
// as poisoned.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string { return fmt.Sprintf("io error during %s: %v", e.Op, e.Err) }
func (e *IoError) Unwrap() error { return e.Err }

// WrapIo builds an *IoError around err, attaching a stack trace. Returns
// nil if err is nil, so call sites can write `return dberrors.WrapIo(...)`
// directly after an I/O call.
func WrapIo(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IoError{Op: op, Err: errors.WithStack(err)}
}

// DuplicateKeyError is returned from Insert when the key already exists.
// It is fully recoverable: no mutation is performed, and the tree is
// left exactly as it was.
type DuplicateKeyError struct {
	Key uint32
}

func (e *DuplicateKeyError) Error() string { return fmt.Sprintf("duplicate key %d", e.Key) }

// InvalidModeError covers a bad open mode or an Open on a missing/short file.
type InvalidModeError struct {
	Reason string
}

func (e *InvalidModeError) Error() string { return fmt.Sprintf("invalid open mode: %s", e.Reason) }

// CorruptPageError flags a page whose type tag isn't 0/1, or a leaf
// whose row_size field reads back as zero. Fatal.
type CorruptPageError struct {
	PageID uint64
	Reason string
}

func (e *CorruptPageError) Error() string {
	return fmt.Sprintf("corrupt page %d: %s", e.PageID, e.Reason)
}

// CapacityExceededError means num_pages would exceed the pager's
// addressable ceiling. Fatal.
type CapacityExceededError struct {
	Requested uint64
	Max       uint64
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded: page %d beyond max %d", e.Requested, e.Max)
}

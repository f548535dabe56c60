package uptree

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by cache operations. Callers should match them
// with errors.Is since most call sites wrap them with path context.
var (
	// ErrInvalidPath indicates a malformed path: not absolute, or a path
	// that traverses through a regular file. Caller bug, not retryable.
	ErrInvalidPath = errors.New("invalid path")

	// ErrOutOfScope indicates a path outside the cache root. It wraps
	// ErrInvalidPath so errors.Is(err, ErrInvalidPath) also holds.
	ErrOutOfScope = fmt.Errorf("%w: outside cache root", ErrInvalidPath)

	// ErrNotFound indicates a path absent from the cache or the
	// filesystem. Callers should re-check after the next Update.
	ErrNotFound = errors.New("not found")

	// ErrNotAFile indicates the path resolves to a directory or other
	// non-regular entry where a regular file was required.
	ErrNotAFile = errors.New("not a regular file")
)

// FetchError wraps a filesystem accessor failure for one path. The failed
// node remains dirty; the error is retryable by the caller and never
// corrupts cache state.
type FetchError struct {
	Path string // absolute path the access was against
	Op   string // "list", "stat" or "read"
	Err  error  // underlying accessor error
}

// Error formats the failure with operation and path context.
func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes the underlying accessor error for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// newFetchError wraps an accessor error against a path
func newFetchError(op, path string, err error) *FetchError {
	return &FetchError{Path: path, Op: op, Err: err}
}

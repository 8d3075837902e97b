package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks a call with a nil or malformed entity, or a
	// mutation that would break tree ownership.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStorageFailure marks a failed record read, write or delete.
	ErrStorageFailure = errors.New("storage failure")
	// ErrNotFound is returned by record stores for missing keys.
	ErrNotFound = errors.New("not found")
)

// Error describes a failed record operation. errors.Is(err, ErrStorageFailure)
// holds for every *Error.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrStorageFailure, e.Err}
}

func storageError(op, key string, err error) error {
	return &Error{Op: op, Key: key, Err: err}
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

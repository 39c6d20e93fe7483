package invoker

import (
	"errors"
	"fmt"
)

// Kinds of call failures, match them with errors.Is.
var (
	// ErrHelperNotFound: none of the helper paths could be started.
	ErrHelperNotFound = errors.New("helper not found")

	// ErrHelperFailed: the helper exited with a nonzero code or was killed.
	ErrHelperFailed = errors.New("helper failed")

	// ErrNoData: the helper exited cleanly without submitting a result.
	ErrNoData = errors.New("helper returned no data")

	// ErrLibrary: the library function ran and returned nonzero.
	ErrLibrary = errors.New("library call failed")
)

// CallError describes a failed call.
type CallError struct {
	Function string
	Channel  uint8

	// Kind is one of the sentinels above.
	Kind error

	// Code is the helper exit code for ErrHelperFailed and the library
	// return value for ErrLibrary.
	Code int

	// Err is the underlying cause, if any.
	Err error
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("%s(%d): %v", e.Function, e.Channel, e.Kind)
	switch e.Kind {
	case ErrHelperFailed, ErrLibrary:
		msg += fmt.Sprintf(" (code %d)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CallError) Is(target error) bool {
	return target == e.Kind
}

func (e *CallError) Unwrap() error {
	return e.Err
}

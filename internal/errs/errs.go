// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package errs defines the failure taxonomy shared by every layer of the
// media HAL. Callers classify failures with errors.Is against the sentinel
// values or with CodeOf; they never match on message text.
package errs

import (
	"errors"
	"fmt"
)

// Code classifies a failure. Keep these stable: status reports and metrics
// labels depend on them.
type Code int

const (
	CodeNone Code = iota
	// CodeInvalidParameter marks null or out-of-range input. Caller bug, never retried.
	CodeInvalidParameter
	// CodeNotFound marks a missing feature/packet registration. Fatal at construction.
	CodeNotFound
	// CodeAlreadyRegistered marks a duplicate registry key. Fatal at construction.
	CodeAlreadyRegistered
	// CodeNoSpace marks a resource allocation failure. The frame is abandoned,
	// the pipeline stays usable.
	CodeNoSpace
	// CodeDeviceTimeout marks a watchdog/hang reset of an engine.
	CodeDeviceTimeout
	// CodeUnimplemented marks a feature/packet combination the platform lacks.
	CodeUnimplemented
	// CodeHardwareFault marks a non-zero error code written by the hardware
	// at the completion-status location.
	CodeHardwareFault
)

// String returns the stable label for the code.
func (c Code) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeInvalidParameter:
		return "invalid_parameter"
	case CodeNotFound:
		return "not_found"
	case CodeAlreadyRegistered:
		return "already_registered"
	case CodeNoSpace:
		return "no_space"
	case CodeDeviceTimeout:
		return "device_timeout"
	case CodeUnimplemented:
		return "unimplemented"
	case CodeHardwareFault:
		return "hardware_fault"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidParameter  = &Error{Code: CodeInvalidParameter}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrAlreadyRegistered = &Error{Code: CodeAlreadyRegistered}
	ErrNoSpace           = &Error{Code: CodeNoSpace}
	ErrDeviceTimeout     = &Error{Code: CodeDeviceTimeout}
	ErrUnimplemented     = &Error{Code: CodeUnimplemented}
	ErrHardwareFault     = &Error{Code: CodeHardwareFault}
)

// Error carries a Code, the operation that failed and an optional cause.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Code.String()
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Code, so errors.Is(err, ErrNoSpace)
// holds for every no-space failure regardless of Op.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New builds an error with a formatted message as its cause.
func New(code Code, op, format string, args ...any) error {
	return &Error{Code: code, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches code and op to err. A nil err stays nil.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf returns the Code of the first *Error in err's chain. Errors outside
// the taxonomy report CodeInvalidParameter so they never downgrade to
// success.
func CodeOf(err error) Code {
	if err == nil {
		return CodeNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInvalidParameter
}

// Retryable reports whether a frame that failed with code may be resubmitted
// on the same pipeline.
func Retryable(code Code) bool {
	return code == CodeNoSpace
}

// ConstructionFatal reports whether code prevents a pipeline from being used.
func ConstructionFatal(code Code) bool {
	switch code {
	case CodeNotFound, CodeAlreadyRegistered, CodeUnimplemented:
		return true
	}
	return false
}

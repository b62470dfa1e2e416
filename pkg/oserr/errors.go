// Package oserr defines the error kinds reported by the syscall bridge.
//
// Every error returned by a hint wraps exactly one of the kind sentinels
// below, so the interpreter can classify a failure with errors.Is or Kind.
// All kinds are fatal for the run; there is no retry.
package oserr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fortiblox/stratus-os/internal/types"
)

// Error kinds.
var (
	// ErrUnknownHint is returned when a hint code has no bound handler.
	// It indicates a mismatch between the proven program and this build.
	ErrUnknownHint = errors.New("unknown hint")

	// ErrBadAddress covers invalid relocatable arithmetic, unresolvable
	// identifiers, unreadable memory and out-of-range numeric conversions.
	ErrBadAddress = errors.New("bad address")

	// ErrOracleMiss is returned when the oracle has no entry for a
	// required lookup.
	ErrOracleMiss = errors.New("oracle miss")

	// ErrInconsistency is returned when an observed value differs from
	// the oracle or the expected response.
	ErrInconsistency = errors.New("inconsistency")

	// ErrInvariantViolation is returned on caller misuse, such as a
	// default-valued dictionary where a plain one is required.
	ErrInvariantViolation = errors.New("invariant violation")
)

var kinds = []error{
	ErrUnknownHint,
	ErrBadAddress,
	ErrOracleMiss,
	ErrInconsistency,
	ErrInvariantViolation,
}

// Kind returns the kind sentinel err belongs to, or nil. The chain is walked
// from the outside in and the first kind sentinel or typed error found wins,
// so a StorageReadError stays an oracle miss whatever its cause.
func Kind(err error) error {
	for _, k := range kinds {
		if err == k {
			return k
		}
	}
	switch e := err.(type) {
	case *StorageReadError:
		return ErrOracleMiss
	case *InconsistentStorageError, *ReturnValueMismatchError:
		return ErrInconsistency
	case interface{ Unwrap() error }:
		return Kind(e.Unwrap())
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if k := Kind(inner); k != nil {
				return k
			}
		}
	}
	return nil
}

// StorageReadError is returned when the oracle cannot serve a storage read.
type StorageReadError struct {
	Contract types.Felt
	Key      types.Felt
	Err      error
}

// Error implements the error interface.
func (e *StorageReadError) Error() string {
	msg := fmt.Sprintf("storage read error, contract: %s, key: %s", e.Contract, e.Key)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the kind and the underlying cause.
func (e *StorageReadError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrOracleMiss}
	}
	return []error{ErrOracleMiss, e.Err}
}

// InconsistentStorageError is returned when the value the program wrote
// differs from the oracle's value.
type InconsistentStorageError struct {
	Actual   types.Felt
	Expected types.Felt
}

// Error implements the error interface.
func (e *InconsistentStorageError) Error() string {
	return fmt.Sprintf("inconsistent storage value: %s <> %s", e.Actual, e.Expected)
}

// Unwrap returns ErrInconsistency.
func (e *InconsistentStorageError) Unwrap() error {
	return ErrInconsistency
}

// ReturnValueMismatchError is returned by the response verifier. Expected
// and Actual hold the rendered memory cells.
type ReturnValueMismatchError struct {
	Expected []string
	Actual   []string
}

// Error implements the error interface.
func (e *ReturnValueMismatchError) Error() string {
	return fmt.Sprintf("return value mismatch expected=[%s], actual=[%s]",
		strings.Join(e.Expected, ", "), strings.Join(e.Actual, ", "))
}

// Unwrap returns ErrInconsistency.
func (e *ReturnValueMismatchError) Unwrap() error {
	return ErrInconsistency
}

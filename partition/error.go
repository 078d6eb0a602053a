// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package partition

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrMalformedGraph indicates the package graph references a parent
	// that is not part of the package, or its parent relation is cyclic.
	ErrMalformedGraph ErrorCode = iota

	// ErrInvalidSize indicates a transaction's own size is not strictly
	// positive, which leaves its fee rate undefined.
	ErrInvalidSize

	// ErrMissingFeeSize indicates a transaction of the package has no fee
	// and size entry.
	ErrMissingFeeSize

	// ErrNegativeFee indicates a transaction's own fee is negative.
	ErrNegativeFee

	// ErrInvalidThreshold indicates the target fee rate is missing or
	// negative.
	ErrInvalidThreshold
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrMalformedGraph:   "ErrMalformedGraph",
	ErrInvalidSize:      "ErrInvalidSize",
	ErrMissingFeeSize:   "ErrMissingFeeSize",
	ErrNegativeFee:      "ErrNegativeFee",
	ErrInvalidThreshold: "ErrInvalidThreshold",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a package that cannot be partitioned.  The caller can
// use errors.As to determine if a failure was due to invalid input and access
// the ErrorCode field to ascertain the specific reason.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error, if any
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e RuleError) Unwrap() error {
	return e.Err
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// IsErrorCode returns whether err is a RuleError with the passed code.
func IsErrorCode(err error, c ErrorCode) bool {
	var rerr RuleError
	return errors.As(err, &rerr) && rerr.ErrorCode == c
}

// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package feerate provides an exact fee and size aggregate used to evaluate
// transaction packages against a minimum fee rate.
//
// Fees and sizes are kept apart so that aggregates can be summed, and all
// arithmetic is done with math/big rationals.  A fee rate is only ever formed
// for display; acceptance decisions compare fee against threshold*size so
// there is no rounding near the boundary.
package feerate

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrInvalidRate is returned when a fee rate string cannot be parsed as
	// an exact non-negative rational.
	ErrInvalidRate = errors.New("invalid fee rate")

	// zero is used for comparisons only and must never be modified.
	zero = new(big.Rat)
)

// FeeSize is an immutable (fee, size) pair.  The zero value is a valid
// aggregate with zero fee and zero size.
type FeeSize struct {
	fee  *big.Rat
	size *big.Rat
}

// NewFeeSize returns an aggregate holding copies of the passed fee and size.
// A nil argument is treated as zero.
func NewFeeSize(fee, size *big.Rat) FeeSize {
	return FeeSize{fee: cloneRat(fee), size: cloneRat(size)}
}

// FromInts returns an aggregate for an integral fee and size, such as a fee
// in satoshis and a size in virtual bytes.
func FromInts(fee, size int64) FeeSize {
	return FeeSize{
		fee:  new(big.Rat).SetInt64(fee),
		size: new(big.Rat).SetInt64(size),
	}
}

// Fee returns a copy of the fee component.
func (fs FeeSize) Fee() *big.Rat {
	return cloneRat(fs.fee)
}

// Size returns a copy of the size component.
func (fs FeeSize) Size() *big.Rat {
	return cloneRat(fs.size)
}

// HasPositiveSize reports whether the size component is strictly positive,
// which is required before FeeRate may be called.
func (fs FeeSize) HasPositiveSize() bool {
	return fs.size != nil && fs.size.Sign() > 0
}

// IsNegative reports whether either component is below zero.
func (fs FeeSize) IsNegative() bool {
	return (fs.fee != nil && fs.fee.Sign() < 0) ||
		(fs.size != nil && fs.size.Sign() < 0)
}

// Combine returns the componentwise sum of a and b.
func Combine(a, b FeeSize) FeeSize {
	return FeeSize{
		fee:  new(big.Rat).Add(ratOrZero(a.fee), ratOrZero(b.fee)),
		size: new(big.Rat).Add(ratOrZero(a.size), ratOrZero(b.size)),
	}
}

// Add is shorthand for Combine(fs, other).
func (fs FeeSize) Add(other FeeSize) FeeSize {
	return Combine(fs, other)
}

// FeeRate returns fee / size.  The size must be strictly positive; calling
// FeeRate on an aggregate without a positive size panics.
func (fs FeeSize) FeeRate() *big.Rat {
	if !fs.HasPositiveSize() {
		panic("feerate: fee rate of aggregate with non-positive size")
	}
	return new(big.Rat).Quo(ratOrZero(fs.fee), fs.size)
}

// MeetsRate reports whether the aggregate's fee rate is at or above the
// passed threshold.  It is evaluated as fee >= threshold * size, so an
// aggregate with zero size meets any non-positive threshold only.
func (fs FeeSize) MeetsRate(threshold *big.Rat) bool {
	required := new(big.Rat).Mul(ratOrZero(threshold), ratOrZero(fs.size))
	return ratOrZero(fs.fee).Cmp(required) >= 0
}

// Equal reports whether both components of fs and other are equal.
func (fs FeeSize) Equal(other FeeSize) bool {
	return ratOrZero(fs.fee).Cmp(ratOrZero(other.fee)) == 0 &&
		ratOrZero(fs.size).Cmp(ratOrZero(other.size)) == 0
}

// String returns the aggregate in a human-readable form.
func (fs FeeSize) String() string {
	return fmt.Sprintf("FeeSize(fee=%s, size=%s)",
		ratOrZero(fs.fee).RatString(), ratOrZero(fs.size).RatString())
}

// FeeBump returns the additional fee the aggregate needs for its fee rate to
// reach the threshold exactly, holding the size fixed:
//
//	threshold*size - fee
//
// The result is negative when the aggregate already exceeds the threshold.
func FeeBump(agg FeeSize, threshold *big.Rat) *big.Rat {
	desired := new(big.Rat).Mul(ratOrZero(threshold), ratOrZero(agg.size))
	return desired.Sub(desired, ratOrZero(agg.fee))
}

// ParseRate parses an exact, non-negative fee rate.  Decimal ("2.1"),
// fractional ("2/3") and exponent ("5e-1") forms are accepted.
func ParseRate(s string) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidRate, s)
	}
	return r, nil
}

// FormatRate formats r with prec digits after the decimal point.  It is
// meant for display only.
func FormatRate(r *big.Rat, prec int) string {
	return ratOrZero(r).FloatString(prec)
}

func ratOrZero(r *big.Rat) *big.Rat {
	if r == nil {
		return zero
	}
	return r
}

func cloneRat(r *big.Rat) *big.Rat {
	if r == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Set(r)
}

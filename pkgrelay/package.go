// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pkgrelay

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/pkgfeerate/feerate"
	"github.com/btcsuite/pkgfeerate/pkggraph"
)

var (
	// ErrEmptyPackage is returned when a package has no transactions.
	ErrEmptyPackage = errors.New("package has no transactions")

	// ErrNilTransaction is returned when a package entry has no
	// transaction.
	ErrNilTransaction = errors.New("package entry has no transaction")

	// ErrDuplicateTx is returned when a package lists the same txid more
	// than once.
	ErrDuplicateTx = errors.New("duplicate transaction in package")

	// ErrInvalidFee is returned when a transaction fee, or the total fee of
	// a package, is negative or above the maximum number of satoshi.
	ErrInvalidFee = errors.New("invalid package fee")

	// ErrInvalidVSize is returned when a transaction's virtual size is not
	// positive or exceeds the package virtual size limit on its own.
	ErrInvalidVSize = errors.New("invalid transaction virtual size")

	// ErrPackageTooLarge is returned when a package exceeds the configured
	// transaction count or total virtual size.
	ErrPackageTooLarge = errors.New("package exceeds relay limits")
)

// PackageTx is a transaction submitted as part of a package together with
// the fee it pays and its virtual size, both of which the caller has already
// computed from the spent outputs and the serialized transaction.
type PackageTx struct {
	// Tx is the transaction.  Its inputs determine which other members of
	// the package it depends on.
	Tx *btcutil.Tx

	// Fee is the transaction's own fee in satoshis.
	Fee btcutil.Amount

	// VSize is the transaction's virtual size in vbytes.
	VSize int64
}

// BuildPackage derives the dependency graph of a package from the inputs of
// its transactions.  A transaction's parents are the package members whose
// outputs it spends; inputs spending anything outside the package are
// treated as confirmed and ignored.  The returned fee and size table holds
// each transaction's own fee in satoshis and size in vbytes.
func BuildPackage(txs []*PackageTx) (*pkggraph.Graph[chainhash.Hash],
	map[chainhash.Hash]feerate.FeeSize, error) {

	members := make(map[chainhash.Hash]struct{}, len(txs))
	for i, ptx := range txs {
		if ptx == nil || ptx.Tx == nil {
			return nil, nil, fmt.Errorf("%w: entry %d",
				ErrNilTransaction, i)
		}
		hash := *ptx.Tx.Hash()
		if _, ok := members[hash]; ok {
			return nil, nil, fmt.Errorf("%w: %v", ErrDuplicateTx,
				hash)
		}
		members[hash] = struct{}{}
	}

	g := pkggraph.New[chainhash.Hash]()
	feeSizes := make(map[chainhash.Hash]feerate.FeeSize, len(txs))
	for _, ptx := range txs {
		hash := *ptx.Tx.Hash()

		var parents []chainhash.Hash
		seen := make(map[chainhash.Hash]struct{})
		for _, txIn := range ptx.Tx.MsgTx().TxIn {
			prev := txIn.PreviousOutPoint.Hash
			if _, ok := members[prev]; !ok {
				continue
			}
			if _, ok := seen[prev]; ok {
				continue
			}
			seen[prev] = struct{}{}
			parents = append(parents, prev)
		}

		if err := g.AddNode(hash, parents...); err != nil {
			return nil, nil, err
		}
		feeSizes[hash] = feerate.FromInts(int64(ptx.Fee), ptx.VSize)
	}

	return g, feeSizes, nil
}

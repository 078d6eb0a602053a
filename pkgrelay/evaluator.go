// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pkgrelay

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/pkgfeerate/feerate"
	"github.com/btcsuite/pkgfeerate/partition"
	"github.com/decred/dcrd/lru"
	grouplru "github.com/golang/groupcache/lru"
)

const (
	// DefaultMinRelayTxFee is the default minimum package fee rate in
	// satoshi per 1000 vbytes.
	DefaultMinRelayTxFee = btcutil.Amount(1000)

	// MaxPackageCount is the maximum number of transactions allowed in a
	// single package.
	MaxPackageCount = 25

	// MaxPackageVSize is the maximum total virtual size allowed for a
	// package, 404000 weight units expressed in vbytes.
	MaxPackageVSize = 101000

	// DefaultResultCacheSize is the default number of package results
	// kept for packages announced again by other peers.
	DefaultResultCacheSize = 100

	// DefaultRejectCacheSize is the default number of rejected txids
	// remembered.
	DefaultRejectCacheSize = 1000
)

// Config houses the package evaluation policy.
type Config struct {
	// MinRelayTxFee is the minimum ancestor fee rate, in satoshi per 1000
	// vbytes, a transaction of the package needs to be accepted.
	MinRelayTxFee btcutil.Amount

	// MaxPackageCount is the maximum number of transactions in a package.
	MaxPackageCount int

	// MaxPackageVSize is the maximum total virtual size of a package.
	MaxPackageVSize int64

	// ResultCacheSize is the number of package results to memoise.  Zero
	// disables the cache.
	ResultCacheSize int

	// RejectCacheSize is the number of rejected txids to remember.  Zero
	// selects DefaultRejectCacheSize.
	RejectCacheSize uint
}

// DefaultConfig returns the default package evaluation policy.
func DefaultConfig() *Config {
	return &Config{
		MinRelayTxFee:   DefaultMinRelayTxFee,
		MaxPackageCount: MaxPackageCount,
		MaxPackageVSize: MaxPackageVSize,
		ResultCacheSize: DefaultResultCacheSize,
		RejectCacheSize: DefaultRejectCacheSize,
	}
}

// TxResult holds the outcome for a single transaction of a package.
type TxResult struct {
	// Hash is the transaction hash (txid).
	Hash chainhash.Hash

	// Fee and VSize are the transaction's own fee and virtual size.
	Fee   btcutil.Amount
	VSize int64

	// Accepted indicates whether the transaction reached the minimum fee
	// rate, alone or as an ancestor of a transaction that did.
	Accepted bool

	// AncestorFee and AncestorVSize hold the final ancestor aggregate of a
	// rejected transaction: its own fee and size plus those of its
	// rejected ancestors.  Both are zero for accepted transactions.
	AncestorFee   btcutil.Amount
	AncestorVSize int64

	// FeeBump is the additional fee, rounded up to whole satoshis, that
	// would bring a rejected transaction's ancestor fee rate up to the
	// minimum.  A transaction spending it has to contribute at least this
	// much on top of its own requirement.  Zero for accepted transactions.
	FeeBump btcutil.Amount
}

// Result holds the outcome of evaluating a package.  Results may be shared
// between callers through the result cache and must not be modified.
type Result struct {
	// Digest identifies the evaluated package and policy.
	Digest chainhash.Hash

	// MinRelayTxFee is the fee rate, in satoshi per 1000 vbytes, the
	// package was evaluated against.
	MinRelayTxFee btcutil.Amount

	// Txs holds the per-transaction results in topological order.
	Txs []*TxResult

	// AcceptedFee and AcceptedVSize total the accepted transactions.
	AcceptedFee   btcutil.Amount
	AcceptedVSize int64

	// AcceptedFeeRate is the fee rate of the accepted subset in satoshi
	// per 1000 vbytes, rounded down.  Zero if nothing was accepted.
	AcceptedFeeRate int64

	// AcceptedCount and RejectedCount count the transactions on each side.
	AcceptedCount int
	RejectedCount int
}

// Evaluator partitions packages by ancestor fee rate on behalf of the
// package relay code.  It is safe for concurrent use.
type Evaluator struct {
	cfg       Config
	threshold *big.Rat

	mu      sync.Mutex
	results *grouplru.Cache

	// recentRejects holds txids that fell short of the minimum fee rate.
	// They may still be accepted later as part of a package with a child
	// that pays for them.
	recentRejects lru.Cache
}

// NewEvaluator returns a package evaluator for the passed policy.  A nil
// config selects DefaultConfig.
func NewEvaluator(cfg *Config) (*Evaluator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MinRelayTxFee < 0 || cfg.MinRelayTxFee > btcutil.MaxSatoshi {
		return nil, fmt.Errorf("invalid minimum relay fee %d",
			cfg.MinRelayTxFee)
	}

	rejectCacheSize := cfg.RejectCacheSize
	if rejectCacheSize == 0 {
		rejectCacheSize = DefaultRejectCacheSize
	}

	e := &Evaluator{
		cfg:           *cfg,
		threshold:     PerVByte(cfg.MinRelayTxFee),
		recentRejects: lru.NewCache(rejectCacheSize),
	}
	if cfg.ResultCacheSize > 0 {
		e.results = grouplru.New(cfg.ResultCacheSize)
	}
	return e, nil
}

// PerVByte converts a fee rate in satoshi per 1000 vbytes to an exact rate
// in satoshi per vbyte.
func PerVByte(feePerKvB btcutil.Amount) *big.Rat {
	return big.NewRat(int64(feePerKvB), 1000)
}

// Evaluate checks the package against the relay limits and partitions it
// into the transactions that meet the minimum fee rate once their ancestors
// are included and those that do not.
func (e *Evaluator) Evaluate(txs []*PackageTx) (*Result, error) {
	if len(txs) == 0 {
		return nil, ErrEmptyPackage
	}
	if len(txs) > e.cfg.MaxPackageCount {
		return nil, fmt.Errorf("%w: %d transactions, max %d",
			ErrPackageTooLarge, len(txs), e.cfg.MaxPackageCount)
	}

	// The totals are checked before every addition so they can not wrap.
	var totalFee btcutil.Amount
	var totalVSize int64
	for i, ptx := range txs {
		// Nil entries are reported by BuildPackage.
		if ptx == nil {
			continue
		}
		if ptx.Fee < 0 || ptx.Fee > btcutil.MaxSatoshi {
			return nil, fmt.Errorf("%w: entry %d pays %d, range "+
				"0..%d", ErrInvalidFee, i, int64(ptx.Fee),
				int64(btcutil.MaxSatoshi))
		}
		if ptx.VSize <= 0 || ptx.VSize > e.cfg.MaxPackageVSize {
			return nil, fmt.Errorf("%w: entry %d has %d vbytes, "+
				"range 1..%d", ErrInvalidVSize, i, ptx.VSize,
				e.cfg.MaxPackageVSize)
		}
		if totalFee > btcutil.MaxSatoshi-ptx.Fee {
			return nil, fmt.Errorf("%w: package pays more than %d",
				ErrInvalidFee, int64(btcutil.MaxSatoshi))
		}
		if totalVSize > e.cfg.MaxPackageVSize-ptx.VSize {
			return nil, fmt.Errorf("%w: more than %d vbytes",
				ErrPackageTooLarge, e.cfg.MaxPackageVSize)
		}
		totalFee += ptx.Fee
		totalVSize += ptx.VSize
	}

	g, feeSizes, err := BuildPackage(txs)
	if err != nil {
		return nil, err
	}

	digest := packageDigest(txs, e.cfg.MinRelayTxFee)
	if cached := e.cachedResult(digest); cached != nil {
		log.Debugf("Using cached result for package %v", digest)
		e.trackRejects(cached)
		return cached, nil
	}

	parts, err := partition.Partition(g, feeSizes, e.threshold)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Digest:        digest,
		MinRelayTxFee: e.cfg.MinRelayTxFee,
		AcceptedCount: len(parts.Accepted),
		RejectedCount: len(parts.Rejected),
	}
	byHash := make(map[chainhash.Hash]*PackageTx, len(txs))
	for _, ptx := range txs {
		byHash[*ptx.Tx.Hash()] = ptx
	}

	for _, hash := range parts.Order {
		ptx := byHash[hash]
		txResult := &TxResult{
			Hash:  hash,
			Fee:   ptx.Fee,
			VSize: ptx.VSize,
		}

		if parts.IsAccepted(hash) {
			txResult.Accepted = true
			result.AcceptedFee += ptx.Fee
			result.AcceptedVSize += ptx.VSize
		} else {
			agg := parts.Rejected[hash]
			txResult.AncestorFee = btcutil.Amount(ratToInt64(agg.Fee()))
			txResult.AncestorVSize = ratToInt64(agg.Size())
			txResult.FeeBump = btcutil.Amount(ceilRat(
				feerate.FeeBump(agg, e.threshold)))
		}
		result.Txs = append(result.Txs, txResult)
	}
	// The package fee is at most MaxSatoshi, so the product fits.
	if result.AcceptedVSize > 0 {
		result.AcceptedFeeRate = int64(result.AcceptedFee) * 1000 /
			result.AcceptedVSize
	}

	log.Debugf("Evaluated package %v at %v/kvB: %d accepted, %d "+
		"rejected", digest, e.cfg.MinRelayTxFee, result.AcceptedCount,
		result.RejectedCount)

	e.storeResult(result)
	return result, nil
}

// IsRecentlyRejected returns whether the transaction was rejected for an
// insufficient ancestor fee rate by a recent evaluation and has not been
// accepted since.
func (e *Evaluator) IsRecentlyRejected(hash chainhash.Hash) bool {
	return e.recentRejects.Contains(hash)
}

func (e *Evaluator) cachedResult(digest chainhash.Hash) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.results == nil {
		return nil
	}
	if v, ok := e.results.Get(digest); ok {
		return v.(*Result)
	}
	return nil
}

// trackRejects records the rejected transactions of result as recently
// rejected and forgets the accepted ones.
func (e *Evaluator) trackRejects(result *Result) {
	for _, txResult := range result.Txs {
		if txResult.Accepted {
			e.recentRejects.Delete(txResult.Hash)
			continue
		}
		e.recentRejects.Add(txResult.Hash)
	}
}

func (e *Evaluator) storeResult(result *Result) {
	e.trackRejects(result)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.results != nil {
		e.results.Add(result.Digest, result)
	}
}

// packageDigest commits to the transactions, their fees and sizes in
// submission order, and the fee rate they are evaluated against.
func packageDigest(txs []*PackageTx, minRelayTxFee btcutil.Amount) chainhash.Hash {
	buf := make([]byte, 0, len(txs)*(chainhash.HashSize+16)+8)
	for _, ptx := range txs {
		buf = append(buf, ptx.Tx.Hash()[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(ptx.Fee))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(ptx.VSize))
	}
	buf = binary.LittleEndian.AppendUint64(buf, uint64(minRelayTxFee))
	return chainhash.HashH(buf)
}

// ceilRat returns the smallest integer not less than r, saturating at the
// int64 bounds.
func ceilRat(r *big.Rat) int64 {
	q, m := new(big.Int).DivMod(r.Num(), r.Denom(), new(big.Int))
	if m.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return saturateInt64(q)
}

// ratToInt64 returns the integer part of r, saturating at the int64 bounds.
// Ancestor aggregates count an ancestor once per path to it, so they can
// exceed the fees and sizes of the package itself.
func ratToInt64(r *big.Rat) int64 {
	return saturateInt64(new(big.Int).Quo(r.Num(), r.Denom()))
}

func saturateInt64(n *big.Int) int64 {
	switch {
	case n.IsInt64():
		return n.Int64()
	case n.Sign() > 0:
		return math.MaxInt64
	default:
		return math.MinInt64
	}
}

// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pkgrelay

import (
	"encoding/binary"
	"math"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// txFactory creates distinct transactions.  Every transaction spends a
// unique confirmed outpoint so that transactions with the same parents still
// have different hashes.
type txFactory struct {
	next uint64
}

func (f *txFactory) newTx(parents ...*btcutil.Tx) *btcutil.Tx {
	f.next++
	var confirmed chainhash.Hash
	binary.LittleEndian.PutUint64(confirmed[:], f.next)

	msgTx := wire.NewMsgTx(wire.TxVersion)
	msgTx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&confirmed, 0), nil, nil))
	for _, parent := range parents {
		msgTx.AddTxIn(wire.NewTxIn(
			wire.NewOutPoint(parent.Hash(), 0), nil, nil,
		))
	}
	msgTx.AddTxOut(wire.NewTxOut(10000, nil))
	msgTx.AddTxOut(wire.NewTxOut(20000, nil))

	return btcutil.NewTx(msgTx)
}

func ptx(tx *btcutil.Tx, fee btcutil.Amount, vsize int64) *PackageTx {
	return &PackageTx{Tx: tx, Fee: fee, VSize: vsize}
}

func newTestEvaluator(t *testing.T, minRelayTxFee btcutil.Amount) *Evaluator {
	t.Helper()

	cfg := DefaultConfig()
	cfg.MinRelayTxFee = minRelayTxFee
	e, err := NewEvaluator(cfg)
	require.NoError(t, err)
	return e
}

// TestBuildPackage ensures parents are derived from in-package inputs only.
func TestBuildPackage(t *testing.T) {
	var f txFactory
	parent := f.newTx()
	other := f.newTx()
	child := f.newTx(parent, other)

	// Spend the second output of the parent too; the edge is only
	// recorded once.
	child.MsgTx().AddTxIn(wire.NewTxIn(
		wire.NewOutPoint(parent.Hash(), 1), nil, nil,
	))
	child = btcutil.NewTx(child.MsgTx())

	// The child is listed first and other is not part of the package, so
	// its input is treated as confirmed.
	g, feeSizes, err := BuildPackage([]*PackageTx{
		ptx(child, 700, 100), ptx(parent, 100, 300),
	})
	require.NoError(t, err)
	require.Equal(t, 2, g.Len())

	parents, ok := g.Parents(*child.Hash())
	require.True(t, ok)
	require.Equal(t, []chainhash.Hash{*parent.Hash()}, parents)

	parents, ok = g.Parents(*parent.Hash())
	require.True(t, ok)
	require.Empty(t, parents)

	require.Equal(t, "FeeSize(fee=700, size=100)",
		feeSizes[*child.Hash()].String())
}

// TestBuildPackageErrors ensures malformed submissions are rejected.
func TestBuildPackageErrors(t *testing.T) {
	var f txFactory
	tx := f.newTx()

	_, _, err := BuildPackage([]*PackageTx{ptx(tx, 1, 1), ptx(tx, 1, 1)})
	require.ErrorIs(t, err, ErrDuplicateTx)

	_, _, err = BuildPackage([]*PackageTx{ptx(tx, 1, 1), nil})
	require.ErrorIs(t, err, ErrNilTransaction)

	_, _, err = BuildPackage([]*PackageTx{{Fee: 1, VSize: 1}})
	require.ErrorIs(t, err, ErrNilTransaction)
}

// TestEvaluateChildPaysForParent checks acceptance of a low fee parent with
// a high fee child, and the per-transaction fee bumps when the pair falls
// short.
func TestEvaluateChildPaysForParent(t *testing.T) {
	var f txFactory
	parent := f.newTx()
	child := f.newTx(parent)
	pkg := []*PackageTx{ptx(parent, 100, 300), ptx(child, 700, 100)}

	// 2 sat/vB: the pair is accepted at exactly the threshold.
	result, err := newTestEvaluator(t, 2000).Evaluate(pkg)
	require.NoError(t, err)
	require.Equal(t, 2, result.AcceptedCount)
	require.Zero(t, result.RejectedCount)
	require.Equal(t, btcutil.Amount(800), result.AcceptedFee)
	require.Equal(t, int64(400), result.AcceptedVSize)
	require.Equal(t, int64(2000), result.AcceptedFeeRate)
	for _, txResult := range result.Txs {
		require.True(t, txResult.Accepted)
		require.Zero(t, txResult.FeeBump)
	}

	// 2.1 sat/vB: both are rejected.
	e := newTestEvaluator(t, 2100)
	result, err = e.Evaluate(pkg)
	require.NoError(t, err)
	require.Zero(t, result.AcceptedCount)
	require.Zero(t, result.AcceptedFeeRate)
	require.Len(t, result.Txs, 2)

	parentResult, childResult := result.Txs[0], result.Txs[1]
	require.Equal(t, *parent.Hash(), parentResult.Hash)
	require.Equal(t, btcutil.Amount(100), parentResult.AncestorFee)
	require.Equal(t, int64(300), parentResult.AncestorVSize)
	require.Equal(t, btcutil.Amount(530), parentResult.FeeBump)

	require.Equal(t, *child.Hash(), childResult.Hash)
	require.Equal(t, btcutil.Amount(800), childResult.AncestorFee)
	require.Equal(t, int64(400), childResult.AncestorVSize)
	require.Equal(t, btcutil.Amount(40), childResult.FeeBump)

	require.True(t, e.IsRecentlyRejected(*parent.Hash()))
	require.True(t, e.IsRecentlyRejected(*child.Hash()))

	// A grandchild paying for both gets all three accepted and clears
	// them from the recent rejects.
	grandchild := f.newTx(child)
	result, err = e.Evaluate(append(pkg, ptx(grandchild, 1000, 100)))
	require.NoError(t, err)
	require.Equal(t, 3, result.AcceptedCount)
	require.False(t, e.IsRecentlyRejected(*parent.Hash()))
	require.False(t, e.IsRecentlyRejected(*child.Hash()))
	require.False(t, e.IsRecentlyRejected(*grandchild.Hash()))
}

// TestEvaluateFeeBumpRoundsUp ensures fractional fee bumps are rounded up to
// whole satoshis so that paying the bump always clears the threshold.
func TestEvaluateFeeBumpRoundsUp(t *testing.T) {
	var f txFactory
	tx := f.newTx()

	// 1.001 sat/vB * 300 vB - 100 sat = 200.3 sat.
	result, err := newTestEvaluator(t, 1001).Evaluate(
		[]*PackageTx{ptx(tx, 100, 300)},
	)
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(201), result.Txs[0].FeeBump)
}

// TestEvaluateCache ensures identical submissions are served from the result
// cache while a different policy or package is evaluated afresh.
func TestEvaluateCache(t *testing.T) {
	var f txFactory
	parent := f.newTx()
	child := f.newTx(parent)
	pkg := []*PackageTx{ptx(parent, 100, 300), ptx(child, 700, 100)}

	e := newTestEvaluator(t, 2000)
	first, err := e.Evaluate(pkg)
	require.NoError(t, err)
	second, err := e.Evaluate(pkg)
	require.NoError(t, err)
	require.Same(t, first, second)

	bumped := []*PackageTx{ptx(parent, 100, 300), ptx(child, 701, 100)}
	third, err := e.Evaluate(bumped)
	require.NoError(t, err)
	require.NotEqual(t, first.Digest, third.Digest)

	other := newTestEvaluator(t, 2100)
	fourth, err := other.Evaluate(pkg)
	require.NoError(t, err)
	require.NotEqual(t, first.Digest, fourth.Digest)

	// Without a result cache every call partitions again.
	cfg := DefaultConfig()
	cfg.MinRelayTxFee = 2000
	cfg.ResultCacheSize = 0
	uncached, err := NewEvaluator(cfg)
	require.NoError(t, err)
	a, err := uncached.Evaluate(pkg)
	require.NoError(t, err)
	b, err := uncached.Evaluate(pkg)
	require.NoError(t, err)
	require.NotSame(t, a, b)
	require.Equal(t, a, b)
}

// TestEvaluateLimits ensures the package relay limits are enforced before
// any evaluation.
func TestEvaluateLimits(t *testing.T) {
	var f txFactory
	e := newTestEvaluator(t, 1000)

	_, err := e.Evaluate(nil)
	require.ErrorIs(t, err, ErrEmptyPackage)

	var tooMany []*PackageTx
	for i := 0; i < MaxPackageCount+1; i++ {
		tooMany = append(tooMany, ptx(f.newTx(), 1000, 100))
	}
	_, err = e.Evaluate(tooMany)
	require.ErrorIs(t, err, ErrPackageTooLarge)

	_, err = e.Evaluate([]*PackageTx{
		ptx(f.newTx(), 1000, MaxPackageVSize/2),
		ptx(f.newTx(), 1000, MaxPackageVSize/2+1),
	})
	require.ErrorIs(t, err, ErrPackageTooLarge)

	_, err = e.Evaluate(tooMany[:MaxPackageCount])
	require.NoError(t, err)
}

// TestEvaluateTxBounds ensures fees and sizes are range checked before they
// are summed, and that the largest valid fee rate is reported exactly.
func TestEvaluateTxBounds(t *testing.T) {
	var f txFactory
	e := newTestEvaluator(t, 1000)

	tests := []struct {
		name string
		txs  []*PackageTx
		err  error
	}{
		{
			name: "fee above max satoshi",
			txs:  []*PackageTx{ptx(f.newTx(), 1e17, 100)},
			err:  ErrInvalidFee,
		},
		{
			name: "negative fee",
			txs:  []*PackageTx{ptx(f.newTx(), -1, 100)},
			err:  ErrInvalidFee,
		},
		{
			name: "package fee above max satoshi",
			txs: []*PackageTx{
				ptx(f.newTx(), btcutil.MaxSatoshi, 100),
				ptx(f.newTx(), 1, 100),
			},
			err: ErrInvalidFee,
		},
		{
			name: "zero vsize",
			txs:  []*PackageTx{ptx(f.newTx(), 1000, 0)},
			err:  ErrInvalidVSize,
		},
		{
			name: "vsize above package limit",
			txs:  []*PackageTx{ptx(f.newTx(), 1000, MaxPackageVSize+1)},
			err:  ErrInvalidVSize,
		},
	}
	for _, test := range tests {
		_, err := e.Evaluate(test.txs)
		require.ErrorIs(t, err, test.err, test.name)
	}

	result, err := e.Evaluate([]*PackageTx{
		ptx(f.newTx(), btcutil.MaxSatoshi, 100),
	})
	require.NoError(t, err)
	require.Equal(t, int64(btcutil.MaxSatoshi)*10, result.AcceptedFeeRate)
}

// TestEvaluateAggregateSaturates ensures ancestor aggregates that count a
// shared ancestor along many paths are clamped rather than wrapped.
func TestEvaluateAggregateSaturates(t *testing.T) {
	var f txFactory

	// Every transaction spends all earlier ones, so the ancestor aggregate
	// of the i-th transaction is 2^i times its own fee and size.
	var txs []*btcutil.Tx
	var pkg []*PackageTx
	for i := 0; i < MaxPackageCount; i++ {
		tx := f.newTx(txs...)
		txs = append(txs, tx)
		pkg = append(pkg, ptx(tx, btcutil.MaxSatoshi/MaxPackageCount,
			1000))
	}

	result, err := newTestEvaluator(t, btcutil.MaxSatoshi).Evaluate(pkg)
	require.NoError(t, err)
	require.Zero(t, result.AcceptedCount)

	first := result.Txs[0]
	require.Equal(t, btcutil.Amount(btcutil.MaxSatoshi/MaxPackageCount),
		first.AncestorFee)
	require.Equal(t, int64(1000), first.AncestorVSize)

	last := result.Txs[MaxPackageCount-1]
	require.Equal(t, btcutil.Amount(math.MaxInt64), last.AncestorFee)
	require.Equal(t, int64(1000)<<(MaxPackageCount-1), last.AncestorVSize)
	require.Equal(t, btcutil.Amount(math.MaxInt64), last.FeeBump)
}

// TestEvaluateCacheHitTracksRejects ensures a package served from the result
// cache marks its rejected transactions as recently rejected again.
func TestEvaluateCacheHitTracksRejects(t *testing.T) {
	var f txFactory
	parent := f.newTx()
	child := f.newTx(parent)
	pkg := []*PackageTx{ptx(parent, 100, 300), ptx(child, 700, 100)}

	cfg := DefaultConfig()
	cfg.MinRelayTxFee = 2100
	cfg.RejectCacheSize = 2
	e, err := NewEvaluator(cfg)
	require.NoError(t, err)

	first, err := e.Evaluate(pkg)
	require.NoError(t, err)
	require.True(t, e.IsRecentlyRejected(*parent.Hash()))

	// Another rejection evicts the oldest entry.
	other := f.newTx()
	_, err = e.Evaluate([]*PackageTx{ptx(other, 100, 300)})
	require.NoError(t, err)
	require.False(t, e.IsRecentlyRejected(*parent.Hash()))
	require.True(t, e.IsRecentlyRejected(*other.Hash()))

	second, err := e.Evaluate(pkg)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.True(t, e.IsRecentlyRejected(*parent.Hash()))
	require.True(t, e.IsRecentlyRejected(*child.Hash()))
}

// TestNewEvaluatorConfig checks policy validation and defaults.
func TestNewEvaluatorConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinRelayTxFee = -1
	_, err := NewEvaluator(cfg)
	require.Error(t, err)

	e, err := NewEvaluator(nil)
	require.NoError(t, err)
	require.Zero(t, e.threshold.Cmp(PerVByte(DefaultMinRelayTxFee)))
	require.Equal(t, "1", PerVByte(1000).RatString())
	require.Equal(t, "21/10", PerVByte(2100).RatString())
}

// TestEvaluateConcurrent runs evaluations of independent packages from many
// goroutines against a shared evaluator.
func TestEvaluateConcurrent(t *testing.T) {
	var f txFactory
	var pkgs [][]*PackageTx
	for i := 0; i < 16; i++ {
		parent := f.newTx()
		child := f.newTx(parent)
		pkgs = append(pkgs, []*PackageTx{
			ptx(parent, 100, 300),
			ptx(child, btcutil.Amount(600+10*i), 100),
		})
	}

	e := newTestEvaluator(t, 2000)
	var wg sync.WaitGroup
	results := make([]*Result, len(pkgs))
	errs := make([]error, len(pkgs))
	for i := range pkgs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Evaluate(pkgs[i])
		}(i)
	}
	wg.Wait()

	for i := range pkgs {
		require.NoError(t, errs[i])

		// The child fee reaches 700 at i == 10.
		want := 0
		if i >= 10 {
			want = 2
		}
		require.Equal(t, want, results[i].AcceptedCount, "package %d",
			i)
	}
}

// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package partition

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/pkgfeerate/feerate"
	"github.com/btcsuite/pkgfeerate/pkggraph"
)

// Result is the outcome of partitioning a package by ancestor fee rate.
type Result[N comparable] struct {
	// Accepted holds every transaction whose ancestor fee rate met the
	// threshold, along with all of its ancestors.
	Accepted map[N]struct{}

	// Rejected maps every other transaction to its final ancestor
	// aggregate: its own fee and size plus the ancestor aggregates of its
	// parents that were not accepted.
	Rejected map[N]feerate.FeeSize

	// Order lists all nodes in the topological order they were evaluated
	// in.  AcceptedOrder and RejectedOrder list the nodes of Accepted and
	// Rejected in the same order.
	Order         []N
	AcceptedOrder []N
	RejectedOrder []N

	// Passes is the number of sweeps over the package that were needed to
	// reach the fixed point, including the final sweep that accepted
	// nothing.
	Passes int
}

// IsAccepted returns whether node ended up in the accepted set.
func (r *Result[N]) IsAccepted(node N) bool {
	_, ok := r.Accepted[node]
	return ok
}

// AcceptedFeeSize returns the summed own fee and size of the accepted
// transactions.
func (r *Result[N]) AcceptedFeeSize(feeSizes map[N]feerate.FeeSize) feerate.FeeSize {
	var total feerate.FeeSize
	for _, node := range r.AcceptedOrder {
		total = feerate.Combine(total, feeSizes[node])
	}
	return total
}

// FeeBumps returns, for every rejected transaction, the additional fee its
// own transaction would need for its ancestor fee rate to reach threshold:
//
//	threshold*ancestorSize - ancestorFee
//
// This is the effective value decrement to apply to a new transaction that
// spends the rejected one.
func FeeBumps[N comparable](r *Result[N], threshold *big.Rat) map[N]*big.Rat {
	bumps := make(map[N]*big.Rat, len(r.Rejected))
	for node, agg := range r.Rejected {
		bumps[node] = feerate.FeeBump(agg, threshold)
	}
	return bumps
}

// Partition separates the transactions of a package into those that reach
// threshold once their unconfirmed ancestors are bundled with them, and those
// that do not.
//
// The package is swept in topological order.  Each transaction not yet
// accepted is assigned its ancestor aggregate: its own fee and size plus the
// ancestor aggregate of every parent that has not been accepted.  An ancestor
// reachable through several parents contributes once per parent.  When an
// aggregate meets the threshold, the transaction and all of its ancestors are
// accepted, and evaluation resumes from the earliest transaction whose
// aggregate could have changed.  Partitioning stops once a full sweep accepts
// nothing.
//
// Every node of the graph must have an entry in feeSizes with a non-negative
// fee and a strictly positive size, and threshold must be non-negative.
// Invalid input is reported as a RuleError and no partial result is
// returned.
func Partition[N comparable](g *pkggraph.Graph[N],
	feeSizes map[N]feerate.FeeSize, threshold *big.Rat) (*Result[N], error) {

	if threshold == nil {
		return nil, ruleError(ErrInvalidThreshold, "no target fee rate")
	}
	if threshold.Sign() < 0 {
		str := fmt.Sprintf("target fee rate %s is negative",
			threshold.RatString())
		return nil, ruleError(ErrInvalidThreshold, str)
	}

	compiled, err := g.Compile()
	if err != nil {
		return nil, RuleError{
			ErrorCode:   ErrMalformedGraph,
			Description: fmt.Sprintf("malformed package: %v", err),
			Err:         err,
		}
	}

	own := make([]feerate.FeeSize, compiled.Len())
	for i := range own {
		node := compiled.Node(i)
		fs, ok := feeSizes[node]
		if !ok {
			str := fmt.Sprintf("transaction %v has no fee and size",
				node)
			return nil, ruleError(ErrMissingFeeSize, str)
		}
		if fs.Fee().Sign() < 0 {
			str := fmt.Sprintf("transaction %v has negative fee %s",
				node, fs.Fee().RatString())
			return nil, ruleError(ErrNegativeFee, str)
		}
		if !fs.HasPositiveSize() {
			str := fmt.Sprintf("transaction %v has non-positive "+
				"size %s", node, fs.Size().RatString())
			return nil, ruleError(ErrInvalidSize, str)
		}
		own[i] = fs
	}

	state := newWorkState(compiled, own)
	state.run(threshold)

	result := state.result()
	log.Debugf("Partitioned package of %d transactions at fee rate %s: "+
		"%d accepted, %d rejected after %d passes", compiled.Len(),
		threshold.RatString(), len(result.Accepted),
		len(result.Rejected), result.Passes)

	return result, nil
}

// workState is the working state of a single Partition call.  All of it is
// addressed by topological index into graph.
type workState[N comparable] struct {
	graph      *pkggraph.Compiled[N]
	own        []feerate.FeeSize
	accepted   []bool
	aggregates []feerate.FeeSize
	passes     int
}

func newWorkState[N comparable](graph *pkggraph.Compiled[N],
	own []feerate.FeeSize) *workState[N] {

	return &workState[N]{
		graph:      graph,
		own:        own,
		accepted:   make([]bool, graph.Len()),
		aggregates: make([]feerate.FeeSize, graph.Len()),
	}
}

// run sweeps the package until no further transaction is accepted.
//
// A sweep that accepts a transaction stops there.  The next sweep resumes at
// the lowest index that was newly accepted: every transaction before it was
// already evaluated against an unchanged set of accepted ancestors, since
// ancestors always have lower indexes than their descendants.
func (s *workState[N]) run(threshold *big.Rat) {
	start := 0
	for {
		s.passes++
		next, progress := s.sweep(start, threshold)
		if !progress {
			return
		}
		start = next
	}
}

// sweep evaluates the transactions from index start onwards.  When one of
// them meets the threshold it is accepted along with its ancestors and the
// lowest newly accepted index is returned.
func (s *workState[N]) sweep(start int, threshold *big.Rat) (int, bool) {
	for i := start; i < len(s.accepted); i++ {
		if s.accepted[i] {
			continue
		}

		agg := s.ancestorAggregate(i)
		s.aggregates[i] = agg
		if !agg.MeetsRate(threshold) {
			continue
		}

		lowest, added := s.acceptWithAncestors(i)
		log.Tracef("Accepted %v with ancestor aggregate %v, %d "+
			"transactions moved to the accepted set (ancestors %v)",
			s.graph.Node(i), agg, added, newLogClosure(func() string {
				ancestors, _ := s.graph.Ancestors(s.graph.Node(i))
				return fmt.Sprint(ancestors)
			}))
		return lowest, true
	}
	return 0, false
}

// ancestorAggregate returns the own fee and size of transaction i plus the
// stored ancestor aggregate of each of its parents that is not accepted.
// Parents always have lower indexes, so their aggregates are current for the
// set of accepted transactions when i is evaluated.
func (s *workState[N]) ancestorAggregate(i int) feerate.FeeSize {
	agg := s.own[i]
	for _, p := range s.graph.ParentIndexes(i) {
		if !s.accepted[p] {
			agg = feerate.Combine(agg, s.aggregates[p])
		}
	}
	return agg
}

// acceptWithAncestors accepts transaction i and all of its ancestors that
// were not yet accepted.  It returns the lowest index that changed and the
// number of transactions accepted.
func (s *workState[N]) acceptWithAncestors(i int) (int, int) {
	lowest, added := i, 1
	s.accepted[i] = true
	for _, a := range s.graph.AncestorIndexes(i) {
		if s.accepted[a] {
			continue
		}
		s.accepted[a] = true
		added++
		if a < lowest {
			lowest = a
		}
	}
	return lowest, added
}

func (s *workState[N]) result() *Result[N] {
	r := &Result[N]{
		Accepted: make(map[N]struct{}),
		Rejected: make(map[N]feerate.FeeSize),
		Order:    s.graph.Nodes(),
		Passes:   s.passes,
	}
	for i, accepted := range s.accepted {
		node := s.graph.Node(i)
		if accepted {
			r.Accepted[node] = struct{}{}
			r.AcceptedOrder = append(r.AcceptedOrder, node)
			continue
		}
		r.Rejected[node] = s.aggregates[i]
		r.RejectedOrder = append(r.RejectedOrder, node)
	}
	return r
}

// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pkggraph provides the dependency graph of a transaction package:
// a mapping from each transaction to the transactions it directly spends
// from within the same package.
//
// Nodes may be added in any order.  Compile validates the graph and produces
// an index-addressed form with a stable topological order, which is what the
// package evaluation code iterates over.
package pkggraph

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrNodeNotFound is returned when a parent is referenced that is not
	// a node of the graph.
	ErrNodeNotFound = errors.New("parent not found in package")

	// ErrCycleDetected is returned when the parent relation is not acyclic.
	ErrCycleDetected = errors.New("cycle detected in package")

	// ErrDuplicateNode is returned when a node is added twice.
	ErrDuplicateNode = errors.New("node already exists in package")
)

// Graph is a package dependency graph keyed by an opaque node identifier.
// It records insertion order so that every traversal is deterministic.
// Graph is not safe for concurrent mutation.
type Graph[N comparable] struct {
	order   []N
	parents map[N][]N
}

// New returns an empty graph.
func New[N comparable]() *Graph[N] {
	return &Graph[N]{parents: make(map[N][]N)}
}

// AddNode adds a node with its ordered list of direct parents.  Parents do
// not have to be present yet; they are resolved by Compile.
func (g *Graph[N]) AddNode(node N, parents ...N) error {
	if _, ok := g.parents[node]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicateNode, node)
	}

	g.order = append(g.order, node)
	g.parents[node] = append([]N(nil), parents...)
	return nil
}

// Len returns the number of nodes in the graph.
func (g *Graph[N]) Len() int {
	return len(g.order)
}

// Nodes returns the nodes in insertion order.
func (g *Graph[N]) Nodes() []N {
	return append([]N(nil), g.order...)
}

// Parents returns the direct parents of node and whether node is present.
func (g *Graph[N]) Parents(node N) ([]N, bool) {
	parents, ok := g.parents[node]
	if !ok {
		return nil, false
	}
	return append([]N(nil), parents...), true
}

// HasNode returns whether node is part of the graph.
func (g *Graph[N]) HasNode(node N) bool {
	_, ok := g.parents[node]
	return ok
}

// Compiled is an immutable, index-addressed view of a validated graph.
// Index i refers to the i-th node in topological order: every parent has a
// lower index than its children.
type Compiled[N comparable] struct {
	nodes   []N
	index   map[N]int
	parents [][]int

	// ancestors holds, for each node, all of its transitive ancestors
	// in ascending (topological) index order, each listed once.
	ancestors [][]int
}

// Compile validates the graph and returns its compiled form.  It fails with
// ErrNodeNotFound if a parent is missing and ErrCycleDetected if the parent
// relation has a cycle.
//
// The topological order is stable: among the nodes that are ready at any
// step, the one added first is emitted first, so a graph that was built in
// topological order keeps its insertion order.
func (g *Graph[N]) Compile() (*Compiled[N], error) {
	n := len(g.order)
	insertion := make(map[N]int, n)
	for i, node := range g.order {
		insertion[node] = i
	}

	// Resolve parents to insertion indexes, dropping repeated entries so
	// that an edge listed twice is only counted once.
	parentIdx := make([][]int, n)
	children := make([][]int, n)
	inDegree := make([]int, n)
	for i, node := range g.order {
		seen := make(map[int]struct{}, len(g.parents[node]))
		for _, parent := range g.parents[node] {
			p, ok := insertion[parent]
			if !ok {
				return nil, fmt.Errorf("%w: %v (parent of %v)",
					ErrNodeNotFound, parent, node)
			}
			if p == i {
				return nil, fmt.Errorf("%w: %v spends itself",
					ErrCycleDetected, node)
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}

			parentIdx[i] = append(parentIdx[i], p)
			children[p] = append(children[p], i)
			inDegree[i]++
		}
	}

	// Kahn's algorithm.  The ready set is kept as a min-heap over
	// insertion indexes to make the order stable.
	ready := &indexHeap{}
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			ready.push(i)
		}
	}
	topo := make([]int, 0, n)
	for ready.len() > 0 {
		i := ready.pop()
		topo = append(topo, i)
		for _, child := range children[i] {
			inDegree[child]--
			if inDegree[child] == 0 {
				ready.push(child)
			}
		}
	}
	if len(topo) != n {
		return nil, fmt.Errorf("%w: %d of %d nodes are on or behind a "+
			"cycle", ErrCycleDetected, n-len(topo), n)
	}

	c := &Compiled[N]{
		nodes:     make([]N, n),
		index:     make(map[N]int, n),
		parents:   make([][]int, n),
		ancestors: make([][]int, n),
	}
	position := make([]int, n)
	for pos, i := range topo {
		position[i] = pos
		c.nodes[pos] = g.order[i]
		c.index[g.order[i]] = pos
	}
	for pos, i := range topo {
		for _, p := range parentIdx[i] {
			c.parents[pos] = append(c.parents[pos], position[p])
		}
	}

	// Parents precede children, so each node's ancestor set is the union
	// of its parents and their already computed ancestor sets.
	mark := make([]int, n)
	for i := range mark {
		mark[i] = -1
	}
	for pos := 0; pos < n; pos++ {
		var anc []int
		for _, p := range c.parents[pos] {
			for _, a := range c.ancestors[p] {
				if mark[a] != pos {
					mark[a] = pos
					anc = append(anc, a)
				}
			}
			if mark[p] != pos {
				mark[p] = pos
				anc = append(anc, p)
			}
		}
		slices.Sort(anc)
		c.ancestors[pos] = anc
	}

	return c, nil
}

// Len returns the number of nodes.
func (c *Compiled[N]) Len() int {
	return len(c.nodes)
}

// Node returns the node at topological index i.
func (c *Compiled[N]) Node(i int) N {
	return c.nodes[i]
}

// Index returns the topological index of node.
func (c *Compiled[N]) Index(node N) (int, bool) {
	i, ok := c.index[node]
	return i, ok
}

// Nodes returns all nodes in topological order.
func (c *Compiled[N]) Nodes() []N {
	return append([]N(nil), c.nodes...)
}

// ParentIndexes returns the indexes of the direct parents of node i.  The
// returned slice must not be modified.
func (c *Compiled[N]) ParentIndexes(i int) []int {
	return c.parents[i]
}

// AncestorIndexes returns the indexes of all transitive ancestors of node i
// in ascending order, each once.  The returned slice must not be modified.
func (c *Compiled[N]) AncestorIndexes(i int) []int {
	return c.ancestors[i]
}

// Ancestors returns all transitive ancestors of node in topological order.
func (c *Compiled[N]) Ancestors(node N) ([]N, error) {
	i, ok := c.index[node]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNodeNotFound, node)
	}

	ancestors := make([]N, 0, len(c.ancestors[i]))
	for _, a := range c.ancestors[i] {
		ancestors = append(ancestors, c.nodes[a])
	}
	return ancestors, nil
}

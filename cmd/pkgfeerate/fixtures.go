// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/btcsuite/pkgfeerate/feerate"
	"github.com/btcsuite/pkgfeerate/pkggraph"
)

//go:embed fixtures.json
var builtinFixtures []byte

// fixtureTx is a single transaction of a fixture graph.
type fixtureTx struct {
	Tx      string   `json:"tx"`
	Parents []string `json:"parents"`
}

// fixtureCase assigns fees and sizes to the transactions of a graph along
// with the fee rates to partition at.  Numbers are kept as written so that
// decimal rates such as 2.1 are parsed exactly.
type fixtureCase struct {
	Description string                    `json:"description"`
	FeeSizes    map[string][2]json.Number `json:"fees_sizes"`
	FeeRates    []json.Number             `json:"feerates"`
}

// fixtureGraph is a package graph and the cases evaluated against it.  The
// graph is a list rather than an object so its order is preserved.
type fixtureGraph struct {
	Description string         `json:"description"`
	Graph       []fixtureTx    `json:"graph"`
	Cases       []*fixtureCase `json:"cases"`
}

// loadCatalog decodes a fixture catalog.
func loadCatalog(r io.Reader) ([]*fixtureGraph, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var catalog []*fixtureGraph
	if err := dec.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("malformed fixture catalog: %w", err)
	}
	if len(catalog) == 0 {
		return nil, errors.New("fixture catalog is empty")
	}
	return catalog, nil
}

// loadCatalogFile decodes the fixture catalog at path, or the built-in one
// when path is empty.
func loadCatalogFile(path string) ([]*fixtureGraph, error) {
	if path == "" {
		return loadCatalog(bytes.NewReader(builtinFixtures))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return loadCatalog(f)
}

// build returns the package graph described by the fixture.  Parents that are
// listed after their children are fine, the graph is ordered on compilation.
func (g *fixtureGraph) build() (*pkggraph.Graph[string], error) {
	graph := pkggraph.New[string]()
	for _, tx := range g.Graph {
		if err := graph.AddNode(tx.Tx, tx.Parents...); err != nil {
			return nil, err
		}
	}
	return graph, nil
}

// feeSizes parses the fee and size of every transaction of the case.
func (c *fixtureCase) feeSizes() (map[string]feerate.FeeSize, error) {
	feeSizes := make(map[string]feerate.FeeSize, len(c.FeeSizes))
	for tx, fs := range c.FeeSizes {
		fee, ok := new(big.Rat).SetString(fs[0].String())
		if !ok {
			return nil, fmt.Errorf("invalid fee %q for %s", fs[0], tx)
		}
		size, ok := new(big.Rat).SetString(fs[1].String())
		if !ok {
			return nil, fmt.Errorf("invalid size %q for %s", fs[1], tx)
		}
		feeSizes[tx] = feerate.NewFeeSize(fee, size)
	}
	return feeSizes, nil
}

// rates parses the fee rates of the case.
func (c *fixtureCase) rates() ([]*big.Rat, error) {
	rates := make([]*big.Rat, 0, len(c.FeeRates))
	for _, n := range c.FeeRates {
		rate, err := feerate.ParseRate(n.String())
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, nil
}

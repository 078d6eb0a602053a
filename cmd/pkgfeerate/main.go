// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/pkgfeerate/feerate"
	"github.com/btcsuite/pkgfeerate/partition"
	"github.com/davecgh/go-spew/spew"
)

// formatAmount returns r in decimal form without trailing zeros.  Values that
// have no finite decimal expansion are shown with 8 decimal places.
func formatAmount(r *big.Rat) string {
	if r.IsInt() {
		return r.RatString()
	}
	s := feerate.FormatRate(r, 8)
	return strings.TrimRight(strings.TrimRight(s, "0"), ".")
}

// writeFeeBumps writes the fee bump of every rejected transaction in
// topological order.
func writeFeeBumps(w io.Writer, result *partition.Result[string],
	threshold *big.Rat) {

	bumps := partition.FeeBumps(result, threshold)
	entries := make([]string, 0, len(result.RejectedOrder))
	for _, tx := range result.RejectedOrder {
		entries = append(entries, fmt.Sprintf("%s=%s", tx,
			formatAmount(bumps[tx])))
	}
	fmt.Fprintf(w, "  ev decrement: [%s]\n", strings.Join(entries, " "))
}

// runCase partitions the case at each of the passed rates and writes the
// outcome.
func runCase(w io.Writer, g *fixtureGraph, c *fixtureCase,
	rates []*big.Rat, dump bool) error {

	graph, err := g.build()
	if err != nil {
		return err
	}
	feeSizes, err := c.feeSizes()
	if err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, c.Description)
	for _, tx := range g.Graph {
		if fs, ok := feeSizes[tx.Tx]; ok {
			fmt.Fprintf(w, "  %s: %v\n", tx.Tx, fs)
		}
	}

	for _, rate := range rates {
		result, err := partition.Partition(graph, feeSizes, rate)
		if err != nil {
			return fmt.Errorf("%s: %w", c.Description, err)
		}

		total := result.AcceptedFeeSize(feeSizes)
		actual := "0.00"
		if total.HasPositiveSize() {
			actual = feerate.FormatRate(total.FeeRate(), 2)
		}
		fmt.Fprintf(w, "  minfeerate %s total=%v pass=%v actual_rate=%s\n",
			formatAmount(rate), total, result.AcceptedOrder, actual)
		writeFeeBumps(w, result, rate)

		log.Debugf("Partitioned %q at %s in %d passes",
			c.Description, rate.RatString(), result.Passes)

		if dump {
			spew.Fdump(w, result)
		}
	}
	return nil
}

// runCatalog evaluates every case of the catalog and writes a report.  When
// overrides is not empty every case is evaluated at those rates instead of
// its own.
func runCatalog(w io.Writer, catalog []*fixtureGraph,
	overrides []*big.Rat, dump bool) error {

	for _, g := range catalog {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "-------------------------------- graph:")
		fmt.Fprintln(w, g.Description)
		for _, tx := range g.Graph {
			fmt.Fprintf(w, "  %s <- %v\n", tx.Tx, tx.Parents)
		}

		for _, c := range g.Cases {
			rates := overrides
			if len(rates) == 0 {
				var err error
				rates, err = c.rates()
				if err != nil {
					return fmt.Errorf("%s: %w", c.Description,
						err)
				}
			}
			if err := runCase(w, g, c, rates, dump); err != nil {
				return err
			}
		}
	}
	return nil
}

func realMain() error {
	// Load configuration and parse command line.
	cfg, overrides, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	if !cfg.NoFileLog {
		logFile := filepath.Join(cfg.LogDir, defaultLogFilename)
		if err := initLogRotator(logFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return err
		}
		defer logRotator.Close()
	}
	setLogLevels(cfg.DebugLevel)

	catalog, err := loadCatalogFile(cfg.Fixtures)
	if err != nil {
		log.Errorf("Unable to load fixtures: %v", err)
		return err
	}
	log.Infof("Loaded %d package graphs", len(catalog))

	if err := runCatalog(os.Stdout, catalog, overrides, cfg.Dump); err != nil {
		log.Errorf("Evaluation failed: %v", err)
		return err
	}
	return nil
}

func main() {
	if err := realMain(); err != nil {
		os.Exit(1)
	}
}

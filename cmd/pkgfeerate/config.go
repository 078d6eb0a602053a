// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btclog"
	"github.com/btcsuite/pkgfeerate/feerate"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultLogLevel    = "info"
	defaultLogDirname  = "logs"
	defaultLogFilename = "pkgfeerate.log"
)

var (
	defaultHomeDir = btcutil.AppDataDir("pkgfeerate", false)
	defaultLogDir  = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// config defines the configuration options for pkgfeerate.
//
// See loadConfig for details on the configuration load process.
type config struct {
	Fixtures   string   `short:"f" long:"fixtures" description:"JSON fixture catalog to evaluate instead of the built-in one"`
	FeeRates   []string `short:"r" long:"feerate" description:"Minimum fee rate to evaluate every case at instead of the catalog rates (may be repeated)"`
	DebugLevel string   `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical, off}"`
	LogDir     string   `long:"logdir" description:"Directory to log output"`
	NoFileLog  bool     `long:"nofilelog" description:"Disable file logging"`
	Dump       bool     `long:"dump" description:"Dump the full partition result of every evaluation"`
}

// loadConfig initializes and parses the config using the passed command line
// arguments.  It returns the parsed config along with the fee rate overrides,
// if any.
func loadConfig(args []string) (*config, []*big.Rat, error) {
	// Default config.
	cfg := config{
		DebugLevel: defaultLogLevel,
		LogDir:     defaultLogDir,
	}

	// Parse command line options.
	parser := flags.NewParser(&cfg, flags.Default)
	_, err := parser.ParseArgs(args)
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	funcName := "loadConfig"

	// Validate the logging level.
	if _, ok := btclog.LevelFromString(cfg.DebugLevel); !ok {
		str := "%s: the specified debug level [%v] is invalid"
		err := fmt.Errorf(str, funcName, cfg.DebugLevel)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Parse the fee rate overrides exactly.
	rates := make([]*big.Rat, 0, len(cfg.FeeRates))
	for _, s := range cfg.FeeRates {
		rate, err := feerate.ParseRate(s)
		if err != nil {
			err := fmt.Errorf("%s: %w", funcName, err)
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, nil, err
		}
		rates = append(rates, rate)
	}

	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	return &cfg, rates, nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	return filepath.Clean(os.ExpandEnv(path))
}

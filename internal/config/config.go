// Package config parses accumulatord's on-disk/command-line configuration
// with jessevdk/go-flags, the same struct-tag-driven flag library btcd and
// its forks use.
package config

import (
	"fmt"

	"github.com/jessevdk/go-flags"
)

// Config holds every setting the daemon needs to start: where to read and
// write snapshots, how to reach the chain RPC node, and the extractor's
// bulk-build behavior.
type Config struct {
	SnapshotDir string `long:"snapshotdir" description:"directory holding forest.bin/pollard.bin/block_hashes.bin" default:"./snapshot"`

	RPCHost string `long:"rpchost" description:"bitcoind-compatible JSON-RPC host:port"`
	RPCUser string `long:"rpcuser" description:"JSON-RPC username"`
	RPCPass string `long:"rpcpass" description:"JSON-RPC password"`

	ListenAddr string `long:"listen" description:"address a future HTTP control-surface adapter would bind to" default:"127.0.0.1:8335"`

	ZeroBlockHash bool `long:"zeroblockhash" description:"commit the zero hash instead of each row's real block hash during bulk build"`

	DebugLevel string `long:"debuglevel" description:"btclog level: trace, debug, info, warn, error, critical, off" default:"info"`
}

// Load parses args (typically os.Args[1:]) into a Config, applying the
// struct-tag defaults above for anything not set.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

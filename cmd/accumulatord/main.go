// Command accumulatord runs the utreexo accumulator service: it loads
// configuration, opens (or creates) the snapshot directory, connects to a
// chain RPC node, and drives the command loop until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btclog"

	"github.com/utreexod/accumulatord/internal/accumulator"
	"github.com/utreexod/accumulatord/internal/config"
	"github.com/utreexod/accumulatord/internal/extractor"
	"github.com/utreexod/accumulatord/internal/logging"
	"github.com/utreexod/accumulatord/internal/service"
	"github.com/utreexod/accumulatord/internal/snapshot"
	"github.com/utreexod/accumulatord/internal/updater"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "accumulatord:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	level, ok := btclog.LevelFromString(cfg.DebugLevel)
	if !ok {
		level = btclog.LevelInfo
	}
	log := logging.Logger(level)

	data := accumulator.NewRAMForestData()
	forest := accumulator.NewForest(data)
	pollard, err := accumulator.PollardFromForest(forest, nil)
	if err != nil {
		return fmt.Errorf("derive initial pollard: %w", err)
	}

	var blockHashes []chainhash.Hash
	if hasSnapshot(cfg.SnapshotDir) {
		restored, restoredPollard, restoredHashes, err := snapshot.Restore(cfg.SnapshotDir, data)
		if err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		forest, pollard, blockHashes = restored, restoredPollard, restoredHashes
		log.Infof("restored snapshot from %s: %d leaves", cfg.SnapshotDir, forest.LeafCount())
	}

	client, err := updater.DialRPC(updater.RPCConfig{
		Host: cfg.RPCHost,
		User: cfg.RPCUser,
		Pass: cfg.RPCPass,
	})
	if err != nil {
		return fmt.Errorf("dial chain rpc: %w", err)
	}
	defer client.Close()

	upd := updater.New(client, forest)
	runner := &service.DefaultRunner{
		Forest:          forest,
		Updater:         upd,
		Client:          client,
		ExtractorConfig: extractor.DefaultConfig(),
		// Parquet decoding lives outside this module; wire it in once a
		// concrete reader exists. Build fails cleanly until then instead of
		// invoking a nil func.
		OpenParquet: func(path string) (extractor.RowSource, error) {
			return nil, fmt.Errorf("open %s: parquet row source not configured", path)
		},
	}
	// block_hashes.bin is indexed by height, so its length minus one is the
	// last height already applied; an Update resumed after a restart picks
	// up from there instead of re-deriving already-applied blocks.
	if n := len(blockHashes); n > 0 {
		runner.Height = int64(n) - 1
	}

	svc := service.New(runner, forest, pollard)
	svc.SetLogger(log)
	runner.Mu = svc.AccessLock()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("accumulatord ready, listen=%s snapshotdir=%s", cfg.ListenAddr, cfg.SnapshotDir)
	<-ctx.Done()

	log.Info("shutting down, persisting snapshot")
	if err := svc.Pause(); err != nil && !errors.Is(err, service.ErrInvalidState) {
		return fmt.Errorf("pause running job for shutdown: %w", err)
	}
	if err := svc.Dump(cfg.SnapshotDir); err != nil {
		return fmt.Errorf("final dump: %w", err)
	}
	return nil
}

func hasSnapshot(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "forest.bin"))
	return err == nil
}

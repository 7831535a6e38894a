// basalt-node is the bootstrap driver: it wires the core stores together,
// mints or replays the chain, and schedules the producer tick on a dedicated
// worker. Servers, P2P and the wallet are separate collaborators and are not
// started here.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"basalt.dev/node/node"
	"basalt.dev/node/node/store"
)

type options struct {
	DataDir        string `long:"datadir" short:"d" description:"Data directory" default:"~/.basalt"`
	DifficultyBits uint32 `long:"difficulty" description:"Required leading zero bits" default:"16"`
	MaxTxPerBlock  int    `long:"maxtxperblock" description:"Transactions per block cap" default:"1024"`
	MaxPowTries    uint64 `long:"maxpowtries" description:"Nonce budget per tick" default:"5000000"`
	MinFee         uint64 `long:"minfee" description:"Mempool fee floor in minor units" default:"0"`
	BlockReward    uint64 `long:"blockreward" description:"Base block reward in minor units" default:"50"`
	MinerAddress   string `long:"miner" description:"Address credited with rewards (empty disables)"`
	TickInterval   string `long:"tickinterval" description:"Producer tick interval" default:"1s"`
	LogLevel       string `long:"loglevel" description:"Log level (debug|info|warn|error)" default:"info"`
	Reset          bool   `long:"reset" description:"Delete the chain database before starting"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			return 0
		}
		return 2
	}

	logger, err := newLogger(opts.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	tick, err := time.ParseDuration(opts.TickInterval)
	if err != nil || tick <= 0 {
		logger.Error("invalid tick interval", "value", opts.TickInterval)
		return 2
	}

	dataDir := expandHome(opts.DataDir)
	if opts.Reset {
		if err := os.Remove(store.ChainDBPath(dataDir)); err != nil && !os.IsNotExist(err) {
			logger.Error("reset chain database", "err", err)
			return 1
		}
		logger.Warn("chain database reset", "datadir", dataDir)
	}

	cfg := node.DefaultConfig()
	cfg.DataDir = dataDir
	cfg.DifficultyBits = opts.DifficultyBits
	cfg.MaxTxPerBlock = opts.MaxTxPerBlock
	cfg.MaxPowTries = opts.MaxPowTries
	cfg.MinFeeMinor = opts.MinFee
	cfg.BlockRewardMinor = opts.BlockReward
	cfg.MinerAddress = opts.MinerAddress

	n, err := node.Open(cfg, logger)
	if err != nil {
		logger.Error("open node", "err", err)
		return 1
	}
	defer func() {
		if err := n.Close(); err != nil {
			logger.Error("close node", "err", err)
		}
	}()

	if err := n.Start(); err != nil {
		logger.Error("start node", "err", err)
		return 1
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	logger.Info("producer scheduled", "interval", tick, "datadir", dataDir)

	for {
		select {
		case <-stop:
			// Shutdown waits for the in-flight tick; Tick itself is not
			// cancellable.
			logger.Info("shutting down")
			return 0
		case <-ticker.C:
			if _, _, err := n.Tick(); err != nil {
				logger.Error("tick failed", "err", err)
				// State invariant violations are fatal: stop producing.
				if errors.Is(err, node.ErrNegativeBalance) || errors.Is(err, node.ErrBalanceOverflow) {
					return 1
				}
			}
		}
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "info":
		lv = slog.LevelInfo
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})), nil
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

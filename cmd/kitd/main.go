package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kitchain/config"
	"kitchain/core"
	"kitchain/core/types"
	"kitchain/observability"
	"kitchain/observability/logging"
	"kitchain/observability/metrics"
	"kitchain/storage"
)

const operatorAddrEnv = "KIT_OPERATOR_ADDRESS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	dataDir := flag.String("data", "./kitd-data", "Directory for the checkpoint database")
	indexFile := flag.String("index-file", "./index.txt", "File holding the observed price index in mutez per kit, scaled by 1e6")
	interval := flag.Duration("interval", time.Minute, "Delay between touch calls")
	metricsAddr := flag.String("metrics", ":9464", "Listen address for the prometheus endpoint (empty disables)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("KIT_ENV"))
	logger := logging.Setup("kitd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(*dataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()
	store := storage.NewCheckpointStore(db)

	self := types.AddressFromBytes([]byte("kitchain/protocol"))
	operator := resolveOperator(os.Getenv(operatorAddrEnv))

	emitter := observability.NewEmitter(logger)
	state, err := loadOrInitialize(cfg, store, *indexFile, self, emitter, logger)
	if err != nil {
		logger.Error("Failed to prepare protocol state", slog.Any("error", err))
		os.Exit(1)
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("kitd started", slog.Duration("interval", *interval), slog.String("data", *dataDir))
	runTouchLoop(ctx, state, store, *indexFile, self, operator, *interval, logger)
	logger.Info("kitd stopped")
}

// loadOrInitialize restores the latest stored checkpoint, or bootstraps a
// fresh state from the current observed index when none exists.
func loadOrInitialize(cfg config.Config, store *storage.CheckpointStore, indexFile string, self types.Address, emitter *observability.Emitter, logger *slog.Logger) (*core.State, error) {
	encoded, digest, err := store.LoadLatest()
	switch {
	case err == nil:
		state, err := core.Restore(cfg, encoded, emitter)
		if err != nil {
			return nil, fmt.Errorf("restore checkpoint %x: %w", digest[:8], err)
		}
		logger.Info("restored checkpoint", slog.String("digest", fmt.Sprintf("%x", digest)))
		return state, nil
	case errors.Is(err, storage.ErrNoCheckpoint):
		index, err := readIndex(indexFile)
		if err != nil {
			return nil, fmt.Errorf("bootstrap requires a readable index file: %w", err)
		}
		blk := types.BlockEnv{Now: time.Now().Unix(), Self: self}
		state, err := core.Initialize(cfg, index, blk, emitter)
		if err != nil {
			return nil, err
		}
		logger.Info("initialized fresh state", slog.String("index", index.String()))
		return state, nil
	default:
		return nil, err
	}
}

func runTouchLoop(ctx context.Context, state *core.State, store *storage.CheckpointStore, indexFile string, self, operator types.Address, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	level := uint64(0)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		index, err := readIndex(indexFile)
		if err != nil {
			logger.Warn("skipping touch, index unavailable", slog.Any("error", err))
			continue
		}

		level++
		call := types.CallEnv{Sender: operator}
		blk := types.BlockEnv{Now: time.Now().Unix(), Level: level, Self: self}
		reward, err := state.Touch(call, blk, index)
		if err != nil {
			metrics.Protocol().IncEntrypointFailure("touch")
			logger.Error("touch failed", slog.Any("error", err))
			continue
		}
		metrics.Protocol().SetKitSupply(approxFloat(state.Params.OutstandingKit), approxFloat(state.Params.CirculatingKit))

		encoded, digest, err := state.Checkpoint()
		if err != nil {
			logger.Error("checkpoint encoding failed", slog.Any("error", err))
			continue
		}
		if err := store.Save(encoded, digest); err != nil {
			logger.Error("checkpoint persistence failed", slog.Any("error", err))
			continue
		}
		logger.Info("touched",
			slog.Int64("now", blk.Now),
			slog.String("reward", reward.String()),
			slog.String("digest", fmt.Sprintf("%x", digest[:8])))
	}
}

// readIndex parses the observed price index from the oracle file. The file
// holds a single positive decimal integer.
func readIndex(path string) (*big.Int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	index, ok := new(big.Int).SetString(strings.TrimSpace(string(raw)), 10)
	if !ok || index.Sign() <= 0 {
		return nil, fmt.Errorf("index file %s must hold a positive decimal integer", path)
	}
	return index, nil
}

// resolveOperator parses the operator address from the environment; the touch
// reward accrues to it. An unset or malformed value leaves the zero address.
func resolveOperator(raw string) types.Address {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return types.Address{}
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return types.Address{}
	}
	return types.AddressFromBytes(decoded)
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics endpoint failed", slog.Any("error", err))
	}
}

func approxFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

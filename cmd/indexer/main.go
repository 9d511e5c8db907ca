package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"poolScope/internal/config"
	"poolScope/internal/dex"
	"poolScope/internal/indexer"
	"poolScope/internal/storage"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "indexer",
		Short:        "PancakeSwap V3 pool metrics indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Index pool events from the chain",
		RunE:  runIndexer,
	}

	addEngineFlags(runCmd)
	runCmd.Flags().Uint64("from", config.DefaultStartBlock, "start block (inclusive)")
	runCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	runCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	runCmd.Flags().Uint64("confirmations", 0, "blocks to stay behind head")
	runCmd.Flags().Bool("follow", false, "keep polling for new blocks")
	runCmd.Flags().Duration("poll-interval", 3*time.Second, "head poll interval in follow mode")
	runCmd.Flags().String("archive", "", "optional raw logs JSONL path")
	runCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "archive checkpoint file path when no pg dsn is set")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().String("checkpoint-name", "pancake-v3", "checkpoint row name in postgres")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")

	root.AddCommand(runCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw logs into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("factory", config.DefaultFactory, "pool factory address")
	decodeCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Apply typed events from a JSONL file",
		RunE:  runProcess,
	}

	addEngineFlags(processCmd)
	processCmd.Flags().String("in", "", "input typed events JSONL")
	processCmd.Flags().Int("batch-size", 500, "events per batch")

	root.AddCommand(processCmd)
	root.AddCommand(newQueryCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "BSC RPC URL")
	cmd.Flags().Float64("rpc-rps", 0, "max RPC requests per second, 0 disables limiting")
	cmd.Flags().Int("rpc-burst", 1, "RPC rate limiter burst")
	cmd.Flags().String("factory", config.DefaultFactory, "pool factory address")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN, empty keeps state in memory")
	cmd.Flags().String("redis-addr", "", "optional Redis address for the registry cache")
	cmd.Flags().Int("workers", 4, "concurrent pool workers")
	cmd.Flags().Bool("pin-block", true, "read pool state at the event block")
	cmd.Flags().Float64("anchor-usd", 0, "USD price of the anchor asset (WBNB)")
	cmd.Flags().StringSlice("stable-symbols", nil, "stablecoin symbols")
	cmd.Flags().StringSlice("anchor-symbols", nil, "anchor asset symbols")
	cmd.Flags().String("metrics-addr", "", "serve /metrics on this address")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	factory, err := indexer.ParseAddress(cfg.Factory)
	if err != nil {
		return err
	}
	decoders, err := dex.NewDecoders(factory, cfg.Topic0Map)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx, cfg.Engine, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	errWriter, err := storage.NewJSONLWriter(cfg.Errors, true)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	opts := []indexer.Option{indexer.WithErrorSink(errWriter), indexer.WithMetrics(eng.metrics)}
	if cfg.Archive != "" {
		archive, err := storage.NewJSONLWriter(cfg.Archive, true)
		if err != nil {
			return err
		}
		defer archive.Close()
		opts = append(opts, indexer.WithArchive(archive))
	}
	// In-memory state does not survive a restart, so without postgres the
	// checkpoint only tracks the raw log archive.
	switch {
	case !cfg.CheckpointEnabled:
	case eng.pg != nil:
		opts = append(opts, indexer.WithCheckpoint(indexer.NewDBCheckpoint(eng.pg, cfg.CheckpointName)))
	case cfg.Archive != "":
		opts = append(opts, indexer.WithCheckpoint(indexer.NewFileCheckpoint(cfg.Checkpoint)))
	default:
		logger.Info("checkpoint disabled for in-memory state")
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:     cfg.FromBlock,
		ToBlock:       cfg.ToBlock,
		Topic0:        decoders.Topics(),
		BatchSize:     cfg.BatchSize,
		Confirmations: cfg.Confirmations,
		Follow:        cfg.Follow,
		PollInterval:  cfg.PollInterval,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff,
	}, eng.chain, decoders, eng.dispatcher, logger, opts...)

	logger.Info("indexer start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("factory", cfg.Factory),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Int("workers", cfg.Workers),
		zap.Bool("follow", cfg.Follow),
		zap.Bool("pin_block", cfg.PinBlock),
		zap.Bool("postgres", eng.pg != nil),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
	)

	return runner.Run(ctx)
}

func runProcess(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadProcess(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	input, err := os.Open(cfg.Input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer input.Close()

	eng, err := newEngine(ctx, cfg.Engine, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	logger.Info("process start",
		zap.String("in", cfg.Input),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Int("workers", cfg.Workers),
		zap.Bool("postgres", eng.pg != nil),
	)

	stats, err := indexer.Replay(ctx, input, cfg.BatchSize, eng.dispatcher, logger)
	if err != nil {
		return err
	}

	logger.Info("process complete",
		zap.Int("lines", stats.Lines),
		zap.Int("applied", stats.Applied),
		zap.Int("batches", stats.Batches),
	)
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

package indexer

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"poolScope/internal/metrics"
	"poolScope/internal/model"
	"poolScope/internal/storage"
)

// LogSource is the chain surface the runner needs. *chain.Client satisfies it.
type LogSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// LogDecoder decodes raw logs. dex.Decoders satisfies it.
type LogDecoder interface {
	CanDecode(log model.LogRecord) bool
	Decode(log model.LogRecord) (*model.TypedEvent, error)
}

// EventSink applies a batch of events in order. *router.Dispatcher satisfies it.
type EventSink interface {
	Apply(ctx context.Context, batch []model.Event) error
}

// ErrorSink records decode failures.
type ErrorSink interface {
	Write(value interface{}) error
}

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock     uint64
	ToBlock       uint64
	Topic0        []common.Hash
	BatchSize     uint64
	Confirmations uint64
	Follow        bool
	PollInterval  time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
}

type Option func(*Runner)

// WithArchive also writes every fetched raw log to sink.
func WithArchive(sink storage.LogSink) Option {
	return func(r *Runner) {
		r.archive = sink
	}
}

func WithCheckpoint(cp Checkpoint) Option {
	return func(r *Runner) {
		r.checkpoint = cp
	}
}

func WithErrorSink(sink ErrorSink) Option {
	return func(r *Runner) {
		r.errors = sink
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// Runner streams logs from the chain, decodes them and hands the resulting
// events to the sink one block range at a time. The checkpoint only advances
// after the sink accepted the whole range.
type Runner struct {
	cfg        RunConfig
	source     LogSource
	decoder    LogDecoder
	sink       EventSink
	logger     *zap.Logger
	archive    storage.LogSink
	checkpoint Checkpoint
	errors     ErrorSink
	metrics    *metrics.Metrics
	chainID    uint64
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, source LogSource, decoder LogDecoder, sink EventSink, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cfg:     cfg,
		source:  source,
		decoder: decoder,
		sink:    sink,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the indexing loop. Without Follow it returns once ToBlock (or
// the confirmed head) is reached.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.decoder == nil || r.sink == nil {
		return fmt.Errorf("decoder and sink are required")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}

	chainID, err := r.source.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	r.chainID = chainID.Uint64()

	from := r.cfg.FromBlock
	if r.checkpoint != nil {
		last, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return err
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}

	for {
		to, err := r.target(ctx)
		if err != nil {
			return err
		}

		if from <= to {
			if err := r.syncRange(ctx, from, to); err != nil {
				return err
			}
			from = to + 1
		}

		if !r.cfg.Follow || (r.cfg.ToBlock != 0 && from > r.cfg.ToBlock) {
			if from > to {
				r.logger.Info("sync complete", zap.Uint64("last_processed", from-1))
			}
			return nil
		}

		timer := time.NewTimer(r.pollInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// target is the last block to process in this pass.
func (r *Runner) target(ctx context.Context) (uint64, error) {
	var latest uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		latest, err = r.source.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get latest block: %w", err)
	}
	if latest < r.cfg.Confirmations {
		return 0, nil
	}
	head := latest - r.cfg.Confirmations
	if r.cfg.ToBlock != 0 && r.cfg.ToBlock < head {
		return r.cfg.ToBlock, nil
	}
	return head, nil
}

func (r *Runner) pollInterval() time.Duration {
	if r.cfg.PollInterval <= 0 {
		return 3 * time.Second
	}
	return r.cfg.PollInterval
}

func (r *Runner) syncRange(ctx context.Context, from, to uint64) error {
	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := r.processRange(ctx, blockRange); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) processRange(ctx context.Context, blockRange BlockRange) error {
	r.logger.Debug("fetch logs", zap.Stringer("range", blockRange), zap.Uint64("blocks", blockRange.Size()))

	logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
	if err != nil {
		return fmt.Errorf("filter logs: %w", err)
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	ingestedAt := time.Now().UTC()
	seen := make(map[string]struct{}, len(logs))
	records := make([]model.LogRecord, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		id := model.LogID(log.BlockNumber, log.TxHash.Hex(), uint64(log.Index))
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
		if err != nil {
			return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}
		records = append(records, buildLogRecord(r.chainID, log, ts, ingestedAt))
	}

	if r.archive != nil {
		if err := r.archive.PutLogBatch(records); err != nil {
			return fmt.Errorf("archive logs: %w", err)
		}
	}

	events, failed, skipped := decodeRecords(r.decoder, records)
	for _, decodeErr := range failed {
		r.logger.Warn("decode failed",
			zap.Uint64("block", decodeErr.BlockNumber),
			zap.String("tx", decodeErr.TxHash),
			zap.Uint64("log_index", decodeErr.LogIndex),
			zap.String("error", decodeErr.Error),
		)
		r.metrics.SkipEvent("decode_error")
		if r.errors != nil {
			if err := r.errors.Write(decodeErr); err != nil {
				return fmt.Errorf("write decode error: %w", err)
			}
		}
	}

	if err := r.sink.Apply(ctx, events); err != nil {
		return fmt.Errorf("apply blocks %s: %w", blockRange, err)
	}

	if r.checkpoint != nil {
		if err := r.checkpoint.Save(ctx, blockRange.To); err != nil {
			return err
		}
	}
	r.metrics.SetLastProcessedBlock(blockRange.To)

	r.logger.Info("batch complete",
		zap.Uint64("from", blockRange.From),
		zap.Uint64("to", blockRange.To),
		zap.Int("logs", len(records)),
		zap.Int("events", len(events)),
		zap.Int("skipped", skipped),
		zap.Int("failed", len(failed)),
	)
	return nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.source.FilterLogs(ctx, fromBlock, toBlock, nil, r.cfg.Topic0)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.source.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

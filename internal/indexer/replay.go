package indexer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"poolScope/internal/model"
)

// ReplayStats summarizes a replay pass.
type ReplayStats struct {
	Lines   int
	Applied int
	Batches int
}

// Replay reads typed events as written by the decode command and applies them
// to sink in batches of batchSize, preserving file order.
func Replay(ctx context.Context, in io.Reader, batchSize int, sink EventSink, logger *zap.Logger) (ReplayStats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var stats ReplayStats
	batch := make([]model.Event, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := sink.Apply(ctx, batch); err != nil {
			return err
		}
		stats.Applied += len(batch)
		stats.Batches++
		last := batch[len(batch)-1]
		logger.Debug("replay batch applied", zap.Int("events", len(batch)), zap.Uint64("block", last.BlockNumber))
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Lines++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return stats, fmt.Errorf("line %d: %w", stats.Lines, err)
		}
		typed, err := record.Typed()
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", stats.Lines, err)
		}
		event, err := typed.ToEvent()
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", stats.Lines, err)
		}

		batch = append(batch, event)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}
	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}

package indexer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"poolScope/internal/model"
)

// DecodeStats summarizes an offline decode pass.
type DecodeStats struct {
	Total   int
	Decoded int
	Skipped int
	Failed  int
}

// DecodeFile decodes raw log records read as JSONL from in and writes typed
// events to out. Lines that fail to parse or decode go to errs and do not stop
// the pass.
func DecodeFile(ctx context.Context, in io.Reader, decoder LogDecoder, out, errs ErrorSink, logger *zap.Logger) (DecodeStats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var stats DecodeStats
	fail := func(decodeErr model.DecodeError) error {
		stats.Failed++
		logger.Debug("decode failed", zap.Uint64("block", decodeErr.BlockNumber), zap.String("error", decodeErr.Error))
		if err := errs.Write(decodeErr); err != nil {
			return fmt.Errorf("write decode error: %w", err)
		}
		return nil
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Total++

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			if err := fail(model.DecodeError{Error: fmt.Sprintf("line %d: %v", stats.Total, err)}); err != nil {
				return stats, err
			}
			continue
		}
		if len(record.Topics) == 0 {
			if err := fail(model.NewDecodeError(record, errors.New("missing topic0"))); err != nil {
				return stats, err
			}
			continue
		}
		if !decoder.CanDecode(record) {
			stats.Skipped++
			continue
		}

		event, err := decoder.Decode(record)
		if err != nil {
			if err := fail(model.NewDecodeError(record, err)); err != nil {
				return stats, err
			}
			continue
		}
		if err := out.Write(event); err != nil {
			return stats, fmt.Errorf("write event: %w", err)
		}
		stats.Decoded++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}
	return stats, nil
}

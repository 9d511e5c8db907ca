package indexer

import (
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"poolScope/internal/model"
)

func buildLogRecord(chainID uint64, log types.Log, timestamp uint64, ingestedAt time.Time) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}

// decodeRecords turns raw records into router events. Records no decoder
// accepts are skipped; failures are returned separately so one bad log does
// not stop the batch.
func decodeRecords(decoder LogDecoder, records []model.LogRecord) ([]model.Event, []model.DecodeError, int) {
	events := make([]model.Event, 0, len(records))
	var failed []model.DecodeError
	skipped := 0
	for _, record := range records {
		if !decoder.CanDecode(record) {
			skipped++
			continue
		}
		typed, err := decoder.Decode(record)
		if err != nil {
			failed = append(failed, model.NewDecodeError(record, err))
			continue
		}
		event, err := typed.ToEvent()
		if err != nil {
			failed = append(failed, model.NewDecodeError(record, err))
			continue
		}
		events = append(events, event)
	}
	return events, failed, skipped
}

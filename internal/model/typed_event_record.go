package model

import (
	"encoding/json"
	"fmt"
)

// TypedEventRecord is a TypedEvent read back from JSONL with the payload still raw.
type TypedEventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// Typed decodes the raw payload into its concrete event data type.
func (r TypedEventRecord) Typed() (TypedEvent, error) {
	kind, ok := ParseEventKind(r.EventName)
	if !ok {
		return TypedEvent{}, fmt.Errorf("unsupported event name: %s", r.EventName)
	}

	var (
		decoded interface{}
		err     error
	)
	switch kind {
	case KindPoolCreated:
		decoded, err = unmarshalPayload[PoolCreatedEventData](r.Decoded)
	case KindInitialize:
		decoded, err = unmarshalPayload[InitializeEventData](r.Decoded)
	case KindSwap:
		decoded, err = unmarshalPayload[SwapEventData](r.Decoded)
	case KindMint:
		decoded, err = unmarshalPayload[MintEventData](r.Decoded)
	case KindBurn:
		decoded, err = unmarshalPayload[BurnEventData](r.Decoded)
	case KindCollect:
		decoded, err = unmarshalPayload[CollectEventData](r.Decoded)
	case KindCollectProtocol:
		decoded, err = unmarshalPayload[CollectProtocolEventData](r.Decoded)
	case KindFlash:
		decoded, err = unmarshalPayload[FlashEventData](r.Decoded)
	}
	if err != nil {
		return TypedEvent{}, fmt.Errorf("decode %s: %w", kind, err)
	}

	return TypedEvent{
		ChainID:     r.ChainID,
		BlockNumber: r.BlockNumber,
		BlockHash:   r.BlockHash,
		TxHash:      r.TxHash,
		LogIndex:    r.LogIndex,
		Address:     r.Address,
		EventName:   string(kind),
		Timestamp:   r.Timestamp,
		Decoded:     decoded,
		Raw:         r.Raw,
	}, nil
}

func unmarshalPayload[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, fmt.Errorf("missing payload")
	}
	err := json.Unmarshal(raw, &out)
	return out, err
}

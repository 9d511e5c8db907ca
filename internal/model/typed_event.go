package model

import "fmt"

// TypedEvent is a decoded chain event with its log coordinates.
type TypedEvent struct {
	ChainID     uint64      `json:"chain_id"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   string      `json:"block_hash"`
	TxHash      string      `json:"tx_hash"`
	LogIndex    uint64      `json:"log_index"`
	Address     string      `json:"address"`
	EventName   string      `json:"event_name"`
	Timestamp   uint64      `json:"timestamp"`
	Decoded     interface{} `json:"decoded"`
	Raw         *RawLogRef  `json:"raw,omitempty"`
}

// RawLogRef keeps a minimal raw reference for traceability.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}

// ToEvent converts the decoded event into the router input.
func (e TypedEvent) ToEvent() (Event, error) {
	kind, ok := ParseEventKind(e.EventName)
	if !ok {
		return Event{}, fmt.Errorf("unsupported event name: %s", e.EventName)
	}
	address, err := NormalizeAddress(e.Address)
	if err != nil {
		return Event{}, err
	}

	event := Event{
		Kind:        kind,
		Address:     address,
		BlockNumber: e.BlockNumber,
		Timestamp:   e.Timestamp,
		LogID:       LogID(e.BlockNumber, e.TxHash, e.LogIndex),
	}

	switch kind {
	case KindPoolCreated:
		data, ok := e.Decoded.(PoolCreatedEventData)
		if !ok {
			return Event{}, fmt.Errorf("pool created payload has type %T", e.Decoded)
		}
		if data.Token0, err = NormalizeAddress(data.Token0); err != nil {
			return Event{}, fmt.Errorf("token0: %w", err)
		}
		if data.Token1, err = NormalizeAddress(data.Token1); err != nil {
			return Event{}, fmt.Errorf("token1: %w", err)
		}
		if data.Pool, err = NormalizeAddress(data.Pool); err != nil {
			return Event{}, fmt.Errorf("pool: %w", err)
		}
		event.PoolCreated = &data
	case KindSwap:
		data, ok := e.Decoded.(SwapEventData)
		if !ok {
			return Event{}, fmt.Errorf("swap payload has type %T", e.Decoded)
		}
		event.Swap = &data
	}
	return event, nil
}

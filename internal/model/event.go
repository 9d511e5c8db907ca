package model

import (
	"fmt"
	"strings"
)

// EventKind names a decoded chain event.
type EventKind string

const (
	KindPoolCreated     EventKind = "PoolCreated"
	KindInitialize      EventKind = "Initialize"
	KindMint            EventKind = "Mint"
	KindBurn            EventKind = "Burn"
	KindCollect         EventKind = "Collect"
	KindCollectProtocol EventKind = "CollectProtocol"
	KindFlash           EventKind = "Flash"
	KindSwap            EventKind = "Swap"
)

// ParseEventKind maps a case-insensitive event name onto a known kind.
func ParseEventKind(name string) (EventKind, bool) {
	for _, kind := range []EventKind{
		KindPoolCreated, KindInitialize, KindMint, KindBurn,
		KindCollect, KindCollectProtocol, KindFlash, KindSwap,
	} {
		if strings.EqualFold(strings.TrimSpace(name), string(kind)) {
			return kind, true
		}
	}
	return "", false
}

// Event is the unit consumed by the router. Address is the normalized emitter.
// Only the payloads the router reads are carried.
type Event struct {
	Kind        EventKind             `json:"kind"`
	Address     string                `json:"address"`
	BlockNumber uint64                `json:"block_number"`
	Timestamp   uint64                `json:"timestamp"`
	LogID       string                `json:"log_id"`
	PoolCreated *PoolCreatedEventData `json:"pool_created,omitempty"`
	Swap        *SwapEventData        `json:"swap,omitempty"`
}

// PoolKey is the pool whose state the event mutates.
func (e Event) PoolKey() string {
	if e.Kind == KindPoolCreated && e.PoolCreated != nil {
		return e.PoolCreated.Pool
	}
	return e.Address
}

// LogID builds the unique id of a log within the chain.
func LogID(blockNumber uint64, txHash string, logIndex uint64) string {
	return fmt.Sprintf("%d:%s:%d", blockNumber, strings.ToLower(txHash), logIndex)
}

package dex

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"poolScope/internal/model"
)

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(log model.LogRecord) bool
	Decode(log model.LogRecord) (*model.TypedEvent, error)
	Topics() []common.Hash
}

// Decoders tries each decoder in order; the first that accepts a log decodes it.
type Decoders []Decoder

func (ds Decoders) CanDecode(log model.LogRecord) bool {
	return ds.pick(log) != nil
}

func (ds Decoders) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	d := ds.pick(log)
	if d == nil {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topic0())
	}
	return d.Decode(log)
}

// Topics returns the union of topic0 hashes for log filtering.
func (ds Decoders) Topics() []common.Hash {
	seen := make(map[common.Hash]struct{})
	var out []common.Hash
	for _, d := range ds {
		for _, topic := range d.Topics() {
			if _, ok := seen[topic]; ok {
				continue
			}
			seen[topic] = struct{}{}
			out = append(out, topic)
		}
	}
	return out
}

func (ds Decoders) pick(log model.LogRecord) Decoder {
	for _, d := range ds {
		if d.CanDecode(log) {
			return d
		}
	}
	return nil
}

// NewDecoders builds the factory and pool decoders for one deployment.
func NewDecoders(factory common.Address, topic0Map map[string]string) (Decoders, error) {
	factoryDecoder, err := NewV3FactoryDecoder(factory)
	if err != nil {
		return nil, err
	}
	poolDecoder, err := NewV3PoolDecoder(DecoderConfig{Topic0Map: topic0Map})
	if err != nil {
		return nil, err
	}
	return Decoders{factoryDecoder, poolDecoder}, nil
}

func buildTypedEvent(log model.LogRecord, name model.EventKind, decoded interface{}) *model.TypedEvent {
	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   string(name),
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		Raw:         &model.RawLogRef{Topic0: log.Topic0(), Data: log.Data},
	}
}

func topicKey(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"poolScope/internal/model"
)

// V3FactoryDecoder decodes PoolCreated logs emitted by one factory.
// A zero factory address accepts PoolCreated from any emitter.
type V3FactoryDecoder struct {
	factoryABI abi.ABI
	factory    common.Address
	topic0     string
}

func NewV3FactoryDecoder(factory common.Address) (*V3FactoryDecoder, error) {
	factoryABI, err := V3FactoryABI()
	if err != nil {
		return nil, err
	}
	return &V3FactoryDecoder{
		factoryABI: factoryABI,
		factory:    factory,
		topic0:     topicKey(factoryABI.Events["PoolCreated"].ID.Hex()),
	}, nil
}

func (d *V3FactoryDecoder) CanDecode(log model.LogRecord) bool {
	if topicKey(log.Topic0()) != d.topic0 {
		return false
	}
	if d.factory == (common.Address{}) {
		return true
	}
	return strings.EqualFold(log.Address, d.factory.Hex())
}

func (d *V3FactoryDecoder) Topics() []common.Hash {
	return []common.Hash{d.factoryABI.Events["PoolCreated"].ID}
}

func (d *V3FactoryDecoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if !d.CanDecode(log) {
		return nil, fmt.Errorf("not a PoolCreated log from factory %s", d.factory.Hex())
	}
	event := d.factoryABI.Events["PoolCreated"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}

	var indexed struct {
		Token0 common.Address
		Token1 common.Address
		Fee    *big.Int
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected pool created values: %d", len(values))
	}
	tickSpacing, err := asInt24(values[0])
	if err != nil {
		return nil, fmt.Errorf("tick spacing: %w", err)
	}
	pool, err := asAddress(values[1])
	if err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}
	fee, err := asUint24(indexed.Fee)
	if err != nil {
		return nil, fmt.Errorf("fee: %w", err)
	}

	return buildTypedEvent(log, model.KindPoolCreated, model.PoolCreatedEventData{
		Token0:      indexed.Token0.Hex(),
		Token1:      indexed.Token1.Hex(),
		Fee:         fee,
		TickSpacing: tickSpacing,
		Pool:        pool.Hex(),
	}), nil
}

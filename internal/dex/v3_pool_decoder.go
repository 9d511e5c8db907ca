package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"poolScope/internal/model"
)

// DecoderConfig configures decoder behavior. Topic0Map adds extra
// topic0 -> event name aliases for forks that rename events.
type DecoderConfig struct {
	Topic0Map map[string]string
}

type payloadDecoder func(log model.LogRecord) (interface{}, error)

// V3PoolDecoder decodes PancakeSwap V3 / Uniswap V3 pool events. Pool logs
// are accepted from any emitter; unknown pools are dropped downstream.
type V3PoolDecoder struct {
	poolABI     abi.ABI
	topicToKind map[string]model.EventKind
	decoders    map[model.EventKind]payloadDecoder
}

func NewV3PoolDecoder(cfg DecoderConfig) (*V3PoolDecoder, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, err
	}

	d := &V3PoolDecoder{
		poolABI:     poolABI,
		topicToKind: make(map[string]model.EventKind),
	}
	d.decoders = map[model.EventKind]payloadDecoder{
		model.KindInitialize:      d.decodeInitialize,
		model.KindSwap:            d.decodeSwap,
		model.KindMint:            d.decodeMint,
		model.KindBurn:            d.decodeBurn,
		model.KindCollect:         d.decodeCollect,
		model.KindCollectProtocol: d.decodeCollectProtocol,
		model.KindFlash:           d.decodeFlash,
	}
	for kind := range d.decoders {
		d.topicToKind[topicKey(poolABI.Events[string(kind)].ID.Hex())] = kind
	}

	for topic0, name := range cfg.Topic0Map {
		kind, ok := model.ParseEventKind(name)
		if !ok || kind == model.KindPoolCreated {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", name)
		}
		if topic0 == "" {
			continue
		}
		d.topicToKind[topicKey(topic0)] = kind
	}

	return d, nil
}

func (d *V3PoolDecoder) CanDecode(log model.LogRecord) bool {
	_, ok := d.topicToKind[topicKey(log.Topic0())]
	return ok
}

func (d *V3PoolDecoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(d.topicToKind))
	for topic := range d.topicToKind {
		out = append(out, common.HexToHash(topic))
	}
	return out
}

// Decode converts a LogRecord into a TypedEvent.
func (d *V3PoolDecoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	kind, ok := d.topicToKind[topicKey(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid pool address: %s", log.Address)
	}

	decoded, err := d.decoders[kind](log)
	if err != nil {
		return nil, err
	}
	return buildTypedEvent(log, kind, decoded), nil
}

func (d *V3PoolDecoder) decodeInitialize(log model.LogRecord) (interface{}, error) {
	event := d.poolABI.Events["Initialize"]
	if _, err := parseIndexedTopics(event, log.Topics); err != nil {
		return nil, err
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected initialize values: %d", len(values))
	}
	sqrtPrice, err := asBigInt(values[0])
	if err != nil {
		return nil, err
	}
	tick, err := asInt24(values[1])
	if err != nil {
		return nil, err
	}
	return model.InitializeEventData{SqrtPriceX96: sqrtPrice.String(), Tick: tick}, nil
}

func (d *V3PoolDecoder) decodeSwap(log model.LogRecord) (interface{}, error) {
	event := d.poolABI.Events["Swap"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}

	var indexed struct {
		Sender    common.Address
		Recipient common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 5 {
		return nil, fmt.Errorf("unexpected swap values: %d", len(values))
	}

	ints, err := bigInts(values[:4])
	if err != nil {
		return nil, err
	}
	tick, err := asInt24(values[4])
	if err != nil {
		return nil, err
	}

	return model.SwapEventData{
		Sender:       indexed.Sender.Hex(),
		Recipient:    indexed.Recipient.Hex(),
		Amount0:      ints[0].String(),
		Amount1:      ints[1].String(),
		SqrtPriceX96: ints[2].String(),
		Liquidity:    ints[3].String(),
		Tick:         tick,
	}, nil
}

type positionTopics struct {
	Owner     common.Address
	TickLower *big.Int
	TickUpper *big.Int
}

func (d *V3PoolDecoder) parsePosition(event abi.Event, topics []string) (common.Address, int32, int32, error) {
	indexedTopics, err := parseIndexedTopics(event, topics)
	if err != nil {
		return common.Address{}, 0, 0, err
	}
	var indexed positionTopics
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return common.Address{}, 0, 0, fmt.Errorf("parse topics: %w", err)
	}
	tickLower, err := int24FromBig(indexed.TickLower)
	if err != nil {
		return common.Address{}, 0, 0, err
	}
	tickUpper, err := int24FromBig(indexed.TickUpper)
	if err != nil {
		return common.Address{}, 0, 0, err
	}
	return indexed.Owner, tickLower, tickUpper, nil
}

func (d *V3PoolDecoder) decodeMint(log model.LogRecord) (interface{}, error) {
	event := d.poolABI.Events["Mint"]
	owner, tickLower, tickUpper, err := d.parsePosition(event, log.Topics)
	if err != nil {
		return nil, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected mint values: %d", len(values))
	}
	sender, err := asAddress(values[0])
	if err != nil {
		return nil, err
	}
	ints, err := bigInts(values[1:])
	if err != nil {
		return nil, err
	}

	return model.MintEventData{
		Sender:    sender.Hex(),
		Owner:     owner.Hex(),
		TickLower: tickLower,
		TickUpper: tickUpper,
		Amount:    ints[0].String(),
		Amount0:   ints[1].String(),
		Amount1:   ints[2].String(),
	}, nil
}

func (d *V3PoolDecoder) decodeBurn(log model.LogRecord) (interface{}, error) {
	event := d.poolABI.Events["Burn"]
	owner, tickLower, tickUpper, err := d.parsePosition(event, log.Topics)
	if err != nil {
		return nil, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected burn values: %d", len(values))
	}
	ints, err := bigInts(values)
	if err != nil {
		return nil, err
	}

	return model.BurnEventData{
		Owner:     owner.Hex(),
		TickLower: tickLower,
		TickUpper: tickUpper,
		Amount:    ints[0].String(),
		Amount0:   ints[1].String(),
		Amount1:   ints[2].String(),
	}, nil
}

func (d *V3PoolDecoder) decodeCollect(log model.LogRecord) (interface{}, error) {
	event := d.poolABI.Events["Collect"]
	owner, tickLower, tickUpper, err := d.parsePosition(event, log.Topics)
	if err != nil {
		return nil, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected collect values: %d", len(values))
	}
	recipient, err := asAddress(values[0])
	if err != nil {
		return nil, err
	}
	ints, err := bigInts(values[1:])
	if err != nil {
		return nil, err
	}

	return model.CollectEventData{
		Owner:     owner.Hex(),
		Recipient: recipient.Hex(),
		TickLower: tickLower,
		TickUpper: tickUpper,
		Amount0:   ints[0].String(),
		Amount1:   ints[1].String(),
	}, nil
}

type senderRecipientTopics struct {
	Sender    common.Address
	Recipient common.Address
}

func (d *V3PoolDecoder) parseSenderRecipient(event abi.Event, topics []string) (senderRecipientTopics, error) {
	indexedTopics, err := parseIndexedTopics(event, topics)
	if err != nil {
		return senderRecipientTopics{}, err
	}
	var indexed senderRecipientTopics
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return senderRecipientTopics{}, fmt.Errorf("parse topics: %w", err)
	}
	return indexed, nil
}

func (d *V3PoolDecoder) decodeCollectProtocol(log model.LogRecord) (interface{}, error) {
	event := d.poolABI.Events["CollectProtocol"]
	indexed, err := d.parseSenderRecipient(event, log.Topics)
	if err != nil {
		return nil, err
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected collect protocol values: %d", len(values))
	}
	ints, err := bigInts(values)
	if err != nil {
		return nil, err
	}
	return model.CollectProtocolEventData{
		Sender:    indexed.Sender.Hex(),
		Recipient: indexed.Recipient.Hex(),
		Amount0:   ints[0].String(),
		Amount1:   ints[1].String(),
	}, nil
}

func (d *V3PoolDecoder) decodeFlash(log model.LogRecord) (interface{}, error) {
	event := d.poolABI.Events["Flash"]
	indexed, err := d.parseSenderRecipient(event, log.Topics)
	if err != nil {
		return nil, err
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected flash values: %d", len(values))
	}
	ints, err := bigInts(values)
	if err != nil {
		return nil, err
	}
	return model.FlashEventData{
		Sender:    indexed.Sender.Hex(),
		Recipient: indexed.Recipient.Hex(),
		Amount0:   ints[0].String(),
		Amount1:   ints[1].String(),
		Paid0:     ints[2].String(),
		Paid1:     ints[3].String(),
	}, nil
}

func bigInts(values []interface{}) ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(values))
	for _, value := range values {
		n, err := asBigInt(value)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

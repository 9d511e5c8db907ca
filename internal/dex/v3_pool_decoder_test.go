package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"poolScope/internal/model"
)

func TestV3PoolDecoderSwap(t *testing.T) {
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	decoder, err := NewV3PoolDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient := common.HexToAddress("0x3333333333333333333333333333333333333333")

	data, err := poolABI.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(-1000),
		big.NewInt(2000),
		big.NewInt(123456789),
		big.NewInt(987654321),
		big.NewInt(-15),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	logRecord := buildLogRecord(pool, poolABI.Events["Swap"].ID, data, []common.Hash{
		topicFromAddress(sender),
		topicFromAddress(recipient),
	})

	if !decoder.CanDecode(logRecord) {
		t.Fatalf("decoder should accept swap topic")
	}

	event, err := decoder.Decode(logRecord)
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}

	swap, ok := event.Decoded.(model.SwapEventData)
	if !ok {
		t.Fatalf("decoded type mismatch")
	}
	if event.EventName != "Swap" {
		t.Fatalf("event name mismatch: %s", event.EventName)
	}
	if swap.Amount0 != "-1000" || swap.Amount1 != "2000" {
		t.Fatalf("amounts mismatch: %+v", swap)
	}
	if swap.SqrtPriceX96 != "123456789" || swap.Liquidity != "987654321" {
		t.Fatalf("price fields mismatch: %+v", swap)
	}
	if swap.Tick != -15 {
		t.Fatalf("tick mismatch: %d", swap.Tick)
	}
	if swap.Sender != sender.Hex() || swap.Recipient != recipient.Hex() {
		t.Fatalf("address mismatch")
	}
}

func TestV3PoolDecoderMintBurnCollect(t *testing.T) {
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	decoder, err := NewV3PoolDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	pool := common.HexToAddress("0x9999999999999999999999999999999999999999")
	sender := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	owner := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	recipient := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	mintData, err := poolABI.Events["Mint"].Inputs.NonIndexed().Pack(
		sender,
		big.NewInt(5000),
		big.NewInt(100),
		big.NewInt(200),
	)
	if err != nil {
		t.Fatalf("pack mint: %v", err)
	}
	mintEvent, err := decoder.Decode(buildLogRecord(pool, poolABI.Events["Mint"].ID, mintData, []common.Hash{
		topicFromAddress(owner),
		topicFromInt24(-120),
		topicFromInt24(120),
	}))
	if err != nil {
		t.Fatalf("decode mint: %v", err)
	}
	mint, ok := mintEvent.Decoded.(model.MintEventData)
	if !ok {
		t.Fatalf("mint type mismatch")
	}
	if mint.TickLower != -120 || mint.TickUpper != 120 || mint.Sender != sender.Hex() {
		t.Fatalf("mint mismatch: %+v", mint)
	}

	burnData, err := poolABI.Events["Burn"].Inputs.NonIndexed().Pack(
		big.NewInt(7000),
		big.NewInt(300),
		big.NewInt(400),
	)
	if err != nil {
		t.Fatalf("pack burn: %v", err)
	}
	burnEvent, err := decoder.Decode(buildLogRecord(pool, poolABI.Events["Burn"].ID, burnData, []common.Hash{
		topicFromAddress(owner),
		topicFromInt24(-60),
		topicFromInt24(60),
	}))
	if err != nil {
		t.Fatalf("decode burn: %v", err)
	}
	burn, ok := burnEvent.Decoded.(model.BurnEventData)
	if !ok {
		t.Fatalf("burn type mismatch")
	}
	if burn.Amount != "7000" || burn.Owner != owner.Hex() {
		t.Fatalf("burn mismatch: %+v", burn)
	}

	collectData, err := poolABI.Events["Collect"].Inputs.NonIndexed().Pack(
		recipient,
		big.NewInt(900),
		big.NewInt(1000),
	)
	if err != nil {
		t.Fatalf("pack collect: %v", err)
	}
	collectEvent, err := decoder.Decode(buildLogRecord(pool, poolABI.Events["Collect"].ID, collectData, []common.Hash{
		topicFromAddress(owner),
		topicFromInt24(-10),
		topicFromInt24(10),
	}))
	if err != nil {
		t.Fatalf("decode collect: %v", err)
	}
	collect, ok := collectEvent.Decoded.(model.CollectEventData)
	if !ok {
		t.Fatalf("collect type mismatch")
	}
	if collect.Amount0 != "900" || collect.Amount1 != "1000" || collect.Recipient != recipient.Hex() {
		t.Fatalf("collect mismatch: %+v", collect)
	}
}

func TestV3PoolDecoderFlashCollectProtocolInitialize(t *testing.T) {
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewV3PoolDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	pool := common.HexToAddress("0x4444444444444444444444444444444444444444")
	sender := common.HexToAddress("0x5555555555555555555555555555555555555555")
	recipient := common.HexToAddress("0x6666666666666666666666666666666666666666")

	flashData, err := poolABI.Events["Flash"].Inputs.NonIndexed().Pack(
		big.NewInt(10), big.NewInt(20), big.NewInt(1), big.NewInt(2),
	)
	if err != nil {
		t.Fatalf("pack flash: %v", err)
	}
	flashEvent, err := decoder.Decode(buildLogRecord(pool, poolABI.Events["Flash"].ID, flashData, []common.Hash{
		topicFromAddress(sender),
		topicFromAddress(recipient),
	}))
	if err != nil {
		t.Fatalf("decode flash: %v", err)
	}
	flash, ok := flashEvent.Decoded.(model.FlashEventData)
	if !ok {
		t.Fatalf("flash type mismatch")
	}
	if flash.Paid0 != "1" || flash.Paid1 != "2" || flash.Recipient != recipient.Hex() {
		t.Fatalf("flash mismatch: %+v", flash)
	}

	protocolData, err := poolABI.Events["CollectProtocol"].Inputs.NonIndexed().Pack(big.NewInt(7), big.NewInt(8))
	if err != nil {
		t.Fatalf("pack collect protocol: %v", err)
	}
	protocolEvent, err := decoder.Decode(buildLogRecord(pool, poolABI.Events["CollectProtocol"].ID, protocolData, []common.Hash{
		topicFromAddress(sender),
		topicFromAddress(recipient),
	}))
	if err != nil {
		t.Fatalf("decode collect protocol: %v", err)
	}
	if protocolEvent.EventName != "CollectProtocol" {
		t.Fatalf("event name mismatch: %s", protocolEvent.EventName)
	}

	initData, err := poolABI.Events["Initialize"].Inputs.NonIndexed().Pack(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(-3))
	if err != nil {
		t.Fatalf("pack initialize: %v", err)
	}
	initEvent, err := decoder.Decode(buildLogRecord(pool, poolABI.Events["Initialize"].ID, initData, nil))
	if err != nil {
		t.Fatalf("decode initialize: %v", err)
	}
	initialize, ok := initEvent.Decoded.(model.InitializeEventData)
	if !ok || initialize.Tick != -3 {
		t.Fatalf("initialize mismatch: %+v", initEvent.Decoded)
	}
}

func TestV3PoolDecoderTopic0Map(t *testing.T) {
	if _, err := NewV3PoolDecoder(DecoderConfig{Topic0Map: map[string]string{"0x01": "transfer"}}); err == nil {
		t.Fatalf("expected error for unknown event name")
	}

	alias := "0x00000000000000000000000000000000000000000000000000000000000000ab"
	decoder, err := NewV3PoolDecoder(DecoderConfig{Topic0Map: map[string]string{alias: "swap"}})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if !decoder.CanDecode(model.LogRecord{Topics: []string{alias}}) {
		t.Fatalf("alias topic not accepted")
	}
	if decoder.CanDecode(model.LogRecord{Topics: []string{"0xdead"}}) {
		t.Fatalf("unknown topic accepted")
	}
}

func TestV3FactoryDecoderPoolCreated(t *testing.T) {
	factoryABI, err := V3FactoryABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	factory := common.HexToAddress("0x0bfbcf9fa4f9c56b0f40a671ad40e0805a091865")
	token0 := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	token1 := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	pool := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	decoders, err := NewDecoders(factory, nil)
	if err != nil {
		t.Fatalf("decoders: %v", err)
	}

	data, err := factoryABI.Events["PoolCreated"].Inputs.NonIndexed().Pack(big.NewInt(50), pool)
	if err != nil {
		t.Fatalf("pack pool created: %v", err)
	}
	indexed := []common.Hash{
		topicFromAddress(token0),
		topicFromAddress(token1),
		common.BigToHash(big.NewInt(2500)),
	}

	record := buildLogRecord(factory, factoryABI.Events["PoolCreated"].ID, data, indexed)
	event, err := decoders.Decode(record)
	if err != nil {
		t.Fatalf("decode pool created: %v", err)
	}
	created, ok := event.Decoded.(model.PoolCreatedEventData)
	if !ok {
		t.Fatalf("pool created type mismatch")
	}
	if created.Fee != 2500 || created.TickSpacing != 50 {
		t.Fatalf("pool created mismatch: %+v", created)
	}
	if created.Pool != pool.Hex() || created.Token0 != token0.Hex() || created.Token1 != token1.Hex() {
		t.Fatalf("pool created addresses mismatch: %+v", created)
	}

	foreign := buildLogRecord(common.HexToAddress("0x7777777777777777777777777777777777777777"), factoryABI.Events["PoolCreated"].ID, data, indexed)
	if decoders.CanDecode(foreign) {
		t.Fatalf("PoolCreated from a foreign factory must be ignored")
	}

	topics := decoders.Topics()
	if len(topics) != 8 {
		t.Fatalf("expected 8 topics, got %d", len(topics))
	}
}

func buildLogRecord(address common.Address, topic0 common.Hash, data []byte, indexed []common.Hash) model.LogRecord {
	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, topic0.Hex())
	for _, topic := range indexed {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     56,
		BlockNumber: 12345,
		BlockHash:   "0xabc",
		TxHash:      "0xdef",
		LogIndex:    1,
		Address:     address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
		Timestamp:   1700000000,
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func topicFromInt24(value int32) common.Hash {
	bigVal := big.NewInt(int64(value))
	if value < 0 {
		bigVal = new(big.Int).Add(bigVal, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return common.BigToHash(bigVal)
}

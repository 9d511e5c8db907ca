package indexer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolScope/internal/model"
)

const replayInput = `
{"chain_id":56,"block_number":10,"tx_hash":"0xAA","log_index":1,"address":"0x0BFbCF9fa4f9C56B0F40a671Ad40E0805A091865","event_name":"PoolCreated","timestamp":100,"decoded":{"token0":"0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82","token1":"0x55d398326f99059fF775485246999027B3197955","fee":2500,"tick_spacing":50,"pool":"0x7f51c8AaA6B0599aBd16674e2b17FEc7a9F674A1"}}
{"chain_id":56,"block_number":11,"tx_hash":"0xbb","log_index":0,"address":"0x7f51c8AaA6B0599aBd16674e2b17FEc7a9F674A1","event_name":"Swap","timestamp":103,"decoded":{"sender":"0x1","recipient":"0x2","amount0":"-5","amount1":"10","sqrt_price_x96":"79228162514264337593543950336","liquidity":"1","tick":0}}

{"chain_id":56,"block_number":12,"tx_hash":"0xcc","log_index":0,"address":"0x7f51c8AaA6B0599aBd16674e2b17FEc7a9F674A1","event_name":"Burn","timestamp":106,"decoded":{"owner":"0x3","tick_lower":-50,"tick_upper":50,"amount":"1","amount0":"1","amount1":"1"}}
`

func TestReplayAppliesInOrder(t *testing.T) {
	sink := &recordingSink{}
	stats, err := Replay(context.Background(), strings.NewReader(replayInput), 2, sink, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Lines)
	assert.Equal(t, 3, stats.Applied)
	assert.Equal(t, 2, stats.Batches)

	events := sink.events()
	require.Len(t, events, 3)
	assert.Equal(t, model.KindPoolCreated, events[0].Kind)
	assert.Equal(t, "0x7f51c8aaa6b0599abd16674e2b17fec7a9f674a1", events[0].PoolKey())
	assert.Equal(t, model.KindSwap, events[1].Kind)
	require.NotNil(t, events[1].Swap)
	assert.Equal(t, "-5", events[1].Swap.Amount0)
	assert.Equal(t, "11:0xbb:0", events[1].LogID)
	assert.Equal(t, model.KindBurn, events[2].Kind)
}

func TestReplayReportsBadLine(t *testing.T) {
	_, err := Replay(context.Background(), strings.NewReader("{\"event_name\":\"Sync\"}\n"), 10, &recordingSink{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

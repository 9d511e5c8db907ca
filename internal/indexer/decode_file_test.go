package indexer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolScope/internal/model"
)

func TestDecodeFileSortsLinesIntoOutputs(t *testing.T) {
	input := strings.Join([]string{
		`{"block_number":1,"tx_hash":"0xaa","log_index":0,"address":"0x36696169c63e42cd08ce11f5deebbcebae652050","topics":["` + topicMint.Hex() + `"],"timestamp":3}`,
		`not json`,
		``,
		`{"block_number":2,"tx_hash":"0xbb","log_index":0,"address":"0x36696169c63e42cd08ce11f5deebbcebae652050","topics":[]}`,
		`{"block_number":3,"tx_hash":"0xcc","log_index":0,"address":"0x36696169c63e42cd08ce11f5deebbcebae652050","topics":["` + topicSkip.Hex() + `"]}`,
		`{"block_number":4,"tx_hash":"0xdd","log_index":0,"address":"0x36696169c63e42cd08ce11f5deebbcebae652050","topics":["` + topicBad.Hex() + `"]}`,
	}, "\n")

	out := &memoryErrors{}
	errs := &memoryErrors{}
	stats, err := DecodeFile(context.Background(), strings.NewReader(input), fakeDecoder{}, out, errs, nil)
	require.NoError(t, err)

	assert.Equal(t, DecodeStats{Total: 5, Decoded: 1, Skipped: 1, Failed: 3}, stats)
	require.Len(t, out.values, 1)
	typed, ok := out.values[0].(*model.TypedEvent)
	require.True(t, ok)
	assert.EqualValues(t, 1, typed.BlockNumber)

	require.Len(t, errs.values, 3)
	assert.Contains(t, errs.values[0].(model.DecodeError).Error, "line 2")
	assert.Equal(t, "missing topic0", errs.values[1].(model.DecodeError).Error)
	assert.EqualValues(t, 4, errs.values[2].(model.DecodeError).BlockNumber)
}

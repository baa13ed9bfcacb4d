package redis

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gabapcia/txwatch/internal/txwatcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateKey(t *testing.T) {
	key := txwatcher.SetKey{
		ChainID: 137,
		Address: common.HexToAddress("0x00000000000000000000000000000000000000AA"),
		Type:    txwatcher.TransactionTypeERC20,
	}

	t.Run("should use lowercase addresses", func(t *testing.T) {
		assert.Equal(t, "txwatcher:state:137:0x00000000000000000000000000000000000000aa:erc20", stateKey(key))
	})

	t.Run("should parse back what it builds", func(t *testing.T) {
		parsed, err := parseStateKey(stateKey(key))
		require.NoError(t, err)
		assert.Equal(t, key, parsed)
	})

	t.Run("should reject foreign keys", func(t *testing.T) {
		for _, raw := range []string{
			"other:state:1:0x00000000000000000000000000000000000000aa:erc20",
			"txwatcher:state:x:0x00000000000000000000000000000000000000aa:erc20",
			"txwatcher:state:1:not-an-address:erc20",
			"txwatcher:state:1:0x00000000000000000000000000000000000000aa:bogus",
			"txwatcher:state:1:0x00000000000000000000000000000000000000aa",
		} {
			_, err := parseStateKey(raw)
			assert.ErrorIs(t, err, errMalformedKey, raw)
		}
	})
}

func TestEncodeEvent(t *testing.T) {
	t.Run("should encode the event kind and token addresses", func(t *testing.T) {
		token := common.HexToAddress("0xcc")

		payload, err := encodeEvent(txwatcher.Event{
			Kind:           txwatcher.EventNewKnownERC20Transactions,
			ChainID:        1,
			TokenAddresses: []common.Address{token},
		})
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(payload, &decoded))
		assert.Equal(t, "NEW_KNOWN_ERC20_TRANSACTIONS", decoded["kind"])
		assert.Equal(t, []any{token.Hex()}, decoded["tokenAddresses"])
	})

	t.Run("should default the channel", func(t *testing.T) {
		assert.Equal(t, DefaultEventsChannel, NewEventPublisher(nil, "").channel)
	})
}

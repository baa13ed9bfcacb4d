package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gabapcia/txwatch/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/txwatch/internal/txwatcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type connMock struct {
	mock.Mock
}

func (m *connMock) Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	args := m.Called(append([]any{ctx, method}, params...)...)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

func TestNewClient(t *testing.T) {
	t.Run("should create a client with the given connection", func(t *testing.T) {
		conn := new(connMock)
		c := NewClient(conn)
		assert.Equal(t, conn, c.conn)
	})
}

func TestClassify(t *testing.T) {
	t.Run("should map forbidden statuses to not authorized", func(t *testing.T) {
		err := classify(&jsonrpc.StatusError{StatusCode: 403, Body: "forbidden"})
		assert.ErrorIs(t, err, txwatcher.ErrNotAuthorized)
	})

	t.Run("should map not authorized rpc errors", func(t *testing.T) {
		err := classify(&jsonrpc.RPCError{Code: -32000, Message: "Not authorized to access this method"})
		assert.ErrorIs(t, err, txwatcher.ErrNotAuthorized)
		assert.ErrorIs(t, err, jsonrpc.ErrProviderReturnedError)
	})

	t.Run("should keep other errors unchanged", func(t *testing.T) {
		original := &jsonrpc.StatusError{StatusCode: 500}
		assert.Equal(t, error(original), classify(original))
		assert.Nil(t, classify(nil))
	})
}

func TestClient_GetLogs(t *testing.T) {
	account := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	signature := common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

	t.Run("should send the filter and decode logs", func(t *testing.T) {
		query := ethereum.FilterQuery{
			FromBlock: big.NewInt(16),
			ToBlock:   big.NewInt(31),
			Topics:    [][]common.Hash{{signature}, nil, {common.BytesToHash(account.Bytes())}},
		}

		conn := new(connMock)
		conn.On("Fetch", mock.Anything, "eth_getLogs", mock.MatchedBy(func(arg map[string]any) bool {
			topics, _ := arg["topics"].([]any)
			return arg["fromBlock"] == "0x10" && arg["toBlock"] == "0x1f" && len(topics) == 3 && topics[1] == nil
		})).Return(json.RawMessage(`[{
			"address": "0x00000000000000000000000000000000000000cc",
			"topics": ["0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"],
			"data": "0x2a",
			"blockNumber": "0x14",
			"transactionHash": "0x0000000000000000000000000000000000000000000000000000000000000001",
			"transactionIndex": "0x2",
			"blockHash": "0x0000000000000000000000000000000000000000000000000000000000000002",
			"logIndex": "0x3",
			"removed": true
		}]`), nil).Once()

		logs, err := NewClient(conn).GetLogs(t.Context(), query)
		require.NoError(t, err)
		require.Len(t, logs, 1)

		assert.Equal(t, common.HexToAddress("0xcc"), logs[0].Address)
		assert.Equal(t, uint64(20), logs[0].BlockNumber)
		assert.Equal(t, uint(2), logs[0].TxIndex)
		assert.Equal(t, uint(3), logs[0].Index)
		assert.Equal(t, []byte{0x2a}, logs[0].Data)
		assert.True(t, logs[0].Removed)
		conn.AssertExpectations(t)
	})

	t.Run("should report forbidden responses as not authorized", func(t *testing.T) {
		conn := new(connMock)
		conn.On("Fetch", mock.Anything, "eth_getLogs", mock.Anything).
			Return(nil, &jsonrpc.StatusError{StatusCode: 403}).Once()

		_, err := NewClient(conn).GetLogs(t.Context(), ethereum.FilterQuery{FromBlock: big.NewInt(1), ToBlock: big.NewInt(2)})
		assert.ErrorIs(t, err, txwatcher.ErrNotAuthorized)
	})

	t.Run("should fail on malformed results", func(t *testing.T) {
		conn := new(connMock)
		conn.On("Fetch", mock.Anything, "eth_getLogs", mock.Anything).
			Return(json.RawMessage(`{"not":"a list"}`), nil).Once()

		_, err := NewClient(conn).GetLogs(t.Context(), ethereum.FilterQuery{})
		assert.Error(t, err)
	})
}

func TestToFilterArg(t *testing.T) {
	t.Run("should default open bounds to latest", func(t *testing.T) {
		arg := toFilterArg(ethereum.FilterQuery{})
		assert.Equal(t, "latest", arg["fromBlock"])
		assert.Equal(t, "latest", arg["toBlock"])
		assert.NotContains(t, arg, "address")
	})

	t.Run("should use the block hash instead of a range", func(t *testing.T) {
		hash := common.HexToHash("0x01")
		arg := toFilterArg(ethereum.FilterQuery{BlockHash: &hash, FromBlock: big.NewInt(1)})
		assert.Equal(t, hash, arg["blockHash"])
		assert.NotContains(t, arg, "fromBlock")
	})

	t.Run("should send or-ed topics as lists", func(t *testing.T) {
		a, b := common.HexToHash("0x0a"), common.HexToHash("0x0b")
		assert.Equal(t, []any{[]common.Hash{a, b}, a}, toTopicsArg([][]common.Hash{{a, b}, {a}}))
	})
}

func TestClient_Blocks(t *testing.T) {
	t.Run("should return the latest block number", func(t *testing.T) {
		conn := new(connMock)
		conn.On("Fetch", mock.Anything, "eth_blockNumber").Return(json.RawMessage(`"0x10"`), nil).Once()

		number, err := NewClient(conn).BlockNumber(t.Context())
		require.NoError(t, err)
		assert.Equal(t, uint64(16), number)
	})

	t.Run("should return an error when fetch fails", func(t *testing.T) {
		conn := new(connMock)
		conn.On("Fetch", mock.Anything, "eth_blockNumber").Return(nil, errors.New("fetch error")).Once()

		_, err := NewClient(conn).BlockNumber(t.Context())
		assert.Error(t, err)
	})

	t.Run("should decode the block header", func(t *testing.T) {
		conn := new(connMock)
		conn.On("Fetch", mock.Anything, "eth_getBlockByNumber", "0x64", false).
			Return(json.RawMessage(`{"hash":"0x0000000000000000000000000000000000000000000000000000000000000009","number":"0x64","timestamp":"0x6553f100"}`), nil).Once()

		block, err := NewClient(conn).GetBlock(t.Context(), 100)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), block.Number)
		assert.Equal(t, uint64(1_700_000_000), block.Timestamp)
		assert.Equal(t, common.HexToHash("0x09"), block.Hash)
	})

	t.Run("should report unknown blocks", func(t *testing.T) {
		conn := new(connMock)
		conn.On("Fetch", mock.Anything, "eth_getBlockByNumber", "0x64", false).Return(json.RawMessage(`null`), nil).Once()

		_, err := NewClient(conn).GetBlock(t.Context(), 100)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestClient_GetTransaction(t *testing.T) {
	hash := common.HexToHash("0x01")

	t.Run("should decode the transaction", func(t *testing.T) {
		conn := new(connMock)
		conn.On("Fetch", mock.Anything, "eth_getTransactionByHash", hash).Return(json.RawMessage(`{
			"type": "0x2",
			"nonce": "0x7",
			"gas": "0x5208",
			"maxFeePerGas": "0x3b9aca00",
			"maxPriorityFeePerGas": "0x1",
			"from": "0x00000000000000000000000000000000000000bb",
			"to": "0x00000000000000000000000000000000000000aa",
			"value": "0x3e8",
			"input": "0x",
			"hash": "0x0000000000000000000000000000000000000000000000000000000000000001"
		}`), nil).Once()

		tx, err := NewClient(conn).GetTransaction(t.Context(), hash)
		require.NoError(t, err)
		assert.Equal(t, uint8(2), tx.Type)
		assert.Equal(t, uint64(7), tx.Nonce)
		assert.Equal(t, uint64(21_000), tx.Gas)
		assert.Equal(t, big.NewInt(1_000), tx.Value)
		assert.Nil(t, tx.GasPrice)
		require.NotNil(t, tx.To)
		assert.Equal(t, common.HexToAddress("0xaa"), *tx.To)
	})

	t.Run("should report unknown transactions", func(t *testing.T) {
		conn := new(connMock)
		conn.On("Fetch", mock.Anything, "eth_getTransactionByHash", hash).Return(json.RawMessage(`null`), nil).Once()

		_, err := NewClient(conn).GetTransaction(t.Context(), hash)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestClient_CallContract(t *testing.T) {
	t.Run("should return the decoded call result", func(t *testing.T) {
		to := common.HexToAddress("0xcc")

		conn := new(connMock)
		conn.On("Fetch", mock.Anything, "eth_call", mock.Anything, "latest").Return(json.RawMessage(`"0x0012"`), nil).Once()

		out, err := NewClient(conn).CallContract(t.Context(), to, []byte{0x95, 0xd8, 0x9b, 0x41})
		require.NoError(t, err)
		assert.Equal(t, []byte{0x00, 0x12}, out)
	})
}

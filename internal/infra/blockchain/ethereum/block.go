package ethereum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gabapcia/txwatch/internal/txwatcher"
)

var jsonNull = []byte("null")

// BlockResponse holds the header fields of eth_getBlockByNumber the watcher reads.
type BlockResponse struct {
	Hash       common.Hash    `json:"hash"`
	ParentHash common.Hash    `json:"parentHash"`
	Number     hexutil.Uint64 `json:"number"`
	Timestamp  hexutil.Uint64 `json:"timestamp"`
}

func (b BlockResponse) toBlock() txwatcher.Block {
	return txwatcher.Block{
		Number:    uint64(b.Number),
		Hash:      b.Hash,
		Timestamp: uint64(b.Timestamp),
	}
}

// BlockNumber returns the latest block number known to the node.
func (c *client) BlockNumber(ctx context.Context) (uint64, error) {
	data, err := c.conn.Fetch(ctx, "eth_blockNumber")
	if err != nil {
		return 0, classify(err)
	}

	var number hexutil.Uint64
	if err := json.Unmarshal(data, &number); err != nil {
		return 0, err
	}
	return uint64(number), nil
}

// GetBlock implements txwatcher.Provider. Transactions are not requested.
func (c *client) GetBlock(ctx context.Context, number uint64) (txwatcher.Block, error) {
	data, err := c.conn.Fetch(ctx, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false)
	if err != nil {
		return txwatcher.Block{}, classify(err)
	}

	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return txwatcher.Block{}, fmt.Errorf("block %d: %w", number, ErrNotFound)
	}

	var response BlockResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return txwatcher.Block{}, err
	}
	return response.toBlock(), nil
}

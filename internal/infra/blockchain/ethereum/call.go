package ethereum

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CallContract runs a read-only eth_call against the latest block.
func (c *client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	raw, err := c.conn.Fetch(ctx, "eth_call", map[string]any{
		"to":   to,
		"data": hexutil.Bytes(data),
	}, "latest")
	if err != nil {
		return nil, classify(err)
	}

	var result hexutil.Bytes
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return result, nil
}

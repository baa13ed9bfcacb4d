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

// TransactionResponse represents a transaction object returned by eth_getTransactionByHash.
type TransactionResponse struct {
	Type                 hexutil.Uint64  `json:"type"`
	ChainID              *hexutil.Big    `json:"chainId"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to"`
	Value                *hexutil.Big    `json:"value"`
	Input                hexutil.Bytes   `json:"input"`
	Hash                 common.Hash     `json:"hash"`
	BlockHash            *common.Hash    `json:"blockHash"`
	BlockNumber          *hexutil.Big    `json:"blockNumber"`
	TransactionIndex     *hexutil.Uint64 `json:"transactionIndex"`
}

func (t TransactionResponse) toTransactionDetails() txwatcher.TransactionDetails {
	return txwatcher.TransactionDetails{
		Hash:                 t.Hash,
		From:                 t.From,
		To:                   t.To,
		Nonce:                uint64(t.Nonce),
		Gas:                  uint64(t.Gas),
		GasPrice:             t.GasPrice.ToInt(),
		MaxFeePerGas:         t.MaxFeePerGas.ToInt(),
		MaxPriorityFeePerGas: t.MaxPriorityFeePerGas.ToInt(),
		Value:                t.Value.ToInt(),
		Input:                t.Input,
		Type:                 uint8(t.Type),
	}
}

// GetTransaction implements txwatcher.Provider.
func (c *client) GetTransaction(ctx context.Context, hash common.Hash) (txwatcher.TransactionDetails, error) {
	data, err := c.conn.Fetch(ctx, "eth_getTransactionByHash", hash)
	if err != nil {
		return txwatcher.TransactionDetails{}, classify(err)
	}

	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return txwatcher.TransactionDetails{}, fmt.Errorf("transaction %s: %w", hash, ErrNotFound)
	}

	var response TransactionResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return txwatcher.TransactionDetails{}, err
	}
	return response.toTransactionDetails(), nil
}

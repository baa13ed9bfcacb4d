package ethereum

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// LogResponse is a log object as returned by eth_getLogs.
type LogResponse struct {
	Address          common.Address `json:"address"`
	Topics           []common.Hash  `json:"topics"`
	Data             hexutil.Bytes  `json:"data"`
	BlockNumber      hexutil.Uint64 `json:"blockNumber"`
	TransactionHash  common.Hash    `json:"transactionHash"`
	TransactionIndex hexutil.Uint   `json:"transactionIndex"`
	BlockHash        common.Hash    `json:"blockHash"`
	LogIndex         hexutil.Uint   `json:"logIndex"`
	Removed          bool           `json:"removed"`
}

func (l LogResponse) toLog() types.Log {
	return types.Log{
		Address:     l.Address,
		Topics:      l.Topics,
		Data:        l.Data,
		BlockNumber: uint64(l.BlockNumber),
		TxHash:      l.TransactionHash,
		TxIndex:     uint(l.TransactionIndex),
		BlockHash:   l.BlockHash,
		Index:       uint(l.LogIndex),
		Removed:     l.Removed,
	}
}

// toFilterArg renders q the way eth_getLogs expects it. A nil topic position
// is sent as null and matches anything.
func toFilterArg(q ethereum.FilterQuery) map[string]any {
	arg := map[string]any{
		"topics": toTopicsArg(q.Topics),
	}

	if q.BlockHash != nil {
		arg["blockHash"] = *q.BlockHash
	} else {
		arg["fromBlock"] = toBlockNumArg(q.FromBlock)
		arg["toBlock"] = toBlockNumArg(q.ToBlock)
	}

	switch len(q.Addresses) {
	case 0:
	case 1:
		arg["address"] = q.Addresses[0]
	default:
		arg["address"] = q.Addresses
	}
	return arg
}

func toTopicsArg(topics [][]common.Hash) []any {
	out := make([]any, len(topics))
	for i, position := range topics {
		switch len(position) {
		case 0:
			out[i] = nil
		case 1:
			out[i] = position[0]
		default:
			out[i] = position
		}
	}
	return out
}

func toBlockNumArg(number *big.Int) string {
	if number == nil {
		return "latest"
	}
	return hexutil.EncodeBig(number)
}

// GetLogs implements txwatcher.Provider.
func (c *client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	data, err := c.conn.Fetch(ctx, "eth_getLogs", toFilterArg(query))
	if err != nil {
		return nil, classify(err)
	}

	var response []LogResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, err
	}

	logs := make([]types.Log, len(response))
	for i, l := range response {
		logs[i] = l.toLog()
	}
	return logs, nil
}

package txwatcher

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrNotAuthorized is returned by a Provider when the node rejects a request
	// as forbidden. Log queries that hit it are abandoned instead of split.
	ErrNotAuthorized = errors.New("provider not authorized")

	// ErrNoProvider indicates that no Provider is configured for the chain.
	ErrNoProvider = errors.New("no provider configured for chain")
)

// Block holds the header fields the watcher needs.
type Block struct {
	Number    uint64
	Hash      common.Hash
	Timestamp uint64 // unix seconds
}

// TransactionDetails is the full transaction body used to enrich log-derived records.
type TransactionDetails struct {
	Hash                 common.Hash
	From                 common.Address
	To                   *common.Address
	Nonce                uint64
	Gas                  uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Value                *big.Int
	Input                []byte
	Type                 uint8
}

// Provider is the JSON-RPC surface of one chain.
type Provider interface {
	// GetLogs runs eth_getLogs for the query. Implementations return
	// ErrNotAuthorized when the node answers with a forbidden status.
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)

	// GetTransaction returns the transaction identified by hash.
	GetTransaction(ctx context.Context, hash common.Hash) (TransactionDetails, error)

	// GetBlock returns the header of the block at number.
	GetBlock(ctx context.Context, number uint64) (Block, error)
}

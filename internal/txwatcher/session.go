package txwatcher

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// NetworkSource reports the chain the wallet is connected to.
type NetworkSource interface {
	CurrentChainID() uint64

	// ExplorerURL returns the explorer API base for chainID, or "" when the
	// chain has none configured.
	ExplorerURL(chainID uint64) string
}

// AccountSource reports the account currently selected in the wallet.
type AccountSource interface {
	SelectedAddress() (common.Address, bool)
}

// BlockHeightSource reports the latest known block of a chain, 0 if unknown.
type BlockHeightSource interface {
	BlockNumber(chainID uint64) uint64
}

// Token is the metadata of a token contract.
type Token struct {
	Address  common.Address
	Symbol   string
	Name     string
	Decimals uint8
	Logo     string
}

// TokenQuery narrows a token search.
type TokenQuery struct {
	ChainID  uint64
	Contract common.Address
	Owner    common.Address

	// Exact limits matches to Contract.
	Exact bool

	// LocalOnly skips any lookup beyond the configured token list.
	LocalOnly bool
}

// TokenLookup resolves token metadata.
type TokenLookup interface {
	Search(ctx context.Context, query TokenQuery) ([]Token, error)
}

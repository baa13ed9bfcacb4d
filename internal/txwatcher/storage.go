package txwatcher

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// StateStorage durably keeps transaction sets across restarts.
//
// Implementations must be safe for concurrent use. The Store writes through on
// every mutation and reads everything back once with LoadTransactionSets.
type StateStorage interface {
	// SaveTransactionSet replaces the persisted set stored under key.
	SaveTransactionSet(ctx context.Context, key SetKey, set TransactionSet) error

	// LoadTransactionSets returns every persisted set.
	LoadTransactionSets(ctx context.Context) (map[SetKey]TransactionSet, error)

	// DeleteAddress drops every set of address on every chain.
	DeleteAddress(ctx context.Context, address common.Address) error
}

type nopStateStorage struct{}

var _ StateStorage = nopStateStorage{}

func (nopStateStorage) SaveTransactionSet(context.Context, SetKey, TransactionSet) error {
	return nil
}

func (nopStateStorage) LoadTransactionSets(context.Context) (map[SetKey]TransactionSet, error) {
	return nil, nil
}

func (nopStateStorage) DeleteAddress(context.Context, common.Address) error {
	return nil
}

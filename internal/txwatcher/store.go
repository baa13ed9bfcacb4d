package txwatcher

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Store holds the transaction sets of every chain, account and type.
//
// Each method is atomic on its own. Callers that need a read-modify-write
// sequence to be exclusive must serialize it themselves.
type Store struct {
	mu      sync.RWMutex
	sets    map[SetKey]TransactionSet
	storage StateStorage
}

// NewStore returns an empty Store writing through to storage. A nil storage
// keeps everything in memory only.
func NewStore(storage StateStorage) *Store {
	if storage == nil {
		storage = nopStateStorage{}
	}

	return &Store{
		sets:    make(map[SetKey]TransactionSet),
		storage: storage,
	}
}

// Load replaces the in-memory state with whatever the backing storage holds.
func (s *Store) Load(ctx context.Context) error {
	persisted, err := s.storage.LoadTransactionSets(ctx)
	if err != nil {
		return fmt.Errorf("load transaction sets: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sets = make(map[SetKey]TransactionSet, len(persisted))
	for key, set := range persisted {
		if set.Transactions == nil {
			set.Transactions = make(map[common.Hash]TransactionRecord)
		}
		s.sets[key] = set
	}
	return nil
}

// Get returns a copy of the set stored under key. A missing key yields an
// empty set with LastBlockQueried 0.
func (s *Store) Get(key SetKey) TransactionSet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.get(key)
}

func (s *Store) get(key SetKey) TransactionSet {
	set, ok := s.sets[key]
	if !ok {
		return TransactionSet{Transactions: make(map[common.Hash]TransactionRecord)}
	}
	return set.clone()
}

// Set merges delta into the set under key and returns the result.
//
// Records of delta replace stored records with the same hash and every other
// stored record is kept. LastBlockQueried never moves backwards.
func (s *Store) Set(ctx context.Context, key SetKey, delta TransactionSet) (TransactionSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.get(key)
	maps.Copy(merged.Transactions, delta.Transactions)
	merged.LastBlockQueried = max(merged.LastBlockQueried, delta.LastBlockQueried)

	if err := s.storage.SaveTransactionSet(ctx, key, merged); err != nil {
		return TransactionSet{}, fmt.Errorf("save transaction set: %w", err)
	}

	s.sets[key] = merged
	return merged.clone(), nil
}

// HasTransactions reports whether any set holds at least one record.
func (s *Store) HasTransactions() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, set := range s.sets {
		if len(set.Transactions) > 0 {
			return true
		}
	}
	return false
}

// MissingTimestampBlocks returns the distinct block numbers of chainID whose
// records still lack a timestamp, highest first.
func (s *Store) MissingTimestampBlocks(chainID uint64) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blocks []uint64
	for key, set := range s.sets {
		if key.ChainID != chainID {
			continue
		}
		for _, record := range set.Transactions {
			if !record.hasTimestamp() {
				blocks = append(blocks, record.Receipt.BlockNumber)
			}
		}
	}

	slices.SortFunc(blocks, func(a, b uint64) int { return cmp.Compare(b, a) })
	return slices.Compact(blocks)
}

// BackfillTimestamps sets the three timestamps of every record of chainID
// mined in blockNumber that still misses one, and returns how many records
// changed. A set whose save fails keeps its previous content in memory.
func (s *Store) BackfillTimestamps(ctx context.Context, chainID, blockNumber uint64, timestampMs int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		updated int
		errs    []error
	)
	for key, set := range s.sets {
		if key.ChainID != chainID {
			continue
		}

		var stamped TransactionSet
		changes := 0
		for hash, record := range set.Transactions {
			if record.hasTimestamp() || record.Receipt.BlockNumber != blockNumber {
				continue
			}
			if changes == 0 {
				stamped = set.clone()
			}

			record.Time = timestampMs
			record.SubmittedTime = timestampMs
			record.ConfirmationTime = timestampMs
			stamped.Transactions[hash] = record
			changes++
		}

		if changes == 0 {
			continue
		}
		if err := s.storage.SaveTransactionSet(ctx, key, stamped); err != nil {
			errs = append(errs, fmt.Errorf("save transaction set: %w", err))
			continue
		}

		s.sets[key] = stamped
		updated += changes
	}
	return updated, errors.Join(errs...)
}

// RemoveAllForAddress forgets every set of address on every chain.
func (s *Store) RemoveAllForAddress(ctx context.Context, address common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.DeleteAddress(ctx, address); err != nil {
		return fmt.Errorf("delete address: %w", err)
	}

	for key := range s.sets {
		if key.Address == address {
			delete(s.sets, key)
		}
	}
	return nil
}

// Snapshot returns a copy of the whole state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := make(State)
	for key, set := range s.sets {
		byAddress, ok := state[key.ChainID]
		if !ok {
			byAddress = make(map[common.Address]map[TransactionType]TransactionSet)
			state[key.ChainID] = byAddress
		}

		byType, ok := byAddress[key.Address]
		if !ok {
			byType = make(map[TransactionType]TransactionSet)
			byAddress[key.Address] = byType
		}

		byType[key.Type] = set.clone()
	}
	return state
}

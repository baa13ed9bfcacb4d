// Package pebble persists watcher state in an embedded PebbleDB.
package pebble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gabapcia/txwatch/internal/txwatcher"
)

// statePrefix namespaces transaction sets. Keys are
// state/<address>/<chainId>/<type> so all sets of one address share a prefix.
const statePrefix = "state/"

var (
	ErrClosed = errors.New("storage is closed")

	errMalformedKey = errors.New("malformed state key")
)

type storage struct {
	mu     sync.RWMutex
	db     *pebble.DB
	closed bool
}

var _ txwatcher.StateStorage = (*storage)(nil)

func addressPrefix(address common.Address) []byte {
	return []byte(statePrefix + strings.ToLower(address.Hex()) + "/")
}

func stateKey(key txwatcher.SetKey) []byte {
	return fmt.Appendf(addressPrefix(key.Address), "%d/%s", key.ChainID, key.Type)
}

func parseStateKey(raw []byte) (txwatcher.SetKey, error) {
	rest, ok := strings.CutPrefix(string(raw), statePrefix)
	if !ok {
		return txwatcher.SetKey{}, errMalformedKey
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 || !common.IsHexAddress(parts[0]) {
		return txwatcher.SetKey{}, errMalformedKey
	}

	chainID, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return txwatcher.SetKey{}, errMalformedKey
	}

	txType := txwatcher.TransactionType(parts[2])
	if !txType.Valid() {
		return txwatcher.SetKey{}, errMalformedKey
	}

	return txwatcher.SetKey{
		ChainID: chainID,
		Address: common.HexToAddress(parts[0]),
		Type:    txType,
	}, nil
}

// upperBound returns the smallest key greater than every key starting with prefix.
func upperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (s *storage) ensureOpen() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *storage) SaveTransactionSet(ctx context.Context, key txwatcher.SetKey, set txwatcher.TransactionSet) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureOpen(); err != nil {
		return err
	}

	payload, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode transaction set: %w", err)
	}
	return s.db.Set(stateKey(key), payload, pebble.Sync)
}

func (s *storage) LoadTransactionSets(ctx context.Context) (map[txwatcher.SetKey]txwatcher.TransactionSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(statePrefix),
		UpperBound: upperBound([]byte(statePrefix)),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	sets := make(map[txwatcher.SetKey]txwatcher.TransactionSet)
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		key, err := parseStateKey(iter.Key())
		if err != nil {
			continue
		}

		var set txwatcher.TransactionSet
		if err := json.Unmarshal(iter.Value(), &set); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		sets[key] = set
	}
	return sets, iter.Error()
}

func (s *storage) DeleteAddress(ctx context.Context, address common.Address) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ensureOpen(); err != nil {
		return err
	}

	prefix := addressPrefix(address)
	return s.db.DeleteRange(prefix, upperBound(prefix), pebble.Sync)
}

// Close flushes and closes the database. Further calls fail with ErrClosed.
func (s *storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Open opens or creates the database at path.
func Open(path string) (*storage, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}

	return &storage{
		db: db,
	}, nil
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gabapcia/txwatch/internal/txwatcher"
	"github.com/redis/go-redis/v9"
)

const (
	// stateKeyPrefix namespaces every persisted transaction set.
	stateKeyPrefix = "txwatcher:state"

	// scanBatchSize is the COUNT hint given to SCAN.
	scanBatchSize = 500
)

var errMalformedKey = errors.New("malformed state key")

// stateKey builds the key of one set: txwatcher:state:<chainId>:<address>:<type>.
func stateKey(key txwatcher.SetKey) string {
	return fmt.Sprintf("%s:%d:%s:%s", stateKeyPrefix, key.ChainID, strings.ToLower(key.Address.Hex()), key.Type)
}

func parseStateKey(raw string) (txwatcher.SetKey, error) {
	rest, ok := strings.CutPrefix(raw, stateKeyPrefix+":")
	if !ok {
		return txwatcher.SetKey{}, errMalformedKey
	}

	parts := strings.Split(rest, ":")
	if len(parts) != 3 || !common.IsHexAddress(parts[1]) {
		return txwatcher.SetKey{}, errMalformedKey
	}

	chainID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return txwatcher.SetKey{}, errMalformedKey
	}

	txType := txwatcher.TransactionType(parts[2])
	if !txType.Valid() {
		return txwatcher.SetKey{}, errMalformedKey
	}

	return txwatcher.SetKey{
		ChainID: chainID,
		Address: common.HexToAddress(parts[1]),
		Type:    txType,
	}, nil
}

// SaveTransactionSet stores set as JSON without expiration.
func (c *client) SaveTransactionSet(ctx context.Context, key txwatcher.SetKey, set txwatcher.TransactionSet) error {
	payload, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return c.conn.Set(ctx, stateKey(key), payload, 0).Err()
}

func (c *client) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string

	iter := c.conn.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// LoadTransactionSets reads every persisted set. Keys that do not parse are skipped.
func (c *client) LoadTransactionSets(ctx context.Context) (map[txwatcher.SetKey]txwatcher.TransactionSet, error) {
	keys, err := c.scanKeys(ctx, stateKeyPrefix+":*")
	if err != nil {
		return nil, err
	}

	sets := make(map[txwatcher.SetKey]txwatcher.TransactionSet, len(keys))
	for start := 0; start < len(keys); start += scanBatchSize {
		batch := keys[start:min(start+scanBatchSize, len(keys))]

		values, err := c.conn.MGet(ctx, batch...).Result()
		if err != nil {
			return nil, err
		}

		for i, value := range values {
			payload, ok := value.(string)
			if !ok {
				continue
			}

			key, err := parseStateKey(batch[i])
			if err != nil {
				continue
			}

			var set txwatcher.TransactionSet
			if err := json.Unmarshal([]byte(payload), &set); err != nil {
				return nil, fmt.Errorf("decode %s: %w", batch[i], err)
			}
			sets[key] = set
		}
	}
	return sets, nil
}

// DeleteAddress removes every set of address on every chain.
func (c *client) DeleteAddress(ctx context.Context, address common.Address) error {
	keys, err := c.scanKeys(ctx, fmt.Sprintf("%s:*:%s:*", stateKeyPrefix, strings.ToLower(address.Hex())))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	if err := c.conn.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// Ensure the client satisfies the StateStorage interface at compile time.
var _ txwatcher.StateStorage = (*client)(nil)

package pebble

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gabapcia/txwatch/internal/txwatcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000BB")
)

func openTestStorage(t *testing.T) *storage {
	t.Helper()

	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleSet(cursor uint64, hashes ...string) txwatcher.TransactionSet {
	set := txwatcher.TransactionSet{
		Transactions:     make(map[common.Hash]txwatcher.TransactionRecord),
		LastBlockQueried: cursor,
	}
	for _, h := range hashes {
		hash := common.HexToHash(h)
		set.Transactions[hash] = txwatcher.TransactionRecord{
			Hash:    hash,
			Status:  txwatcher.StatusConfirmed,
			ChainID: 1,
		}
	}
	return set
}

func TestStateKey(t *testing.T) {
	t.Run("should round trip", func(t *testing.T) {
		key := txwatcher.SetKey{ChainID: 56, Address: alice, Type: txwatcher.TransactionTypeERC1155}

		assert.Equal(t, "state/0x00000000000000000000000000000000000000aa/56/erc1155", string(stateKey(key)))

		parsed, err := parseStateKey(stateKey(key))
		require.NoError(t, err)
		assert.Equal(t, key, parsed)
	})

	t.Run("should reject malformed keys", func(t *testing.T) {
		_, err := parseStateKey([]byte("state/0xaa/1"))
		assert.ErrorIs(t, err, errMalformedKey)

		_, err = parseStateKey([]byte("other/0x00000000000000000000000000000000000000aa/1/native"))
		assert.ErrorIs(t, err, errMalformedKey)
	})
}

func TestUpperBound(t *testing.T) {
	assert.Equal(t, []byte("state0"), upperBound([]byte("state/")))
	assert.Equal(t, []byte{0x02}, upperBound([]byte{0x01, 0xff}))
	assert.Nil(t, upperBound([]byte{0xff}))
}

func TestStorage(t *testing.T) {
	t.Run("should persist and load sets", func(t *testing.T) {
		s := openTestStorage(t)
		native := txwatcher.SetKey{ChainID: 1, Address: alice, Type: txwatcher.TransactionTypeNative}
		erc20 := txwatcher.SetKey{ChainID: 1, Address: alice, Type: txwatcher.TransactionTypeERC20}

		require.NoError(t, s.SaveTransactionSet(t.Context(), native, sampleSet(10, "0x01")))
		require.NoError(t, s.SaveTransactionSet(t.Context(), erc20, sampleSet(20, "0x02", "0x03")))

		sets, err := s.LoadTransactionSets(t.Context())
		require.NoError(t, err)
		require.Len(t, sets, 2)
		assert.Equal(t, uint64(10), sets[native].LastBlockQueried)
		assert.Len(t, sets[erc20].Transactions, 2)
	})

	t.Run("should overwrite a set on save", func(t *testing.T) {
		s := openTestStorage(t)
		key := txwatcher.SetKey{ChainID: 1, Address: alice, Type: txwatcher.TransactionTypeNative}

		require.NoError(t, s.SaveTransactionSet(t.Context(), key, sampleSet(10, "0x01")))
		require.NoError(t, s.SaveTransactionSet(t.Context(), key, sampleSet(30, "0x01", "0x02")))

		sets, err := s.LoadTransactionSets(t.Context())
		require.NoError(t, err)
		assert.Equal(t, uint64(30), sets[key].LastBlockQueried)
		assert.Len(t, sets[key].Transactions, 2)
	})

	t.Run("should delete only the given address on every chain", func(t *testing.T) {
		s := openTestStorage(t)
		keep := txwatcher.SetKey{ChainID: 1, Address: bob, Type: txwatcher.TransactionTypeNative}

		require.NoError(t, s.SaveTransactionSet(t.Context(), txwatcher.SetKey{ChainID: 1, Address: alice, Type: txwatcher.TransactionTypeNative}, sampleSet(1)))
		require.NoError(t, s.SaveTransactionSet(t.Context(), txwatcher.SetKey{ChainID: 137, Address: alice, Type: txwatcher.TransactionTypeERC20}, sampleSet(2)))
		require.NoError(t, s.SaveTransactionSet(t.Context(), keep, sampleSet(3)))

		require.NoError(t, s.DeleteAddress(t.Context(), alice))

		sets, err := s.LoadTransactionSets(t.Context())
		require.NoError(t, err)
		require.Len(t, sets, 1)
		assert.Contains(t, sets, keep)
	})

	t.Run("should survive a reopen", func(t *testing.T) {
		dir := t.TempDir()
		key := txwatcher.SetKey{ChainID: 1, Address: alice, Type: txwatcher.TransactionTypeNative}

		s, err := Open(dir)
		require.NoError(t, err)
		require.NoError(t, s.SaveTransactionSet(t.Context(), key, sampleSet(42, "0x01")))
		require.NoError(t, s.Close())

		s, err = Open(dir)
		require.NoError(t, err)
		defer s.Close()

		sets, err := s.LoadTransactionSets(t.Context())
		require.NoError(t, err)
		assert.Equal(t, uint64(42), sets[key].LastBlockQueried)
	})

	t.Run("should fail after close", func(t *testing.T) {
		s, err := Open(t.TempDir())
		require.NoError(t, err)
		require.NoError(t, s.Close())

		_, err = s.LoadTransactionSets(t.Context())
		assert.ErrorIs(t, err, ErrClosed)
		assert.NoError(t, s.Close())
	})
}

package chainparams

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	t.Run("unknown chain gets conservative defaults", func(t *testing.T) {
		got := Lookup(999_999)

		assert.Equal(t, uint64(0), got.InitialBlock)
		assert.Equal(t, uint64(DefaultMaxBlockBatchSize), got.MaxBlockBatchSize)
		assert.Equal(t, uint64(DefaultBatchMultiplier), got.BatchMultiplier)
	})

	t.Run("known chain", func(t *testing.T) {
		got := Lookup(Ethereum)

		assert.Equal(t, uint64(46_147), got.InitialBlock)
		assert.Equal(t, uint64(2_000), got.MaxBlockBatchSize)
		assert.Equal(t, uint64(10), got.BatchMultiplier)
	})

	t.Run("every known multiplier respects the cap", func(t *testing.T) {
		for chainID := range known {
			assert.LessOrEqual(t, BatchMultiplier(chainID), uint64(MaxBatchMultiplier), "chain %d", chainID)
			assert.NotZero(t, MaxBlockBatchSize(chainID), "chain %d", chainID)
		}
	})
}

func TestAccessors(t *testing.T) {
	assert.Equal(t, uint64(22_207_815), InitialBlock(ArbitrumOne))
	assert.Equal(t, uint64(10_000), MaxBlockBatchSize(Base))
	assert.Equal(t, uint64(20), BatchMultiplier(Polygon))
	assert.Equal(t, uint64(100), ScanWindow(424242))
	assert.Equal(t, uint64(20_000), ScanWindow(Ethereum))
}

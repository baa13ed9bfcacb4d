package network

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gabapcia/txwatch/internal/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
networks:
  - chainId: 1
    name: Ethereum
    rpcUrl: https://rpc.example.org
    etherscanApiUrl: https://api.etherscan.io/api
    transactionWatcherUpdate: 12s
    explorerRateLimit: 5
    tokens:
      - address: "0xdAC17F958D2ee523a2206206994597C13D831ec7"
        symbol: USDT
        decimals: 6
        logo: images/usdt.svg
  - chainId: 1337
    name: Local
    rpcUrl: http://127.0.0.1:8545
`

func TestParse(t *testing.T) {
	t.Run("should decode and default networks", func(t *testing.T) {
		f, err := Parse([]byte(sample))
		require.NoError(t, err)
		require.Len(t, f.Networks, 2)

		mainnet, err := f.Get(1)
		require.NoError(t, err)
		assert.Equal(t, 12*time.Second, mainnet.TransactionWatcherUpdate)
		assert.Equal(t, 5.0, mainnet.ExplorerRateLimit)

		tokens := mainnet.TokenList()
		require.Len(t, tokens, 1)
		assert.Equal(t, common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), tokens[0].Address)
		assert.Equal(t, uint8(6), tokens[0].Decimals)

		local, err := f.Get(1337)
		require.NoError(t, err)
		assert.Equal(t, DefaultWatcherUpdate, local.TransactionWatcherUpdate)
	})

	t.Run("should list explorer urls of every chain", func(t *testing.T) {
		f, err := Parse([]byte(sample))
		require.NoError(t, err)
		assert.Equal(t, map[uint64]string{1: "https://api.etherscan.io/api", 1337: ""}, f.ExplorerURLs())
	})

	t.Run("should reject unknown chains", func(t *testing.T) {
		f, err := Parse([]byte(sample))
		require.NoError(t, err)

		_, err = f.Get(10)
		assert.ErrorIs(t, err, ErrUnknownNetwork)
	})

	t.Run("should reject duplicated chain ids", func(t *testing.T) {
		_, err := Parse([]byte(`
networks:
  - {chainId: 1, name: a, rpcUrl: "http://a"}
  - {chainId: 1, name: b, rpcUrl: "http://b"}
`))
		assert.ErrorIs(t, err, ErrDuplicateChain)
	})

	t.Run("should validate entries", func(t *testing.T) {
		_, err := Parse([]byte(`
networks:
  - chainId: 1
    name: a
    rpcUrl: "http://a"
    tokens:
      - {address: nope, symbol: X}
`))
		assert.ErrorIs(t, err, validator.ErrValidationFailed)

		_, err = Parse([]byte(`networks: []`))
		assert.ErrorIs(t, err, validator.ErrValidationFailed)
	})

	t.Run("should fail on bad yaml", func(t *testing.T) {
		_, err := Parse([]byte("networks: ["))
		assert.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Networks, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

package main

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gabapcia/txwatch/internal/config"
	"github.com/gabapcia/txwatch/internal/network"
	"github.com/gabapcia/txwatch/internal/txwatcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type explorerFunc func(ctx context.Context, req txwatcher.ExplorerRequest) ([]txwatcher.ExplorerRecord, error)

func (f explorerFunc) FetchTransactions(ctx context.Context, req txwatcher.ExplorerRequest) ([]txwatcher.ExplorerRecord, error) {
	return f(ctx, req)
}

func TestExplorerRouter(t *testing.T) {
	t.Run("should route by base url", func(t *testing.T) {
		router := explorerRouter{
			"https://a": explorerFunc(func(context.Context, txwatcher.ExplorerRequest) ([]txwatcher.ExplorerRecord, error) {
				return []txwatcher.ExplorerRecord{{Hash: "0xa"}}, nil
			}),
			"https://b": explorerFunc(func(context.Context, txwatcher.ExplorerRequest) ([]txwatcher.ExplorerRecord, error) {
				return nil, errors.New("b is down")
			}),
		}

		records, err := router.FetchTransactions(t.Context(), txwatcher.ExplorerRequest{BaseURL: "https://a"})
		require.NoError(t, err)
		assert.Equal(t, "0xa", records[0].Hash)

		_, err = router.FetchTransactions(t.Context(), txwatcher.ExplorerRequest{BaseURL: "https://b"})
		assert.EqualError(t, err, "b is down")

		_, err = router.FetchTransactions(t.Context(), txwatcher.ExplorerRequest{BaseURL: "https://c"})
		assert.Error(t, err)
	})
}

func testApp(t *testing.T, driver string) *app {
	t.Helper()

	networks, err := network.Parse([]byte(`
networks:
  - chainId: 1
    name: Ethereum
    rpcUrl: http://127.0.0.1:1
    etherscanApiUrl: http://127.0.0.1:1/api
  - chainId: 1337
    name: Local
    rpcUrl: http://127.0.0.1:1
`))
	require.NoError(t, err)

	return newApp(config.Config{
		StorageDriver: driver,
		PebblePath:    t.TempDir(),
	}, networks)
}

func TestApp_Build(t *testing.T) {
	t.Run("should wire a watcher on a configured chain", func(t *testing.T) {
		c, err := testApp(t, config.StorageMemory).build(t.Context(), 1)
		require.NoError(t, err)
		defer c.close()

		assert.Equal(t, uint64(1), c.session.CurrentChainID())
		assert.Equal(t, "http://127.0.0.1:1/api", c.session.ExplorerURL(1))
		assert.Empty(t, c.session.ExplorerURL(1337))
		assert.Empty(t, c.watcher.Snapshot())
	})

	t.Run("should reject unknown chains", func(t *testing.T) {
		_, err := testApp(t, config.StorageMemory).build(t.Context(), 10)
		assert.ErrorIs(t, err, network.ErrUnknownNetwork)
	})

	t.Run("should reload pebble state across builds", func(t *testing.T) {
		a := testApp(t, config.StoragePebble)
		key := txwatcher.SetKey{ChainID: 1, Address: common.HexToAddress("0xaa"), Type: txwatcher.TransactionTypeNative}

		c, err := a.build(t.Context(), 1)
		require.NoError(t, err)
		_, err = c.store.Set(t.Context(), key, txwatcher.TransactionSet{LastBlockQueried: 77})
		require.NoError(t, err)
		require.NoError(t, c.close())

		c, err = a.build(t.Context(), 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(77), c.store.Get(key).LastBlockQueried)
		require.NoError(t, c.close())

		require.NoError(t, a.Forget(t.Context(), key.Address))

		c, err = a.build(t.Context(), 1)
		require.NoError(t, err)
		defer c.close()
		assert.Zero(t, c.store.Get(key).LastBlockQueried)
	})
}

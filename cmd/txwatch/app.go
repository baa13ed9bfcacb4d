package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gabapcia/txwatch/internal/chainhead"
	"github.com/gabapcia/txwatch/internal/config"
	httphandler "github.com/gabapcia/txwatch/internal/handlers/http"
	"github.com/gabapcia/txwatch/internal/infra/blockchain/ethereum"
	"github.com/gabapcia/txwatch/internal/infra/explorer/etherscan"
	pebblestorage "github.com/gabapcia/txwatch/internal/infra/storage/pebble"
	redisstorage "github.com/gabapcia/txwatch/internal/infra/storage/redis"
	"github.com/gabapcia/txwatch/internal/network"
	"github.com/gabapcia/txwatch/internal/pkg/logger"
	httptransport "github.com/gabapcia/txwatch/internal/pkg/transport/http"
	"github.com/gabapcia/txwatch/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/txwatch/internal/tokens"
	"github.com/gabapcia/txwatch/internal/txwatcher"
	"github.com/gabapcia/txwatch/internal/wallet"
	"golang.org/x/sync/errgroup"
)

// explorerRouter sends each request to the explorer client of its base URL,
// so every network keeps its own rate limit.
type explorerRouter map[string]txwatcher.Explorer

func (r explorerRouter) FetchTransactions(ctx context.Context, req txwatcher.ExplorerRequest) ([]txwatcher.ExplorerRecord, error) {
	explorer, ok := r[req.BaseURL]
	if !ok {
		return nil, fmt.Errorf("no explorer configured for %q", req.BaseURL)
	}
	return explorer.FetchTransactions(ctx, req)
}

// logEvents writes every event to the process log.
func logEvents(ctx context.Context, event txwatcher.Event) error {
	logger.Info(ctx, "transaction event",
		"event.kind", event.Kind,
		"chain.id", event.ChainID,
		"account.address", event.Address,
		"transaction.type", event.Type,
		"token.addresses", event.TokenAddresses,
	)
	return nil
}

type app struct {
	cfg      config.Config
	networks network.File
}

func newApp(cfg config.Config, networks network.File) *app {
	return &app{
		cfg:      cfg,
		networks: networks,
	}
}

// components is one wired watcher. close releases everything it opened.
type components struct {
	store   *txwatcher.Store
	session *wallet.Session
	heads   chainhead.Service
	watcher txwatcher.Service
	closers []io.Closer
}

func (c *components) close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i].Close())
	}
	return errors.Join(errs...)
}

// openStorage returns the configured StateStorage and EventSink.
func (a *app) openStorage(ctx context.Context, c *components) (txwatcher.StateStorage, txwatcher.EventSink, error) {
	sink := txwatcher.EventSinkFunc(logEvents)

	switch a.cfg.StorageDriver {
	case config.StorageRedis:
		client, err := redisstorage.NewClient(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Username, a.cfg.Redis.Password, a.cfg.Redis.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		c.closers = append(c.closers, client)
		return client, txwatcher.FanOut(sink, redisstorage.NewEventPublisher(client, a.cfg.Redis.EventsChannel)), nil
	case config.StoragePebble:
		storage, err := pebblestorage.Open(a.cfg.PebblePath)
		if err != nil {
			return nil, nil, err
		}
		c.closers = append(c.closers, storage)
		return storage, sink, nil
	default:
		return nil, sink, nil
	}
}

func (a *app) build(ctx context.Context, chainID uint64) (*components, error) {
	if _, err := a.networks.Get(chainID); err != nil {
		return nil, err
	}

	c := &components{}
	storage, sink, err := a.openStorage(ctx, c)
	if err != nil {
		return nil, err
	}

	c.store = txwatcher.NewStore(storage)
	if err := c.store.Load(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("load state: %w", err), c.close())
	}

	var (
		providers = make(map[uint64]txwatcher.Provider, len(a.networks.Networks))
		explorers = make(explorerRouter)
		lists     = make(map[uint64][]txwatcher.Token, len(a.networks.Networks))
		chains    = make([]chainhead.Chain, 0, len(a.networks.Networks))
		tokenOpts []tokens.Option
	)
	for _, n := range a.networks.Networks {
		rpc := ethereum.NewClient(jsonrpc.NewClient(httptransport.NewClient(httptransport.WithTimeout(a.cfg.RPCTimeout)), n.RPCURL))

		providers[n.ChainID] = rpc
		lists[n.ChainID] = n.TokenList()
		chains = append(chains, chainhead.Chain{ID: n.ChainID, Fetcher: rpc, Interval: n.TransactionWatcherUpdate})
		tokenOpts = append(tokenOpts, tokens.WithCaller(n.ChainID, rpc))

		if n.EtherscanAPIURL != "" {
			explorers[n.EtherscanAPIURL] = etherscan.NewClient(
				httptransport.NewClient(httptransport.WithTimeout(a.cfg.ExplorerTimeout)),
				etherscan.WithAPIKey(a.cfg.ExplorerAPIKey),
				etherscan.WithRateLimit(max(n.ExplorerRateLimit, a.cfg.ExplorerRateLimit), 1),
			)
		}
	}
	if a.cfg.PreferLocalTokens {
		tokenOpts = append(tokenOpts, tokens.WithPreferLocal())
	}

	c.session, err = wallet.NewSession(chainID, a.networks.ExplorerURLs())
	if err != nil {
		return nil, errors.Join(err, c.close())
	}

	// The listener only fires after Start, once watcher is assigned.
	c.heads = chainhead.New(chains, chainhead.WithListener(func(chainID, height uint64) {
		c.watcher.OnNewBlock(chainID, height)
	}))

	watcher, err := txwatcher.New(txwatcher.Dependencies{
		Network:   c.session,
		Accounts:  c.session,
		Heights:   c.heads,
		Explorer:  explorers,
		Tokens:    tokens.New(lists, tokenOpts...),
		Providers: providers,
	},
		txwatcher.WithStore(c.store),
		txwatcher.WithEventSink(sink),
	)
	if err != nil {
		return nil, errors.Join(err, c.close())
	}
	c.watcher = watcher

	c.session.Subscribe(wallet.Listeners{
		OnNetworkChanged:         watcher.OnNetworkChanged,
		OnSelectedAddressChanged: watcher.OnSelectedAddressChanged,
	})
	return c, nil
}

func (a *app) Run(ctx context.Context, chainID uint64, address common.Address) error {
	c, err := a.build(ctx, chainID)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.close(); err != nil {
			logger.Error(ctx, "failed to close storage", "error", err)
		}
	}()

	c.session.SelectAddress(address)

	if err := c.watcher.Start(ctx); err != nil {
		return err
	}
	defer c.watcher.Close()

	if err := c.heads.Start(ctx); err != nil {
		return err
	}
	defer c.heads.Close()

	logger.Info(ctx, "watching account",
		"chain.id", chainID,
		"account.address", address,
	)

	g, gCtx := errgroup.WithContext(ctx)
	if a.cfg.HTTPAddr != "" {
		g.Go(func() error {
			return httphandler.Serve(gCtx, a.cfg.HTTPAddr, c.watcher)
		})
	}
	g.Go(func() error {
		<-gCtx.Done()
		return nil
	})
	return g.Wait()
}

func (a *app) Sync(ctx context.Context, chainID uint64, address common.Address, forceChain bool) (map[txwatcher.TransactionType]txwatcher.TransactionSet, error) {
	c, err := a.build(ctx, chainID)
	if err != nil {
		return nil, err
	}
	defer c.close()

	c.session.SelectAddress(address)

	height, err := c.heads.Refresh(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("read chain head: %w", err)
	}

	c.watcher.FetchTransactions(ctx, txwatcher.FetchRequest{
		ChainID:         chainID,
		CurrentBlock:    height,
		ForceChainQuery: forceChain,
	})

	return c.watcher.Snapshot()[chainID][address], nil
}

func (a *app) Forget(ctx context.Context, address common.Address) error {
	c := &components{}
	storage, _, err := a.openStorage(ctx, c)
	if err != nil {
		return err
	}
	defer c.close()

	store := txwatcher.NewStore(storage)
	if err := store.Load(ctx); err != nil {
		return err
	}
	return store.RemoveAllForAddress(ctx, address)
}

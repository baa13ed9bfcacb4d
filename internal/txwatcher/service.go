package txwatcher

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gabapcia/txwatch/internal/chainparams"
	"github.com/gabapcia/txwatch/internal/pkg/logger"
	"github.com/gabapcia/txwatch/internal/pkg/resilience/retry"
	"github.com/gabapcia/txwatch/internal/pkg/types"
	"github.com/gabapcia/txwatch/internal/pkg/validator"
	"github.com/gabapcia/txwatch/internal/pkg/x/chflow"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var ErrServiceAlreadyStarted = errors.New("service already started")

const (
	defaultTypeDelay          = 2 * time.Second
	defaultBisectBackoff      = 1 * time.Second
	defaultBackfillIdle       = 1 * time.Second
	defaultEnrichRecentBlocks = 30
	defaultEnrichMaxBatch     = 20
	defaultBlockFetchAttempts = 20
)

// FetchRequest parameterizes one fetch cycle. Zero fields fall back to the
// current chain and its latest known block.
type FetchRequest struct {
	ChainID         uint64
	CurrentBlock    uint64
	ForceChainQuery bool
}

type Service interface {
	Start(ctx context.Context) error
	Close()

	// FetchTransactions runs one fetch cycle. Cycles never overlap and never
	// return an error; failures are logged.
	FetchTransactions(ctx context.Context, req FetchRequest)

	OnNewBlock(chainID, height uint64)
	OnNetworkChanged(chainID uint64)
	OnSelectedAddressChanged(address common.Address)
	OnTransactionConfirmed(chainID uint64)

	Transactions(key SetKey) TransactionSet
	Snapshot() State
	RemoveAllTransactions(ctx context.Context, address common.Address) error
}

// Dependencies are the collaborators every Service needs.
type Dependencies struct {
	Network   NetworkSource     `validate:"required"`
	Accounts  AccountSource     `validate:"required"`
	Heights   BlockHeightSource `validate:"required"`
	Explorer  Explorer          `validate:"required"`
	Tokens    TokenLookup       `validate:"required"`
	Providers map[uint64]Provider
}

type closeFunc func()

type service struct {
	mu        sync.Mutex // serializes fetch cycles
	runMu     sync.Mutex // guards the lifecycle fields below
	isStarted bool
	runCtx    context.Context
	closeFunc closeFunc
	wg        sync.WaitGroup

	deps       Dependencies
	store      *Store
	events     EventSink
	logs       *logFetcher
	normalizer *normalizer
	blockRetry retry.Retry

	txTypes      []TransactionType
	typeDelay    time.Duration
	backfillIdle time.Duration

	// fullDiscovery holds the keys whose next explorer query must start from
	// the chain's initial block. Guarded by mu.
	fullDiscovery types.Set[SetKey]

	metrics instruments
}

var _ Service = (*service)(nil)

func (s *service) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.isStarted {
		return ErrServiceAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.runCtx = ctx
	s.closeFunc = func() {
		cancel()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runBackfill(ctx)
	}()

	s.isStarted = true
	return nil
}

// Close stops the backfill loop and waits for every triggered cycle to return.
func (s *service) Close() {
	s.runMu.Lock()
	if s.closeFunc != nil {
		s.closeFunc()
	}
	s.isStarted = false
	s.closeFunc = nil
	s.runMu.Unlock()

	s.wg.Wait()
}

// trigger runs a cycle in the background. It is a no-op until Start is called.
func (s *service) trigger(req FetchRequest) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.isStarted {
		return
	}

	ctx := s.runCtx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.FetchTransactions(ctx, req)
	}()
}

func (s *service) OnNewBlock(chainID, height uint64) {
	s.trigger(FetchRequest{ChainID: chainID, CurrentBlock: height})
}

func (s *service) OnNetworkChanged(chainID uint64) {
	s.trigger(FetchRequest{ChainID: chainID})
}

func (s *service) OnSelectedAddressChanged(common.Address) {
	s.trigger(FetchRequest{})
}

func (s *service) OnTransactionConfirmed(chainID uint64) {
	s.trigger(FetchRequest{ChainID: chainID})
}

func (s *service) Transactions(key SetKey) TransactionSet {
	return s.store.Get(key)
}

func (s *service) Snapshot() State {
	return s.store.Snapshot()
}

func (s *service) RemoveAllTransactions(ctx context.Context, address common.Address) error {
	return s.store.RemoveAllForAddress(ctx, address)
}

// fetchCycle is the context shared by every type of one cycle.
type fetchCycle struct {
	chainID      uint64
	account      common.Address
	currentBlock uint64
	force        bool
	explorerURL  string
	provider     Provider
}

func (s *service) FetchTransactions(ctx context.Context, req FetchRequest) {
	chainID := cmp.Or(req.ChainID, s.deps.Network.CurrentChainID())
	currentBlock := cmp.Or(req.CurrentBlock, s.deps.Heights.BlockNumber(chainID))
	if currentBlock == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "fetch cycle panicked",
				"chain.id", chainID,
				"error", fmt.Sprint(r),
			)
		}
	}()

	ctx, span := tracer.Start(ctx, "txwatcher.FetchTransactions", trace.WithAttributes(
		attribute.Int64("chain.id", int64(chainID)),
		attribute.Int64("block.current", int64(currentBlock)),
		attribute.Bool("fetch.force_chain_query", req.ForceChainQuery),
	))
	defer span.End()

	if chainID != s.deps.Network.CurrentChainID() {
		logger.Debug(ctx, "skipping fetch for inactive chain", "chain.id", chainID)
		return
	}

	account, ok := s.deps.Accounts.SelectedAddress()
	if !ok {
		return
	}

	cycle := fetchCycle{
		chainID:      chainID,
		account:      account,
		currentBlock: cmp.Or(s.deps.Heights.BlockNumber(chainID), currentBlock),
		force:        req.ForceChainQuery,
		explorerURL:  s.deps.Network.ExplorerURL(chainID),
		provider:     s.deps.Providers[chainID],
	}

	for i, txType := range s.txTypes {
		if ctx.Err() != nil {
			return
		}
		if s.deps.Network.CurrentChainID() != chainID {
			logger.Debug(ctx, "chain changed during fetch", "chain.id", chainID)
			return
		}

		if err := s.fetchType(ctx, cycle, txType); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error(ctx, "failed to fetch transactions",
				"chain.id", chainID,
				"account.address", account,
				"transaction.type", txType,
				"error", err,
			)
		}

		if !req.ForceChainQuery && i < len(s.txTypes)-1 {
			if !chflow.Sleep(ctx, s.typeDelay) {
				return
			}
		}
	}

	s.metrics.fetchCycles.Add(ctx, 1, metric.WithAttributes(attribute.Int64("chain.id", int64(chainID))))
}

func (s *service) fetchType(ctx context.Context, cycle fetchCycle, txType TransactionType) error {
	key := SetKey{ChainID: cycle.chainID, Address: cycle.account, Type: txType}

	if txType == TransactionTypeNative && cycle.explorerURL == "" {
		return nil
	}
	useExplorer := txType == TransactionTypeNative || (!cycle.force && cycle.explorerURL != "")

	previous := s.store.Get(key)

	var (
		observed map[common.Hash]TransactionRecord
		err      error
	)
	if useExplorer {
		observed, err = s.fetchFromExplorer(ctx, cycle, key, previous)
	} else {
		observed, err = s.fetchFromChain(ctx, cycle, key, previous)
	}
	if err != nil {
		return err
	}

	s.announceIncoming(ctx, cycle, key, previous, observed)
	if txType == TransactionTypeERC20 {
		s.announceNewTokens(ctx, key, previous, observed)
	}

	if _, err := s.store.Set(ctx, key, TransactionSet{
		Transactions:     observed,
		LastBlockQueried: cycle.currentBlock,
	}); err != nil {
		return err
	}

	s.metrics.transactionsObserved.Add(ctx, int64(len(observed)), metric.WithAttributes(
		attribute.String("transaction.type", string(txType)),
	))
	return nil
}

func (s *service) fetchFromExplorer(ctx context.Context, cycle fetchCycle, key SetKey, previous TransactionSet) (map[common.Hash]TransactionRecord, error) {
	fromBlock := previous.LastBlockQueried
	fullDiscovery := s.fullDiscovery.Has(key)
	if fullDiscovery {
		fromBlock = chainparams.InitialBlock(cycle.chainID)
	}

	records, err := s.deps.Explorer.FetchTransactions(ctx, ExplorerRequest{
		BaseURL:   cycle.explorerURL,
		Address:   cycle.account,
		Type:      key.Type,
		FromBlock: fromBlock,
		ToBlock:   cycle.currentBlock,
	})
	if err != nil {
		s.metrics.explorerFailures.Add(ctx, 1)
		s.publish(ctx, Event{
			Kind:    EventNewERC20Transactions,
			ChainID: cycle.chainID,
			Address: cycle.account,
			Type:    key.Type,
		})
		return nil, fmt.Errorf("explorer %s: %w", key.Type.ExplorerAction(), err)
	}

	if fullDiscovery {
		s.fullDiscovery.Delete(key)
	}

	observed := make(map[common.Hash]TransactionRecord, len(records))
	for _, raw := range records {
		record := s.normalizer.fromExplorer(ctx, cycle.chainID, cycle.account, key.Type, raw)
		observed[record.Hash] = record
	}
	return observed, nil
}

func (s *service) fetchFromChain(ctx context.Context, cycle fetchCycle, key SetKey, previous TransactionSet) (map[common.Hash]TransactionRecord, error) {
	if cycle.provider == nil {
		return nil, fmt.Errorf("chain %d: %w", cycle.chainID, ErrNoProvider)
	}

	scan := s.logs.fetch(ctx, cycle.provider, cycle.chainID, cycle.account, key.Type, cycle.currentBlock, previous.LastBlockQueried)
	if scan.FullDiscoveryRequired && !s.fullDiscovery.Has(key) {
		s.fullDiscovery.Add(key)
		s.publish(ctx, Event{
			Kind:    EventFullDiscoveryRequired,
			ChainID: cycle.chainID,
			Address: cycle.account,
			Type:    key.Type,
		})
	}

	observed := s.normalizer.fromLogs(ctx, cycle.provider, cycle.chainID, cycle.account, scan.Incoming, cycle.currentBlock, true)
	maps.Copy(observed, s.normalizer.fromLogs(ctx, cycle.provider, cycle.chainID, cycle.account, scan.Outgoing, cycle.currentBlock, false))
	return observed, nil
}

// announceIncoming emits at most one incoming event per type and cycle, and
// only for accounts that already had history.
func (s *service) announceIncoming(ctx context.Context, cycle fetchCycle, key SetKey, previous TransactionSet, observed map[common.Hash]TransactionRecord) {
	if len(previous.Transactions) == 0 {
		return
	}

	for hash, record := range observed {
		if _, known := previous.Transactions[hash]; known {
			continue
		}
		if record.Recipient() != cycle.account {
			continue
		}

		s.publish(ctx, Event{
			Kind:    EventIncomingTransaction,
			ChainID: cycle.chainID,
			Address: cycle.account,
			Type:    key.Type,
		})
		return
	}
}

func (s *service) announceNewTokens(ctx context.Context, key SetKey, previous TransactionSet, observed map[common.Hash]TransactionRecord) {
	known := types.NewSet[common.Address]()
	for _, record := range previous.Transactions {
		if contract, ok := record.TokenContract(); ok {
			known.Add(contract)
		}
	}

	touched := types.NewSet[common.Address]()
	for _, record := range observed {
		if contract, ok := record.TokenContract(); ok {
			touched.Add(contract)
		}
	}

	discovered := touched.Difference(known).ToSlice()
	if len(discovered) == 0 {
		return
	}
	slices.SortFunc(discovered, func(a, b common.Address) int { return a.Cmp(b) })

	s.publish(ctx, Event{
		Kind:           EventNewKnownERC20Transactions,
		ChainID:        key.ChainID,
		Address:        key.Address,
		Type:           key.Type,
		TokenAddresses: discovered,
	})
}

func (s *service) publish(ctx context.Context, event Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		logger.Warn(ctx, "failed to publish event",
			"event.kind", event.Kind,
			"chain.id", event.ChainID,
			"account.address", event.Address,
			"error", err,
		)
	}
}

type config struct {
	store        *Store
	events       EventSink
	txTypes      []TransactionType
	typeDelay    time.Duration
	backoff      time.Duration
	backfillIdle time.Duration
	blockRetry   retry.Retry

	enrichRecentBlocks uint64
	enrichMaxBatch     int
}

type Option func(*config)

// New validates deps and returns a Service that is ready to fetch. Triggers
// and the backfill loop only run after Start.
func New(deps Dependencies, opts ...Option) (*service, error) {
	if err := validator.Validate(deps); err != nil {
		return nil, err
	}

	cfg := config{
		events:             nopEventSink{},
		txTypes:            DefaultTransactionTypes,
		typeDelay:          defaultTypeDelay,
		backoff:            defaultBisectBackoff,
		backfillIdle:       defaultBackfillIdle,
		enrichRecentBlocks: defaultEnrichRecentBlocks,
		enrichMaxBatch:     defaultEnrichMaxBatch,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.store == nil {
		cfg.store = NewStore(nil)
	}
	if cfg.blockRetry == nil {
		cfg.blockRetry = retry.New(
			retry.WithAttempts(defaultBlockFetchAttempts),
			retry.WithDelay(time.Second),
			retry.WithFixedDelay(),
		)
	}

	return &service{
		deps:   deps,
		store:  cfg.store,
		events: cfg.events,
		logs: &logFetcher{
			heights: deps.Heights,
			backoff: cfg.backoff,
		},
		normalizer: &normalizer{
			tokens:             deps.Tokens,
			enrichRecentBlocks: cfg.enrichRecentBlocks,
			enrichMaxBatch:     cfg.enrichMaxBatch,
		},
		blockRetry:    cfg.blockRetry,
		txTypes:       cfg.txTypes,
		typeDelay:     cfg.typeDelay,
		backfillIdle:  cfg.backfillIdle,
		fullDiscovery: types.NewSet[SetKey](),
		metrics:       newInstruments(),
	}, nil
}

// WithStore sets the store shared with other readers.
func WithStore(store *Store) Option {
	return func(c *config) {
		c.store = store
	}
}

// WithEventSink sets where cycle events are published.
func WithEventSink(sink EventSink) Option {
	return func(c *config) {
		c.events = sink
	}
}

// WithTransactionTypes sets the families walked by each cycle, in order.
func WithTransactionTypes(txTypes ...TransactionType) Option {
	return func(c *config) {
		c.txTypes = txTypes
	}
}

// WithTypeDelay sets the pause between two types of a non-forced cycle.
func WithTypeDelay(d time.Duration) Option {
	return func(c *config) {
		c.typeDelay = d
	}
}

// WithBisectBackoff sets the pause before a failed log range is split.
func WithBisectBackoff(d time.Duration) Option {
	return func(c *config) {
		c.backoff = d
	}
}

// WithBackfillIdle sets how long the backfill loop sleeps when nothing is missing.
func WithBackfillIdle(d time.Duration) Option {
	return func(c *config) {
		c.backfillIdle = d
	}
}

// WithBlockFetchRetry sets the retry policy of block header fetches.
func WithBlockFetchRetry(r retry.Retry) Option {
	return func(c *config) {
		c.blockRetry = r
	}
}

// WithEnrichment sets how recent and how small an incoming log batch must be
// for its transactions to be fetched in full.
func WithEnrichment(recentBlocks uint64, maxBatch int) Option {
	return func(c *config) {
		c.enrichRecentBlocks = recentBlocks
		c.enrichMaxBatch = maxBatch
	}
}

// Package chainhead tracks the latest block height of every configured chain
// by polling its node, and notifies a listener whenever a chain advances.
package chainhead

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gabapcia/txwatch/internal/pkg/logger"
	"github.com/gabapcia/txwatch/internal/pkg/x/chflow"
	"github.com/gabapcia/txwatch/internal/txwatcher"
)

var (
	ErrServiceAlreadyStarted = errors.New("service already started")
	ErrUnknownChain          = errors.New("unknown chain")
)

const defaultPollInterval = 15 * time.Second

// HeightFetcher reads the latest block number of one chain.
type HeightFetcher interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Chain is one polled network. A zero Interval uses the service default.
type Chain struct {
	ID       uint64
	Fetcher  HeightFetcher
	Interval time.Duration
}

// Listener is called with the new height each time a chain advances.
type Listener func(chainID, height uint64)

type Service interface {
	Start(ctx context.Context) error
	Close()

	// Refresh polls chainID once and returns its latest height.
	Refresh(ctx context.Context, chainID uint64) (uint64, error)

	// Height returns the last height observed for chainID.
	Height(chainID uint64) (uint64, error)

	txwatcher.BlockHeightSource
}

type closeFunc func()

type service struct {
	mu        sync.Mutex
	isStarted bool
	closeFunc closeFunc
	wg        sync.WaitGroup

	heightsMu sync.RWMutex
	heights   map[uint64]uint64

	chains       map[uint64]Chain
	listeners    []Listener
	pollInterval time.Duration
}

var _ Service = (*service)(nil)

func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStarted {
		return ErrServiceAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.closeFunc = func() {
		cancel()
	}

	for _, chain := range s.chains {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.watch(ctx, chain)
		}()
	}

	s.isStarted = true
	return nil
}

func (s *service) Close() {
	s.mu.Lock()
	if s.closeFunc != nil {
		s.closeFunc()
	}
	s.isStarted = false
	s.closeFunc = nil
	s.mu.Unlock()

	s.wg.Wait()
}

// watch polls chain immediately and then once per interval until ctx is done.
func (s *service) watch(ctx context.Context, chain Chain) {
	interval := chain.Interval
	if interval <= 0 {
		interval = s.pollInterval
	}

	for {
		if _, err := s.poll(ctx, chain); err != nil && ctx.Err() == nil {
			logger.Warn(ctx, "failed to poll chain head",
				"chain.id", chain.ID,
				"error", err,
			)
		}

		if !chflow.Sleep(ctx, interval) {
			return
		}
	}
}

func (s *service) poll(ctx context.Context, chain Chain) (uint64, error) {
	height, err := chain.Fetcher.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}

	s.heightsMu.Lock()
	previous := s.heights[chain.ID]
	advanced := height > previous
	if advanced {
		s.heights[chain.ID] = height
	}
	s.heightsMu.Unlock()

	if !advanced {
		return previous, nil
	}

	logger.Debug(ctx, "chain head advanced",
		"chain.id", chain.ID,
		"block.height", height,
	)
	for _, listener := range s.listeners {
		listener(chain.ID, height)
	}
	return height, nil
}

func (s *service) Refresh(ctx context.Context, chainID uint64) (uint64, error) {
	chain, ok := s.chains[chainID]
	if !ok {
		return 0, ErrUnknownChain
	}
	return s.poll(ctx, chain)
}

func (s *service) Height(chainID uint64) (uint64, error) {
	if _, ok := s.chains[chainID]; !ok {
		return 0, ErrUnknownChain
	}

	s.heightsMu.RLock()
	defer s.heightsMu.RUnlock()

	return s.heights[chainID], nil
}

// BlockNumber implements txwatcher.BlockHeightSource. Unknown or not yet
// polled chains report 0.
func (s *service) BlockNumber(chainID uint64) uint64 {
	height, _ := s.Height(chainID)
	return height
}

type config struct {
	listeners    []Listener
	pollInterval time.Duration
}

type Option func(*config)

// New returns a Service polling every chain in chains.
func New(chains []Chain, opts ...Option) *service {
	cfg := config{
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	byID := make(map[uint64]Chain, len(chains))
	for _, chain := range chains {
		byID[chain.ID] = chain
	}

	return &service{
		heights:      make(map[uint64]uint64, len(chains)),
		chains:       byID,
		listeners:    cfg.listeners,
		pollInterval: cfg.pollInterval,
	}
}

// WithListener registers f to be called when a chain advances. It may be
// given more than once.
func WithListener(f Listener) Option {
	return func(c *config) {
		c.listeners = append(c.listeners, f)
	}
}

// WithPollInterval sets the interval used by chains without their own.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		c.pollInterval = d
	}
}

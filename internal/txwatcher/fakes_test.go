package txwatcher

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
)

var (
	testAccount = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testPeer    = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	testToken   = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

const testChainID uint64 = 999_999

type fakeNetwork struct {
	mu          sync.Mutex
	chainID     uint64
	explorerURL string
}

func (n *fakeNetwork) CurrentChainID() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.chainID
}

func (n *fakeNetwork) ExplorerURL(uint64) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.explorerURL
}

func (n *fakeNetwork) switchTo(chainID uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.chainID = chainID
}

type fakeAccounts struct {
	address common.Address
}

func (a fakeAccounts) SelectedAddress() (common.Address, bool) {
	return a.address, a.address != (common.Address{})
}

type fakeHeights map[uint64]uint64

func (h fakeHeights) BlockNumber(chainID uint64) uint64 {
	return h[chainID]
}

// fakeProvider answers from the configured functions and records every log query.
type fakeProvider struct {
	mu      sync.Mutex
	queries []blockRange

	getLogs        func(query ethereum.FilterQuery) ([]types.Log, error)
	getTransaction func(hash common.Hash) (TransactionDetails, error)
	getBlock       func(number uint64) (Block, error)
}

func (p *fakeProvider) GetLogs(_ context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	p.mu.Lock()
	p.queries = append(p.queries, blockRange{query.FromBlock.Uint64(), query.ToBlock.Uint64()})
	p.mu.Unlock()

	if p.getLogs == nil {
		return nil, nil
	}
	return p.getLogs(query)
}

func (p *fakeProvider) GetTransaction(_ context.Context, hash common.Hash) (TransactionDetails, error) {
	if p.getTransaction == nil {
		return TransactionDetails{Hash: hash}, nil
	}
	return p.getTransaction(hash)
}

func (p *fakeProvider) GetBlock(_ context.Context, number uint64) (Block, error) {
	if p.getBlock == nil {
		return Block{Number: number}, nil
	}
	return p.getBlock(number)
}

func (p *fakeProvider) recordedQueries() []blockRange {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]blockRange(nil), p.queries...)
}

type explorerMock struct {
	mock.Mock
}

func (m *explorerMock) FetchTransactions(ctx context.Context, req ExplorerRequest) ([]ExplorerRecord, error) {
	args := m.Called(ctx, req)
	records, _ := args.Get(0).([]ExplorerRecord)
	return records, args.Error(1)
}

type tokensMock struct {
	mock.Mock
}

func (m *tokensMock) Search(ctx context.Context, query TokenQuery) ([]Token, error) {
	args := m.Called(ctx, query)
	tokens, _ := args.Get(0).([]Token)
	return tokens, args.Error(1)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) kinds() []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []EventKind
	for _, e := range s.events {
		out = append(out, e.Kind)
	}
	return out
}

func (s *recordingSink) count(kind EventKind) int {
	var n int
	for _, k := range s.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func transferLog(from, to common.Address, amount int64, block uint64, txHash common.Hash) types.Log {
	return types.Log{
		Address:     testToken,
		Topics:      []common.Hash{transferEventTopic, addressTopic(from), addressTopic(to)},
		Data:        common.LeftPadBytes(big.NewInt(amount).Bytes(), 32),
		BlockNumber: block,
		TxHash:      txHash,
	}
}

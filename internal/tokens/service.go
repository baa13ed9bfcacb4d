// Package tokens resolves token metadata from the configured token lists and,
// for contracts missing from them, from the ERC-20 contract itself.
package tokens

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gabapcia/txwatch/internal/pkg/logger"
	"github.com/gabapcia/txwatch/internal/txwatcher"
)

const erc20MetadataABI = `[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

var erc20Metadata = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20MetadataABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// ErrNotAToken is returned when a contract does not answer the ERC-20
// metadata calls.
var ErrNotAToken = errors.New("contract is not an erc20 token")

// Caller runs read-only contract calls on one chain.
type Caller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

type service struct {
	mu sync.RWMutex

	// known holds the configured lists plus every token resolved on chain.
	known map[uint64]map[common.Address]txwatcher.Token
	local map[uint64]map[common.Address]struct{}

	callers     map[uint64]Caller
	preferLocal bool
}

var _ txwatcher.TokenLookup = (*service)(nil)

// Search implements txwatcher.TokenLookup.
//
// Exact queries return at most the token at query.Contract. Other queries
// return every configured token of the chain.
func (s *service) Search(ctx context.Context, query txwatcher.TokenQuery) ([]txwatcher.Token, error) {
	if !query.Exact {
		return s.listLocal(query.ChainID), nil
	}

	if token, ok := s.lookup(query.ChainID, query.Contract, query.LocalOnly); ok {
		return []txwatcher.Token{token}, nil
	}

	if query.LocalOnly || s.preferLocal {
		return nil, nil
	}

	caller, ok := s.callers[query.ChainID]
	if !ok {
		return nil, nil
	}

	token, err := fetchMetadata(ctx, caller, query.Contract)
	if err != nil {
		logger.Debug(ctx, "failed to resolve token metadata",
			"chain.id", query.ChainID,
			"token.address", query.Contract,
			"error", err,
		)
		return nil, nil
	}

	s.remember(query.ChainID, token)
	return []txwatcher.Token{token}, nil
}

func (s *service) lookup(chainID uint64, contract common.Address, localOnly bool) (txwatcher.Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.known[chainID][contract]
	if !ok {
		return txwatcher.Token{}, false
	}
	if localOnly {
		if _, configured := s.local[chainID][contract]; !configured {
			return txwatcher.Token{}, false
		}
	}
	return token, true
}

func (s *service) listLocal(chainID uint64) []txwatcher.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := make([]txwatcher.Token, 0, len(s.local[chainID]))
	for address := range s.local[chainID] {
		tokens = append(tokens, s.known[chainID][address])
	}
	return tokens
}

func (s *service) remember(chainID uint64, token txwatcher.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.known[chainID] == nil {
		s.known[chainID] = make(map[common.Address]txwatcher.Token)
	}
	s.known[chainID][token.Address] = token
}

func fetchMetadata(ctx context.Context, caller Caller, contract common.Address) (txwatcher.Token, error) {
	symbol, err := callString(ctx, caller, contract, "symbol")
	if err != nil {
		return txwatcher.Token{}, err
	}

	out, err := call(ctx, caller, contract, "decimals")
	if err != nil {
		return txwatcher.Token{}, err
	}
	values, err := erc20Metadata.Unpack("decimals", out)
	if err != nil || len(values) != 1 {
		return txwatcher.Token{}, fmt.Errorf("%w: decimals", ErrNotAToken)
	}
	decimals, _ := values[0].(uint8)

	// name is optional in ERC-20.
	name, _ := callString(ctx, caller, contract, "name")

	return txwatcher.Token{
		Address:  contract,
		Symbol:   symbol,
		Name:     name,
		Decimals: decimals,
		Logo:     txwatcher.DefaultTokenLogo,
	}, nil
}

func call(ctx context.Context, caller Caller, contract common.Address, method string) ([]byte, error) {
	data, err := erc20Metadata.Pack(method)
	if err != nil {
		return nil, err
	}

	out, err := caller.CallContract(ctx, contract, data)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty %s", ErrNotAToken, method)
	}
	return out, nil
}

// callString reads a string getter. Some early tokens return bytes32, which
// is accepted as a zero padded string.
func callString(ctx context.Context, caller Caller, contract common.Address, method string) (string, error) {
	out, err := call(ctx, caller, contract, method)
	if err != nil {
		return "", err
	}

	if values, err := erc20Metadata.Unpack(method, out); err == nil && len(values) == 1 {
		if value, ok := values[0].(string); ok && value != "" {
			return value, nil
		}
	}

	if len(out) == common.HashLength {
		if value := string(bytes.TrimRight(out, "\x00")); value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotAToken, method)
}

type config struct {
	callers     map[uint64]Caller
	preferLocal bool
}

type Option func(*config)

// New returns a token lookup seeded with lists, the configured tokens of
// every chain.
func New(lists map[uint64][]txwatcher.Token, opts ...Option) *service {
	cfg := config{
		callers: make(map[uint64]Caller),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	known := make(map[uint64]map[common.Address]txwatcher.Token, len(lists))
	local := make(map[uint64]map[common.Address]struct{}, len(lists))
	for chainID, tokens := range lists {
		known[chainID] = make(map[common.Address]txwatcher.Token, len(tokens))
		local[chainID] = make(map[common.Address]struct{}, len(tokens))
		for _, token := range tokens {
			known[chainID][token.Address] = token
			local[chainID][token.Address] = struct{}{}
		}
	}

	return &service{
		known:       known,
		local:       local,
		callers:     cfg.callers,
		preferLocal: cfg.preferLocal,
	}
}

// WithCaller enables on-chain metadata lookups for chainID.
func WithCaller(chainID uint64, caller Caller) Option {
	return func(c *config) {
		c.callers[chainID] = caller
	}
}

// WithPreferLocal limits every lookup to the configured lists.
func WithPreferLocal() Option {
	return func(c *config) {
		c.preferLocal = true
	}
}

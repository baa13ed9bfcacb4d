// Package network loads the networks file describing every chain the wallet
// can connect to.
package network

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gabapcia/txwatch/internal/pkg/validator"
	"github.com/gabapcia/txwatch/internal/txwatcher"
	"gopkg.in/yaml.v3"
)

// DefaultWatcherUpdate is the head polling interval of networks that do not set one.
const DefaultWatcherUpdate = 15 * time.Second

var (
	ErrDuplicateChain = errors.New("duplicate chain id")
	ErrUnknownNetwork = errors.New("unknown network")
)

// Token is an entry of a network's local token list.
type Token struct {
	Address  string `yaml:"address" validate:"required,checksum_addr"`
	Symbol   string `yaml:"symbol" validate:"required"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
	Logo     string `yaml:"logo"`
}

func (t Token) toTxwatcher() txwatcher.Token {
	return txwatcher.Token{
		Address:  common.HexToAddress(t.Address),
		Symbol:   t.Symbol,
		Name:     t.Name,
		Decimals: t.Decimals,
		Logo:     t.Logo,
	}
}

type Network struct {
	ChainID         uint64 `yaml:"chainId" validate:"required"`
	Name            string `yaml:"name" validate:"required"`
	RPCURL          string `yaml:"rpcUrl" validate:"required,url"`
	EtherscanAPIURL string `yaml:"etherscanApiUrl" validate:"omitempty,url"`

	// TransactionWatcherUpdate is how often the chain head is polled.
	TransactionWatcherUpdate time.Duration `yaml:"transactionWatcherUpdate"`

	// ExplorerRateLimit caps explorer requests per second. Zero means unlimited.
	ExplorerRateLimit float64 `yaml:"explorerRateLimit" validate:"gte=0"`

	Tokens []Token `yaml:"tokens" validate:"dive"`
}

// TokenList returns the local token list in the domain shape.
func (n Network) TokenList() []txwatcher.Token {
	tokens := make([]txwatcher.Token, 0, len(n.Tokens))
	for _, t := range n.Tokens {
		tokens = append(tokens, t.toTxwatcher())
	}
	return tokens
}

type File struct {
	Networks []Network `yaml:"networks" validate:"required,min=1,dive"`
}

// Get returns the network with chainID.
func (f File) Get(chainID uint64) (Network, error) {
	for _, n := range f.Networks {
		if n.ChainID == chainID {
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("%w: %d", ErrUnknownNetwork, chainID)
}

// ExplorerURLs maps every chain to its explorer API base URL, "" for chains
// without an explorer.
func (f File) ExplorerURLs() map[uint64]string {
	urls := make(map[uint64]string, len(f.Networks))
	for _, n := range f.Networks {
		urls[n.ChainID] = n.EtherscanAPIURL
	}
	return urls
}

// Parse decodes, defaults and validates a networks document.
func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("decode networks: %w", err)
	}

	seen := make(map[uint64]struct{}, len(f.Networks))
	for i := range f.Networks {
		n := &f.Networks[i]
		if n.TransactionWatcherUpdate <= 0 {
			n.TransactionWatcherUpdate = DefaultWatcherUpdate
		}

		if _, ok := seen[n.ChainID]; ok {
			return File{}, fmt.Errorf("%w: %d", ErrDuplicateChain, n.ChainID)
		}
		seen[n.ChainID] = struct{}{}
	}

	if err := validator.Validate(f); err != nil {
		return File{}, err
	}
	return f, nil
}

// Load reads and parses the networks file at path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return Parse(data)
}

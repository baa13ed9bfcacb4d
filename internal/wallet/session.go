// Package wallet holds the wallet session: the chain it is connected to and
// the account the user selected.
package wallet

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gabapcia/txwatch/internal/txwatcher"
)

var ErrUnknownChain = errors.New("chain not configured")

// Listeners are notified after the session changed. Nil fields are skipped.
type Listeners struct {
	OnNetworkChanged         func(chainID uint64)
	OnSelectedAddressChanged func(address common.Address)
}

type Session struct {
	mu       sync.RWMutex
	chainID  uint64
	account  common.Address
	selected bool

	explorers map[uint64]string
	listeners []Listeners
}

var (
	_ txwatcher.NetworkSource = (*Session)(nil)
	_ txwatcher.AccountSource = (*Session)(nil)
)

// NewSession returns a session connected to chainID. explorers maps every
// configured chain to its explorer API base, "" for chains without one.
func NewSession(chainID uint64, explorers map[uint64]string) (*Session, error) {
	if _, ok := explorers[chainID]; !ok {
		return nil, ErrUnknownChain
	}

	return &Session{
		chainID:   chainID,
		explorers: explorers,
	}, nil
}

// Subscribe registers l for every later change.
func (s *Session) Subscribe(l Listeners) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, l)
}

func (s *Session) CurrentChainID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.chainID
}

func (s *Session) ExplorerURL(chainID uint64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.explorers[chainID]
}

func (s *Session) SelectedAddress() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.account, s.selected
}

// SwitchNetwork connects the session to chainID. Listeners run only when the
// chain actually changed.
func (s *Session) SwitchNetwork(chainID uint64) error {
	s.mu.Lock()
	if _, ok := s.explorers[chainID]; !ok {
		s.mu.Unlock()
		return ErrUnknownChain
	}

	changed := s.chainID != chainID
	s.chainID = chainID
	listeners := s.listeners
	s.mu.Unlock()

	if changed {
		for _, l := range listeners {
			if l.OnNetworkChanged != nil {
				l.OnNetworkChanged(chainID)
			}
		}
	}
	return nil
}

// SelectAddress makes address the selected account.
func (s *Session) SelectAddress(address common.Address) {
	s.mu.Lock()
	changed := !s.selected || s.account != address
	s.account = address
	s.selected = true
	listeners := s.listeners
	s.mu.Unlock()

	if changed {
		for _, l := range listeners {
			if l.OnSelectedAddressChanged != nil {
				l.OnSelectedAddressChanged(address)
			}
		}
	}
}

// ClearAddress leaves the session without a selected account.
func (s *Session) ClearAddress() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.account = common.Address{}
	s.selected = false
}

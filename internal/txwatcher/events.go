package txwatcher

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names a notification emitted by a fetch cycle.
type EventKind string

const (
	// EventNewKnownERC20Transactions lists token contracts seen for the first time.
	EventNewKnownERC20Transactions EventKind = "NEW_KNOWN_ERC20_TRANSACTIONS"

	// EventNewERC20Transactions asks the token detector to run on its own
	// because explorer history could not be fetched.
	EventNewERC20Transactions EventKind = "NEW_ERC20_TRANSACTIONS"

	// EventIncomingTransaction announces new value sent to the account.
	EventIncomingTransaction EventKind = "INCOMING_TRANSACTION"

	// EventFullDiscoveryRequired reports that the chain scan left a gap behind
	// the stored cursor that only a full explorer query can close.
	EventFullDiscoveryRequired EventKind = "FULL_DISCOVERY_REQUIRED"
)

// Event is a single notification.
type Event struct {
	Kind    EventKind       `json:"kind"`
	ChainID uint64          `json:"chainId"`
	Address common.Address  `json:"address"`
	Type    TransactionType `json:"type,omitempty"`

	// TokenAddresses is set for EventNewKnownERC20Transactions.
	TokenAddresses []common.Address `json:"tokenAddresses,omitempty"`
}

// EventSink receives the events of every fetch cycle.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, event Event) error

func (f EventSinkFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type nopEventSink struct{}

func (nopEventSink) Publish(context.Context, Event) error { return nil }

type fanOut []EventSink

func (f fanOut) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FanOut publishes every event to each of sinks in order.
func FanOut(sinks ...EventSink) EventSink {
	return fanOut(sinks)
}

// Package ethereum implements the chain access ports of the watcher for
// Ethereum-compatible nodes on top of a JSON-RPC client.
package ethereum

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gabapcia/txwatch/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/txwatch/internal/txwatcher"
)

// ErrNotFound is returned when the node has no object for the requested identifier.
var ErrNotFound = errors.New("not found")

// client implements txwatcher.Provider for one chain.
type client struct {
	conn jsonrpc.Client // Underlying JSON-RPC client used to interact with the node
}

// Ensure client implements the txwatcher.Provider interface at compile time.
var _ txwatcher.Provider = (*client)(nil)

// NewClient creates a chain client using the provided JSON-RPC connection.
func NewClient(conn jsonrpc.Client) *client {
	return &client{
		conn: conn,
	}
}

// classify maps node refusals onto txwatcher.ErrNotAuthorized so the log
// fetcher can stop splitting ranges that will never be served.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var statusErr *jsonrpc.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusForbidden {
		return errors.Join(txwatcher.ErrNotAuthorized, err)
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) && strings.Contains(strings.ToLower(rpcErr.Message), "not authorized") {
		return errors.Join(txwatcher.ErrNotAuthorized, err)
	}

	return err
}

// Package jsonrpc provides a generic JSON-RPC 2.0 client implementation over HTTP.
// It supports automatic retries and configurable timeouts through the retryable HTTP
// transport, and is suitable for interacting with blockchain nodes.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// ErrProviderReturnedError indicates that the remote JSON-RPC server returned an error response.
var ErrProviderReturnedError = errors.New("provider error")

// RPCError is the error object of a JSON-RPC 2.0 response. It matches
// ErrProviderReturnedError with errors.Is.
type RPCError struct {
	Code    int    `json:"code"`    // Error code defined by the JSON-RPC spec or custom server logic
	Message string `json:"message"` // Human-readable error message
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: [%d] - %s", ErrProviderReturnedError, e.Code, e.Message)
}

func (e *RPCError) Is(target error) bool {
	return target == ErrProviderReturnedError
}

// StatusError is returned when the endpoint answers with a non-2xx HTTP status
// and a body that is not a JSON-RPC envelope.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d: %s", e.StatusCode, e.Body)
}

// response represents a standard JSON-RPC 2.0 response.
type response struct {
	JsonRPC string          `json:"jsonrpc"` // JSON-RPC protocol version (usually "2.0")
	Error   *RPCError       `json:"error"`
	Result  json.RawMessage `json:"result"` // Raw result payload returned by the server
}

// Err returns the JSON-RPC error object, if any.
func (r response) Err() error {
	if r.Error == nil {
		return nil
	}

	return r.Error
}

// Client defines the interface for a generic JSON-RPC client.
type Client interface {
	// Fetch sends a JSON-RPC request with the given method name and parameters.
	// It returns the raw JSON result or an error if the request or response fails.
	Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// client sends JSON-RPC requests to the configured provider endpoint.
type client struct {
	providerEndpoint string                // The URL of the remote JSON-RPC server
	httpClient       *retryablehttp.Client // The HTTP client used to perform requests
}

// Compile-time assertion that client implements the Client interface.
var _ Client = (*client)(nil)

// maxErrorBodySize bounds how much of an unexpected body is kept in a StatusError.
const maxErrorBodySize = 512

// Fetch sends a JSON-RPC request to the remote server with the given method and parameters.
// The `id` field in the request is generated as a UUID string.
//
// A non-2xx response whose body is a JSON-RPC envelope is reported through its error
// object; any other non-2xx response becomes a *StatusError.
func (c *client) Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      uuid.NewString(),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.providerEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	var data response
	if err := json.Unmarshal(raw, &data); err != nil {
		if res.StatusCode >= http.StatusMultipleChoices {
			return nil, &StatusError{StatusCode: res.StatusCode, Body: truncate(raw, maxErrorBodySize)}
		}
		return nil, err
	}

	if data.Error == nil && res.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{StatusCode: res.StatusCode, Body: truncate(raw, maxErrorBodySize)}
	}

	if err := data.Err(); err != nil {
		return nil, err
	}

	return data.Result, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

// NewClient constructs and returns a Client that will send JSON-RPC requests
// to the specified provider endpoint using the given HTTP client.
func NewClient(httpClient *retryablehttp.Client, providerEndpoint string) *client {
	return &client{
		providerEndpoint: providerEndpoint,
		httpClient:       httpClient,
	}
}

// Package etherscan implements txwatcher.Explorer against Etherscan-compatible
// account APIs.
package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabapcia/txwatch/internal/pkg/logger"
	"github.com/gabapcia/txwatch/internal/pkg/resilience/retry"
	"github.com/gabapcia/txwatch/internal/txwatcher"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

const (
	defaultAttempts   = 20
	defaultRetryDelay = 2 * time.Second

	// startBlockLookback re-reads a few blocks before the cursor so entries
	// indexed late by the explorer are not missed.
	startBlockLookback = 100

	statusOK      = "1"
	messageNotOK  = "NOTOK"
	maxBodyLogged = 256
)

var errNotOK = errors.New("explorer answered NOTOK")

// Response is the envelope of every account API answer. Result is a list on
// success and a plain message string on NOTOK.
type Response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type client struct {
	httpClient *retryablehttp.Client
	retry      retry.Retry
	limiter    *rate.Limiter
	apiKey     string
}

var _ txwatcher.Explorer = (*client)(nil)

// FetchTransactions implements txwatcher.Explorer.
//
// NOTOK answers are retried with a fixed delay. When every attempt answered
// NOTOK the error wraps txwatcher.ErrExplorerUnavailable. Any answer that is
// not a successful non-empty list yields no records.
func (c *client) FetchTransactions(ctx context.Context, req txwatcher.ExplorerRequest) ([]txwatcher.ExplorerRecord, error) {
	endpoint, err := c.endpoint(req)
	if err != nil {
		return nil, err
	}

	var response Response
	err = c.retry.Execute(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		got, err := c.get(ctx, endpoint)
		if err != nil {
			return err
		}
		response = got

		if response.Message == messageNotOK || strings.HasPrefix(response.Message, messageNotOK+" ") {
			logger.Debug(ctx, "explorer answered NOTOK",
				"explorer.action", req.Type.ExplorerAction(),
				"account.address", req.Address,
				"explorer.result", truncate(response.Result, maxBodyLogged),
			)
			return errNotOK
		}
		return nil
	})
	if errors.Is(err, errNotOK) {
		return nil, fmt.Errorf("%s: %w", req.Type.ExplorerAction(), txwatcher.ErrExplorerUnavailable)
	}
	if err != nil {
		return nil, err
	}

	if response.Status != statusOK {
		return nil, nil
	}

	var records []txwatcher.ExplorerRecord
	if err := json.Unmarshal(response.Result, &records); err != nil {
		logger.Warn(ctx, "unexpected explorer result",
			"explorer.action", req.Type.ExplorerAction(),
			"error", err,
		)
		return nil, nil
	}
	return records, nil
}

func (c *client) endpoint(req txwatcher.ExplorerRequest) (string, error) {
	action := req.Type.ExplorerAction()
	if action == "" {
		return "", fmt.Errorf("unsupported transaction type %q", req.Type)
	}

	u, err := url.Parse(req.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse explorer url: %w", err)
	}

	startBlock := uint64(0)
	if req.FromBlock > startBlockLookback {
		startBlock = req.FromBlock - startBlockLookback
	}

	q := u.Query()
	q.Set("module", "account")
	q.Set("action", action)
	q.Set("address", strings.ToLower(req.Address.Hex()))
	// Etherscan only reads the lowercase names.
	q.Set("startblock", strconv.FormatUint(startBlock, 10))
	q.Set("endblock", strconv.FormatUint(req.ToBlock, 10))
	q.Set("page", "1")
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (c *client) get(ctx context.Context, endpoint string) (Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{}, err
	}

	if res.StatusCode >= http.StatusMultipleChoices {
		return Response{}, fmt.Errorf("explorer http status %d: %s", res.StatusCode, truncate(body, maxBodyLogged))
	}

	var response Response
	if err := json.Unmarshal(body, &response); err != nil {
		return Response{}, fmt.Errorf("decode explorer response: %w", err)
	}
	return response, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

type config struct {
	apiKey     string
	attempts   uint
	retryDelay time.Duration
	rateLimit  rate.Limit
	burst      int
}

type Option func(*config)

// NewClient returns an Explorer issuing requests through httpClient.
//
// Defaults: 20 attempts spaced by 2 seconds and no rate limit.
func NewClient(httpClient *retryablehttp.Client, opts ...Option) *client {
	cfg := config{
		attempts:   defaultAttempts,
		retryDelay: defaultRetryDelay,
		rateLimit:  rate.Inf,
		burst:      1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &client{
		httpClient: httpClient,
		apiKey:     cfg.apiKey,
		limiter:    rate.NewLimiter(cfg.rateLimit, cfg.burst),
		retry: retry.New(
			retry.WithAttempts(cfg.attempts),
			retry.WithDelay(cfg.retryDelay),
			retry.WithFixedDelay(),
			retry.WithRetryIf(func(err error) bool { return errors.Is(err, errNotOK) }),
		),
	}
}

// WithAPIKey appends an apikey parameter to every request.
func WithAPIKey(key string) Option {
	return func(c *config) {
		c.apiKey = key
	}
}

// WithAttempts sets how many times a NOTOK answer is tried in total.
func WithAttempts(n uint) Option {
	return func(c *config) {
		c.attempts = n
	}
}

// WithRetryDelay sets the pause between two NOTOK attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *config) {
		c.retryDelay = d
	}
}

// WithRateLimit caps the request rate to perSecond with the given burst.
// A non-positive perSecond disables the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *config) {
		if perSecond <= 0 {
			c.rateLimit = rate.Inf
			return
		}
		c.rateLimit = rate.Limit(perSecond)
		c.burst = max(burst, 1)
	}
}

package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Run("uses default configuration when no options are provided", func(t *testing.T) {
		client := NewClient()

		require.NotNil(t, client)
		assert.Nil(t, client.Logger)
		assert.Equal(t, 30*time.Second, client.HTTPClient.Timeout)
		assert.Equal(t, 1*time.Second, client.RetryWaitMin)
		assert.Equal(t, 5*time.Second, client.RetryWaitMax)
		assert.Equal(t, 2, client.RetryMax)
	})

	t.Run("applies all custom options correctly", func(t *testing.T) {
		client := NewClient(
			WithTimeout(9*time.Second),
			WithRetryWaitMin(111*time.Millisecond),
			WithRetryWaitMax(3*time.Second),
			WithRetryMax(7),
		)

		assert.Equal(t, 9*time.Second, client.HTTPClient.Timeout)
		assert.Equal(t, 111*time.Millisecond, client.RetryWaitMin)
		assert.Equal(t, 3*time.Second, client.RetryWaitMax)
		assert.Equal(t, 7, client.RetryMax)
	})

	t.Run("custom check retry disables retries on 503", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewClient(
			WithRetryWaitMin(time.Millisecond),
			WithRetryWaitMax(time.Millisecond),
			WithCheckRetry(func(ctx context.Context, resp *http.Response, err error) (bool, error) {
				return false, err
			}),
		)

		res, err := client.Get(server.URL)
		require.NoError(t, err)
		defer res.Body.Close()

		assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("default policy retries 5xx and hands back the last response", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		client := NewClient(
			WithRetryMax(2),
			WithRetryWaitMin(time.Millisecond),
			WithRetryWaitMax(time.Millisecond),
		)

		req, err := retryablehttp.NewRequest(http.MethodGet, server.URL, nil)
		require.NoError(t, err)

		res, err := client.Do(req)
		require.NoError(t, err)
		defer res.Body.Close()

		assert.Equal(t, http.StatusBadGateway, res.StatusCode)
		assert.Equal(t, int32(3), calls.Load())
	})
}

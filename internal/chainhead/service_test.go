package chainhead

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetcherFunc func(ctx context.Context) (uint64, error)

func (f fetcherFunc) BlockNumber(ctx context.Context) (uint64, error) {
	return f(ctx)
}

// sequence answers heights in order and repeats the last one.
func sequence(heights ...uint64) fetcherFunc {
	var i atomic.Int32
	return func(context.Context) (uint64, error) {
		n := int(i.Add(1)) - 1
		return heights[min(n, len(heights)-1)], nil
	}
}

type recorder struct {
	mu    sync.Mutex
	calls [][2]uint64
}

func (r *recorder) listen(chainID, height uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, [2]uint64{chainID, height})
}

func (r *recorder) snapshot() [][2]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]uint64(nil), r.calls...)
}

func TestService_Refresh(t *testing.T) {
	t.Run("should notify only when the height advances", func(t *testing.T) {
		rec := &recorder{}
		s := New([]Chain{{ID: 1, Fetcher: sequence(10, 10, 9, 12)}}, WithListener(rec.listen))

		for _, want := range []uint64{10, 10, 10, 12} {
			height, err := s.Refresh(t.Context(), 1)
			require.NoError(t, err)
			assert.Equal(t, want, height)
		}

		assert.Equal(t, [][2]uint64{{1, 10}, {1, 12}}, rec.snapshot())
		assert.Equal(t, uint64(12), s.BlockNumber(1))
	})

	t.Run("should reject unknown chains", func(t *testing.T) {
		s := New(nil)

		_, err := s.Refresh(t.Context(), 5)
		assert.ErrorIs(t, err, ErrUnknownChain)

		_, err = s.Height(5)
		assert.ErrorIs(t, err, ErrUnknownChain)
		assert.Zero(t, s.BlockNumber(5))
	})

	t.Run("should keep the last height on failure", func(t *testing.T) {
		fail := false
		s := New([]Chain{{ID: 1, Fetcher: fetcherFunc(func(context.Context) (uint64, error) {
			if fail {
				return 0, errors.New("boom")
			}
			return 7, nil
		})}})

		_, err := s.Refresh(t.Context(), 1)
		require.NoError(t, err)

		fail = true
		_, err = s.Refresh(t.Context(), 1)
		assert.Error(t, err)
		assert.Equal(t, uint64(7), s.BlockNumber(1))
	})
}

func TestService_Lifecycle(t *testing.T) {
	t.Run("should poll every chain in the background", func(t *testing.T) {
		rec := &recorder{}
		s := New([]Chain{
			{ID: 1, Fetcher: sequence(100, 101, 102)},
			{ID: 2, Fetcher: sequence(5), Interval: time.Hour},
		}, WithListener(rec.listen), WithPollInterval(time.Millisecond))

		require.NoError(t, s.Start(t.Context()))
		defer s.Close()

		assert.Eventually(t, func() bool {
			return s.BlockNumber(1) == 102 && s.BlockNumber(2) == 5
		}, time.Second, time.Millisecond)
	})

	t.Run("should not start twice", func(t *testing.T) {
		s := New(nil)

		require.NoError(t, s.Start(t.Context()))
		defer s.Close()

		assert.ErrorIs(t, s.Start(t.Context()), ErrServiceAlreadyStarted)
	})

	t.Run("should stop polling on close", func(t *testing.T) {
		var calls atomic.Int32
		s := New([]Chain{{ID: 1, Fetcher: fetcherFunc(func(context.Context) (uint64, error) {
			return uint64(calls.Add(1)), nil
		})}}, WithPollInterval(time.Millisecond))

		require.NoError(t, s.Start(t.Context()))
		assert.Eventually(t, func() bool { return calls.Load() > 2 }, time.Second, time.Millisecond)
		s.Close()

		stopped := calls.Load()
		time.Sleep(10 * time.Millisecond)
		assert.Equal(t, stopped, calls.Load())
	})
}

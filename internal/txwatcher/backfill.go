package txwatcher

import (
	"context"

	"github.com/gabapcia/txwatch/internal/pkg/logger"
	"github.com/gabapcia/txwatch/internal/pkg/x/chflow"
)

// runBackfill resolves missing block timestamps on the current chain until
// ctx is canceled, idling whenever a pass stamps nothing.
func (s *service) runBackfill(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if s.backfillOnce(ctx) == 0 {
			if !chflow.Sleep(ctx, s.backfillIdle) {
				return
			}
		}
	}
}

// backfillOnce fetches every block of the current chain that still has
// timestamp-less records, newest first, and returns how many records it stamped.
func (s *service) backfillOnce(ctx context.Context) int {
	if !s.store.HasTransactions() {
		return 0
	}

	chainID := s.deps.Network.CurrentChainID()
	blocks := s.store.MissingTimestampBlocks(chainID)
	if len(blocks) == 0 {
		return 0
	}

	provider, ok := s.deps.Providers[chainID]
	if !ok || provider == nil {
		logger.Warn(ctx, "no provider to backfill timestamps", "chain.id", chainID)
		return 0
	}

	var stamped int
	for _, number := range blocks {
		if ctx.Err() != nil {
			break
		}

		var block Block
		err := s.blockRetry.Execute(ctx, func() error {
			var err error
			block, err = provider.GetBlock(ctx, number)
			return err
		})
		if err != nil {
			logger.Error(ctx, "failed to fetch block for timestamp",
				"chain.id", chainID,
				"block.number", number,
				"error", err,
			)
			continue
		}
		if block.Timestamp == 0 {
			logger.Warn(ctx, "block has no timestamp",
				"chain.id", chainID,
				"block.number", number,
			)
			continue
		}

		updated, err := s.store.BackfillTimestamps(ctx, chainID, number, int64(block.Timestamp)*1000)
		if err != nil {
			logger.Error(ctx, "failed to store block timestamp",
				"chain.id", chainID,
				"block.number", number,
				"error", err,
			)
		}
		s.metrics.timestampsBackfilled.Add(ctx, int64(updated))
		stamped += updated
	}

	return stamped
}

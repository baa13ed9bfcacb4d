package txwatcher

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gabapcia/txwatch/internal/chainparams"
	"github.com/gabapcia/txwatch/internal/pkg/logger"
	"github.com/gabapcia/txwatch/internal/pkg/x/chflow"
)

var (
	transferEventTopic       = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	transferSingleEventTopic = crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)"))
)

// blockRange is an inclusive span of blocks.
type blockRange struct {
	from, to uint64
}

func (r blockRange) split() (blockRange, blockRange) {
	mid := r.from + (r.to-r.from)/2
	return blockRange{r.from, mid}, blockRange{mid + 1, r.to}
}

// logScan is the outcome of fetching both directions of one transaction type.
type logScan struct {
	Incoming []types.Log
	Outgoing []types.Log

	// FullDiscoveryRequired is set when the scan window started after the
	// stored cursor, leaving blocks in between unscanned.
	FullDiscoveryRequired bool
}

type logFetcher struct {
	heights BlockHeightSource
	backoff time.Duration
}

// scanStart returns the first block to scan and whether that skips stored progress.
func scanStart(chainID, currentBlock, lastStoredBlock uint64) (uint64, bool) {
	window := chainparams.ScanWindow(chainID)

	windowStart := uint64(0)
	if currentBlock > window {
		windowStart = currentBlock - window
	}
	windowStart = max(windowStart, chainparams.InitialBlock(chainID))

	if windowStart > lastStoredBlock {
		return windowStart, true
	}
	return lastStoredBlock, false
}

// chunks cuts [from, to] into consecutive spans no wider than size.
func chunks(from, to, size uint64) []blockRange {
	if size == 0 {
		size = chainparams.DefaultMaxBlockBatchSize
	}

	var out []blockRange
	for start := from; start <= to; start += size {
		end := min(start+size-1, to)
		out = append(out, blockRange{start, end})
		if end == to {
			break
		}
	}
	return out
}

func addressTopic(address common.Address) common.Hash {
	return common.BytesToHash(address.Bytes())
}

// topics returns the incoming and outgoing topic filters of txType.
func topics(txType TransactionType, account common.Address) (incoming, outgoing [][]common.Hash) {
	accountTopic := []common.Hash{addressTopic(account)}

	if txType == TransactionTypeERC1155 {
		signature := []common.Hash{transferSingleEventTopic}
		return [][]common.Hash{signature, nil, nil, accountTopic}, [][]common.Hash{signature, nil, accountTopic}
	}

	signature := []common.Hash{transferEventTopic}
	return [][]common.Hash{signature, nil, accountTopic}, [][]common.Hash{signature, accountTopic}
}

// fetch scans every chunk between the computed start and currentBlock in
// both directions. A chunk that cannot be fetched is logged and contributes
// nothing.
func (f *logFetcher) fetch(ctx context.Context, provider Provider, chainID uint64, account common.Address, txType TransactionType, currentBlock, lastStoredBlock uint64) logScan {
	start, fullDiscovery := scanStart(chainID, currentBlock, lastStoredBlock)
	scan := logScan{FullDiscoveryRequired: fullDiscovery}

	incomingTopics, outgoingTopics := topics(txType, account)
	for _, chunk := range chunks(start, currentBlock, chainparams.MaxBlockBatchSize(chainID)) {
		if ctx.Err() != nil {
			return scan
		}

		incoming, err := f.getLogs(ctx, provider, chainID, chunk, incomingTopics)
		if err != nil {
			logger.Warn(ctx, "incoming log chunk failed",
				"chain.id", chainID,
				"account.address", account,
				"transaction.type", txType,
				"block.from", chunk.from,
				"block.to", chunk.to,
				"error", err,
			)
			incoming = nil
		}
		scan.Incoming = append(scan.Incoming, incoming...)

		outgoing, err := f.getLogs(ctx, provider, chainID, chunk, outgoingTopics)
		if err != nil {
			logger.Warn(ctx, "outgoing log chunk failed",
				"chain.id", chainID,
				"account.address", account,
				"transaction.type", txType,
				"block.from", chunk.from,
				"block.to", chunk.to,
				"error", err,
			)
			outgoing = nil
		}
		scan.Outgoing = append(scan.Outgoing, outgoing...)
	}

	return scan
}

// getLogs fetches the logs of r, halving any span the provider fails on until
// a span of two blocks still fails. Results keep ascending block order.
func (f *logFetcher) getLogs(ctx context.Context, provider Provider, chainID uint64, r blockRange, topicFilter [][]common.Hash) ([]types.Log, error) {
	if head := f.heights.BlockNumber(chainID); head > 0 {
		r.to = min(r.to, head)
	}
	if r.from > r.to {
		return nil, nil
	}

	var (
		logs    []types.Log
		pending = []blockRange{r}
	)
	for len(pending) > 0 {
		current := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		found, err := provider.GetLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(current.from),
			ToBlock:   new(big.Int).SetUint64(current.to),
			Topics:    topicFilter,
		})
		if err == nil {
			logs = append(logs, found...)
			continue
		}

		if errors.Is(err, ErrNotAuthorized) {
			logger.Debug(ctx, "log query not authorized",
				"chain.id", chainID,
				"block.from", current.from,
				"block.to", current.to,
			)
			continue
		}

		if current.to-current.from <= 1 {
			return logs, err
		}

		if !chflow.Sleep(ctx, f.backoff) {
			return logs, ctx.Err()
		}

		left, right := current.split()
		pending = append(pending, right, left)
	}

	return logs, nil
}

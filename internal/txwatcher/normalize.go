package txwatcher

import (
	"context"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gabapcia/txwatch/internal/pkg/logger"
)

// DefaultTokenLogo is used when no token list knows the contract.
const DefaultTokenLogo = "images/token-default.svg"

// defaultTokenDecimals is assigned to log-derived transfers of unknown tokens.
const defaultTokenDecimals = 1

type normalizer struct {
	tokens TokenLookup

	// Incoming logs at most enrichRecentBlocks behind the head are enriched
	// with the full transaction when the batch is smaller than enrichMaxBatch.
	enrichRecentBlocks uint64
	enrichMaxBatch     int
}

func (n *normalizer) findToken(ctx context.Context, query TokenQuery) (Token, bool) {
	if n.tokens == nil {
		return Token{}, false
	}

	found, err := n.tokens.Search(ctx, query)
	if err != nil {
		logger.Debug(ctx, "token lookup failed",
			"chain.id", query.ChainID,
			"token.address", query.Contract,
			"error", err,
		)
		return Token{}, false
	}

	for _, token := range found {
		if token.Address == query.Contract {
			return token, true
		}
	}
	return Token{}, false
}

// fromLogs normalizes logs into records keyed by transaction hash. Incoming
// batches may be enriched with the full transaction body.
func (n *normalizer) fromLogs(ctx context.Context, provider Provider, chainID uint64, account common.Address, logs []types.Log, currentBlock uint64, incoming bool) map[common.Hash]TransactionRecord {
	enrich := incoming && provider != nil && len(logs) < n.enrichMaxBatch

	records := make(map[common.Hash]TransactionRecord, len(logs))
	for _, log := range logs {
		record := n.fromLog(ctx, chainID, account, log)
		if enrich && log.BlockNumber <= currentBlock && currentBlock-log.BlockNumber <= n.enrichRecentBlocks {
			n.enrich(ctx, provider, &record)
		}
		records[record.Hash] = record
	}
	return records
}

func (n *normalizer) fromLog(ctx context.Context, chainID uint64, account common.Address, log types.Log) TransactionRecord {
	record := TransactionRecord{
		Hash:    log.TxHash,
		Status:  StatusConfirmed,
		ChainID: chainID,
		Params: Params{
			ChainID: chainID,
		},
		Receipt: Receipt{
			BlockNumber:      log.BlockNumber,
			BlockHash:        log.BlockHash,
			TransactionHash:  log.TxHash,
			TransactionIndex: log.TxIndex,
			LogIndex:         log.Index,
			ContractAddress:  log.Address,
		},
		Category: CategoryTokenTransfer,
	}
	if log.Removed {
		record.Status = StatusFailed
	}

	token, ok := n.findToken(ctx, TokenQuery{
		ChainID:  chainID,
		Contract: log.Address,
		Owner:    account,
		Exact:    true,
	})
	if !ok {
		token = Token{Address: log.Address, Decimals: defaultTokenDecimals, Logo: DefaultTokenLogo}
	}

	transfer := &TransferInformation{
		Contract: log.Address,
		Symbol:   token.Symbol,
		Decimals: token.Decimals,
		Logo:     token.Logo,
	}
	record.Transfer = transfer

	decoded, err := decodeTransferLog(log)
	if err != nil {
		logger.Debug(ctx, "could not decode transfer log",
			"chain.id", chainID,
			"transaction.hash", log.TxHash,
			"error", err,
		)
		return record
	}

	record.Params.From = decoded.From
	record.Params.To = decoded.To
	record.Params.Value = decoded.Amount
	record.Method = decoded.Method
	transfer.To = decoded.To
	transfer.Amount = decoded.Amount
	transfer.TokenID = decoded.TokenID

	if record.IsIncomingFor(account) {
		record.Category = CategoryTokenIncomingTransfer
	}
	return record
}

func (n *normalizer) enrich(ctx context.Context, provider Provider, record *TransactionRecord) {
	details, err := provider.GetTransaction(ctx, record.Hash)
	if err != nil {
		logger.Warn(ctx, "could not enrich transaction",
			"chain.id", record.ChainID,
			"transaction.hash", record.Hash,
			"error", err,
		)
		return
	}

	record.Params.Nonce = details.Nonce
	record.Params.Gas = details.Gas
	record.Params.GasPrice = details.GasPrice
	record.Params.MaxFeePerGas = details.MaxFeePerGas
	record.Params.MaxPriority = details.MaxPriorityFeePerGas
	record.Params.Type = details.Type
	record.Params.Data = details.Input
}

// fromExplorer normalizes one explorer record of txType.
func (n *normalizer) fromExplorer(ctx context.Context, chainID uint64, account common.Address, txType TransactionType, raw ExplorerRecord) TransactionRecord {
	timestampMs := parseInt(raw.TimeStamp) * 1000
	from := common.HexToAddress(raw.From)
	to := common.HexToAddress(raw.To)
	incoming := to == account && from != account

	record := TransactionRecord{
		Hash:             common.HexToHash(raw.Hash),
		Status:           StatusConfirmed,
		ChainID:          chainID,
		Time:             timestampMs,
		SubmittedTime:    timestampMs,
		ConfirmationTime: timestampMs,
		Params: Params{
			From:     from,
			To:       to,
			Nonce:    parseUint(raw.Nonce),
			Gas:      parseUint(raw.Gas),
			GasPrice: parseBig(raw.GasPrice),
			Value:    parseBig(raw.Value),
			Data:     parseHex(raw.Input),
			ChainID:  chainID,
			GasUsed:  parseUint(raw.GasUsed),
		},
		Receipt: Receipt{
			BlockNumber:      parseUint(raw.BlockNumber),
			BlockHash:        common.HexToHash(raw.BlockHash),
			TransactionHash:  common.HexToHash(raw.Hash),
			TransactionIndex: uint(parseUint(raw.TransactionIndex)),
			ContractAddress:  common.HexToAddress(raw.ContractAddress),
		},
	}
	if raw.IsError != "" && raw.IsError != "0" {
		record.Status = StatusFailed
	}

	switch txType {
	case TransactionTypeNative:
		record.Category = CategoryNativeSend
		if incoming {
			record.Category = CategoryIncoming
		}
	default:
		record.Category = CategoryTokenTransfer
		if incoming {
			record.Category = CategoryTokenIncomingTransfer
		}
		record.Transfer = n.explorerTransfer(ctx, chainID, account, txType, raw, to)
	}

	record.Method = decodeMethod(raw.FunctionName, record.Params.Data)
	return record
}

func (n *normalizer) explorerTransfer(ctx context.Context, chainID uint64, account common.Address, txType TransactionType, raw ExplorerRecord, to common.Address) *TransferInformation {
	contract := common.HexToAddress(raw.ContractAddress)
	transfer := &TransferInformation{
		To:       to,
		Contract: contract,
		Symbol:   raw.TokenSymbol,
		Logo:     DefaultTokenLogo,
	}

	local, known := n.findToken(ctx, TokenQuery{
		ChainID:   chainID,
		Contract:  contract,
		Owner:     account,
		Exact:     true,
		LocalOnly: true,
	})
	if known && local.Logo != "" {
		transfer.Logo = local.Logo
	}

	switch txType {
	case TransactionTypeERC20:
		transfer.Amount = parseBig(raw.Value)
		decimals, err := strconv.ParseUint(raw.TokenDecimal, 10, 8)
		if err == nil {
			transfer.Decimals = uint8(decimals)
		}
		if (err != nil || decimals == 0 || raw.TokenSymbol == "") && known {
			transfer.Symbol = local.Symbol
			transfer.Decimals = local.Decimals
		}
	case TransactionTypeERC721:
		transfer.TokenID = parseBig(raw.TokenID)
		transfer.Amount = big.NewInt(1)
	case TransactionTypeERC1155:
		transfer.TokenID = parseBig(raw.TokenID)
		transfer.Amount = parseBig(raw.TokenValue)
	}
	return transfer
}

func parseUint(s string) uint64 {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil
	}
	return v
}

func parseHex(s string) []byte {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil
	}
	return b
}

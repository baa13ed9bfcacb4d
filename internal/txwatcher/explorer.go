package txwatcher

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrExplorerUnavailable is returned when the explorer kept answering NOTOK
// after every allowed attempt.
var ErrExplorerUnavailable = errors.New("explorer unavailable")

// ExplorerRequest selects one page of account history.
type ExplorerRequest struct {
	BaseURL   string
	Address   common.Address
	Type      TransactionType
	FromBlock uint64
	ToBlock   uint64
}

// ExplorerRecord is a raw entry of an explorer account listing. Every field
// keeps the decimal or hex string form the explorer reports.
type ExplorerRecord struct {
	BlockNumber       string `json:"blockNumber"`
	TimeStamp         string `json:"timeStamp"`
	Hash              string `json:"hash"`
	Nonce             string `json:"nonce"`
	BlockHash         string `json:"blockHash"`
	TransactionIndex  string `json:"transactionIndex"`
	From              string `json:"from"`
	To                string `json:"to"`
	Value             string `json:"value"`
	Gas               string `json:"gas"`
	GasPrice          string `json:"gasPrice"`
	GasUsed           string `json:"gasUsed"`
	IsError           string `json:"isError"`
	TxReceiptStatus   string `json:"txreceipt_status"`
	Input             string `json:"input"`
	ContractAddress   string `json:"contractAddress"`
	MethodID          string `json:"methodId"`
	FunctionName      string `json:"functionName"`
	TokenName         string `json:"tokenName"`
	TokenSymbol       string `json:"tokenSymbol"`
	TokenDecimal      string `json:"tokenDecimal"`
	TokenID           string `json:"tokenID"`
	TokenValue        string `json:"tokenValue"`
	CumulativeGasUsed string `json:"cumulativeGasUsed"`
	Confirmations     string `json:"confirmations"`
}

// Explorer lists the history of an account from an indexing service.
type Explorer interface {
	// FetchTransactions returns the records matching req. An empty slice means
	// the explorer answered but had nothing usable. ErrExplorerUnavailable means
	// it never answered successfully.
	FetchTransactions(ctx context.Context, req ExplorerRequest) ([]ExplorerRecord, error)
}

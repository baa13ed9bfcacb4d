package txwatcher

import (
	"encoding/json"
	"maps"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TransactionType identifies one of the transfer families tracked per account.
type TransactionType string

const (
	TransactionTypeNative  TransactionType = "native"
	TransactionTypeERC20   TransactionType = "erc20"
	TransactionTypeERC721  TransactionType = "erc721"
	TransactionTypeERC1155 TransactionType = "erc1155"
)

// DefaultTransactionTypes are the families a cycle walks when no other set is configured.
var DefaultTransactionTypes = []TransactionType{TransactionTypeNative, TransactionTypeERC20}

// ExplorerAction returns the explorer account action used to list transfers of t.
func (t TransactionType) ExplorerAction() string {
	switch t {
	case TransactionTypeNative:
		return "txlist"
	case TransactionTypeERC20:
		return "tokentx"
	case TransactionTypeERC721:
		return "tokennfttx"
	case TransactionTypeERC1155:
		return "token1155tx"
	}
	return ""
}

// Valid reports whether t is one of the known families.
func (t TransactionType) Valid() bool {
	return t.ExplorerAction() != ""
}

// Status is the terminal state of an observed transaction.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Category classifies a record from the point of view of the watched account.
type Category string

const (
	CategoryNativeSend            Category = "native_send"
	CategoryIncoming              Category = "incoming"
	CategoryTokenTransfer         Category = "token_transfer"
	CategoryTokenIncomingTransfer Category = "token_incoming_transfer"
)

// Params mirrors the fields of the submitted transaction. From and To are the
// transfer parties; for token transfers they come from the event, not the call.
type Params struct {
	From         common.Address `json:"from"`
	To           common.Address `json:"to"`
	Nonce        uint64         `json:"nonce"`
	Gas          uint64         `json:"gas"`
	GasPrice     *big.Int       `json:"gasPrice,omitempty"`
	MaxFeePerGas *big.Int       `json:"maxFeePerGas,omitempty"`
	MaxPriority  *big.Int       `json:"maxPriorityFeePerGas,omitempty"`
	Value        *big.Int       `json:"value,omitempty"`
	Data         hexutil.Bytes  `json:"data,omitempty"`
	ChainID      uint64         `json:"chainId"`
	Type         uint8          `json:"type"`
	GasUsed      uint64         `json:"gasUsed,omitempty"`
}

// Receipt carries the inclusion data of a record.
type Receipt struct {
	BlockNumber      uint64         `json:"blockNumber"`
	BlockHash        common.Hash    `json:"blockHash"`
	TransactionHash  common.Hash    `json:"transactionHash"`
	TransactionIndex uint           `json:"transactionIndex"`
	LogIndex         uint           `json:"logIndex"`
	ContractAddress  common.Address `json:"contractAddress"`
}

// TransferInformation describes the asset moved by a token transfer.
type TransferInformation struct {
	To       common.Address `json:"to"`
	Contract common.Address `json:"contract"`
	Amount   *big.Int       `json:"amount,omitempty"`
	TokenID  *big.Int       `json:"tokenId,omitempty"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
	Logo     string         `json:"logo,omitempty"`
}

// MethodArgument is one decoded argument of a contract call or event.
type MethodArgument struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// MethodSignature is the decoded function or event behind a record.
type MethodSignature struct {
	Name string           `json:"name"`
	Args []MethodArgument `json:"args"`
}

// TransactionRecord is the normalized view of one observed transaction.
//
// Time, SubmittedTime and ConfirmationTime are unix milliseconds. A zero value
// means the block timestamp has not been resolved yet.
type TransactionRecord struct {
	Hash             common.Hash          `json:"hash"`
	Status           Status               `json:"status"`
	ChainID          uint64               `json:"chainId"`
	Time             int64                `json:"time"`
	SubmittedTime    int64                `json:"submittedTime"`
	ConfirmationTime int64                `json:"confirmationTime"`
	Params           Params               `json:"txParams"`
	Receipt          Receipt              `json:"txReceipt"`
	Category         Category             `json:"category"`
	Transfer         *TransferInformation `json:"transferInformation,omitempty"`
	Method           *MethodSignature     `json:"methodSignature,omitempty"`
}

// Recipient returns the party receiving the transferred value.
func (r TransactionRecord) Recipient() common.Address {
	if r.Transfer != nil {
		return r.Transfer.To
	}
	return r.Params.To
}

// IsIncomingFor reports whether r moves value to account from someone else.
func (r TransactionRecord) IsIncomingFor(account common.Address) bool {
	return r.Recipient() == account && r.Params.From != account
}

// TokenContract returns the token contract touched by r, if any.
func (r TransactionRecord) TokenContract() (common.Address, bool) {
	if r.Transfer != nil && r.Transfer.Contract != (common.Address{}) {
		return r.Transfer.Contract, true
	}
	if r.Receipt.ContractAddress != (common.Address{}) {
		return r.Receipt.ContractAddress, true
	}
	return common.Address{}, false
}

func (r TransactionRecord) hasTimestamp() bool {
	return r.Time != 0 && r.SubmittedTime != 0 && r.ConfirmationTime != 0
}

// TransactionSet is everything known for one (chain, account, type) key.
type TransactionSet struct {
	Transactions     map[common.Hash]TransactionRecord `json:"transactions"`
	LastBlockQueried uint64                            `json:"lastBlockQueried"`
}

func (s TransactionSet) clone() TransactionSet {
	out := TransactionSet{
		Transactions:     make(map[common.Hash]TransactionRecord, len(s.Transactions)),
		LastBlockQueried: s.LastBlockQueried,
	}
	maps.Copy(out.Transactions, s.Transactions)
	return out
}

// SetKey addresses one TransactionSet.
type SetKey struct {
	ChainID uint64
	Address common.Address
	Type    TransactionType
}

// State is the nested chain, account and type view of every stored set.
type State map[uint64]map[common.Address]map[TransactionType]TransactionSet

// MarshalJSON keys accounts by their checksummed address.
func (s State) MarshalJSON() ([]byte, error) {
	out := make(map[uint64]map[string]map[TransactionType]TransactionSet, len(s))
	for chainID, byAddress := range s {
		accounts := make(map[string]map[TransactionType]TransactionSet, len(byAddress))
		for address, byType := range byAddress {
			accounts[address.Hex()] = byType
		}
		out[chainID] = accounts
	}
	return json.Marshal(out)
}

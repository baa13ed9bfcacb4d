package txwatcher

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const transferEventsABI = `[
	{"anonymous":false,"name":"Transfer","type":"event","inputs":[
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":false,"name":"value","type":"uint256"}]},
	{"anonymous":false,"name":"TransferSingle","type":"event","inputs":[
		{"indexed":true,"name":"operator","type":"address"},
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":false,"name":"id","type":"uint256"},
		{"indexed":false,"name":"value","type":"uint256"}]}
]`

const nftTransferEventABI = `[
	{"anonymous":false,"name":"Transfer","type":"event","inputs":[
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":true,"name":"tokenId","type":"uint256"}]}
]`

var (
	erc20TransferEvent   = mustEvent(transferEventsABI, "Transfer")
	erc1155TransferEvent = mustEvent(transferEventsABI, "TransferSingle")
	erc721TransferEvent  = mustEvent(nftTransferEventABI, "Transfer")
)

var errUnknownLog = errors.New("log is not a known transfer event")

func mustEvent(definition, name string) abi.Event {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}
	return parsed.Events[name]
}

type decodedTransfer struct {
	From    common.Address
	To      common.Address
	Amount  *big.Int
	TokenID *big.Int
	Method  *MethodSignature
}

// decodeTransferLog decodes a Transfer or TransferSingle log.
func decodeTransferLog(log types.Log) (decodedTransfer, error) {
	if len(log.Topics) == 0 {
		return decodedTransfer{}, errUnknownLog
	}

	var event abi.Event
	switch {
	case log.Topics[0] == erc1155TransferEvent.ID:
		event = erc1155TransferEvent
	case log.Topics[0] == erc20TransferEvent.ID && len(log.Topics) == 4:
		event = erc721TransferEvent
	case log.Topics[0] == erc20TransferEvent.ID:
		event = erc20TransferEvent
	default:
		return decodedTransfer{}, errUnknownLog
	}

	values := make(map[string]any)
	if err := abi.ParseTopicsIntoMap(values, indexedArguments(event.Inputs), log.Topics[1:]); err != nil {
		return decodedTransfer{}, fmt.Errorf("parse %s topics: %w", event.Name, err)
	}
	if err := event.Inputs.UnpackIntoMap(values, log.Data); err != nil {
		return decodedTransfer{}, fmt.Errorf("unpack %s data: %w", event.Name, err)
	}

	out := decodedTransfer{
		Method: &MethodSignature{Name: event.Name},
	}
	out.From, _ = values["from"].(common.Address)
	out.To, _ = values["to"].(common.Address)

	switch event.ID {
	case erc1155TransferEvent.ID:
		out.TokenID, _ = values["id"].(*big.Int)
		out.Amount, _ = values["value"].(*big.Int)
	default:
		if tokenID, ok := values["tokenId"].(*big.Int); ok {
			out.TokenID = tokenID
			out.Amount = big.NewInt(1)
		} else {
			out.Amount, _ = values["value"].(*big.Int)
		}
	}

	for _, input := range event.Inputs {
		out.Method.Args = append(out.Method.Args, MethodArgument{
			Name:  input.Name,
			Type:  input.Type.String(),
			Value: formatArgument(values[input.Name]),
		})
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	var out abi.Arguments
	for _, arg := range args {
		if arg.Indexed {
			out = append(out, arg)
		}
	}
	return out
}

// decodeMethod builds a signature from an explorer function name such as
// "transfer(address _to, uint256 _value)". Argument values are decoded from
// input when its selector matches.
func decodeMethod(functionName string, input []byte) *MethodSignature {
	open := strings.IndexByte(functionName, '(')
	if open <= 0 || !strings.HasSuffix(functionName, ")") {
		return nil
	}

	method := &MethodSignature{Name: functionName[:open]}
	inner := strings.TrimSpace(functionName[open+1 : len(functionName)-1])
	if inner == "" {
		return method
	}
	if strings.ContainsAny(inner, "()") {
		// Tuple arguments are not split.
		return method
	}

	var (
		arguments abi.Arguments
		typeNames []string
		decodable = true
	)
	for _, part := range strings.Split(inner, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}

		arg := MethodArgument{Type: fields[0]}
		if len(fields) > 1 {
			arg.Name = fields[len(fields)-1]
		}
		method.Args = append(method.Args, arg)
		typeNames = append(typeNames, arg.Type)

		abiType, err := abi.NewType(arg.Type, "", nil)
		if err != nil {
			decodable = false
			continue
		}
		arguments = append(arguments, abi.Argument{Name: arg.Name, Type: abiType})
	}

	if !decodable || len(input) < 4 {
		return method
	}

	selector := crypto.Keccak256([]byte(method.Name + "(" + strings.Join(typeNames, ",") + ")"))[:4]
	if !bytes.Equal(selector, input[:4]) {
		return method
	}

	values, err := arguments.Unpack(input[4:])
	if err != nil || len(values) != len(method.Args) {
		return method
	}
	for i := range method.Args {
		method.Args[i].Value = formatArgument(values[i])
	}
	return method
}

func formatArgument(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case common.Address:
		return value.Hex()
	case common.Hash:
		return value.Hex()
	case []byte:
		return hexutil.Encode(value)
	case [32]byte:
		return hexutil.Encode(value[:])
	case *big.Int:
		return value.String()
	default:
		return fmt.Sprint(value)
	}
}

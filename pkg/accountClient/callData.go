package accountClient

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Call is one contract invocation executed by the smart account.
type Call struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

// executeCall mirrors the account's (address,uint256,bytes) tuple; abi matches fields by name.
type executeCall struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

const smartAccountABIJSON = `[
	{"type":"function","name":"execute","inputs":[{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"executeBatch","inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}]}],"outputs":[],"stateMutability":"nonpayable"}
]`

const entryPointABIJSON = `[
	{"type":"function","name":"getNonce","inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"outputs":[{"name":"nonce","type":"uint256"}],"stateMutability":"view"}
]`

var (
	smartAccountABI = mustParseABI(smartAccountABIJSON)
	entryPointABI   = mustParseABI(entryPointABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func dataOrEmpty(d []byte) []byte {
	if d == nil {
		return []byte{}
	}
	return d
}

// EncodeExecute encodes a single call as execute(target, value, data).
func EncodeExecute(call Call) ([]byte, error) {
	data, err := smartAccountABI.Pack("execute", call.Target, valueOrZero(call.Value), dataOrEmpty(call.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to encode execute: %w", err)
	}
	return data, nil
}

// EncodeExecuteBatch encodes calls as executeBatch((target, value, data)[]). Order is preserved.
func EncodeExecuteBatch(calls []Call) ([]byte, error) {
	batch := make([]executeCall, len(calls))
	for i, c := range calls {
		batch[i] = executeCall{Target: c.Target, Value: valueOrZero(c.Value), Data: dataOrEmpty(c.Data)}
	}
	data, err := smartAccountABI.Pack("executeBatch", batch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode executeBatch: %w", err)
	}
	return data, nil
}

// DecodeExecuteBatch is the inverse of EncodeExecuteBatch.
func DecodeExecuteBatch(callData []byte) ([]Call, error) {
	if len(callData) < 4 {
		return nil, fmt.Errorf("call data too short")
	}
	method, err := smartAccountABI.MethodById(callData[:4])
	if err != nil {
		return nil, err
	}
	if method.Name != "executeBatch" {
		return nil, fmt.Errorf("call data is %s, not executeBatch", method.Name)
	}
	values, err := method.Inputs.Unpack(callData[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode executeBatch: %w", err)
	}
	var decoded []executeCall
	if err := method.Inputs.Copy(&decoded, values); err != nil {
		return nil, fmt.Errorf("failed to copy executeBatch arguments: %w", err)
	}
	out := make([]Call, len(decoded))
	for i, c := range decoded {
		out[i] = Call{Target: c.Target, Value: c.Value, Data: c.Data}
	}
	return out, nil
}

func encodeGetNonce(sender common.Address) ([]byte, error) {
	return entryPointABI.Pack("getNonce", sender, new(big.Int))
}

func decodeGetNonce(out []byte) (*big.Int, error) {
	values, err := entryPointABI.Unpack("getNonce", out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode getNonce: %w", err)
	}
	nonce, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getNonce result type %T", values[0])
	}
	return nonce, nil
}

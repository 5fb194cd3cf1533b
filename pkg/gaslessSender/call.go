package gaslessSender

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/Layr-Labs/gasless-go/pkg/accountClient"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// NativeDecimals is the scaling applied to call values.
const NativeDecimals = 18

// GaslessCall is a caller supplied instruction. Value is a decimal token
// amount such as "0.01"; empty means zero. Data is 0x-prefixed hex; empty means no calldata.
type GaslessCall struct {
	To    string `json:"to" validate:"required,eth_addr"`
	Data  string `json:"data,omitempty"`
	Value string `json:"value,omitempty"`
}

var validate = validator.New()

// ParseUnits converts a decimal amount into base units with the given number of decimals.
//
// Parameters:
//   - amount: A non-negative decimal string; empty means zero
//   - decimals: Number of fractional digits of the unit
//
// Returns:
//   - *big.Int: amount * 10^decimals
//   - error: If amount is malformed, negative, or more precise than decimals allow
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return new(big.Int), nil
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: negative", amount)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("invalid amount %q: more than %d decimals", amount, decimals)
	}
	return scaled.BigInt(), nil
}

// toAccountCall validates c and converts it for the account client.
func toAccountCall(c GaslessCall, index uint64) (accountClient.Call, error) {
	if err := validate.Struct(c); err != nil {
		return accountClient.Call{}, fmt.Errorf("call %d: %w", index, err)
	}
	to := common.HexToAddress(c.To)
	if to == (common.Address{}) {
		return accountClient.Call{}, fmt.Errorf("call %d: target is the zero address", index)
	}
	value, err := ParseUnits(c.Value, NativeDecimals)
	if err != nil {
		return accountClient.Call{}, fmt.Errorf("call %d: %w", index, err)
	}
	var data []byte
	if c.Data != "" {
		data, err = hexutil.Decode(c.Data)
		if err != nil {
			return accountClient.Call{}, fmt.Errorf("call %d: invalid data: %w", index, err)
		}
	}
	return accountClient.Call{Target: to, Value: value, Data: data}, nil
}

package accountClient

import (
	"fmt"
	"math/big"

	"github.com/Layr-Labs/gasless-go/pkg/delegation"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOperation is an ERC-4337 v0.7 user operation in its unpacked RPC form.
type UserOperation struct {
	Sender               common.Address
	Nonce                *big.Int
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte

	Signature []byte

	// Authorization is attached while the sender is not yet delegated
	Authorization *delegation.Authorization
}

// rpcUserOperation is the wire shape accepted by v0.7 bundlers.
type rpcUserOperation struct {
	Sender                        common.Address               `json:"sender"`
	Nonce                         *hexutil.Big                 `json:"nonce"`
	CallData                      hexutil.Bytes                `json:"callData"`
	CallGasLimit                  *hexutil.Big                 `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big                 `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big                 `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big                 `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big                 `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address              `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big                 `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big                 `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 hexutil.Bytes                `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes                `json:"signature"`
	EIP7702Auth                   *delegation.RPCAuthorization `json:"eip7702Auth,omitempty"`
}

func hexBig(v *big.Int) *hexutil.Big {
	if v == nil {
		return (*hexutil.Big)(new(big.Int))
	}
	return (*hexutil.Big)(v)
}

func hexBigOptional(v *big.Int) *hexutil.Big {
	if v == nil {
		return nil
	}
	return (*hexutil.Big)(v)
}

func (op *UserOperation) toRPC() *rpcUserOperation {
	out := &rpcUserOperation{
		Sender:               op.Sender,
		Nonce:                hexBig(op.Nonce),
		CallData:             op.CallData,
		CallGasLimit:         hexBig(op.CallGasLimit),
		VerificationGasLimit: hexBig(op.VerificationGasLimit),
		PreVerificationGas:   hexBig(op.PreVerificationGas),
		MaxFeePerGas:         hexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: hexBig(op.MaxPriorityFeePerGas),
		Signature:            op.Signature,
	}
	if out.CallData == nil {
		out.CallData = hexutil.Bytes{}
	}
	if out.Signature == nil {
		out.Signature = hexutil.Bytes{}
	}
	if op.Paymaster != nil {
		out.Paymaster = op.Paymaster
		out.PaymasterVerificationGasLimit = hexBig(op.PaymasterVerificationGasLimit)
		out.PaymasterPostOpGasLimit = hexBig(op.PaymasterPostOpGasLimit)
		out.PaymasterData = op.PaymasterData
		if out.PaymasterData == nil {
			out.PaymasterData = hexutil.Bytes{}
		}
	}
	if op.Authorization != nil {
		out.EIP7702Auth = op.Authorization.ToRPC()
	}
	return out
}

// packUint128Pair packs hi and lo into one word as two big-endian uint128 halves.
func packUint128Pair(hi, lo *big.Int) ([32]byte, error) {
	var out [32]byte
	for _, v := range []*big.Int{hi, lo} {
		if v != nil && (v.Sign() < 0 || v.BitLen() > 128) {
			return out, fmt.Errorf("value %s does not fit in uint128", v.String())
		}
	}
	if hi != nil {
		hi.FillBytes(out[0:16])
	}
	if lo != nil {
		lo.FillBytes(out[16:32])
	}
	return out, nil
}

// AccountGasLimits returns verificationGasLimit ‖ callGasLimit.
func (op *UserOperation) AccountGasLimits() ([32]byte, error) {
	return packUint128Pair(op.VerificationGasLimit, op.CallGasLimit)
}

// GasFees returns maxPriorityFeePerGas ‖ maxFeePerGas.
func (op *UserOperation) GasFees() ([32]byte, error) {
	return packUint128Pair(op.MaxPriorityFeePerGas, op.MaxFeePerGas)
}

// PaymasterAndData returns paymaster ‖ verificationGasLimit(16) ‖ postOpGasLimit(16) ‖ data,
// or nothing when the operation is not sponsored.
func (op *UserOperation) PaymasterAndData() ([]byte, error) {
	if op.Paymaster == nil {
		return []byte{}, nil
	}
	limits, err := packUint128Pair(op.PaymasterVerificationGasLimit, op.PaymasterPostOpGasLimit)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, common.AddressLength+len(limits)+len(op.PaymasterData))
	out = append(out, op.Paymaster.Bytes()...)
	out = append(out, limits[:]...)
	out = append(out, op.PaymasterData...)
	return out, nil
}

var (
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	bytes32Type, _ = abi.NewType("bytes32", "", nil)

	packedUserOpArgs = abi.Arguments{
		{Type: addressType}, // sender
		{Type: uint256Type}, // nonce
		{Type: bytes32Type}, // keccak(initCode)
		{Type: bytes32Type}, // keccak(callData)
		{Type: bytes32Type}, // accountGasLimits
		{Type: uint256Type}, // preVerificationGas
		{Type: bytes32Type}, // gasFees
		{Type: bytes32Type}, // keccak(paymasterAndData)
	}
	userOpHashArgs = abi.Arguments{
		{Type: bytes32Type},
		{Type: addressType},
		{Type: uint256Type},
	}
)

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// Hash computes the v0.7 user operation hash the EntryPoint hands to validateUserOp.
// The signature is not part of the hash.
func (op *UserOperation) Hash(entryPoint common.Address, chainId uint64) (common.Hash, error) {
	accountGasLimits, err := op.AccountGasLimits()
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid account gas limits: %w", err)
	}
	gasFees, err := op.GasFees()
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid gas fees: %w", err)
	}
	paymasterAndData, err := op.PaymasterAndData()
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid paymaster gas limits: %w", err)
	}

	packed, err := packedUserOpArgs.Pack(
		op.Sender,
		orZero(op.Nonce),
		crypto.Keccak256Hash(nil),
		crypto.Keccak256Hash(op.CallData),
		accountGasLimits,
		orZero(op.PreVerificationGas),
		gasFees,
		crypto.Keccak256Hash(paymasterAndData),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user operation: %w", err)
	}
	encoded, err := userOpHashArgs.Pack(crypto.Keccak256Hash(packed), entryPoint, new(big.Int).SetUint64(chainId))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user operation hash: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

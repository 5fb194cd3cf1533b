package accountClient

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	methodSendUserOperation        = "eth_sendUserOperation"
	methodEstimateUserOperationGas = "eth_estimateUserOperationGas"
	methodGetUserOperationReceipt  = "eth_getUserOperationReceipt"
	methodGetPaymasterStubData     = "pm_getPaymasterStubData"
	methodGetPaymasterData         = "pm_getPaymasterData"
)

// IRPCCaller is the subset of *rpc.Client the account client uses.
type IRPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

var _ IRPCCaller = (*rpc.Client)(nil)

// GasEstimate is the eth_estimateUserOperationGas result.
type GasEstimate struct {
	PreVerificationGas            *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big `json:"callGasLimit"`
	PaymasterVerificationGasLimit *hexutil.Big `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big `json:"paymasterPostOpGasLimit,omitempty"`
}

// PaymasterData is the ERC-7677 pm_getPaymasterStubData / pm_getPaymasterData result.
type PaymasterData struct {
	Paymaster                     *common.Address `json:"paymaster"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	IsFinal                       bool            `json:"isFinal,omitempty"`
}

// UserOperationReceipt is the eth_getUserOperationReceipt result.
type UserOperationReceipt struct {
	UserOpHash    common.Hash    `json:"userOpHash"`
	Sender        common.Address `json:"sender"`
	Nonce         *hexutil.Big   `json:"nonce"`
	Success       bool           `json:"success"`
	Reason        string         `json:"reason,omitempty"`
	ActualGasCost *hexutil.Big   `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big   `json:"actualGasUsed"`
	Receipt       struct {
		TransactionHash common.Hash  `json:"transactionHash"`
		BlockNumber     *hexutil.Big `json:"blockNumber"`
	} `json:"receipt"`
}

type sponsorshipContext struct {
	PolicyID string `json:"policyId"`
}

// bundlerClient speaks the ERC-4337 and ERC-7677 JSON-RPC methods.
type bundlerClient struct {
	bundler    IRPCCaller
	paymaster  IRPCCaller
	entryPoint common.Address
	chainId    uint64
}

func (b *bundlerClient) paymasterStubData(ctx context.Context, op *UserOperation, policyId string) (*PaymasterData, error) {
	var out PaymasterData
	if err := b.paymaster.CallContext(ctx, &out, methodGetPaymasterStubData,
		op.toRPC(), b.entryPoint, hexutil.Uint64(b.chainId), sponsorshipContext{PolicyID: policyId},
	); err != nil {
		return nil, fmt.Errorf("%s: %w", methodGetPaymasterStubData, err)
	}
	return &out, nil
}

func (b *bundlerClient) paymasterData(ctx context.Context, op *UserOperation, policyId string) (*PaymasterData, error) {
	var out PaymasterData
	if err := b.paymaster.CallContext(ctx, &out, methodGetPaymasterData,
		op.toRPC(), b.entryPoint, hexutil.Uint64(b.chainId), sponsorshipContext{PolicyID: policyId},
	); err != nil {
		return nil, fmt.Errorf("%s: %w", methodGetPaymasterData, err)
	}
	return &out, nil
}

func (b *bundlerClient) estimateGas(ctx context.Context, op *UserOperation) (*GasEstimate, error) {
	var out GasEstimate
	if err := b.bundler.CallContext(ctx, &out, methodEstimateUserOperationGas, op.toRPC(), b.entryPoint); err != nil {
		return nil, fmt.Errorf("%s: %w", methodEstimateUserOperationGas, err)
	}
	if out.PreVerificationGas == nil || out.VerificationGasLimit == nil || out.CallGasLimit == nil {
		return nil, fmt.Errorf("%s: incomplete gas estimate", methodEstimateUserOperationGas)
	}
	return &out, nil
}

func (b *bundlerClient) send(ctx context.Context, op *UserOperation) (common.Hash, error) {
	var hash common.Hash
	if err := b.bundler.CallContext(ctx, &hash, methodSendUserOperation, op.toRPC(), b.entryPoint); err != nil {
		return common.Hash{}, fmt.Errorf("%s: %w", methodSendUserOperation, err)
	}
	return hash, nil
}

// receipt returns nil without error while the operation is still pending.
func (b *bundlerClient) receipt(ctx context.Context, hash common.Hash) (*UserOperationReceipt, error) {
	var out *UserOperationReceipt
	if err := b.bundler.CallContext(ctx, &out, methodGetUserOperationReceipt, hash); err != nil {
		return nil, fmt.Errorf("%s: %w", methodGetUserOperationReceipt, err)
	}
	return out, nil
}

// applyPaymaster copies sponsorship fields onto op.
func applyPaymaster(op *UserOperation, pm *PaymasterData) {
	if pm == nil || pm.Paymaster == nil {
		return
	}
	op.Paymaster = pm.Paymaster
	op.PaymasterData = pm.PaymasterData
	if pm.PaymasterVerificationGasLimit != nil {
		op.PaymasterVerificationGasLimit = pm.PaymasterVerificationGasLimit.ToInt()
	}
	if pm.PaymasterPostOpGasLimit != nil {
		op.PaymasterPostOpGasLimit = pm.PaymasterPostOpGasLimit.ToInt()
	}
}

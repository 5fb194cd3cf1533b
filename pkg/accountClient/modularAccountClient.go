package accountClient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Layr-Labs/gasless-go/pkg/chainManager"
	"github.com/Layr-Labs/gasless-go/pkg/delegation"
	"github.com/Layr-Labs/gasless-go/pkg/logger"
	"github.com/Layr-Labs/gasless-go/pkg/signer"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

var (
	// ErrNoCalls is returned when a batch is empty
	ErrNoCalls = errors.New("no calls to submit")
	// ErrUnsupportedMode is returned for account modes other than 7702
	ErrUnsupportedMode = errors.New("unsupported account mode")
	// ErrMissingAuthorization is returned when the account is not delegated and no authorization was supplied
	ErrMissingAuthorization = errors.New("account is not delegated and no authorization was supplied")
	// ErrUserOperationFailed is returned when a mined user operation reverted
	ErrUserOperationFailed = errors.New("user operation failed")
)

var (
	// FallbackGasTipCap is used when the node does not support eth_maxPriorityFeePerGas
	FallbackGasTipCap = big.NewInt(15000000000)

	// DefaultReceiptPollInterval is how often WaitForUserOperationReceipt polls the bundler
	DefaultReceiptPollInterval = 2 * time.Second
)

// dummySignature has the shape of a real 65-byte signature so that bundler
// simulation of signature verification costs the same gas.
var dummySignature = hexutil.MustDecode("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

// IAccountClient submits calls as user operations from a smart account.
type IAccountClient interface {
	// Address returns the smart account address
	Address() common.Address
	// SendUserOperation submits a single call and returns the user operation hash
	SendUserOperation(ctx context.Context, call Call) (common.Hash, error)
	// SendBatchUserOperation submits calls as one user operation executed in order
	SendBatchUserOperation(ctx context.Context, calls []Call) (common.Hash, error)
	// WaitForUserOperationReceipt blocks until the operation is included
	WaitForUserOperationReceipt(ctx context.Context, hash common.Hash) (*UserOperationReceipt, error)
}

// ClientParams binds a client to a chain, a signer and a delegation.
type ClientParams struct {
	ChainID       uint64
	Signer        signer.ISigner
	Authorization *delegation.Authorization
	BundlerURL    string
	PaymasterURL  string
	PolicyID      string
	EntryPoint    common.Address
	Mode          string
}

// IClientConstructor constructs account clients.
type IClientConstructor interface {
	Construct(ctx context.Context, params ClientParams) (IAccountClient, error)
}

// Constructor dials the bundler and paymaster endpoints and reads chain state
// through the chain manager.
type Constructor struct {
	chainManager chainManager.IChainManager
	logger       *zap.Logger
}

// NewConstructor creates a Constructor.
func NewConstructor(cm chainManager.IChainManager, l *zap.Logger) *Constructor {
	return &Constructor{chainManager: cm, logger: l}
}

// Construct implements IClientConstructor.
func (c *Constructor) Construct(ctx context.Context, params ClientParams) (IAccountClient, error) {
	chain, err := c.chainManager.GetChainForId(params.ChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain for ID %d: %w", params.ChainID, err)
	}
	bundler, err := rpc.DialContext(ctx, params.BundlerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bundler %s: %w", params.BundlerURL, err)
	}
	paymaster := bundler
	if params.PaymasterURL != "" && params.PaymasterURL != params.BundlerURL {
		paymaster, err = rpc.DialContext(ctx, params.PaymasterURL)
		if err != nil {
			bundler.Close()
			return nil, fmt.Errorf("failed to connect to paymaster %s: %w", params.PaymasterURL, err)
		}
	}
	return NewModularAccountClient(params, chain.RPCClient, bundler, paymaster, c.logger)
}

// ModularAccountClient is a smart account living at the signer's own address
// through an EIP-7702 delegation.
type ModularAccountClient struct {
	params  ClientParams
	chain   chainManager.EthClientInterface
	bundler *bundlerClient
	logger  *zap.Logger

	pollInterval time.Duration
}

// NewModularAccountClient creates a client over already connected endpoints.
//
// Parameters:
//   - params: Chain, signer, authorization and sponsorship settings
//   - chain: Node connection used for nonces, code and fees
//   - bundler: ERC-4337 bundler endpoint
//   - paymaster: ERC-7677 paymaster endpoint; may be the bundler
//   - l: Logger; may be nil
//
// Returns:
//   - *ModularAccountClient: The client
//   - error: ErrUnsupportedMode, or an error for missing collaborators
func NewModularAccountClient(
	params ClientParams,
	chain chainManager.EthClientInterface,
	bundler IRPCCaller,
	paymaster IRPCCaller,
	l *zap.Logger,
) (*ModularAccountClient, error) {
	if params.Mode != "" && params.Mode != ModeEIP7702 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, params.Mode)
	}
	if params.Signer == nil {
		return nil, fmt.Errorf("account client requires a signer")
	}
	if chain == nil || bundler == nil {
		return nil, fmt.Errorf("account client requires chain and bundler connections")
	}
	if paymaster == nil {
		paymaster = bundler
	}
	if params.EntryPoint == (common.Address{}) {
		params.EntryPoint = DefaultEntryPoint
	}
	return &ModularAccountClient{
		params: params,
		chain:  chain,
		bundler: &bundlerClient{
			bundler:    bundler,
			paymaster:  paymaster,
			entryPoint: params.EntryPoint,
			chainId:    params.ChainID,
		},
		logger:       logger.NamedOrNop(l, "modularAccountClient"),
		pollInterval: DefaultReceiptPollInterval,
	}, nil
}

// Address returns the smart account address. In 7702 mode it is the signer's account.
func (c *ModularAccountClient) Address() common.Address {
	return c.params.Signer.Address()
}

// SendUserOperation submits execute(target, value, data).
func (c *ModularAccountClient) SendUserOperation(ctx context.Context, call Call) (common.Hash, error) {
	callData, err := EncodeExecute(call)
	if err != nil {
		return common.Hash{}, err
	}
	return c.submit(ctx, callData, 1)
}

// SendBatchUserOperation submits executeBatch over calls in their given order.
func (c *ModularAccountClient) SendBatchUserOperation(ctx context.Context, calls []Call) (common.Hash, error) {
	if len(calls) == 0 {
		return common.Hash{}, ErrNoCalls
	}
	callData, err := EncodeExecuteBatch(calls)
	if err != nil {
		return common.Hash{}, err
	}
	return c.submit(ctx, callData, len(calls))
}

func (c *ModularAccountClient) submit(ctx context.Context, callData []byte, callCount int) (common.Hash, error) {
	sender := c.Address()
	sponsored := c.params.PolicyID != ""

	op, err := c.buildUserOperation(ctx, sender, callData)
	if err != nil {
		return common.Hash{}, err
	}

	var stub *PaymasterData
	if sponsored {
		stub, err = c.bundler.paymasterStubData(ctx, op, c.params.PolicyID)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to get paymaster stub data: %w", err)
		}
		applyPaymaster(op, stub)
	}

	estimate, err := c.bundler.estimateGas(ctx, op)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate user operation gas: %w", err)
	}
	op.PreVerificationGas = estimate.PreVerificationGas.ToInt()
	op.VerificationGasLimit = estimate.VerificationGasLimit.ToInt()
	op.CallGasLimit = addGasBuffer(estimate.CallGasLimit.ToInt())
	if op.Paymaster != nil {
		if estimate.PaymasterVerificationGasLimit != nil {
			op.PaymasterVerificationGasLimit = estimate.PaymasterVerificationGasLimit.ToInt()
		}
		if estimate.PaymasterPostOpGasLimit != nil {
			op.PaymasterPostOpGasLimit = estimate.PaymasterPostOpGasLimit.ToInt()
		}
	}

	if sponsored && !stub.IsFinal {
		final, err := c.bundler.paymasterData(ctx, op, c.params.PolicyID)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to get paymaster data: %w", err)
		}
		applyPaymaster(op, final)
	}

	opHash, err := op.Hash(c.params.EntryPoint, c.params.ChainID)
	if err != nil {
		return common.Hash{}, err
	}
	sig, err := c.params.Signer.SignUserOperationHash(ctx, opHash)
	if err != nil {
		return common.Hash{}, err
	}
	op.Signature = sig

	c.logger.Sugar().Debugw("submitting user operation",
		zap.String("sender", sender.String()),
		zap.String("nonce", op.Nonce.String()),
		zap.String("userOpHash", opHash.String()),
		zap.Int("calls", callCount),
		zap.Bool("sponsored", op.Paymaster != nil),
		zap.Bool("withAuthorization", op.Authorization != nil),
	)

	hash, err := c.bundler.send(ctx, op)
	if err != nil {
		c.logger.Sugar().Errorw("failed to send user operation",
			zap.String("sender", sender.String()),
			zap.Error(err),
		)
		return common.Hash{}, err
	}
	if hash != opHash {
		c.logger.Sugar().Warnw("bundler returned a different user operation hash",
			zap.String("expected", opHash.String()),
			zap.String("actual", hash.String()),
		)
	}
	c.logger.Sugar().Infow("sent user operation",
		zap.String("sender", sender.String()),
		zap.String("userOpHash", hash.String()),
		zap.Uint64("chainId", c.params.ChainID),
	)
	return hash, nil
}

// buildUserOperation fills sender, nonce, call data, fees and the delegation
// state, with a placeholder signature for simulation.
func (c *ModularAccountClient) buildUserOperation(ctx context.Context, sender common.Address, callData []byte) (*UserOperation, error) {
	nonce, err := c.entryPointNonce(ctx, sender)
	if err != nil {
		return nil, err
	}
	tip, feeCap, err := c.estimateFees(ctx)
	if err != nil {
		return nil, err
	}

	op := &UserOperation{
		Sender:               sender,
		Nonce:                nonce,
		CallData:             callData,
		MaxFeePerGas:         feeCap,
		MaxPriorityFeePerGas: tip,
		Signature:            dummySignature,
	}

	code, err := c.chain.CodeAt(ctx, sender, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get code for %s: %w", sender.String(), err)
	}
	auth := c.params.Authorization
	switch {
	case auth != nil && delegation.IsDelegatedTo(code, auth.TargetContract):
	case auth != nil:
		op.Authorization = auth
	case len(code) == 0:
		return nil, ErrMissingAuthorization
	}
	return op, nil
}

func (c *ModularAccountClient) entryPointNonce(ctx context.Context, sender common.Address) (*big.Int, error) {
	data, err := encodeGetNonce(sender)
	if err != nil {
		return nil, err
	}
	entryPoint := c.params.EntryPoint
	out, err := c.chain.CallContract(ctx, ethereum.CallMsg{To: &entryPoint, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry point nonce for %s: %w", sender.String(), err)
	}
	return decodeGetNonce(out)
}

// estimateFees returns the priority fee and a fee cap of basefee * 3/2 + tip.
func (c *ModularAccountClient) estimateFees(ctx context.Context) (*big.Int, *big.Int, error) {
	gasTipCap, err := c.chain.SuggestGasTipCap(ctx)
	if err != nil {
		c.logger.Sugar().Debugw("cannot get gasTipCap, using fallback",
			zap.String("error", err.Error()),
		)
		gasTipCap = new(big.Int).Set(FallbackGasTipCap)
	}

	header, err := c.chain.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	overestimatedBasefee := new(big.Int).Div(new(big.Int).Mul(baseFee, big.NewInt(3)), big.NewInt(2))
	gasFeeCap := new(big.Int).Add(overestimatedBasefee, gasTipCap)
	return gasTipCap, gasFeeCap, nil
}

func addGasBuffer(gasLimit *big.Int) *big.Int {
	// 20% buffer
	return new(big.Int).Div(new(big.Int).Mul(gasLimit, big.NewInt(6)), big.NewInt(5))
}

// WaitForUserOperationReceipt polls the bundler until the user operation is
// included, then checks that it succeeded.
func (c *ModularAccountClient) WaitForUserOperationReceipt(ctx context.Context, hash common.Hash) (*UserOperationReceipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.bundler.receipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			if !receipt.Success {
				c.logger.Sugar().Errorw("user operation failed",
					zap.String("userOpHash", hash.String()),
					zap.String("reason", receipt.Reason),
				)
				return receipt, fmt.Errorf("%w: %s", ErrUserOperationFailed, receipt.Reason)
			}
			c.logger.Sugar().Infow("user operation included",
				zap.String("userOpHash", hash.String()),
				zap.String("transactionHash", receipt.Receipt.TransactionHash.String()),
			)
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

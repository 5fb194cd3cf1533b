package authorizationManager

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/gasless-go/pkg/chainManager"
	"github.com/Layr-Labs/gasless-go/pkg/delegation"
	"github.com/Layr-Labs/gasless-go/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Executor says who broadcasts the transaction carrying the authorization.
type Executor int

const (
	// ExecutorSponsor means a relayer or bundler submits it; the account nonce is used as-is
	ExecutorSponsor Executor = iota
	// ExecutorSelf means the account submits it itself, consuming one nonce before the authorization is applied
	ExecutorSelf
)

// PrepareAuthorizationParams describes the delegation to prepare.
type PrepareAuthorizationParams struct {
	Account         common.Address
	ContractAddress common.Address
	ChainID         uint64
	Executor        Executor
}

// IChainWalletClient prepares unsigned authorizations from on-chain state.
type IChainWalletClient interface {
	PrepareAuthorization(ctx context.Context, params PrepareAuthorizationParams) (*delegation.UnsignedAuthorization, error)
}

// ChainWalletClient prepares authorizations against a single chain connection.
type ChainWalletClient struct {
	chain  *chainManager.Chain
	logger *zap.Logger
}

// NewChainWalletClient binds a wallet client to chainId in cm.
func NewChainWalletClient(cm chainManager.IChainManager, chainId uint64, l *zap.Logger) (*ChainWalletClient, error) {
	chain, err := cm.GetChainForId(chainId)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain for ID %d: %w", chainId, err)
	}
	return &ChainWalletClient{
		chain:  chain,
		logger: logger.NamedOrNop(l, "chainWalletClient"),
	}, nil
}

// PrepareAuthorization reads the account's pending nonce and builds the authorization preimage.
func (c *ChainWalletClient) PrepareAuthorization(ctx context.Context, params PrepareAuthorizationParams) (*delegation.UnsignedAuthorization, error) {
	if params.ChainID != c.chain.ChainID() {
		return nil, fmt.Errorf("wallet client is bound to chain %d, asked to prepare for chain %d", c.chain.ChainID(), params.ChainID)
	}
	unsigned := &delegation.UnsignedAuthorization{
		ContractAddress: params.ContractAddress,
		ChainID:         params.ChainID,
	}
	if err := unsigned.Validate(); err != nil {
		return nil, err
	}

	nonce, err := c.chain.RPCClient.PendingNonceAt(ctx, params.Account)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce for %s: %w", params.Account.String(), err)
	}
	if params.Executor == ExecutorSelf {
		nonce++
	}
	unsigned.Nonce = nonce

	c.logger.Sugar().Debugw("prepared authorization",
		zap.String("account", params.Account.String()),
		zap.String("contractAddress", params.ContractAddress.String()),
		zap.Uint64("chainId", params.ChainID),
		zap.Uint64("nonce", nonce),
	)
	return unsigned, nil
}

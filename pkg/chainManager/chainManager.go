// Package chainManager keeps the RPC connections the gasless stack reads chain
// state through: account nonces for delegation authorizations, account code to
// detect an existing delegation, EntryPoint nonces and fee data for user operations.
package chainManager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	// ErrChainNotFound is returned when a requested chain ID is not found in the manager
	ErrChainNotFound = errors.New("chain not found")
	// ErrChainExists is returned when a chain ID is registered twice
	ErrChainExists = errors.New("chain already exists")
)

// IChainManager defines the interface for managing blockchain connections.
type IChainManager interface {
	// AddChain dials the configured RPC endpoint and registers the connection
	AddChain(ctx context.Context, cfg *ChainConfig) error
	// GetChainForId retrieves a chain connection by its chain ID
	GetChainForId(chainId uint64) (*Chain, error)
}

// ChainConfig holds the configuration for connecting to a blockchain.
type ChainConfig struct {
	// ChainID is the unique identifier for the blockchain network
	ChainID uint64
	// RPCUrl is the URL endpoint for connecting to the blockchain RPC
	RPCUrl string
}

// Chain represents an active connection to a blockchain.
type Chain struct {
	config *ChainConfig
	// RPCClient is the active client connection for this chain
	RPCClient EthClientInterface
}

// ChainID returns the chain id this connection was registered under.
func (c *Chain) ChainID() uint64 {
	return c.config.ChainID
}

// ChainManager implements IChainManager. It is safe for concurrent use.
type ChainManager struct {
	Chains sync.Map // map[uint64]*Chain

	dial func(ctx context.Context, url string) (EthClientInterface, error)
}

// NewChainManager creates a new ChainManager that dials endpoints with ethclient.
//
// Returns:
//   - *ChainManager: A new chain manager instance with an empty registry
func NewChainManager() *ChainManager {
	return &ChainManager{
		dial: func(ctx context.Context, url string) (EthClientInterface, error) {
			return ethclient.DialContext(ctx, url)
		},
	}
}

// AddChain adds a new blockchain connection to the manager.
// The dialed endpoint must report the configured chain id, so a
// misconfigured RPC URL can never produce authorizations for the wrong chain.
//
// Parameters:
//   - ctx: Context for dialing and the chain id check
//   - cfg: The chain configuration containing chain ID and RPC URL
//
// Returns:
//   - error: An error if the chain already exists, the connection fails or the chain id mismatches
func (cm *ChainManager) AddChain(ctx context.Context, cfg *ChainConfig) error {
	if _, exists := cm.Chains.Load(cfg.ChainID); exists {
		return fmt.Errorf("chain with ID %d: %w", cfg.ChainID, ErrChainExists)
	}
	client, err := cm.dial(ctx, cfg.RPCUrl)
	if err != nil {
		return fmt.Errorf("failed to connect to RPC URL %s: %w", cfg.RPCUrl, err)
	}
	remoteId, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to query chain id from %s: %w", cfg.RPCUrl, err)
	}
	if remoteId.Uint64() != cfg.ChainID {
		return fmt.Errorf("RPC URL %s serves chain %d, expected %d", cfg.RPCUrl, remoteId.Uint64(), cfg.ChainID)
	}
	return cm.AddChainWithClient(cfg, client)
}

// AddChainWithClient registers an already constructed client under cfg.ChainID.
func (cm *ChainManager) AddChainWithClient(cfg *ChainConfig, client EthClientInterface) error {
	if _, loaded := cm.Chains.LoadOrStore(cfg.ChainID, &Chain{config: cfg, RPCClient: client}); loaded {
		return fmt.Errorf("chain with ID %d: %w", cfg.ChainID, ErrChainExists)
	}
	return nil
}

// GetChainForId retrieves a chain connection by its chain ID.
//
// Parameters:
//   - chainId: The chain ID to look up
//
// Returns:
//   - *Chain: The chain connection if found
//   - error: ErrChainNotFound if the chain ID is not registered
func (cm *ChainManager) GetChainForId(chainId uint64) (*Chain, error) {
	value, exists := cm.Chains.Load(chainId)
	if !exists {
		return nil, ErrChainNotFound
	}
	chain, ok := value.(*Chain)
	if !ok {
		return nil, fmt.Errorf("invalid chain type stored for ID %d", chainId)
	}
	return chain, nil
}

// Package authorizationManager produces and caches the signed EIP-7702
// delegation authorization binding the wallet's account to the configured
// smart account implementation.
package authorizationManager

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/gasless-go/pkg/delegation"
	"github.com/Layr-Labs/gasless-go/pkg/logger"
	"github.com/Layr-Labs/gasless-go/pkg/signer"
	"github.com/Layr-Labs/gasless-go/pkg/util"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Config holds the delegation target.
type Config struct {
	ChainID               uint64
	ImplementationAddress common.Address
	Executor              Executor
}

type cachedAuthorization struct {
	account common.Address
	auth    *delegation.Authorization
}

// Manager caches one authorization per (account, implementation, chain).
type Manager struct {
	config      *Config
	signers     *signer.Provider
	chainClient IChainWalletClient
	cache       util.Lazy[*cachedAuthorization]
	logger      *zap.Logger
}

// NewManager creates a Manager.
//
// Parameters:
//   - cfg: The delegation target; ImplementationAddress is required
//   - signers: Source of the session signer
//   - chainClient: Chain wallet client used to prepare authorizations
//   - l: Logger; may be nil
//
// Returns:
//   - *Manager: The manager
//   - error: delegation.ErrMissingAuthorizationTarget when no implementation is configured
func NewManager(cfg *Config, signers *signer.Provider, chainClient IChainWalletClient, l *zap.Logger) (*Manager, error) {
	if cfg == nil || cfg.ImplementationAddress == (common.Address{}) {
		return nil, delegation.ErrMissingAuthorizationTarget
	}
	return &Manager{
		config:      cfg,
		signers:     signers,
		chainClient: chainClient,
		logger:      logger.NamedOrNop(l, "authorizationManager"),
	}, nil
}

// ImplementationAddress returns the contract authorizations delegate to.
func (m *Manager) ImplementationAddress() common.Address {
	return m.config.ImplementationAddress
}

// Current returns the cached authorization without signing anything.
func (m *Manager) Current() (*delegation.Authorization, bool) {
	c, ok := m.cache.Peek()
	if !ok || !c.auth.Matches(m.config.ImplementationAddress, m.config.ChainID) {
		return nil, false
	}
	return c.auth, true
}

// Reset drops the cached authorization.
func (m *Manager) Reset() {
	m.cache.Reset()
}

// EnsureAuthorization returns the cached authorization, or prepares and signs
// a new one. With force set the cache is replaced unconditionally, for
// example after the authorization's nonce has been consumed.
//
// Parameters:
//   - ctx: Context for the nonce lookup and the signing request
//   - force: Discard the cached authorization and sign a fresh one
//
// Returns:
//   - *delegation.Authorization: The signed authorization for the current account
//   - error: An error from the signer provider, the chain client or the wallet
func (m *Manager) EnsureAuthorization(ctx context.Context, force bool) (*delegation.Authorization, error) {
	s, err := m.signers.EnsureSigner(ctx)
	if err != nil {
		return nil, err
	}
	account := s.Address()

	if !force {
		if c, ok := m.cache.Peek(); ok {
			if c.account == account && c.auth.Matches(m.config.ImplementationAddress, m.config.ChainID) {
				return c.auth, nil
			}
			m.logger.Sugar().Infow("cached authorization belongs to another context, discarding",
				zap.String("cachedAccount", c.account.String()),
				zap.String("account", account.String()),
			)
			m.cache.Reset()
		}
	}

	init := func(ctx context.Context) (*cachedAuthorization, error) {
		return m.signFresh(ctx, s)
	}

	var c *cachedAuthorization
	if force {
		c, err = m.cache.Refresh(ctx, init)
	} else {
		c, err = m.cache.Get(ctx, init)
	}
	if err != nil {
		return nil, err
	}
	return c.auth, nil
}

func (m *Manager) signFresh(ctx context.Context, s *signer.Signer) (*cachedAuthorization, error) {
	unsigned, err := m.chainClient.PrepareAuthorization(ctx, PrepareAuthorizationParams{
		Account:         s.Address(),
		ContractAddress: m.config.ImplementationAddress,
		ChainID:         m.config.ChainID,
		Executor:        m.config.Executor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare authorization: %w", err)
	}
	if unsigned.ContractAddress != m.config.ImplementationAddress || unsigned.ChainID != m.config.ChainID {
		return nil, fmt.Errorf("prepared authorization targets %s on chain %d, expected %s on chain %d",
			unsigned.ContractAddress.String(), unsigned.ChainID,
			m.config.ImplementationAddress.String(), m.config.ChainID,
		)
	}

	auth, err := s.SignAuthorization(ctx, unsigned)
	if err != nil {
		m.logger.Sugar().Errorw("failed to sign authorization",
			zap.String("account", s.Address().String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}

	m.logger.Sugar().Infow("signed delegation authorization",
		zap.String("account", s.Address().String()),
		zap.String("implementation", auth.TargetContract.String()),
		zap.Uint64("chainId", auth.ChainID),
		zap.Uint64("nonce", auth.Nonce),
	)
	return &cachedAuthorization{account: s.Address(), auth: auth}, nil
}

package signer

import (
	"context"
	"fmt"
	"sync"

	"github.com/Layr-Labs/gasless-go/pkg/logger"
	"github.com/Layr-Labs/gasless-go/pkg/util"
	"github.com/Layr-Labs/gasless-go/pkg/wallet"
	"go.uber.org/zap"
)

// Provider memoizes the Signer for the current embedded wallet. Concurrent
// EnsureSigner calls share one provider resolution; the signer is dropped
// only when the wallet changes.
type Provider struct {
	mu     sync.RWMutex
	wallet wallet.IEmbeddedWallet
	signer util.Lazy[*Signer]
	logger *zap.Logger
}

// NewProvider creates a Provider for w. w may be nil until a wallet is connected.
func NewProvider(w wallet.IEmbeddedWallet, l *zap.Logger) *Provider {
	return &Provider{
		wallet: w,
		logger: logger.NamedOrNop(l, "signerProvider"),
	}
}

// Wallet returns the current embedded wallet, or nil.
func (p *Provider) Wallet() wallet.IEmbeddedWallet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.wallet
}

// SetWallet switches the embedded wallet. The cached signer is dropped when
// the account changes and kept when the same account is set again.
//
// Returns:
//   - bool: true when the account changed and the signer was invalidated
func (p *Provider) SetWallet(w wallet.IEmbeddedWallet) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if sameAccount(p.wallet, w) {
		p.wallet = w
		return false
	}
	p.wallet = w
	p.signer.Reset()
	p.logger.Sugar().Infow("embedded wallet changed, signer invalidated")
	return true
}

// Peek returns the cached signer without creating one.
func (p *Provider) Peek() (*Signer, bool) {
	return p.signer.Peek()
}

// EnsureSigner returns the session's signer, creating it on first use.
//
// Returns:
//   - *Signer: The memoized signer; repeated calls return the same instance
//   - error: wallet.ErrNoWallet when no wallet is connected, or the provider error
func (p *Provider) EnsureSigner(ctx context.Context) (*Signer, error) {
	w := p.Wallet()
	if w == nil {
		return nil, wallet.ErrNoWallet
	}
	return p.signer.Get(ctx, func(ctx context.Context) (*Signer, error) {
		provider, err := w.GetProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get wallet provider: %w", err)
		}
		if provider == nil {
			return nil, wallet.ErrNoWallet
		}
		p.logger.Sugar().Infow("created signer", zap.String("account", w.Address().String()))
		return &Signer{
			address:  w.Address(),
			provider: provider,
			logger:   p.logger,
		}, nil
	})
}

func sameAccount(a, b wallet.IEmbeddedWallet) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Address() == b.Address()
}

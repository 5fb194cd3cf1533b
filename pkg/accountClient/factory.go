package accountClient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Layr-Labs/gasless-go/pkg/authorizationManager"
	"github.com/Layr-Labs/gasless-go/pkg/delegation"
	"github.com/Layr-Labs/gasless-go/pkg/logger"
	"github.com/Layr-Labs/gasless-go/pkg/signer"
	"github.com/Layr-Labs/gasless-go/pkg/util"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// clientSession is what one successful construction produced.
type clientSession struct {
	client        IAccountClient
	address       common.Address
	authorization *delegation.Authorization
}

// Factory constructs the account client once and hands out the same instance
// until it is reset.
type Factory struct {
	config         *Config
	signers        *signer.Provider
	authorizations *authorizationManager.Manager
	constructor    IClientConstructor
	session        util.Lazy[*clientSession]
	initializing   atomic.Bool
	logger         *zap.Logger

	mu      sync.Mutex
	lastErr string
}

// NewFactory creates a Factory. cfg is validated and defaulted.
//
// Parameters:
//   - cfg: Account client configuration
//   - signers: Source of the session signer
//   - authorizations: Source of the delegation authorization
//   - constructor: Builds the client from the signer and authorization
//   - l: Logger; may be nil
//
// Returns:
//   - *Factory: The factory
//   - error: A validation error
func NewFactory(
	cfg *Config,
	signers *signer.Provider,
	authorizations *authorizationManager.Manager,
	constructor IClientConstructor,
	l *zap.Logger,
) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if authorizations.ImplementationAddress() != cfg.ImplementationAddress {
		return nil, fmt.Errorf("authorization manager delegates to %s, account client expects %s",
			authorizations.ImplementationAddress().String(), cfg.ImplementationAddress.String())
	}
	return &Factory{
		config:         cfg,
		signers:        signers,
		authorizations: authorizations,
		constructor:    constructor,
		logger:         logger.NamedOrNop(l, "accountClientFactory"),
	}, nil
}

// EnsureClient returns the account client, constructing it on first use.
// Concurrent callers share one construction. A failed construction leaves
// nothing cached, so the next call starts over.
func (f *Factory) EnsureClient(ctx context.Context) (IAccountClient, error) {
	s, err := f.session.Get(ctx, f.construct)
	if err != nil {
		return nil, err
	}
	return s.client, nil
}

func (f *Factory) construct(ctx context.Context) (*clientSession, error) {
	f.initializing.Store(true)
	defer f.initializing.Store(false)

	s, err := f.buildSession(ctx)
	if err != nil {
		f.setLastError(err)
		f.logger.Sugar().Errorw("failed to initialize account client", zap.Error(err))
		return nil, err
	}
	f.setLastError(nil)
	f.logger.Sugar().Infow("initialized account client",
		zap.String("smartAccountAddress", s.address.String()),
		zap.Uint64("chainId", f.config.ChainID),
		zap.String("implementation", f.config.ImplementationAddress.String()),
	)
	return s, nil
}

func (f *Factory) buildSession(ctx context.Context) (*clientSession, error) {
	sgnr, err := f.signers.EnsureSigner(ctx)
	if err != nil {
		return nil, err
	}
	auth, err := f.authorizations.EnsureAuthorization(ctx, false)
	if err != nil {
		return nil, err
	}
	client, err := f.constructor.Construct(ctx, ClientParams{
		ChainID:       f.config.ChainID,
		Signer:        sgnr,
		Authorization: auth,
		BundlerURL:    f.config.BundlerURL,
		PaymasterURL:  f.config.PaymasterURL,
		PolicyID:      f.config.PolicyID,
		EntryPoint:    f.config.EntryPoint,
		Mode:          f.config.Mode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to construct account client: %w", err)
	}
	return &clientSession{
		client:        client,
		address:       client.Address(),
		authorization: auth,
	}, nil
}

// RefreshAuthorization signs a fresh authorization and drops the client so the
// next EnsureClient builds one bound to it.
func (f *Factory) RefreshAuthorization(ctx context.Context) (*delegation.Authorization, error) {
	f.session.Reset()
	auth, err := f.authorizations.EnsureAuthorization(ctx, true)
	if err != nil {
		f.setLastError(err)
		return nil, err
	}
	return auth, nil
}

// Reset drops the client and the authorization it was built with.
func (f *Factory) Reset() {
	f.session.Reset()
	f.authorizations.Reset()
	f.setLastError(nil)
}

// SmartAccountAddress returns the address of the constructed client, if any.
func (f *Factory) SmartAccountAddress() (common.Address, bool) {
	s, ok := f.session.Peek()
	if !ok {
		return common.Address{}, false
	}
	return s.address, true
}

// CurrentAuthorization returns the authorization the current client was built with.
func (f *Factory) CurrentAuthorization() (*delegation.Authorization, bool) {
	s, ok := f.session.Peek()
	if !ok {
		return f.authorizations.Current()
	}
	return s.authorization, true
}

// IsInitializing reports whether a construction is in flight.
func (f *Factory) IsInitializing() bool {
	return f.initializing.Load()
}

// LastError returns the message of the last failed construction, or "".
func (f *Factory) LastError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *Factory) setLastError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		f.lastErr = ""
		return
	}
	f.lastErr = err.Error()
}

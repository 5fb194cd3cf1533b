package gaslessSender

import (
	"fmt"

	"github.com/Layr-Labs/gasless-go/pkg/accountClient"
	"github.com/Layr-Labs/gasless-go/pkg/authorizationManager"
	"github.com/Layr-Labs/gasless-go/pkg/biometricGate"
	"github.com/Layr-Labs/gasless-go/pkg/chainManager"
	"github.com/Layr-Labs/gasless-go/pkg/signer"
	"github.com/Layr-Labs/gasless-go/pkg/wallet"
	"go.uber.org/zap"
)

// Config assembles a Sender from its parts.
type Config struct {
	Account    accountClient.Config
	Biometrics *biometricGate.Config
	Executor   authorizationManager.Executor
}

// Components are the collaborators NewFromConfig wired together.
type Components struct {
	Gate           *biometricGate.Gate
	Signers        *signer.Provider
	Authorizations *authorizationManager.Manager
	Factory        *accountClient.Factory
}

// NewFromConfig wires the gate, signer provider, authorization manager and
// account client factory over cm and returns a ready Sender.
//
// Parameters:
//   - cfg: Account, biometric and delegation settings
//   - w: The embedded wallet; may be nil and set later with SetWallet
//   - biometrics: Biometric service; may be nil when biometrics are disabled
//   - cm: Chain manager holding a connection for cfg.Account.ChainID
//   - l: Logger; may be nil
//
// Returns:
//   - *Sender: The sender
//   - *Components: The wired collaborators
//   - error: A configuration or chain lookup error
func NewFromConfig(
	cfg *Config,
	w wallet.IEmbeddedWallet,
	biometrics biometricGate.IBiometricService,
	cm chainManager.IChainManager,
	l *zap.Logger,
) (*Sender, *Components, error) {
	if err := cfg.Account.Validate(); err != nil {
		return nil, nil, err
	}
	gate, err := biometricGate.NewGate(cfg.Biometrics, biometrics, l)
	if err != nil {
		return nil, nil, err
	}
	signers := signer.NewProvider(w, l)

	chainClient, err := authorizationManager.NewChainWalletClient(cm, cfg.Account.ChainID, l)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create chain wallet client: %w", err)
	}
	authorizations, err := authorizationManager.NewManager(&authorizationManager.Config{
		ChainID:               cfg.Account.ChainID,
		ImplementationAddress: cfg.Account.ImplementationAddress,
		Executor:              cfg.Executor,
	}, signers, chainClient, l)
	if err != nil {
		return nil, nil, err
	}

	account := cfg.Account
	factory, err := accountClient.NewFactory(&account, signers, authorizations, accountClient.NewConstructor(cm, l), l)
	if err != nil {
		return nil, nil, err
	}

	return NewSender(gate, signers, factory, l), &Components{
		Gate:           gate,
		Signers:        signers,
		Authorizations: authorizations,
		Factory:        factory,
	}, nil
}

// Package gaslessSender is the entry point for gas-sponsored transactions:
// every send is gated on biometric proof of presence, then the calls are
// submitted as one user operation through the memoized account client.
package gaslessSender

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Layr-Labs/gasless-go/pkg/accountClient"
	"github.com/Layr-Labs/gasless-go/pkg/biometricGate"
	"github.com/Layr-Labs/gasless-go/pkg/delegation"
	"github.com/Layr-Labs/gasless-go/pkg/logger"
	"github.com/Layr-Labs/gasless-go/pkg/signer"
	"github.com/Layr-Labs/gasless-go/pkg/util"
	"github.com/Layr-Labs/gasless-go/pkg/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IGate is consulted before every send.
type IGate interface {
	Check(ctx context.Context) error
}

// IClientFactory hands out the memoized account client.
type IClientFactory interface {
	EnsureClient(ctx context.Context) (accountClient.IAccountClient, error)
	RefreshAuthorization(ctx context.Context) (*delegation.Authorization, error)
	Reset()
	SmartAccountAddress() (common.Address, bool)
	CurrentAuthorization() (*delegation.Authorization, bool)
	IsInitializing() bool
}

var (
	_ IGate          = (*biometricGate.Gate)(nil)
	_ IClientFactory = (*accountClient.Factory)(nil)
)

// Sender submits gasless transactions for the current wallet session.
// Sends are processed one at a time in arrival order.
type Sender struct {
	gate    IGate
	signers *signer.Provider
	factory IClientFactory
	logger  *zap.Logger

	// sendSlot admits one send at a time; waiting honors ctx
	sendSlot chan struct{}

	mu       sync.RWMutex
	state    State
	lastErr  string
	lastHash string
}

// NewSender creates a Sender.
//
// Parameters:
//   - gate: Proof-of-presence check run before every send
//   - signers: Signer provider of the wallet session; used to switch wallets
//   - factory: Account client factory
//   - l: Logger; may be nil
//
// Returns:
//   - *Sender: The sender, in state Idle
func NewSender(gate IGate, signers *signer.Provider, factory IClientFactory, l *zap.Logger) *Sender {
	return &Sender{
		gate:     gate,
		signers:  signers,
		factory:  factory,
		logger:   logger.NamedOrNop(l, "gaslessSender"),
		sendSlot: make(chan struct{}, 1),
	}
}

// SendGaslessTransaction gates on biometrics, ensures the account client and
// submits calls as one user operation. A single call uses the account's
// execute path; several calls are batched and run on-chain in the given order.
//
// Parameters:
//   - ctx: Context for the gate, initialization and submission
//   - calls: At least one call
//
// Returns:
//   - string: The user operation hash
//   - error: A *SendError describing which stage failed
func (s *Sender) SendGaslessTransaction(ctx context.Context, calls []GaslessCall) (string, error) {
	if len(calls) == 0 {
		return "", s.reject(&SendError{Kind: NoCalls, Err: ErrNoCalls})
	}
	converted, err := util.MapErr(calls, toAccountCall)
	if err != nil {
		return "", s.reject(&SendError{Kind: InvalidCall, Err: err})
	}

	select {
	case s.sendSlot <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-s.sendSlot }()

	sendId := uuid.New().String()
	log := s.logger.With(zap.String("sendId", sendId))

	s.begin()
	defer s.settle()

	log.Sugar().Infow("checking biometric gate", zap.Int("calls", len(converted)))
	if err := s.gate.Check(ctx); err != nil {
		kind := GateAuthenticationFailed
		if errors.Is(err, biometricGate.ErrUserCancelled) {
			kind = GateUserCancelled
		}
		log.Sugar().Infow("send aborted at biometric gate", zap.String("kind", kind.String()), zap.Error(err))
		return "", s.finish(Aborted, &SendError{Kind: kind, Err: err})
	}

	s.setState(Initializing)
	client, err := s.factory.EnsureClient(ctx)
	if err != nil {
		log.Sugar().Errorw("failed to initialize account client", zap.Error(err))
		return "", s.finish(Failed, &SendError{Kind: InitFailed, Err: err})
	}
	s.setState(Ready)

	s.setState(Submitting)
	var hash common.Hash
	if len(converted) == 1 {
		hash, err = client.SendUserOperation(ctx, converted[0])
	} else {
		hash, err = client.SendBatchUserOperation(ctx, converted)
	}
	if err != nil {
		log.Sugar().Errorw("failed to submit user operation", zap.Error(err))
		return "", s.finish(Failed, &SendError{Kind: SubmissionFailed, Err: err})
	}

	s.mu.Lock()
	s.lastHash = hash.Hex()
	s.mu.Unlock()
	s.finish(Done, nil)

	log.Sugar().Infow("gasless transaction submitted",
		zap.String("userOpHash", hash.Hex()),
		zap.String("sender", client.Address().String()),
		zap.Strings("targets", util.Map(converted, func(c accountClient.Call, _ uint64) string {
			return c.Target.String()
		})),
	)
	return hash.Hex(), nil
}

// WaitForReceipt waits for a submitted user operation to be included.
func (s *Sender) WaitForReceipt(ctx context.Context, hash string) (*accountClient.UserOperationReceipt, error) {
	client, err := s.factory.EnsureClient(ctx)
	if err != nil {
		return nil, &SendError{Kind: InitFailed, Err: err}
	}
	return client.WaitForUserOperationReceipt(ctx, common.HexToHash(hash))
}

// SmartAccountAddress initializes the account client if needed and returns its address.
// It does not pass the biometric gate since nothing is signed for submission.
func (s *Sender) SmartAccountAddress(ctx context.Context) (common.Address, error) {
	client, err := s.factory.EnsureClient(ctx)
	if err != nil {
		return common.Address{}, &SendError{Kind: InitFailed, Err: err}
	}
	return client.Address(), nil
}

// RefreshAuthorization re-signs the delegation authorization, for example after
// its nonce was consumed by another transaction.
func (s *Sender) RefreshAuthorization(ctx context.Context) (*delegation.Authorization, error) {
	s.mu.RLock()
	busy := s.state.InProgress()
	s.mu.RUnlock()
	if busy {
		return nil, fmt.Errorf("cannot refresh authorization while a send is in progress")
	}
	return s.factory.RefreshAuthorization(ctx)
}

// SetWallet switches the embedded wallet. When the account changes the cached
// signer, authorization and client are dropped.
//
// Returns:
//   - bool: true when the account changed
func (s *Sender) SetWallet(w wallet.IEmbeddedWallet) bool {
	if !s.signers.SetWallet(w) {
		return false
	}
	s.factory.Reset()
	s.mu.Lock()
	s.state = Idle
	s.lastErr = ""
	s.lastHash = ""
	s.mu.Unlock()
	s.logger.Sugar().Infow("wallet switched, session state cleared")
	return true
}

// Status returns a snapshot of the sender and its cached session state.
func (s *Sender) Status() Status {
	s.mu.RLock()
	st := Status{
		State:             s.state,
		IsSending:         s.state.InProgress(),
		LastError:         s.lastErr,
		LastOperationHash: s.lastHash,
	}
	s.mu.RUnlock()

	st.IsInitializing = st.State == Initializing || s.factory.IsInitializing()
	if addr, ok := s.factory.SmartAccountAddress(); ok {
		st.SmartAccountAddress = &addr
	}
	if auth, ok := s.factory.CurrentAuthorization(); ok {
		st.CurrentAuthorization = auth
	}
	return st
}

func (s *Sender) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Gating
	s.lastErr = ""
}

func (s *Sender) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// finish moves to a terminal state and records err, which it returns.
func (s *Sender) finish(state State, err *SendError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if err == nil {
		return nil
	}
	s.lastErr = err.Error()
	return err
}

// settle guarantees no send is left looking in progress, whatever the exit path.
func (s *Sender) settle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.InProgress() {
		s.state = Failed
	}
}

// reject records an error raised before the send started.
func (s *Sender) reject(err *SendError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err.Error()
	return err
}

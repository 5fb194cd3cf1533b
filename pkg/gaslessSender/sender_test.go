package gaslessSender

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Layr-Labs/gasless-go/pkg/accountClient"
	"github.com/Layr-Labs/gasless-go/pkg/authorizationManager"
	"github.com/Layr-Labs/gasless-go/pkg/biometricGate"
	"github.com/Layr-Labs/gasless-go/pkg/delegation"
	"github.com/Layr-Labs/gasless-go/pkg/signer"
	"github.com/Layr-Labs/gasless-go/pkg/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testChainId = uint64(8453)

var (
	testImplementation = common.HexToAddress("0x69007702764179f14F51cdce752f4f775d74E139")
	callA              = GaslessCall{To: "0xAAAA000000000000000000000000000000000001"}
	callB              = GaslessCall{To: "0xBBBB000000000000000000000000000000000002", Data: "0x1234", Value: "1.5"}
	opHash             = common.HexToHash("0x5f1c9d0e6c1b0c7a3fe3b8b4d4b0f1f4f6a2c0e6d5a2b1c3e4f5a6b7c8d9e0f1")
)

type mockBiometricService struct {
	mock.Mock
}

func (m *mockBiometricService) Authenticate(ctx context.Context, opts biometricGate.AuthenticateOptions) (*biometricGate.AuthenticateResult, error) {
	args := m.Called(ctx, opts)
	r, _ := args.Get(0).(*biometricGate.AuthenticateResult)
	return r, args.Error(1)
}

type mockChainWalletClient struct {
	mock.Mock
}

func (m *mockChainWalletClient) PrepareAuthorization(ctx context.Context, params authorizationManager.PrepareAuthorizationParams) (*delegation.UnsignedAuthorization, error) {
	args := m.Called(ctx, params)
	u, _ := args.Get(0).(*delegation.UnsignedAuthorization)
	return u, args.Error(1)
}

type mockConstructor struct {
	mock.Mock
}

func (m *mockConstructor) Construct(ctx context.Context, params accountClient.ClientParams) (accountClient.IAccountClient, error) {
	args := m.Called(ctx, params)
	c, _ := args.Get(0).(accountClient.IAccountClient)
	return c, args.Error(1)
}

type mockAccountClient struct {
	mock.Mock
	address common.Address
}

func (m *mockAccountClient) Address() common.Address {
	return m.address
}

func (m *mockAccountClient) SendUserOperation(ctx context.Context, call accountClient.Call) (common.Hash, error) {
	args := m.Called(ctx, call)
	return args.Get(0).(common.Hash), args.Error(1)
}

func (m *mockAccountClient) SendBatchUserOperation(ctx context.Context, calls []accountClient.Call) (common.Hash, error) {
	args := m.Called(ctx, calls)
	return args.Get(0).(common.Hash), args.Error(1)
}

func (m *mockAccountClient) WaitForUserOperationReceipt(ctx context.Context, hash common.Hash) (*accountClient.UserOperationReceipt, error) {
	args := m.Called(ctx, hash)
	r, _ := args.Get(0).(*accountClient.UserOperationReceipt)
	return r, args.Error(1)
}

type countingWallet struct {
	*wallet.PrivateKeyWallet
	providers atomic.Int32
}

func (w *countingWallet) GetProvider(ctx context.Context) (wallet.IProvider, error) {
	w.providers.Add(1)
	return w.PrivateKeyWallet.GetProvider(ctx)
}

func newCountingWallet(t *testing.T) *countingWallet {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &countingWallet{PrivateKeyWallet: wallet.NewPrivateKeyWalletFromKey(key, nil)}
}

type senderHarness struct {
	sender      *Sender
	biometrics  *mockBiometricService
	chainClient *mockChainWalletClient
	constructor *mockConstructor
	client      *mockAccountClient
	wallet      *countingWallet
}

func newSenderHarness(t *testing.T, biometricsEnabled bool) *senderHarness {
	h := &senderHarness{
		biometrics:  &mockBiometricService{},
		chainClient: &mockChainWalletClient{},
		constructor: &mockConstructor{},
		wallet:      newCountingWallet(t),
	}
	h.client = &mockAccountClient{address: h.wallet.Address()}

	gate, err := biometricGate.NewGate(&biometricGate.Config{Enabled: biometricsEnabled}, h.biometrics, nil)
	require.NoError(t, err)
	signers := signer.NewProvider(h.wallet, nil)
	manager, err := authorizationManager.NewManager(&authorizationManager.Config{
		ChainID:               testChainId,
		ImplementationAddress: testImplementation,
	}, signers, h.chainClient, nil)
	require.NoError(t, err)
	factory, err := accountClient.NewFactory(&accountClient.Config{
		ChainID:               testChainId,
		ImplementationAddress: testImplementation,
		BundlerURL:            "https://bundler.example.com",
		PolicyID:              "policy-1",
	}, signers, manager, h.constructor, nil)
	require.NoError(t, err)

	h.sender = NewSender(gate, signers, factory, nil)
	return h
}

func (h *senderHarness) expectInit() {
	h.chainClient.On("PrepareAuthorization", mock.Anything, mock.Anything).Return(&delegation.UnsignedAuthorization{
		ContractAddress: testImplementation,
		ChainID:         testChainId,
	}, nil).Once()
	h.constructor.On("Construct", mock.Anything, mock.Anything).Return(h.client, nil).Once()
}

func assertKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	got, ok := KindOf(err)
	require.True(t, ok, "expected *SendError, got %v", err)
	assert.Equal(t, kind, got)
}

func TestSendGaslessTransaction_EmptyCalls(t *testing.T) {
	h := newSenderHarness(t, true)

	_, err := h.sender.SendGaslessTransaction(context.Background(), nil)
	assertKind(t, err, NoCalls)
	assert.ErrorIs(t, err, ErrNoCalls)

	_, err = h.sender.SendGaslessTransaction(context.Background(), []GaslessCall{})
	assertKind(t, err, NoCalls)

	h.biometrics.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
	h.constructor.AssertNotCalled(t, "Construct", mock.Anything, mock.Anything)
	assert.Equal(t, int32(0), h.wallet.providers.Load())
	assert.Equal(t, Idle, h.sender.Status().State)
}

func TestSendGaslessTransaction_InvalidCall(t *testing.T) {
	h := newSenderHarness(t, true)

	for _, c := range []GaslessCall{
		{To: "not-an-address"},
		{To: "0x0000000000000000000000000000000000000000"},
		{To: callA.To, Value: "-1"},
		{To: callA.To, Value: "0.0000000000000000001"},
		{To: callA.To, Data: "zz"},
	} {
		_, err := h.sender.SendGaslessTransaction(context.Background(), []GaslessCall{c})
		assertKind(t, err, InvalidCall)
	}
	h.biometrics.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
}

func TestSendGaslessTransaction_FailClosed(t *testing.T) {
	tests := []struct {
		name   string
		result *biometricGate.AuthenticateResult
		err    error
		kind   ErrorKind
	}{
		{name: "user cancelled", result: &biometricGate.AuthenticateResult{Error: biometricGate.ErrorCodeUserCancel}, kind: GateUserCancelled},
		{name: "not recognized", result: &biometricGate.AuthenticateResult{Error: "lockout"}, kind: GateAuthenticationFailed},
		{name: "service error", err: errors.New("sensor unavailable"), kind: GateAuthenticationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newSenderHarness(t, true)
			h.biometrics.On("Authenticate", mock.Anything, mock.Anything).Return(tt.result, tt.err).Once()

			_, err := h.sender.SendGaslessTransaction(context.Background(), []GaslessCall{callA})
			assertKind(t, err, tt.kind)
			assert.Equal(t, tt.kind == GateUserCancelled, IsUserCancellation(err))

			h.constructor.AssertNotCalled(t, "Construct", mock.Anything, mock.Anything)
			h.chainClient.AssertNotCalled(t, "PrepareAuthorization", mock.Anything, mock.Anything)
			h.client.AssertNotCalled(t, "SendUserOperation", mock.Anything, mock.Anything)
			h.client.AssertNotCalled(t, "SendBatchUserOperation", mock.Anything, mock.Anything)
			assert.Equal(t, int32(0), h.wallet.providers.Load())

			status := h.sender.Status()
			assert.Equal(t, Aborted, status.State)
			assert.False(t, status.IsSending)
			assert.NotEmpty(t, status.LastError)
		})
	}
}

func TestSendGaslessTransaction_ReauthenticatesEverySend(t *testing.T) {
	h := newSenderHarness(t, true)
	h.expectInit()
	h.biometrics.On("Authenticate", mock.Anything, biometricGate.AuthenticateOptions{
		PromptMessage: biometricGate.DefaultPromptMessage,
		CancelLabel:   biometricGate.DefaultCancelLabel,
	}).Return(&biometricGate.AuthenticateResult{Success: true}, nil)
	h.client.On("SendUserOperation", mock.Anything, mock.Anything).Return(opHash, nil)

	for i := 0; i < 3; i++ {
		_, err := h.sender.SendGaslessTransaction(context.Background(), []GaslessCall{callA})
		require.NoError(t, err)
	}
	h.biometrics.AssertNumberOfCalls(t, "Authenticate", 3)
}

func TestSendGaslessTransaction_SinglePath(t *testing.T) {
	h := newSenderHarness(t, false)
	h.expectInit()
	h.client.On("SendUserOperation", mock.Anything, accountClient.Call{
		Target: common.HexToAddress(callA.To),
		Value:  new(big.Int),
	}).Return(opHash, nil).Once()

	hash, err := h.sender.SendGaslessTransaction(context.Background(), []GaslessCall{callA})
	require.NoError(t, err)
	assert.Equal(t, opHash.Hex(), hash)
	h.client.AssertExpectations(t)
	h.client.AssertNotCalled(t, "SendBatchUserOperation", mock.Anything, mock.Anything)
}

func TestSendGaslessTransaction_BatchPreservesOrder(t *testing.T) {
	h := newSenderHarness(t, false)
	h.expectInit()
	h.client.On("SendBatchUserOperation", mock.Anything, mock.Anything).Return(opHash, nil).Once()

	_, err := h.sender.SendGaslessTransaction(context.Background(), []GaslessCall{callA, callB})
	require.NoError(t, err)

	h.client.AssertNotCalled(t, "SendUserOperation", mock.Anything, mock.Anything)
	batch := h.client.Calls[0].Arguments.Get(1).([]accountClient.Call)
	require.Len(t, batch, 2)
	assert.Equal(t, common.HexToAddress(callA.To), batch[0].Target)
	assert.Equal(t, "0", batch[0].Value.String())
	assert.Equal(t, common.HexToAddress(callB.To), batch[1].Target)
	assert.Equal(t, "1500000000000000000", batch[1].Value.String())
	assert.Equal(t, []byte{0x12, 0x34}, batch[1].Data)
}

func TestSendGaslessTransaction_HappyPath(t *testing.T) {
	h := newSenderHarness(t, false)
	h.expectInit()
	h.client.On("SendUserOperation", mock.Anything, mock.MatchedBy(func(c accountClient.Call) bool {
		return c.Value.String() == "10000000000000000"
	})).Return(opHash, nil).Twice()

	call := GaslessCall{To: "0xAAAA000000000000000000000000000000000001", Value: "0.01"}
	hash, err := h.sender.SendGaslessTransaction(context.Background(), []GaslessCall{call})
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	_, err = h.sender.SendGaslessTransaction(context.Background(), []GaslessCall{call})
	require.NoError(t, err)

	assert.Equal(t, int32(1), h.wallet.providers.Load(), "signer constructed once")
	h.chainClient.AssertNumberOfCalls(t, "PrepareAuthorization", 1)
	h.constructor.AssertNumberOfCalls(t, "Construct", 1)

	status := h.sender.Status()
	assert.Equal(t, Done, status.State)
	assert.False(t, status.IsSending)
	assert.False(t, status.IsInitializing)
	assert.Empty(t, status.LastError)
	assert.Equal(t, hash, status.LastOperationHash)
	require.NotNil(t, status.SmartAccountAddress)
	assert.Equal(t, h.wallet.Address(), *status.SmartAccountAddress)
	require.NotNil(t, status.CurrentAuthorization)
	assert.Equal(t, testImplementation, status.CurrentAuthorization.TargetContract)
}

func TestSendGaslessTransaction_InitFailureDoesNotPoison(t *testing.T) {
	h := newSenderHarness(t, false)
	h.chainClient.On("PrepareAuthorization", mock.Anything, mock.Anything).Return(nil, errors.New("network error")).Once()
	h.expectInit()
	h.client.On("SendUserOperation", mock.Anything, mock.Anything).Return(opHash, nil).Once()

	_, err := h.sender.SendGaslessTransaction(context.Background(), []GaslessCall{callA})
	assertKind(t, err, InitFailed)
	assert.Contains(t, err.Error(), "network error")
	status := h.sender.Status()
	assert.Equal(t, Failed, status.State)
	assert.False(t, status.IsSending)
	assert.Contains(t, status.LastError, "network error")
	assert.Nil(t, status.SmartAccountAddress)

	hash, err := h.sender.SendGaslessTransaction(context.Background(), []GaslessCall{callA})
	require.NoError(t, err)
	assert.Equal(t, opHash.Hex(), hash)

	assert.Equal(t, int32(1), h.wallet.providers.Load(), "signer from the failed attempt is reused")
	assert.Empty(t, h.sender.Status().LastError)
}

func TestSendGaslessTransaction_SubmissionFailed(t *testing.T) {
	h := newSenderHarness(t, false)
	h.expectInit()
	h.client.On("SendUserOperation", mock.Anything, mock.Anything).Return(common.Hash{}, errors.New("AA23 reverted")).Once()

	_, err := h.sender.SendGaslessTransaction(context.Background(), []GaslessCall{callA})
	assertKind(t, err, SubmissionFailed)
	assert.EqualError(t, err, "AA23 reverted")

	status := h.sender.Status()
	assert.Equal(t, Failed, status.State)
	assert.False(t, status.IsSending)
	assert.Equal(t, "AA23 reverted", status.LastError)
	require.NotNil(t, status.SmartAccountAddress, "client stays cached after a submission failure")
}

func TestSendGaslessTransaction_StatusWhileSubmitting(t *testing.T) {
	h := newSenderHarness(t, false)
	h.expectInit()
	var during Status
	h.client.On("SendUserOperation", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		during = h.sender.Status()
	}).Return(opHash, nil).Once()

	_, err := h.sender.SendGaslessTransaction(context.Background(), []GaslessCall{callA})
	require.NoError(t, err)
	assert.Equal(t, Submitting, during.State)
	assert.True(t, during.IsSending)
	assert.False(t, h.sender.Status().IsSending)
}

func TestSendGaslessTransaction_Serialized(t *testing.T) {
	h := newSenderHarness(t, false)
	h.expectInit()

	var active, maxActive atomic.Int32
	h.client.On("SendUserOperation", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
	}).Return(opHash, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.sender.SendGaslessTransaction(context.Background(), []GaslessCall{callA})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	h.constructor.AssertNumberOfCalls(t, "Construct", 1)
	assert.Equal(t, int32(1), h.wallet.providers.Load())
}

func TestSendGaslessTransaction_WaitingHonorsContext(t *testing.T) {
	h := newSenderHarness(t, false)
	h.sender.sendSlot <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.sender.SendGaslessTransaction(ctx, []GaslessCall{callA})
	assert.ErrorIs(t, err, context.Canceled)
	h.constructor.AssertNotCalled(t, "Construct", mock.Anything, mock.Anything)
}

func TestSender_SetWallet(t *testing.T) {
	h := newSenderHarness(t, false)
	h.expectInit()
	h.client.On("SendUserOperation", mock.Anything, mock.Anything).Return(opHash, nil)

	_, err := h.sender.SendGaslessTransaction(context.Background(), []GaslessCall{callA})
	require.NoError(t, err)

	assert.False(t, h.sender.SetWallet(h.wallet), "same account keeps the session")
	assert.NotNil(t, h.sender.Status().SmartAccountAddress)

	other := newCountingWallet(t)
	require.True(t, h.sender.SetWallet(other))

	status := h.sender.Status()
	assert.Equal(t, Idle, status.State)
	assert.Nil(t, status.SmartAccountAddress)
	assert.Nil(t, status.CurrentAuthorization)

	otherClient := &mockAccountClient{address: other.Address()}
	otherClient.On("SendUserOperation", mock.Anything, mock.Anything).Return(opHash, nil).Once()
	h.chainClient.On("PrepareAuthorization", mock.Anything, mock.MatchedBy(func(p authorizationManager.PrepareAuthorizationParams) bool {
		return p.Account == other.Address()
	})).Return(&delegation.UnsignedAuthorization{ContractAddress: testImplementation, ChainID: testChainId}, nil).Once()
	h.constructor.On("Construct", mock.Anything, mock.MatchedBy(func(p accountClient.ClientParams) bool {
		return p.Signer.Address() == other.Address()
	})).Return(otherClient, nil).Once()

	_, err = h.sender.SendGaslessTransaction(context.Background(), []GaslessCall{callA})
	require.NoError(t, err)
	otherClient.AssertExpectations(t)

	authority, err := h.sender.Status().CurrentAuthorization.Authority()
	require.NoError(t, err)
	assert.Equal(t, other.Address(), authority)
}

func TestSender_NoWallet(t *testing.T) {
	h := newSenderHarness(t, false)
	h.sender.SetWallet(nil)

	_, err := h.sender.SendGaslessTransaction(context.Background(), []GaslessCall{callA})
	assertKind(t, err, InitFailed)
	assert.ErrorIs(t, err, wallet.ErrNoWallet)
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "0"},
		{in: "0", want: "0"},
		{in: "0.01", want: "10000000000000000"},
		{in: "1", want: "1000000000000000000"},
		{in: " 2.5 ", want: "2500000000000000000"},
		{in: "0.000000000000000001", want: "1"},
		{in: "0.0000000000000000001", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseUnits(tt.in, NativeDecimals)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got.String(), tt.in)
	}
}

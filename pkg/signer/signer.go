// Package signer derives an authorization-capable signer from an embedded wallet.
// The Signer adds EIP-7702 authorization signing on top of the wallet's raw
// signing capability; the Provider memoizes it per wallet session.
package signer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Layr-Labs/gasless-go/pkg/delegation"
	"github.com/Layr-Labs/gasless-go/pkg/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// ISigner is the signing surface the account client needs.
type ISigner interface {
	// Address returns the externally owned account behind the signer
	Address() common.Address
	// SignAuthorization signs an EIP-7702 delegation authorization
	SignAuthorization(ctx context.Context, unsigned *delegation.UnsignedAuthorization) (*delegation.Authorization, error)
	// SignUserOperationHash signs a user operation hash with the EIP-191 prefix
	SignUserOperationHash(ctx context.Context, hash common.Hash) ([]byte, error)
}

// Signer wraps an embedded wallet's provider. It is created once per wallet session.
type Signer struct {
	address  common.Address
	provider wallet.IProvider
	logger   *zap.Logger
}

// Address returns the wallet's externally owned account.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignAuthorization signs the EIP-7702 authorization hash of unsigned with the
// wallet's raw secp256k1 signing method (no personal-message prefix) and
// returns the preimage together with the decomposed r, s and y-parity.
//
// Parameters:
//   - ctx: Context for the wallet request
//   - unsigned: The authorization preimage; its ContractAddress is required
//
// Returns:
//   - *delegation.Authorization: The signed authorization
//   - error: ErrMissingAuthorizationTarget, or an error from the wallet
func (s *Signer) SignAuthorization(ctx context.Context, unsigned *delegation.UnsignedAuthorization) (*delegation.Authorization, error) {
	if err := unsigned.Validate(); err != nil {
		return nil, err
	}
	preimage := &delegation.UnsignedAuthorization{
		ContractAddress: unsigned.ContractAddress,
		ChainID:         unsigned.ChainID,
		Nonce:           unsigned.Nonce,
	}
	hash := preimage.Hash()

	s.logger.Sugar().Debugw("signing delegation authorization",
		zap.String("account", s.address.String()),
		zap.String("target", preimage.ContractAddress.String()),
		zap.Uint64("chainId", preimage.ChainID),
		zap.Uint64("nonce", preimage.Nonce),
		zap.String("hash", hash.Hex()),
	)

	sig, err := s.request(ctx, wallet.MethodSecp256k1Sign, hash.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization hash: %w", err)
	}

	auth, err := delegation.NewAuthorization(preimage, sig)
	if err != nil {
		return nil, fmt.Errorf("wallet returned an unusable signature: %w", err)
	}
	return auth, nil
}

// SignUserOperationHash signs hash as an EIP-191 personal message and returns
// the 65-byte signature with the 27/28 recovery id smart accounts verify against.
func (s *Signer) SignUserOperationHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	sig, err := s.request(ctx, wallet.MethodPersonalSign, hash.Hex(), s.address.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to sign user operation hash: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("wallet returned %d byte signature: %w", len(sig), delegation.ErrInvalidSignatureLength)
	}
	_, _, yParity, err := delegation.DecomposeSignature(sig)
	if err != nil {
		return nil, err
	}
	sig[64] = yParity + 27
	return sig, nil
}

func (s *Signer) request(ctx context.Context, method string, params ...interface{}) ([]byte, error) {
	raw, err := s.provider.Request(ctx, wallet.RequestArguments{Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	var out hexutil.Bytes
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return out, nil
}

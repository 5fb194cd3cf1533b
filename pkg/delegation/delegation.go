// Package delegation defines EIP-7702 delegation authorizations: the signed
// statement that lets an externally owned account run the code of a smart
// contract implementation on a given chain at a given account nonce.
package delegation

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

var (
	// ErrMissingAuthorizationTarget is returned when an unsigned authorization names no contract
	ErrMissingAuthorizationTarget = errors.New("authorization is missing its target contract")
	// ErrInvalidSignatureLength is returned when a signature is not 65 bytes
	ErrInvalidSignatureLength = errors.New("signature must be 65 bytes")
	// ErrInvalidRecoveryID is returned when the recovery byte is not one of 0, 1, 27, 28
	ErrInvalidRecoveryID = errors.New("invalid signature recovery id")
)

// DelegationDesignatorPrefix is the code prefix of an account delegated under EIP-7702.
var DelegationDesignatorPrefix = []byte{0xef, 0x01, 0x00}

// UnsignedAuthorization is the preimage of a delegation authorization.
// ContractAddress is the single required target field.
type UnsignedAuthorization struct {
	ContractAddress common.Address `json:"address"`
	ChainID         uint64         `json:"chainId"`
	Nonce           uint64         `json:"nonce"`
}

// Validate checks that the preimage names a target contract.
func (u *UnsignedAuthorization) Validate() error {
	if u == nil || u.ContractAddress == (common.Address{}) {
		return ErrMissingAuthorizationTarget
	}
	return nil
}

// Hash computes the EIP-7702 authorization hash keccak256(0x05 || rlp([chainId, address, nonce])).
func (u *UnsignedAuthorization) Hash() common.Hash {
	auth := types.SetCodeAuthorization{
		ChainID: *uint256.NewInt(u.ChainID),
		Address: u.ContractAddress,
		Nonce:   u.Nonce,
	}
	return auth.SigHash()
}

// Authorization is a signed delegation. It is immutable once created.
type Authorization struct {
	TargetContract common.Address `json:"address"`
	ChainID        uint64         `json:"chainId"`
	Nonce          uint64         `json:"nonce"`
	R              common.Hash    `json:"r"`
	S              common.Hash    `json:"s"`
	// V is the y-parity of the signature, 0 or 1
	V uint8 `json:"yParity"`
}

// NewAuthorization combines a preimage with a 65-byte [R || S || V] signature over its hash.
func NewAuthorization(unsigned *UnsignedAuthorization, signature []byte) (*Authorization, error) {
	if err := unsigned.Validate(); err != nil {
		return nil, err
	}
	r, s, v, err := DecomposeSignature(signature)
	if err != nil {
		return nil, err
	}
	return &Authorization{
		TargetContract: unsigned.ContractAddress,
		ChainID:        unsigned.ChainID,
		Nonce:          unsigned.Nonce,
		R:              r,
		S:              s,
		V:              v,
	}, nil
}

// Unsigned returns the preimage this authorization signs.
func (a *Authorization) Unsigned() *UnsignedAuthorization {
	return &UnsignedAuthorization{
		ContractAddress: a.TargetContract,
		ChainID:         a.ChainID,
		Nonce:           a.Nonce,
	}
}

// ToSetCodeAuthorization converts to go-ethereum's SetCodeTx authorization tuple.
func (a *Authorization) ToSetCodeAuthorization() types.SetCodeAuthorization {
	return types.SetCodeAuthorization{
		ChainID: *uint256.NewInt(a.ChainID),
		Address: a.TargetContract,
		Nonce:   a.Nonce,
		V:       a.V,
		R:       *new(uint256.Int).SetBytes32(a.R[:]),
		S:       *new(uint256.Int).SetBytes32(a.S[:]),
	}
}

// Authority recovers the account that signed the authorization.
func (a *Authorization) Authority() (common.Address, error) {
	sca := a.ToSetCodeAuthorization()
	return sca.Authority()
}

// Matches reports whether the authorization delegates to implementation on chainId.
func (a *Authorization) Matches(implementation common.Address, chainId uint64) bool {
	return a != nil && a.TargetContract == implementation && a.ChainID == chainId
}

// RPCAuthorization is the hex-quantity JSON shape bundlers accept for an authorization.
type RPCAuthorization struct {
	ChainID hexutil.Uint64 `json:"chainId"`
	Address common.Address `json:"address"`
	Nonce   hexutil.Uint64 `json:"nonce"`
	YParity hexutil.Uint64 `json:"yParity"`
	R       *hexutil.Big   `json:"r"`
	S       *hexutil.Big   `json:"s"`
}

// ToRPC renders the authorization for a JSON-RPC request.
func (a *Authorization) ToRPC() *RPCAuthorization {
	return &RPCAuthorization{
		ChainID: hexutil.Uint64(a.ChainID),
		Address: a.TargetContract,
		Nonce:   hexutil.Uint64(a.Nonce),
		YParity: hexutil.Uint64(a.V),
		R:       (*hexutil.Big)(new(big.Int).SetBytes(a.R[:])),
		S:       (*hexutil.Big)(new(big.Int).SetBytes(a.S[:])),
	}
}

// DecomposeSignature splits a 65-byte signature into r (bytes 0-31), s (bytes 32-63)
// and the y-parity derived from byte 64. Both the 0/1 and the legacy 27/28
// recovery conventions are accepted; the result is always 0 or 1.
func DecomposeSignature(sig []byte) (r common.Hash, s common.Hash, yParity uint8, err error) {
	if len(sig) != 65 {
		return common.Hash{}, common.Hash{}, 0, fmt.Errorf("got %d bytes: %w", len(sig), ErrInvalidSignatureLength)
	}
	v := sig[64]
	switch v {
	case 0, 1:
		yParity = v
	case 27, 28:
		yParity = v - 27
	default:
		return common.Hash{}, common.Hash{}, 0, fmt.Errorf("recovery byte %d: %w", v, ErrInvalidRecoveryID)
	}
	copy(r[:], sig[0:32])
	copy(s[:], sig[32:64])
	return r, s, yParity, nil
}

// IsDelegatedTo reports whether account code is the EIP-7702 delegation designator pointing at implementation.
func IsDelegatedTo(code []byte, implementation common.Address) bool {
	if len(code) != len(DelegationDesignatorPrefix)+common.AddressLength {
		return false
	}
	if !bytes.HasPrefix(code, DelegationDesignatorPrefix) {
		return false
	}
	return common.BytesToAddress(code[len(DelegationDesignatorPrefix):]) == implementation
}

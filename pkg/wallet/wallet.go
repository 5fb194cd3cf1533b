// Package wallet models the embedded wallet the gasless stack signs with.
// The wallet itself owns key custody; the rest of the stack only sees its
// address and an EIP-1193 style request provider. This package also ships
// the concrete wallets the CLI uses: a raw private key, an AWS KMS key and a
// private key held in AWS Secrets Manager.
package wallet

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MethodAccounts lists the wallet's accounts
	MethodAccounts = "eth_accounts"
	// MethodSecp256k1Sign signs a raw 32-byte hash without any message prefix
	MethodSecp256k1Sign = "secp256k1_sign"
	// MethodPersonalSign signs the EIP-191 "Ethereum Signed Message" digest of its input
	MethodPersonalSign = "personal_sign"
)

var (
	// ErrNoWallet is returned when no embedded wallet is available
	ErrNoWallet = errors.New("no embedded wallet available")
	// ErrUnsupportedMethod is returned by providers for methods they do not serve
	ErrUnsupportedMethod = errors.New("unsupported provider method")
	// ErrInvalidParams is returned when a request carries malformed params
	ErrInvalidParams = errors.New("invalid provider request params")
)

// RequestArguments is a single provider request.
type RequestArguments struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params,omitempty"`
}

// IProvider is the low-level request interface exposed by an embedded wallet.
// Results are returned JSON encoded, as a wallet RPC would.
type IProvider interface {
	Request(ctx context.Context, args RequestArguments) (json.RawMessage, error)
}

// IEmbeddedWallet is the externally owned wallet. It is read-only to this library.
type IEmbeddedWallet interface {
	// Address returns the externally owned account of the wallet
	Address() common.Address
	// GetProvider resolves the wallet's request provider
	GetProvider(ctx context.Context) (IProvider, error)
}

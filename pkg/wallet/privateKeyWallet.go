package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/Layr-Labs/gasless-go/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// PrivateKeyWallet implements IEmbeddedWallet using a raw secp256k1 private key held in memory.
type PrivateKeyWallet struct {
	privateKey *ecdsa.PrivateKey
	addr       common.Address
	logger     *zap.Logger
}

// NewPrivateKeyWallet creates a new PrivateKeyWallet from a hex-encoded private key.
//
// Parameters:
//   - privateKeyHex: The private key, with or without 0x prefix
//   - l: Logger for provider requests; may be nil
//
// Returns:
//   - *PrivateKeyWallet: The wallet
//   - error: An error if the key cannot be parsed
func NewPrivateKeyWallet(privateKeyHex string, l *zap.Logger) (*PrivateKeyWallet, error) {
	privateKeyHex = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewPrivateKeyWalletFromKey(privateKey, l), nil
}

// NewPrivateKeyWalletFromKey wraps an already parsed key.
func NewPrivateKeyWalletFromKey(privateKey *ecdsa.PrivateKey, l *zap.Logger) *PrivateKeyWallet {
	return &PrivateKeyWallet{
		privateKey: privateKey,
		addr:       crypto.PubkeyToAddress(privateKey.PublicKey),
		logger:     logger.NamedOrNop(l, "privateKeyWallet"),
	}
}

// Address returns the address associated with this private key
func (p *PrivateKeyWallet) Address() common.Address {
	return p.addr
}

// GetProvider returns a provider that signs with the in-memory key.
func (p *PrivateKeyWallet) GetProvider(ctx context.Context) (IProvider, error) {
	return &localProvider{signer: p, logger: p.logger}, nil
}

func (p *PrivateKeyWallet) address() common.Address {
	return p.addr
}

func (p *PrivateKeyWallet) signHash(ctx context.Context, hash []byte) ([]byte, error) {
	return crypto.Sign(hash, p.privateKey)
}

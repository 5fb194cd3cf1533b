package wallet

import (
	"context"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/gasless-go/pkg/logger"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

var (
	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// AWSKMSWallet implements IEmbeddedWallet with an ECC_SECG_P256K1 key held in AWS KMS.
// The key never leaves KMS; every signature is a KMS Sign call over the digest.
type AWSKMSWallet struct {
	kmsClient kmsiface.KMSAPI
	keyID     string
	addr      common.Address
	logger    *zap.Logger
}

// NewAWSKMSWallet creates a new AWSKMSWallet with the specified KMS key ID and AWS region.
// This constructor establishes a connection to AWS KMS and derives the Ethereum address
// from the public key associated with the specified KMS key.
//
// Parameters:
//   - ctx: Context for the public key lookup
//   - keyID: The AWS KMS key ID or ARN for signing operations
//   - region: The AWS region where the KMS key is located
//   - l: Logger; may be nil
//
// Returns:
//   - *AWSKMSWallet: A new AWS KMS wallet instance
//   - error: An error if the AWS session cannot be created or the key is invalid
func NewAWSKMSWallet(ctx context.Context, keyID, region string, l *zap.Logger) (*AWSKMSWallet, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewAWSKMSWalletWithClient(ctx, kms.New(sess), keyID, l)
}

// NewAWSKMSWalletWithClient is NewAWSKMSWallet with a caller supplied KMS client.
func NewAWSKMSWalletWithClient(ctx context.Context, client kmsiface.KMSAPI, keyID string, l *zap.Logger) (*AWSKMSWallet, error) {
	address, err := getAddressFromKMSKey(ctx, client, keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive address from KMS key: %w", err)
	}

	return &AWSKMSWallet{
		kmsClient: client,
		keyID:     keyID,
		addr:      address,
		logger:    logger.NamedOrNop(l, "awsKmsWallet"),
	}, nil
}

// Address returns the Ethereum address derived from the KMS public key.
func (a *AWSKMSWallet) Address() common.Address {
	return a.addr
}

// GetProvider returns a provider that signs through KMS.
func (a *AWSKMSWallet) GetProvider(ctx context.Context) (IProvider, error) {
	return &localProvider{signer: a, logger: a.logger}, nil
}

func (a *AWSKMSWallet) address() common.Address {
	return a.addr
}

// signHash signs a digest using AWS KMS and returns it in [R || S || V] form with V in {0, 1}.
func (a *AWSKMSWallet) signHash(ctx context.Context, hash []byte) ([]byte, error) {
	input := &kms.SignInput{
		KeyId:            aws.String(a.keyID),
		Message:          hash,
		MessageType:      aws.String(kms.MessageTypeDigest),
		SigningAlgorithm: aws.String(kms.SigningAlgorithmSpecEcdsaSha256),
	}

	result, err := a.kmsClient.SignWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("KMS signing failed: %w", err)
	}

	r, s, err := parseASN1Signature(result.Signature)
	if err != nil {
		return nil, fmt.Errorf("failed to parse KMS signature: %w", err)
	}

	// Ethereum only accepts the lower half of the curve order for s
	if s.Cmp(secp256k1HalfN) > 0 {
		s = new(big.Int).Sub(secp256k1N, s)
	}

	signature := make([]byte, 65)
	r.FillBytes(signature[0:32])
	s.FillBytes(signature[32:64])

	// KMS does not return a recovery id, so try both and keep the one that recovers our address
	for v := 0; v < 2; v++ {
		signature[64] = byte(v)
		recovered, err := crypto.SigToPub(hash, signature)
		if err != nil {
			continue
		}
		if crypto.PubkeyToAddress(*recovered) == a.addr {
			return signature, nil
		}
	}

	return nil, fmt.Errorf("failed to determine recovery ID")
}

type ecdsaSignature struct {
	R, S *big.Int
}

type subjectPublicKeyInfo struct {
	Algorithm struct {
		Algorithm  asn1.ObjectIdentifier
		Parameters asn1.ObjectIdentifier
	}
	PublicKey asn1.BitString
}

// getAddressFromKMSKey derives the Ethereum address from a KMS public key
func getAddressFromKMSKey(ctx context.Context, client kmsiface.KMSAPI, keyID string) (common.Address, error) {
	result, err := client.GetPublicKeyWithContext(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(keyID),
	})
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get public key from KMS: %w", err)
	}

	var spki subjectPublicKeyInfo
	if _, err := asn1.Unmarshal(result.PublicKey, &spki); err != nil {
		return common.Address{}, fmt.Errorf("failed to parse DER public key: %w", err)
	}

	pubKey, err := crypto.UnmarshalPubkey(spki.PublicKey.Bytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to parse public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

// parseASN1Signature parses an ASN.1 DER encoded ECDSA signature into r and s values
func parseASN1Signature(signature []byte) (*big.Int, *big.Int, error) {
	var sig ecdsaSignature
	rest, err := asn1.Unmarshal(signature, &sig)
	if err != nil {
		return nil, nil, err
	}
	if len(rest) != 0 {
		return nil, nil, fmt.Errorf("trailing bytes after signature")
	}
	if sig.R == nil || sig.S == nil || sig.R.Sign() <= 0 || sig.S.Sign() <= 0 {
		return nil, nil, fmt.Errorf("signature has empty r or s")
	}
	return sig.R, sig.S, nil
}

package wallet

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	"go.uber.org/zap"
)

// AWSSMWalletConfig holds the configuration for a wallet whose private key lives in AWS Secrets Manager.
type AWSSMWalletConfig struct {
	// Region specifies the AWS region where the secret is stored
	Region string
	// SecretName is the name of the secret holding the hex-encoded private key
	SecretName string
	// VersionStage selects the secret version; defaults to AWSCURRENT
	VersionStage string
}

// NewAWSSMWallet loads a hex private key from AWS Secrets Manager and returns an in-memory wallet for it.
//
// Parameters:
//   - ctx: Context for the secret retrieval
//   - cfg: Secret location
//   - l: Logger; may be nil
//
// Returns:
//   - *PrivateKeyWallet: A wallet signing with the retrieved key
//   - error: An error if the secret cannot be read or does not hold a valid key
func NewAWSSMWallet(ctx context.Context, cfg *AWSSMWalletConfig, l *zap.Logger) (*PrivateKeyWallet, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewAWSSMWalletWithClient(ctx, secretsmanager.New(sess), cfg, l)
}

// NewAWSSMWalletWithClient is NewAWSSMWallet with a caller supplied Secrets Manager client.
func NewAWSSMWalletWithClient(ctx context.Context, svc secretsmanageriface.SecretsManagerAPI, cfg *AWSSMWalletConfig, l *zap.Logger) (*PrivateKeyWallet, error) {
	stage := cfg.VersionStage
	if stage == "" {
		stage = "AWSCURRENT"
	}

	result, err := svc.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(cfg.SecretName),
		VersionStage: aws.String(stage),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", cfg.SecretName, err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret string is nil")
	}

	w, err := NewPrivateKeyWallet(*result.SecretString, l)
	if err != nil {
		return nil, fmt.Errorf("secret %s does not hold a valid private key: %w", cfg.SecretName, err)
	}
	return w, nil
}

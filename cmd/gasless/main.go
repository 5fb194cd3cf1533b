package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Layr-Labs/gasless-go/pkg/accountClient"
	"github.com/Layr-Labs/gasless-go/pkg/authorizationManager"
	"github.com/Layr-Labs/gasless-go/pkg/biometricGate"
	"github.com/Layr-Labs/gasless-go/pkg/chainManager"
	"github.com/Layr-Labs/gasless-go/pkg/gaslessSender"
	"github.com/Layr-Labs/gasless-go/pkg/logger"
	"github.com/Layr-Labs/gasless-go/pkg/wallet"
	"github.com/ethereum/go-ethereum/common"
	cli "github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "gasless",
		Usage: "Gas-sponsored EIP-7702 smart account transactions",
		Description: `The gasless CLI delegates an externally owned account to a smart account
implementation with an EIP-7702 authorization and submits calls from it as
ERC-4337 user operations, with gas paid by a paymaster sponsorship policy.
Every send is confirmed by a proof-of-presence check first.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
				EnvVars: []string{"DEBUG"},
			},
			&cli.StringSliceFlag{
				Name:     "chains",
				Aliases:  []string{"c"},
				Usage:    "Blockchain configurations in format 'chainId:rpcUrl' (e.g., '8453:https://mainnet.base.org')",
				Required: true,
				EnvVars:  []string{"CHAINS"},
			},
			&cli.Uint64Flag{
				Name:    "chain-id",
				Usage:   "Chain to transact on (defaults to the first configured chain)",
				EnvVars: []string{"CHAIN_ID"},
			},
			&cli.StringFlag{
				Name:     "bundler-url",
				Usage:    "ERC-4337 bundler JSON-RPC endpoint",
				Required: true,
				EnvVars:  []string{"BUNDLER_URL"},
			},
			&cli.StringFlag{
				Name:    "paymaster-url",
				Usage:   "ERC-7677 paymaster JSON-RPC endpoint (defaults to the bundler)",
				EnvVars: []string{"PAYMASTER_URL"},
			},
			&cli.StringFlag{
				Name:    "policy-id",
				Usage:   "Gas sponsorship policy ID; without it the account pays its own gas",
				EnvVars: []string{"POLICY_ID"},
			},
			&cli.StringFlag{
				Name:     "implementation",
				Usage:    "Smart account implementation the account delegates to",
				Required: true,
				EnvVars:  []string{"IMPLEMENTATION_ADDRESS"},
			},
			&cli.StringFlag{
				Name:    "entry-point",
				Usage:   "ERC-4337 EntryPoint address",
				Value:   accountClient.DefaultEntryPoint.Hex(),
				EnvVars: []string{"ENTRY_POINT_ADDRESS"},
			},
			&cli.StringFlag{
				Name:    "executor",
				Usage:   "Who broadcasts the delegation: 'sponsor' or 'self'",
				Value:   "sponsor",
				EnvVars: []string{"EXECUTOR"},
			},
			// Wallet options
			&cli.StringFlag{
				Name:    "wallet-private-key",
				Usage:   "Wallet private key (hex format, with or without 0x prefix)",
				EnvVars: []string{"WALLET_PRIVATE_KEY"},
			},
			&cli.StringFlag{
				Name:    "wallet-aws-kms-key-id",
				Usage:   "AWS KMS key ID of a secp256k1 wallet key",
				EnvVars: []string{"WALLET_AWS_KMS_KEY_ID"},
			},
			&cli.StringFlag{
				Name:    "wallet-aws-secret-name",
				Usage:   "AWS Secrets Manager secret name containing the wallet private key",
				EnvVars: []string{"WALLET_AWS_SECRET_NAME"},
			},
			&cli.StringFlag{
				Name:    "wallet-aws-region",
				Usage:   "AWS region for the wallet KMS key or secret",
				Value:   "us-east-1",
				EnvVars: []string{"WALLET_AWS_REGION"},
			},
			&cli.BoolFlag{
				Name:    "biometrics",
				Usage:   "Require a terminal presence confirmation before every send",
				EnvVars: []string{"BIOMETRICS"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "send",
				Aliases: []string{"s"},
				Usage:   "Send one or more calls as a single sponsored user operation",
				Description: `Each --call is 'to[:value[:data]]' where value is a decimal amount of the
native token (e.g. 0.01) and data is 0x-prefixed calldata. Several calls are
batched and executed in the order given.`,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "call",
						Usage:    "Call in format 'to[:value[:data]]'",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Wait for the user operation to be included",
					},
				},
				Action: sendAction,
			},
			{
				Name:   "address",
				Usage:  "Print the smart account address",
				Action: addressAction,
			},
			{
				Name:  "authorize",
				Usage: "Sign and print the EIP-7702 delegation authorization",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Sign a fresh authorization at the current nonce",
					},
				},
				Action: authorizeAction,
			},
			{
				Name:  "receipt",
				Usage: "Wait for a user operation receipt",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "hash",
						Usage:    "User operation hash",
						Required: true,
					},
				},
				Action: receiptAction,
			},
		},
		Before: validateFlags,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func validateFlags(c *cli.Context) error {
	walletOptions := 0
	for _, name := range []string{"wallet-private-key", "wallet-aws-kms-key-id", "wallet-aws-secret-name"} {
		if c.String(name) != "" {
			walletOptions++
		}
	}
	if walletOptions == 0 {
		return fmt.Errorf("must specify one of: --wallet-private-key, --wallet-aws-kms-key-id, or --wallet-aws-secret-name")
	}
	if walletOptions > 1 {
		return fmt.Errorf("can only specify one wallet option")
	}

	if !common.IsHexAddress(c.String("implementation")) {
		return fmt.Errorf("invalid --implementation address: %s", c.String("implementation"))
	}
	if !common.IsHexAddress(c.String("entry-point")) {
		return fmt.Errorf("invalid --entry-point address: %s", c.String("entry-point"))
	}
	if _, err := parseExecutor(c.String("executor")); err != nil {
		return err
	}
	return nil
}

func setupLogger(c *cli.Context) (*zap.Logger, error) {
	return logger.NewLogger(&logger.LoggerConfig{
		Debug: c.Bool("debug"),
	})
}

func setupChainManager(ctx context.Context, c *cli.Context) (*chainManager.ChainManager, uint64, error) {
	cm := chainManager.NewChainManager()

	var first uint64
	for i, chainConfig := range c.StringSlice("chains") {
		parts := strings.SplitN(chainConfig, ":", 2)
		if len(parts) != 2 {
			return nil, 0, fmt.Errorf("invalid chain configuration: %s (expected format: 'chainId:rpcUrl')", chainConfig)
		}

		chainID, success := new(big.Int).SetString(parts[0], 10)
		if !success {
			return nil, 0, fmt.Errorf("invalid chain ID: %s", parts[0])
		}

		config := &chainManager.ChainConfig{
			ChainID: chainID.Uint64(),
			RPCUrl:  parts[1],
		}
		if err := cm.AddChain(ctx, config); err != nil {
			return nil, 0, fmt.Errorf("failed to add chain %d: %w", config.ChainID, err)
		}
		if i == 0 {
			first = config.ChainID
		}
	}

	chainId := c.Uint64("chain-id")
	if chainId == 0 {
		chainId = first
	}
	return cm, chainId, nil
}

func setupWallet(ctx context.Context, c *cli.Context, l *zap.Logger) (wallet.IEmbeddedWallet, error) {
	if privateKey := c.String("wallet-private-key"); privateKey != "" {
		return wallet.NewPrivateKeyWallet(privateKey, l)
	}
	if kmsKeyID := c.String("wallet-aws-kms-key-id"); kmsKeyID != "" {
		return wallet.NewAWSKMSWallet(ctx, kmsKeyID, c.String("wallet-aws-region"), l)
	}
	if secretName := c.String("wallet-aws-secret-name"); secretName != "" {
		return wallet.NewAWSSMWallet(ctx, &wallet.AWSSMWalletConfig{
			Region:     c.String("wallet-aws-region"),
			SecretName: secretName,
		}, l)
	}
	return nil, fmt.Errorf("no wallet configured")
}

func parseExecutor(s string) (authorizationManager.Executor, error) {
	switch s {
	case "", "sponsor":
		return authorizationManager.ExecutorSponsor, nil
	case "self":
		return authorizationManager.ExecutorSelf, nil
	default:
		return 0, fmt.Errorf("invalid --executor %q (expected 'sponsor' or 'self')", s)
	}
}

// parseCall parses 'to[:value[:data]]'.
func parseCall(s string) (gaslessSender.GaslessCall, error) {
	parts := strings.SplitN(s, ":", 3)
	if parts[0] == "" {
		return gaslessSender.GaslessCall{}, fmt.Errorf("invalid call %q (expected format: 'to[:value[:data]]')", s)
	}
	call := gaslessSender.GaslessCall{To: parts[0]}
	if len(parts) > 1 {
		call.Value = parts[1]
	}
	if len(parts) > 2 {
		call.Data = parts[2]
	}
	return call, nil
}

// setupSender builds the whole gasless stack from the global flags.
func setupSender(ctx context.Context, c *cli.Context) (*gaslessSender.Sender, *gaslessSender.Components, *zap.Logger, error) {
	l, err := setupLogger(c)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	cm, chainId, err := setupChainManager(ctx, c)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to setup chain manager: %w", err)
	}

	w, err := setupWallet(ctx, c, l)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to setup wallet: %w", err)
	}

	executor, err := parseExecutor(c.String("executor"))
	if err != nil {
		return nil, nil, nil, err
	}

	var biometrics biometricGate.IBiometricService
	if c.Bool("biometrics") {
		biometrics = biometricGate.NewTerminalPresenceService(os.Stdin, os.Stderr)
	}

	sender, components, err := gaslessSender.NewFromConfig(&gaslessSender.Config{
		Account: accountClient.Config{
			ChainID:               chainId,
			ImplementationAddress: common.HexToAddress(c.String("implementation")),
			BundlerURL:            c.String("bundler-url"),
			PaymasterURL:          c.String("paymaster-url"),
			PolicyID:              c.String("policy-id"),
			EntryPoint:            common.HexToAddress(c.String("entry-point")),
			Mode:                  accountClient.ModeEIP7702,
		},
		Biometrics: &biometricGate.Config{Enabled: c.Bool("biometrics")},
		Executor:   executor,
	}, w, biometrics, cm, l)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to setup gasless sender: %w", err)
	}
	return sender, components, l, nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func sendAction(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	calls := make([]gaslessSender.GaslessCall, 0, len(c.StringSlice("call")))
	for _, raw := range c.StringSlice("call") {
		call, err := parseCall(raw)
		if err != nil {
			return err
		}
		calls = append(calls, call)
	}

	sender, _, l, err := setupSender(ctx, c)
	if err != nil {
		return err
	}

	hash, err := sender.SendGaslessTransaction(ctx, calls)
	if err != nil {
		if gaslessSender.IsUserCancellation(err) {
			l.Sugar().Infow("Send cancelled by user")
			return nil
		}
		return fmt.Errorf("failed to send gasless transaction: %w", err)
	}
	fmt.Printf("User Operation Hash: %s\n", hash)

	if !c.Bool("wait") {
		return nil
	}
	receipt, err := sender.WaitForReceipt(ctx, hash)
	if err != nil {
		return fmt.Errorf("failed waiting for user operation: %w", err)
	}
	fmt.Printf("Transaction Hash: %s\n", receipt.Receipt.TransactionHash.Hex())
	return nil
}

func addressAction(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	sender, _, _, err := setupSender(ctx, c)
	if err != nil {
		return err
	}
	addr, err := sender.SmartAccountAddress(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize account client: %w", err)
	}
	fmt.Printf("Smart Account Address: %s\n", addr.Hex())
	return nil
}

func authorizeAction(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	_, components, _, err := setupSender(ctx, c)
	if err != nil {
		return err
	}
	auth, err := components.Authorizations.EnsureAuthorization(ctx, c.Bool("force"))
	if err != nil {
		return fmt.Errorf("failed to sign authorization: %w", err)
	}
	authority, err := auth.Authority()
	if err != nil {
		return fmt.Errorf("failed to recover authority: %w", err)
	}
	fmt.Printf("Authority: %s\n", authority.Hex())
	fmt.Printf("Delegates To: %s\n", auth.TargetContract.Hex())
	fmt.Printf("Chain ID: %d\n", auth.ChainID)
	fmt.Printf("Nonce: %d\n", auth.Nonce)
	fmt.Printf("R: %s\n", auth.R.Hex())
	fmt.Printf("S: %s\n", auth.S.Hex())
	fmt.Printf("Y Parity: %d\n", auth.V)
	return nil
}

func receiptAction(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	sender, _, _, err := setupSender(ctx, c)
	if err != nil {
		return err
	}
	receipt, err := sender.WaitForReceipt(ctx, c.String("hash"))
	if err != nil {
		return fmt.Errorf("failed waiting for user operation: %w", err)
	}
	fmt.Printf("Success: %t\n", receipt.Success)
	fmt.Printf("Transaction Hash: %s\n", receipt.Receipt.TransactionHash.Hex())
	if receipt.ActualGasCost != nil {
		fmt.Printf("Actual Gas Cost: %s\n", receipt.ActualGasCost.ToInt().String())
	}
	return nil
}

package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// hashSigner produces a 65-byte [R || S || V] secp256k1 signature over a 32-byte digest.
type hashSigner interface {
	address() common.Address
	signHash(ctx context.Context, hash []byte) ([]byte, error)
}

// localProvider serves provider requests for wallets whose key is reachable from this process.
type localProvider struct {
	signer hashSigner
	logger *zap.Logger
}

func (p *localProvider) Request(ctx context.Context, args RequestArguments) (json.RawMessage, error) {
	p.logger.Sugar().Debugw("provider request", zap.String("method", args.Method))

	switch args.Method {
	case MethodAccounts:
		return json.Marshal([]common.Address{p.signer.address()})

	case MethodSecp256k1Sign:
		if len(args.Params) < 1 {
			return nil, fmt.Errorf("%s expects a hash param: %w", args.Method, ErrInvalidParams)
		}
		hash, err := bytesParam(args.Params[0])
		if err != nil {
			return nil, err
		}
		if len(hash) != common.HashLength {
			return nil, fmt.Errorf("%s expects a 32-byte hash, got %d bytes: %w", args.Method, len(hash), ErrInvalidParams)
		}
		sig, err := p.signer.signHash(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("failed to sign hash: %w", err)
		}
		return json.Marshal(hexutil.Bytes(sig))

	case MethodPersonalSign:
		if len(args.Params) < 1 {
			return nil, fmt.Errorf("%s expects a message param: %w", args.Method, ErrInvalidParams)
		}
		if len(args.Params) > 1 {
			if err := p.checkAccountParam(args.Params[1]); err != nil {
				return nil, err
			}
		}
		msg, err := bytesParam(args.Params[0])
		if err != nil {
			return nil, err
		}
		sig, err := p.signer.signHash(ctx, accounts.TextHash(msg))
		if err != nil {
			return nil, fmt.Errorf("failed to sign message: %w", err)
		}
		// personal_sign results carry the legacy 27/28 recovery id
		if sig[recoveryIDIndex] < 27 {
			sig[recoveryIDIndex] += 27
		}
		return json.Marshal(hexutil.Bytes(sig))
	}
	return nil, fmt.Errorf("%s: %w", args.Method, ErrUnsupportedMethod)
}

const recoveryIDIndex = 64

func (p *localProvider) checkAccountParam(param interface{}) error {
	var addr common.Address
	switch v := param.(type) {
	case common.Address:
		addr = v
	case string:
		if !common.IsHexAddress(v) {
			return fmt.Errorf("invalid account %q: %w", v, ErrInvalidParams)
		}
		addr = common.HexToAddress(v)
	default:
		return fmt.Errorf("unexpected account param type %T: %w", param, ErrInvalidParams)
	}
	if addr != p.signer.address() {
		return fmt.Errorf("account %s is not managed by this wallet: %w", addr.Hex(), ErrInvalidParams)
	}
	return nil
}

// bytesParam accepts the shapes callers commonly pass for binary params.
func bytesParam(param interface{}) ([]byte, error) {
	switch v := param.(type) {
	case []byte:
		return v, nil
	case hexutil.Bytes:
		return v, nil
	case common.Hash:
		return v.Bytes(), nil
	case string:
		b, err := hexutil.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("param %q is not 0x-prefixed hex: %w", v, ErrInvalidParams)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unexpected param type %T: %w", param, ErrInvalidParams)
}

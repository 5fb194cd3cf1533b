// Package accountClient builds and memoizes the smart account client that turns
// calls into ERC-4337 user operations for an EIP-7702 delegated account, and
// submits them through a bundler with optional paymaster sponsorship.
package accountClient

import (
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

// ModeEIP7702 runs the smart account in the externally owned account's own
// address through an EIP-7702 delegation.
const ModeEIP7702 = "7702"

// DefaultEntryPoint is the ERC-4337 v0.7 EntryPoint singleton.
var DefaultEntryPoint = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

// Config describes the account client the factory constructs.
type Config struct {
	ChainID               uint64         `validate:"required"`
	ImplementationAddress common.Address `validate:"required"`
	// BundlerURL serves eth_sendUserOperation and friends
	BundlerURL string `validate:"required,url"`
	// PaymasterURL serves the ERC-7677 pm_* methods. Defaults to BundlerURL.
	PaymasterURL string `validate:"omitempty,url"`
	// PolicyID is the sponsorship policy; empty means the account pays its own gas
	PolicyID   string
	EntryPoint common.Address
	Mode       string `validate:"omitempty,oneof=7702"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if addr, ok := field.Interface().(common.Address); ok {
			if addr == (common.Address{}) {
				return ""
			}
			return addr.Hex()
		}
		return nil
	}, common.Address{})
	return v
}

// Validate checks the config and fills in defaults.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("account client config is required")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid account client config: %w", err)
	}
	if c.EntryPoint == (common.Address{}) {
		c.EntryPoint = DefaultEntryPoint
	}
	if c.Mode == "" {
		c.Mode = ModeEIP7702
	}
	if c.PaymasterURL == "" {
		c.PaymasterURL = c.BundlerURL
	}
	return nil
}

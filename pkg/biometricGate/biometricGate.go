// Package biometricGate implements the proof-of-presence check consulted
// before every money-moving action. The gate is fail-closed: anything other
// than an explicit success from the biometric service blocks the action, and
// nothing about a previous success is remembered between checks.
package biometricGate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/Layr-Labs/gasless-go/pkg/logger"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var (
	// ErrUserCancelled is returned when the user dismisses the biometric prompt
	ErrUserCancelled = errors.New("biometric authentication cancelled by user")
	// ErrAuthenticationFailed is returned for any other biometric failure
	ErrAuthenticationFailed = errors.New("biometric authentication failed")
)

// ErrorCodeUserCancel is the error code biometric services report for a dismissed prompt.
const ErrorCodeUserCancel = "user_cancel"

const (
	DefaultPromptMessage = "Authenticate to confirm transaction"
	DefaultCancelLabel   = "Cancel"
)

// AuthenticateOptions are passed to the biometric service on every check.
type AuthenticateOptions struct {
	PromptMessage string
	CancelLabel   string
}

// AuthenticateResult is the outcome reported by the biometric service.
type AuthenticateResult struct {
	Success bool
	// Error is ErrorCodeUserCancel or any other service specific code
	Error string
}

// IBiometricService is the external biometric authenticator.
type IBiometricService interface {
	Authenticate(ctx context.Context, opts AuthenticateOptions) (*AuthenticateResult, error)
}

// Config holds the gate configuration.
type Config struct {
	// Enabled turns the check on; when false the gate passes through
	Enabled       bool
	PromptMessage string `validate:"required"`
	CancelLabel   string `validate:"required"`
}

// Gate is the biometric proof-of-presence check.
type Gate struct {
	enabled atomic.Bool
	opts    AuthenticateOptions
	service IBiometricService
	logger  *zap.Logger
}

// NewGate creates a Gate. A nil cfg means enabled with the default prompt.
//
// Parameters:
//   - cfg: Gate configuration; empty prompt fields fall back to the defaults
//   - service: The biometric service; required when the gate can be enabled
//   - l: Logger; may be nil
//
// Returns:
//   - *Gate: The gate
//   - error: An error if the configuration is invalid
func NewGate(cfg *Config, service IBiometricService, l *zap.Logger) (*Gate, error) {
	c := Config{Enabled: true}
	if cfg != nil {
		c = *cfg
	}
	if c.PromptMessage == "" {
		c.PromptMessage = DefaultPromptMessage
	}
	if c.CancelLabel == "" {
		c.CancelLabel = DefaultCancelLabel
	}
	if err := validator.New().Struct(c); err != nil {
		return nil, fmt.Errorf("invalid biometric gate config: %w", err)
	}

	g := &Gate{
		opts: AuthenticateOptions{
			PromptMessage: c.PromptMessage,
			CancelLabel:   c.CancelLabel,
		},
		service: service,
		logger:  logger.NamedOrNop(l, "biometricGate"),
	}
	g.enabled.Store(c.Enabled)
	return g, nil
}

// SetEnabled toggles the user's biometric protection preference.
func (g *Gate) SetEnabled(enabled bool) {
	g.enabled.Store(enabled)
}

// Enabled reports whether the check is currently enforced.
func (g *Gate) Enabled() bool {
	return g.enabled.Load()
}

// Check runs the proof-of-presence check. It must be called before every
// money-moving operation; success is never cached.
//
// Returns:
//   - error: nil on success or when disabled, ErrUserCancelled or ErrAuthenticationFailed otherwise
func (g *Gate) Check(ctx context.Context) error {
	if !g.enabled.Load() {
		g.logger.Debug("biometric protection disabled, passing through")
		return nil
	}
	if g.service == nil {
		g.logger.Error("biometric protection enabled but no service configured")
		return fmt.Errorf("no biometric service configured: %w", ErrAuthenticationFailed)
	}

	result, err := g.service.Authenticate(ctx, g.opts)
	if err != nil {
		g.logger.Sugar().Warnw("biometric service error", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	if result == nil {
		return fmt.Errorf("empty biometric result: %w", ErrAuthenticationFailed)
	}
	if result.Success {
		g.logger.Debug("biometric authentication succeeded")
		return nil
	}
	if result.Error == ErrorCodeUserCancel {
		g.logger.Info("biometric prompt cancelled by user")
		return ErrUserCancelled
	}

	g.logger.Sugar().Warnw("biometric authentication failed", zap.String("code", result.Error))
	if result.Error == "" {
		return ErrAuthenticationFailed
	}
	return fmt.Errorf("%w: %s", ErrAuthenticationFailed, result.Error)
}

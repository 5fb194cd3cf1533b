package gaslessSender

import (
	"errors"
	"fmt"
)

// ErrNoCalls is returned when a send names no calls.
var ErrNoCalls = errors.New("no calls to send")

// ErrorKind classifies why a send did not produce an operation hash.
type ErrorKind int

const (
	NoCalls ErrorKind = iota
	InvalidCall
	GateUserCancelled
	GateAuthenticationFailed
	InitFailed
	SubmissionFailed
)

func (k ErrorKind) String() string {
	switch k {
	case NoCalls:
		return "no_calls"
	case InvalidCall:
		return "invalid_call"
	case GateUserCancelled:
		return "gate_user_cancelled"
	case GateAuthenticationFailed:
		return "gate_authentication_failed"
	case InitFailed:
		return "init_failed"
	case SubmissionFailed:
		return "submission_failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// SendError is returned by SendGaslessTransaction. Its message is the
// underlying collaborator's message.
type SendError struct {
	Kind ErrorKind
	Err  error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// IsUserCancellation reports whether err is a dismissed biometric prompt,
// which callers usually treat as a normal abort.
func IsUserCancellation(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Kind == GateUserCancelled
}

// KindOf returns the kind of a SendError, or false for any other error.
func KindOf(err error) (ErrorKind, bool) {
	var se *SendError
	if !errors.As(err, &se) {
		return 0, false
	}
	return se.Kind, true
}

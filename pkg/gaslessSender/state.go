package gaslessSender

import (
	"github.com/Layr-Labs/gasless-go/pkg/delegation"
	"github.com/ethereum/go-ethereum/common"
)

// State is the phase of the most recent send.
//
//	Idle → Gating → (Aborted | Initializing → Ready → Submitting → (Done | Failed))
//
// Initializing may also go straight to Failed.
type State int

const (
	Idle State = iota
	Gating
	Aborted
	Initializing
	Ready
	Submitting
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Gating:
		return "gating"
	case Aborted:
		return "aborted"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Submitting:
		return "submitting"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// InProgress reports whether a send is between Gating and a terminal state.
func (s State) InProgress() bool {
	switch s {
	case Gating, Initializing, Ready, Submitting:
		return true
	default:
		return false
	}
}

// Status is a read-only snapshot of the sender.
type Status struct {
	State                State
	IsInitializing       bool
	IsSending            bool
	LastError            string
	LastOperationHash    string
	SmartAccountAddress  *common.Address
	CurrentAuthorization *delegation.Authorization
}

// Package syncclient implements the sync extension's client-side state
// machines from §7: session lifecycle and client reset. It deliberately
// stops short of a real wire protocol or authentication (both listed as
// Non-goals) and instead exercises the machines against a MySQL-backed
// fixture transport, grounded on the teacher's apply.Applier connection
// and execution pipeline.
package syncclient

import "fmt"

// SessionState is a sync session's connection lifecycle, per §7.1.
type SessionState int

const (
	SessionConnecting SessionState = iota
	SessionBound
	SessionActive
	SessionPaused
	SessionError
	SessionDisconnected
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionBound:
		return "bound"
	case SessionActive:
		return "active"
	case SessionPaused:
		return "paused"
	case SessionError:
		return "error"
	case SessionDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ClientResetState is the reset controller's state, per §7.2.
type ClientResetState int

const (
	ResetHealthy ClientResetState = iota
	ResetDiverged
	ResetDownloadingFresh
	ResetMerging
	ResetUploading
)

func (s ClientResetState) String() string {
	switch s {
	case ResetHealthy:
		return "healthy"
	case ResetDiverged:
		return "diverged"
	case ResetDownloadingFresh:
		return "downloading_fresh"
	case ResetMerging:
		return "merging"
	case ResetUploading:
		return "uploading"
	default:
		return "unknown"
	}
}

// ResetMode selects how local, unsynced writes are treated across a
// client reset, per §7.2's three explicit modes.
type ResetMode int

const (
	// DiscardLocal throws away every local write made since the last
	// successful upload, replacing local state wholesale with the
	// server's fresh copy.
	DiscardLocal ResetMode = iota
	// RecoverLocal replays local writes on top of the fresh copy,
	// failing the reset if any write cannot be recovered.
	RecoverLocal
	// RecoverOrDiscard replays local writes like RecoverLocal, but
	// drops each individual write that cannot be recovered instead of
	// failing the reset.
	RecoverOrDiscard
)

func (m ResetMode) String() string {
	switch m {
	case DiscardLocal:
		return "discard_local"
	case RecoverLocal:
		return "recover_local"
	case RecoverOrDiscard:
		return "recover_or_discard"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition reports an attempted state transition that is
// not legal from the current state.
type ErrInvalidTransition struct {
	From, To any
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition from %v to %v", e.From, e.To)
}

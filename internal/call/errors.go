package call

import (
	"errors"
	"fmt"

	"github.com/BioHazard786/warpcall/internal/ui"
)

var (
	ErrRelayClosed         = errors.New("relay connection closed")
	ErrCaptureUnavailable  = errors.New("capture device unavailable")
	ErrScreenShareNotAvail = errors.New("screen sharing is not supported on this device")
	ErrScreenShareActive   = errors.New("camera cannot be toggled while screen sharing")
	ErrNotHost             = errors.New("only the host can remove participants")
	ErrUnknownPeer         = errors.New("unknown participant")
	ErrKicked              = errors.New("removed from the room by the host")
	ErrCallEnded           = errors.New("call ended")
	ErrSessionClosed       = errors.New("peer session closed")
	ErrChannelNotOpen      = errors.New("chat channel not open")
	ErrEmptyMessage        = errors.New("message is empty")
)

type CallError struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *CallError) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func (e *CallError) Print() {
	ui.PrintError(e.Error())
}

func NewError(op string, err error) *CallError {
	return &CallError{Op: op, Err: err}
}

func NewPeerError(op, peer string, err error) *CallError {
	return &CallError{Op: op, Peer: peer, Err: err}
}

func WrapError(op string, err error, details string) *CallError {
	return &CallError{Op: op, Err: err, Details: details}
}

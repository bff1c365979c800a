package ats

import (
	"errors"
	"fmt"
)

// Transport-level failures. These are recoverable: the session supervisor
// tears the session down and reconnects under backoff.
var ErrNotConnected = errors.New("not connected to panel")

// ErrClosed is returned for requests issued against a client that has been
// torn down, and resolves any request still pending at teardown.
var ErrClosed = errors.New("client closed")

// Configuration problems. Terminal: no retry can fix them.
var (
	ErrInvalidKeyFormat = errors.New("encryption key must be exactly 24 ASCII digits")
	ErrDecrypt          = errors.New("payload decryption failed")
)

// AuthError is terminal for the session attempt. The supervisor surfaces it
// instead of retrying with the same credentials.
type AuthError struct {
	Reason AuthFailure
}

type AuthFailure int

const (
	AuthInvalidPin AuthFailure = iota + 1
	AuthInvalidCredentials
	AuthPermissionDenied
)

func (e *AuthError) Error() string {
	switch e.Reason {
	case AuthInvalidPin:
		return "authentication failed: invalid pin"
	case AuthInvalidCredentials:
		return "authentication failed: invalid credentials"
	case AuthPermissionDenied:
		return "authentication failed: permission denied"
	default:
		return "authentication failed"
	}
}

// RejectionError carries the panel's NAK reason for a command.
type RejectionError struct {
	Reason RejectReason
}

type RejectReason byte

const (
	RejectNotReady      RejectReason = 0x01 // open zones, arm refused without force
	RejectDenied        RejectReason = 0x02
	RejectInvalidEntity RejectReason = 0x03
	RejectBusy          RejectReason = 0x04
)

func (r RejectReason) String() string {
	switch r {
	case RejectNotReady:
		return "not ready"
	case RejectDenied:
		return "denied"
	case RejectInvalidEntity:
		return "invalid entity"
	case RejectBusy:
		return "busy"
	default:
		return fmt.Sprintf("reason %d", byte(r))
	}
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("command rejected by panel: %s", e.Reason)
}

// frameError marks framing-level corruption. It is fatal only to the
// current frame: the decoder resynchronizes on the next start marker.
type frameError struct {
	msg string
}

func (e *frameError) Error() string {
	return "malformed frame: " + e.msg
}

// IsFrameError reports whether err is frame-level corruption.
func IsFrameError(err error) bool {
	var fe *frameError
	return errors.As(err, &fe)
}

package domain

import (
	"errors"
	"fmt"
)

var (
	ErrJoinDenied        = errors.New("join denied")
	ErrMediaAcquisition  = errors.New("media acquisition failed")
	ErrNegotiationStall  = errors.New("negotiation stalled")
	ErrDeviceSwitch      = errors.New("device switch failed")
	ErrScreenShareDenied = errors.New("screen share denied")
	ErrTransport         = errors.New("transport error")
	ErrClosed            = errors.New("call closed")
	ErrNotOpen           = errors.New("call not open")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrDeviceNotFound    = errors.New("device not found")
	ErrNotConnected      = errors.New("signaling channel not connected")
)

// ErrorKind classifies call errors by how they propagate.
type ErrorKind int

const (
	KindJoinDenied ErrorKind = iota + 1
	KindMediaAcquisition
	KindNegotiationStall
	KindDeviceSwitch
	KindScreenShareDenied
	KindTransport
)

var kindSentinels = map[ErrorKind]error{
	KindJoinDenied:        ErrJoinDenied,
	KindMediaAcquisition:  ErrMediaAcquisition,
	KindNegotiationStall:  ErrNegotiationStall,
	KindDeviceSwitch:      ErrDeviceSwitch,
	KindScreenShareDenied: ErrScreenShareDenied,
	KindTransport:         ErrTransport,
}

// Fatal reports whether errors of this kind end the call. Fatal errors land
// in the observable error field; the rest are emitted as notices.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindJoinDenied, KindMediaAcquisition, KindTransport:
		return true
	}
	return false
}

func (k ErrorKind) String() string {
	if err, ok := kindSentinels[k]; ok {
		return err.Error()
	}
	return "unknown"
}

// CallError is an error raised by the call engine.
type CallError struct {
	Kind   ErrorKind
	Op     string
	Reason string
	Err    error
}

func (e *CallError) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CallError) Unwrap() []error {
	errs := []error{kindSentinels[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewCallError wraps err with a kind and operation.
func NewCallError(kind ErrorKind, op string, err error) *CallError {
	return &CallError{Kind: kind, Op: op, Err: err}
}

// Join denial reason codes sent by the relay.
const (
	DenyMissingRoomID = "missing_room_id"
	DenyMissingAuth   = "missing_auth"
	DenyInvalidUserID = "invalid_user_id"
	DenyRoomNotFound  = "room_not_found"
	DenyDBError       = "db_error"
	DenyUnauthorized  = "unauthorized"
)

var denialMessages = map[string]string{
	DenyMissingRoomID: "No interview room was specified.",
	DenyMissingAuth:   "You must be signed in to join this interview.",
	DenyInvalidUserID: "Your account could not be verified for this interview.",
	DenyRoomNotFound:  "This interview room does not exist or has ended.",
	DenyDBError:       "The interview service is temporarily unavailable. Please try again.",
	DenyUnauthorized:  "You are not a participant in this interview.",
}

// DenialMessage maps a join_denied reason code to a user-facing message.
func DenialMessage(reason string) string {
	if msg, ok := denialMessages[reason]; ok {
		return msg
	}
	return fmt.Sprintf("Unable to join the interview (%s).", reason)
}

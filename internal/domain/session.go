package domain

import "fmt"

// UserRole is the application role of the local user in an interview room.
type UserRole string

const (
	UserRoleRecruiter UserRole = "recruiter"
	UserRoleCandidate UserRole = "candidate"
	UserRoleAdmin     UserRole = "admin"
)

// RoomSession identifies one call. It is created when the call starts and
// never mutated afterwards.
type RoomSession struct {
	RoomID string
	UserID string
	Role   UserRole
	// Token authenticates the join with the relay. Optional when the relay
	// runs with open rooms.
	Token string
}

// Validate reports whether the session carries the fields needed to join.
func (r RoomSession) Validate() error {
	if r.RoomID == "" {
		return fmt.Errorf("room id is required")
	}
	if r.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	return nil
}

// ParticipantRef is the relay-assigned session id of the remote party. It is
// only valid for the lifetime of the relay connection that produced it.
type ParticipantRef string

// NegotiationRole decides which side creates the offer.
type NegotiationRole int

const (
	RoleResponder NegotiationRole = iota
	RoleInitiator
)

func (r NegotiationRole) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// RoleFor returns the negotiation role of a user role. The host side of an
// interview (the recruiter) always initiates so both ends never offer at once.
func RoleFor(role UserRole) NegotiationRole {
	if role == UserRoleRecruiter {
		return RoleInitiator
	}
	return RoleResponder
}

// SignalingState is the state of one PeerSession.
type SignalingState int

const (
	StateIdle SignalingState = iota
	StateOfferSent
	StateAnswerPending
	StateAnswerApplied
	StateConnected
	StateClosed
)

var signalingStateNames = map[SignalingState]string{
	StateIdle:          "idle",
	StateOfferSent:     "offer-sent",
	StateAnswerPending: "answer-pending",
	StateAnswerApplied: "answer-applied",
	StateConnected:     "connected",
	StateClosed:        "closed",
}

func (s SignalingState) String() string {
	if name, ok := signalingStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("signaling-state(%d)", int(s))
}

// NegotiationState mirrors the offer/answer state of the underlying peer
// connection (RTCSignalingState).
type NegotiationState string

const (
	NegotiationStable             NegotiationState = "stable"
	NegotiationHaveLocalOffer     NegotiationState = "have-local-offer"
	NegotiationHaveRemoteOffer    NegotiationState = "have-remote-offer"
	NegotiationHaveLocalPranswer  NegotiationState = "have-local-pranswer"
	NegotiationHaveRemotePranswer NegotiationState = "have-remote-pranswer"
	NegotiationClosed             NegotiationState = "closed"
)

// ConnectionState is the transport state reported by the peer connection.
type ConnectionState int

const (
	ConnectionNew ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionDisconnected
	ConnectionFailed
	ConnectionClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionNew:
		return "new"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionFailed:
		return "failed"
	case ConnectionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

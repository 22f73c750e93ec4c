package domain

import (
	"context"
	"encoding/json"
	"io"
)

// InterviewFetcher retrieves interview details from the REST API.
type InterviewFetcher interface {
	FetchInterview(ctx context.Context, token, roomID string) (*Interview, error)
}

// Signaler manages the signaling connection to the relay.
type Signaler interface {
	Connect(ctx context.Context) error
	// Emit sends one named event. It is safe for concurrent use.
	Emit(event string, payload any) error
	Close() error
}

// Handler receives signaling events.
type Handler interface {
	OnJoinDenied(msg JoinDenied)
	OnExistingParticipants(msg ExistingParticipants)
	OnUserJoined(msg ParticipantEvent)
	OnUserLeft(msg ParticipantEvent)
	OnOffer(msg DescriptionMessage)
	OnAnswer(msg DescriptionMessage)
	OnICECandidate(msg CandidateMessage)
	OnProctorEvent(ev ProctorEvent)
	OnWhiteboard(event string, data json.RawMessage)
	OnRoomInfo(info RoomInfo)
	// OnDisconnect is called once when the channel drops. err is nil for a
	// local Close.
	OnDisconnect(err error)
}

// TrackSender replaces the outgoing track of one kind on a negotiated
// connection without renegotiating.
type TrackSender interface {
	ReplaceTrack(kind MediaKind, track Track) error
}

// PeerConnection is the negotiation surface of one peer connection.
type PeerConnection interface {
	TrackSender
	// CreateOffer creates an offer and installs it as the local description.
	CreateOffer() (SDPPayload, error)
	// AcceptOffer applies a remote offer and returns the local answer, already
	// installed as the local description.
	AcceptOffer(offer SDPPayload) (SDPPayload, error)
	ApplyAnswer(answer SDPPayload) error
	AddICECandidate(c ICECandidatePayload) error
	NegotiationState() NegotiationState
	// OnICECandidate and OnConnectionStateChange register callbacks. They
	// are delivered in order and never from inside a method of the
	// connection.
	OnICECandidate(f func(ICECandidatePayload))
	OnConnectionStateChange(f func(ConnectionState))
	Close() error
}

// PeerFactory creates peer connections sending the given local tracks.
type PeerFactory interface {
	NewPeerConnection(local []Track) (PeerConnection, error)
}

// RenderSink receives remote media.
type RenderSink interface {
	VideoSink() io.Writer
	AudioSink() io.Writer
}

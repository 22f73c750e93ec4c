package domain

// Signaling event names exchanged with the relay.
const (
	EventJoinRoom             = "join_room"
	EventJoinDenied           = "join_denied"
	EventExistingParticipants = "existing_participants"
	EventUserJoined           = "user_joined"
	EventUserLeft             = "user_left"
	EventOffer                = "offer"
	EventAnswer               = "answer"
	EventICECandidate         = "ice_candidate"
	EventProctor              = "proctor_event"
	EventWhiteboardDraw       = "wb_draw"
	EventWhiteboardClear      = "wb_clear"
	EventPing                 = "ping"
	EventPong                 = "pong"
	EventGetRoomInfo          = "get_room_info"
	EventRoomInfo             = "room_info"
)

// SDPPayload is a session description as carried on the wire.
type SDPPayload struct {
	Type string `json:"type" msgpack:"type"`
	SDP  string `json:"sdp" msgpack:"sdp"`
}

// ICECandidatePayload is a trickled ICE candidate.
type ICECandidatePayload struct {
	Candidate     string `json:"candidate" msgpack:"candidate"`
	SDPMid        string `json:"sdpMid" msgpack:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex" msgpack:"sdpMLineIndex"`
}

// JoinRequest announces the local user to a room.
type JoinRequest struct {
	RoomID   string   `json:"room_id" msgpack:"room_id"`
	UserID   string   `json:"user_id" msgpack:"user_id"`
	UserRole UserRole `json:"user_role" msgpack:"user_role"`
	Token    string   `json:"token,omitempty" msgpack:"token,omitempty"`
}

type JoinDenied struct {
	Reason string `json:"reason" msgpack:"reason"`
}

type ExistingParticipants struct {
	Participants []ParticipantRef `json:"participants" msgpack:"participants"`
}

// ParticipantEvent carries user_joined and user_left.
type ParticipantEvent struct {
	SID ParticipantRef `json:"sid" msgpack:"sid"`
}

// DescriptionMessage carries an offer or answer. Outbound messages set
// TargetSID; the relay replaces it with SenderSID on delivery.
type DescriptionMessage struct {
	SDP       SDPPayload     `json:"sdp" msgpack:"sdp"`
	TargetSID ParticipantRef `json:"target_sid,omitempty" msgpack:"target_sid,omitempty"`
	SenderSID ParticipantRef `json:"sender_sid,omitempty" msgpack:"sender_sid,omitempty"`
	RoomID    string         `json:"room_id" msgpack:"room_id"`
}

// CandidateMessage carries one ICE candidate between the peers.
type CandidateMessage struct {
	Candidate ICECandidatePayload `json:"candidate" msgpack:"candidate"`
	TargetSID ParticipantRef      `json:"target_sid,omitempty" msgpack:"target_sid,omitempty"`
	SenderSID ParticipantRef      `json:"sender_sid,omitempty" msgpack:"sender_sid,omitempty"`
	RoomID    string              `json:"room_id" msgpack:"room_id"`
}

// ProctorEvent is an integrity event published to the room.
type ProctorEvent struct {
	Type      string         `json:"type" msgpack:"type"`
	Message   string         `json:"message,omitempty" msgpack:"message,omitempty"`
	Timestamp string         `json:"timestamp" msgpack:"timestamp"`
	RoomID    string         `json:"room_id" msgpack:"room_id"`
	Metadata  map[string]any `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
	SenderSID ParticipantRef `json:"sender_sid,omitempty" msgpack:"sender_sid,omitempty"`
}

type RoomInfoRequest struct {
	RoomID string `json:"room_id" msgpack:"room_id"`
}

type RoomInfo struct {
	RoomID       string           `json:"room_id" msgpack:"room_id"`
	Participants []ParticipantRef `json:"participants" msgpack:"participants"`
	Count        int              `json:"count" msgpack:"count"`
	Exists       bool             `json:"exists" msgpack:"exists"`
}

// Ping is an application-level liveness probe; the relay answers with a
// Pong carrying the same timestamp.
type Ping struct {
	Timestamp int64 `json:"timestamp" msgpack:"timestamp"`
}

type Pong struct {
	Timestamp int64 `json:"timestamp" msgpack:"timestamp"`
}

// ICEServer is a STUN or TURN server used by peer connections.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

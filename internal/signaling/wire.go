package signaling

import "encoding/json"

// Event names are the wire protocol and must match the browser client
// exactly.
const (
	// Server -> client only.
	EventUserID           = "user_id"
	EventRoomCreated      = "room_created"
	EventRoomJoined       = "room_joined"
	EventUserJoined       = "user_joined"
	EventUserDisconnected = "user_disconnected"
	EventError            = "error"

	// Client -> server, relayed to the sender's room.
	EventCreateRoom         = "create_room"
	EventJoinRoom           = "join_room"
	EventWebRTCOffer        = "webrtc_offer"
	EventWebRTCAnswer       = "webrtc_answer"
	EventWebRTCICECandidate = "webrtc_ice_candidate"
	EventChatMessage        = "chat_message"
	EventScreenShareStarted = "screen_share_started"
	EventScreenShareStopped = "screen_share_stopped"
	EventMovieControl       = "movie_control"
)

// envelope is the framing for every message in both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound payloads. Decoding is permissive: absent or malformed optional
// fields fall back to zero values rather than rejecting the message.

type joinRoomRequest struct {
	RoomID string `json:"room_id"`
}

type offerRequest struct {
	Offer json.RawMessage `json:"offer"`
}

type answerRequest struct {
	Answer json.RawMessage `json:"answer"`
}

type candidateRequest struct {
	Candidate json.RawMessage `json:"candidate"`
}

type chatRequest struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type movieControlRequest struct {
	Action string          `json:"action"`
	Value  json.RawMessage `json:"value"`
}

// Outbound payloads. The SDP/ICE/value fields pass through opaquely; the
// server never interprets them.

type userIDPayload struct {
	UserID string `json:"user_id"`
}

type roomCreatedPayload struct {
	RoomID string `json:"room_id"`
}

type roomJoinedPayload struct {
	RoomID string   `json:"room_id"`
	Users  []string `json:"users"`
}

type userJoinedPayload struct {
	UserID string   `json:"user_id"`
	Users  []string `json:"users"`
}

type userDisconnectedPayload struct {
	UserID string `json:"user_id"`
}

type offerPayload struct {
	Offer json.RawMessage `json:"offer"`
	From  string          `json:"from"`
}

type answerPayload struct {
	Answer json.RawMessage `json:"answer"`
	From   string          `json:"from"`
}

type candidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
	From      string          `json:"from"`
}

type chatPayload struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

type screenSharePayload struct {
	From string `json:"from"`
}

type movieControlPayload struct {
	Action string          `json:"action"`
	Value  json.RawMessage `json:"value"`
}

type errorPayload struct {
	Message string `json:"message"`
}

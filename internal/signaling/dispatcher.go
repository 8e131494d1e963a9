package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/watchparty/signaling-relay/internal/room"
)

// dispatch routes one inbound event. Room management events reply to the
// sender (and notify the target room); everything else is a relay to the
// sender's current room, excluding the sender. Relay events from a roomless
// connection are a silent no-op: a client ordering bug that self-heals once
// the client joins.
func (s *Server) dispatch(p *peer, env envelope) {
	switch env.Event {
	case EventCreateRoom:
		s.handleCreateRoom(p)
	case EventJoinRoom:
		s.handleJoinRoom(p, env.Data)
	case EventWebRTCOffer:
		var req offerRequest
		decodeLoose(env.Data, &req)
		s.relay(p, EventWebRTCOffer, func(userID string) any {
			return offerPayload{Offer: req.Offer, From: userID}
		})
	case EventWebRTCAnswer:
		var req answerRequest
		decodeLoose(env.Data, &req)
		s.relay(p, EventWebRTCAnswer, func(userID string) any {
			return answerPayload{Answer: req.Answer, From: userID}
		})
	case EventWebRTCICECandidate:
		var req candidateRequest
		decodeLoose(env.Data, &req)
		s.relay(p, EventWebRTCICECandidate, func(userID string) any {
			return candidatePayload{Candidate: req.Candidate, From: userID}
		})
	case EventChatMessage:
		var req chatRequest
		decodeLoose(env.Data, &req)
		s.relay(p, EventChatMessage, func(userID string) any {
			return chatPayload{Message: req.Message, UserID: userID, Timestamp: req.Timestamp}
		})
	case EventScreenShareStarted, EventScreenShareStopped:
		s.relay(p, env.Event, func(userID string) any {
			return screenSharePayload{From: userID}
		})
	case EventMovieControl:
		var req movieControlRequest
		decodeLoose(env.Data, &req)
		// action/value pass through unvalidated; playback commands are
		// client vocabulary.
		s.relay(p, EventMovieControl, func(string) any {
			return movieControlPayload{Action: req.Action, Value: req.Value}
		})
	default:
		s.log.Debug("ignoring unknown event", "event", env.Event, "conn_id", p.id)
	}
}

func (s *Server) handleCreateRoom(p *peer) {
	roomID, err := s.state.CreateRoom(p.id)
	if err != nil {
		s.log.Error("create room failed", "conn_id", p.id, "err", err)
		s.emit(p, EventError, errorPayload{Message: "Failed to create room."})
		return
	}
	s.metrics.RoomsCreatedTotal.Inc()
	s.syncGauges()
	s.log.Info("room created", "room_id", roomID, "conn_id", p.id)
	s.emit(p, EventRoomCreated, roomCreatedPayload{RoomID: roomID})
}

func (s *Server) handleJoinRoom(p *peer, data json.RawMessage) {
	var req joinRoomRequest
	decodeLoose(data, &req)

	res, err := s.state.JoinRoom(p.id, req.RoomID)
	if err != nil {
		reason, message := joinFailure(err, req.RoomID)
		s.metrics.JoinFailuresTotal.WithLabelValues(reason).Inc()
		s.log.Info("join rejected", "conn_id", p.id, "reason", reason)
		s.emit(p, EventError, errorPayload{Message: message})
		return
	}

	s.metrics.JoinsTotal.Inc()
	s.syncGauges()
	s.log.Info("joined room", "room_id", res.RoomID, "conn_id", p.id, "members", len(res.Users))

	s.emit(p, EventRoomJoined, roomJoinedPayload{RoomID: res.RoomID, Users: res.Users})
	s.broadcast(res.Others, EventUserJoined, userJoinedPayload{UserID: res.UserID, Users: res.Users})
}

// joinFailure maps a membership error to its metric label and the
// human-readable message sent to the client.
func joinFailure(err error, rawRoomID string) (reason, message string) {
	switch {
	case errors.Is(err, room.ErrEmptyRoomID):
		return "empty_room_id", "Room ID is required."
	case errors.Is(err, room.ErrRoomNotFound):
		return "room_not_found", fmt.Sprintf("Room '%s' does not exist.", room.NormalizeRoomID(rawRoomID))
	case errors.Is(err, room.ErrAlreadyMember):
		return "already_member", "You are already in this room."
	case errors.Is(err, room.ErrRoomFull):
		return "room_full", "Room is full."
	default:
		return "internal", "Failed to join room."
	}
}

// relay fans an event out to the other members of the sender's room. The
// payload is built from the sender's user id, resolved in the same critical
// section as the member snapshot.
func (s *Server) relay(p *peer, event string, payload func(userID string) any) {
	roomID, userID, targets, ok := s.state.RelayTargets(p.id)
	if !ok {
		s.log.Debug("relay event from roomless connection", "event", event, "conn_id", p.id)
		return
	}
	s.metrics.RelayedEventsTotal.WithLabelValues(event).Inc()
	s.log.Debug("relaying", "event", event, "room_id", roomID, "from", userID, "targets", len(targets))
	s.broadcast(targets, event, payload(userID))
}

// decodeLoose unmarshals inbound payload data, tolerating absent or
// malformed input: fields keep their zero values.
func decodeLoose(data json.RawMessage, v any) {
	if len(data) == 0 {
		return
	}
	_ = json.Unmarshal(data, v)
}

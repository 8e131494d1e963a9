// Package room holds the in-memory signaling state: which connections exist,
// which user identifier each one was assigned, and which room (if any) each
// one currently occupies.
//
// All three maps are guarded by a single mutex and every operation that
// changes membership updates them together, so the bidirectional invariant
// (a connection appears in a room's member list iff its association points at
// that room) holds after every call. Member-list snapshots handed out for
// fan-out are taken under the same lock as the mutation that produced them.
package room

import (
	"errors"
	"strings"
	"sync"
)

// MaxMembers is the fixed room capacity.
const MaxMembers = 3

// UnknownUser is the sentinel reported when a connection has no registry
// entry. It mirrors what clients already tolerate in user lists.
const UnknownUser = "unknown"

// ConnID is the transport-assigned handle for one live connection. The state
// container never interprets it.
type ConnID string

type roomEntry struct {
	// members is insertion-ordered so user lists are reported
	// deterministically. Never contains duplicates, never empty outside a
	// critical section.
	members []ConnID
}

// Config carries optional seams for tests. Zero values select the production
// generators.
type Config struct {
	NewRoomID func() (string, error)
	NewUserID func() string
}

// State is the single authority over connection, room and membership maps.
type State struct {
	newRoomID func() (string, error)
	newUserID func() string

	mu       sync.Mutex
	users    map[ConnID]string // connection -> assigned user id
	rooms    map[string]*roomEntry
	memberOf map[ConnID]string // connection -> room id, absent when roomless
}

func NewState(cfg Config) *State {
	if cfg.NewRoomID == nil {
		cfg.NewRoomID = newRoomID
	}
	if cfg.NewUserID == nil {
		cfg.NewUserID = newUserID
	}
	return &State{
		newRoomID: cfg.NewRoomID,
		newUserID: cfg.NewUserID,
		users:     make(map[ConnID]string),
		rooms:     make(map[string]*roomEntry),
		memberOf:  make(map[ConnID]string),
	}
}

// Connect registers a new connection and returns its freshly assigned user
// id.
func (s *State) Connect(id ConnID) string {
	userID := s.newUserID()
	s.mu.Lock()
	s.users[id] = userID
	s.mu.Unlock()
	return userID
}

// Departure describes the room a disconnecting or leaving connection was
// removed from, captured in the same critical section as the removal.
type Departure struct {
	RoomID string
	UserID string
	// Remaining are the members left in the room after the removal. Empty
	// means the room was deleted.
	Remaining []ConnID
}

// Disconnect removes the connection from the registry and from its room, if
// any. It is idempotent: a second call for the same id returns ("", nil).
//
// The returned user id is captured before the registry entry is cleared so
// callers can include it in departure notices.
func (s *State) Disconnect(id ConnID) (string, *Departure) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, known := s.users[id]
	delete(s.users, id)

	dep := s.leaveLocked(id)
	if dep != nil {
		dep.UserID = userID
		if dep.UserID == "" {
			dep.UserID = UnknownUser
		}
	}
	if !known {
		return "", dep
	}
	return userID, dep
}

// leaveLocked removes id from its current room, deleting the room when it
// empties. Removing a connection that has no room is a no-op. Must be called
// with s.mu held.
func (s *State) leaveLocked(id ConnID) *Departure {
	roomID, ok := s.memberOf[id]
	if !ok {
		return nil
	}
	delete(s.memberOf, id)

	entry, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	for i, member := range entry.members {
		if member == id {
			entry.members = append(entry.members[:i], entry.members[i+1:]...)
			break
		}
	}
	if len(entry.members) == 0 {
		delete(s.rooms, roomID)
		return &Departure{RoomID: roomID}
	}
	remaining := make([]ConnID, len(entry.members))
	copy(remaining, entry.members)
	return &Departure{RoomID: roomID, Remaining: remaining}
}

// UserID reports the user id assigned to a connection, or UnknownUser. It
// never fails: the id is presentation metadata.
func (s *State) UserID(id ConnID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userIDLocked(id)
}

func (s *State) userIDLocked(id ConnID) string {
	if userID, ok := s.users[id]; ok {
		return userID
	}
	return UnknownUser
}

// CreateRoom allocates a new room with the connection as its only member.
// A connection can only ever occupy one room, so any existing membership is
// torn down first with no departure notice to the old room.
func (s *State) CreateRoom(id ConnID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, err := s.allocateRoomIDLocked()
	if err != nil {
		return "", err
	}

	s.leaveLocked(id)
	s.rooms[roomID] = &roomEntry{members: []ConnID{id}}
	s.memberOf[id] = roomID
	return roomID, nil
}

func (s *State) allocateRoomIDLocked() (string, error) {
	// Collisions are vanishingly rare with 8 random characters, but check
	// anyway rather than silently merging two rooms.
	for attempt := 0; attempt < 5; attempt++ {
		id, err := s.newRoomID()
		if err != nil {
			return "", err
		}
		if _, exists := s.rooms[id]; !exists {
			return id, nil
		}
	}
	return "", errors.New("failed to allocate unique room id")
}

// JoinResult reports a successful join: the normalized room id, the joiner's
// user id, the ordered user list for the room, and the other members to
// notify.
type JoinResult struct {
	RoomID string
	UserID string
	Users  []string
	Others []ConnID
}

// NormalizeRoomID applies the wire normalization for client-supplied room
// ids.
func NormalizeRoomID(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// JoinRoom adds the connection to an existing room.
//
// Joining the room the connection is already in is rejected with
// ErrAlreadyMember rather than treated as a no-op, to surface client bugs.
// Joining a different room while already in one silently leaves the old room
// first (cascading to deletion if it empties).
func (s *State) JoinRoom(id ConnID, rawRoomID string) (JoinResult, error) {
	roomID := NormalizeRoomID(rawRoomID)
	if roomID == "" {
		return JoinResult{}, ErrEmptyRoomID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.rooms[roomID]
	if !ok {
		return JoinResult{}, ErrRoomNotFound
	}
	for _, member := range entry.members {
		if member == id {
			return JoinResult{}, ErrAlreadyMember
		}
	}
	if len(entry.members) >= MaxMembers {
		return JoinResult{}, ErrRoomFull
	}

	// Voluntary room switch: no notice is sent to the old room.
	s.leaveLocked(id)
	// The target room cannot have been deleted by the leave: the connection
	// was not a member of it.
	entry = s.rooms[roomID]

	others := make([]ConnID, len(entry.members))
	copy(others, entry.members)

	entry.members = append(entry.members, id)
	s.memberOf[id] = roomID

	users := make([]string, len(entry.members))
	for i, member := range entry.members {
		users[i] = s.userIDLocked(member)
	}

	return JoinResult{
		RoomID: roomID,
		UserID: s.userIDLocked(id),
		Users:  users,
		Others: others,
	}, nil
}

// RelayTargets resolves, in one critical section, everything a relay fan-out
// needs: the sender's room, the sender's user id, and a snapshot of the other
// members. ok is false when the sender has no room.
func (s *State) RelayTargets(sender ConnID) (roomID, userID string, targets []ConnID, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, ok = s.memberOf[sender]
	if !ok {
		return "", "", nil, false
	}
	entry, exists := s.rooms[roomID]
	if !exists {
		return "", "", nil, false
	}
	targets = make([]ConnID, 0, len(entry.members))
	for _, member := range entry.members {
		if member != sender {
			targets = append(targets, member)
		}
	}
	return roomID, s.userIDLocked(sender), targets, true
}

// Counts reports the number of active rooms and registered connections, for
// health reporting.
func (s *State) Counts() (rooms, connections int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms), len(s.users)
}

// RoomInfo is a point-in-time view of one room for debug reporting.
type RoomInfo struct {
	UserCount int      `json:"user_count"`
	UserIDs   []string `json:"user_ids"`
}

// Snapshot returns a copy of all active rooms plus the total connection
// count.
func (s *State) Snapshot() (map[string]RoomInfo, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]RoomInfo, len(s.rooms))
	for roomID, entry := range s.rooms {
		userIDs := make([]string, len(entry.members))
		for i, member := range entry.members {
			userIDs[i] = s.userIDLocked(member)
		}
		out[roomID] = RoomInfo{UserCount: len(entry.members), UserIDs: userIDs}
	}
	return out, len(s.users)
}

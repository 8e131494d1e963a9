package room

import (
	"errors"
	"fmt"
	"testing"
)

// sequentialIDs returns a Config whose generators produce deterministic ids:
// room ids ROOM0001, ROOM0002, ... and user ids user-1, user-2, ...
func sequentialIDs() Config {
	var roomN, userN int
	return Config{
		NewRoomID: func() (string, error) {
			roomN++
			return fmt.Sprintf("ROOM%04d", roomN), nil
		},
		NewUserID: func() string {
			userN++
			return fmt.Sprintf("user-%d", userN)
		},
	}
}

// checkInvariant verifies the bidirectional membership invariant: every
// member of every room maps back to that room, and every association points
// at a room that contains the connection.
func checkInvariant(t *testing.T, s *State) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	for roomID, entry := range s.rooms {
		if len(entry.members) == 0 {
			t.Fatalf("room %s exists with zero members", roomID)
		}
		if len(entry.members) > MaxMembers {
			t.Fatalf("room %s has %d members", roomID, len(entry.members))
		}
		seen := make(map[ConnID]bool)
		for _, member := range entry.members {
			if seen[member] {
				t.Fatalf("room %s contains %s twice", roomID, member)
			}
			seen[member] = true
			if got := s.memberOf[member]; got != roomID {
				t.Fatalf("member %s of room %s has association %q", member, roomID, got)
			}
		}
	}
	for conn, roomID := range s.memberOf {
		entry, ok := s.rooms[roomID]
		if !ok {
			t.Fatalf("association %s -> %s points at missing room", conn, roomID)
		}
		found := false
		for _, member := range entry.members {
			if member == conn {
				found = true
			}
		}
		if !found {
			t.Fatalf("association %s -> %s but room does not contain it", conn, roomID)
		}
	}
}

func TestConnectAssignsDistinctUserIDs(t *testing.T) {
	s := NewState(Config{})

	a := s.Connect("conn-a")
	b := s.Connect("conn-b")
	if a == "" || b == "" {
		t.Fatalf("empty user id: a=%q b=%q", a, b)
	}
	if a == b {
		t.Fatalf("user ids collided: %q", a)
	}
	if got := s.UserID("conn-a"); got != a {
		t.Fatalf("UserID: got %q, want %q", got, a)
	}
	if got := s.UserID("conn-x"); got != UnknownUser {
		t.Fatalf("UserID for unknown conn: got %q, want %q", got, UnknownUser)
	}
}

func TestCreateRoom(t *testing.T) {
	s := NewState(sequentialIDs())
	s.Connect("a")

	roomID, err := s.CreateRoom("a")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if roomID != "ROOM0001" {
		t.Fatalf("roomID: got %q", roomID)
	}
	checkInvariant(t, s)

	rooms, conns := s.Counts()
	if rooms != 1 || conns != 1 {
		t.Fatalf("Counts: got rooms=%d conns=%d", rooms, conns)
	}
}

func TestCreateRoomRetriesOnCollision(t *testing.T) {
	ids := []string{"SAME0001", "SAME0001", "FRESH002"}
	cfg := sequentialIDs()
	cfg.NewRoomID = func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}
	s := NewState(cfg)
	s.Connect("a")
	s.Connect("b")

	first, err := s.CreateRoom("a")
	if err != nil {
		t.Fatalf("CreateRoom a: %v", err)
	}
	second, err := s.CreateRoom("b")
	if err != nil {
		t.Fatalf("CreateRoom b: %v", err)
	}
	if first != "SAME0001" || second != "FRESH002" {
		t.Fatalf("got %q then %q", first, second)
	}
	checkInvariant(t, s)
}

func TestCreateRoomAbandonsOldRoom(t *testing.T) {
	s := NewState(sequentialIDs())
	s.Connect("a")

	old, err := s.CreateRoom("a")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	next, err := s.CreateRoom("a")
	if err != nil {
		t.Fatalf("CreateRoom again: %v", err)
	}
	if next == old {
		t.Fatalf("room id reused while old room could be live: %q", next)
	}
	// The old room had one member, so abandoning it deletes it.
	if rooms, _ := s.Counts(); rooms != 1 {
		t.Fatalf("rooms: got %d, want 1", rooms)
	}
	checkInvariant(t, s)
}

func TestJoinRoomNormalizesID(t *testing.T) {
	s := NewState(sequentialIDs())
	s.Connect("a")
	s.Connect("b")
	roomID, _ := s.CreateRoom("a")

	res, err := s.JoinRoom("b", "  room0001  ")
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if res.RoomID != roomID {
		t.Fatalf("RoomID: got %q, want %q", res.RoomID, roomID)
	}
	checkInvariant(t, s)
}

func TestJoinRoomReportsOrderedUsers(t *testing.T) {
	s := NewState(sequentialIDs())
	s.Connect("a")
	s.Connect("b")
	s.Connect("c")
	roomID, _ := s.CreateRoom("a")

	if _, err := s.JoinRoom("b", roomID); err != nil {
		t.Fatalf("join b: %v", err)
	}
	res, err := s.JoinRoom("c", roomID)
	if err != nil {
		t.Fatalf("join c: %v", err)
	}

	want := []string{"user-1", "user-2", "user-3"}
	if len(res.Users) != len(want) {
		t.Fatalf("Users: got %v", res.Users)
	}
	for i := range want {
		if res.Users[i] != want[i] {
			t.Fatalf("Users[%d]: got %q, want %q (insertion order)", i, res.Users[i], want[i])
		}
	}
	if len(res.Others) != 2 || res.Others[0] != "a" || res.Others[1] != "b" {
		t.Fatalf("Others: got %v", res.Others)
	}
	if res.UserID != "user-3" {
		t.Fatalf("UserID: got %q", res.UserID)
	}
}

func TestJoinRoomErrors(t *testing.T) {
	s := NewState(sequentialIDs())
	s.Connect("a")
	s.Connect("b")
	s.Connect("c")
	s.Connect("d")
	s.Connect("e")
	roomID, _ := s.CreateRoom("a")

	if _, err := s.JoinRoom("b", "   "); !errors.Is(err, ErrEmptyRoomID) {
		t.Fatalf("empty id: got %v", err)
	}
	if _, err := s.JoinRoom("b", "NOPE0000"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("missing room: got %v", err)
	}
	if _, err := s.JoinRoom("a", roomID); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("rejoin own room: got %v", err)
	}

	if _, err := s.JoinRoom("b", roomID); err != nil {
		t.Fatalf("join b: %v", err)
	}
	if _, err := s.JoinRoom("c", roomID); err != nil {
		t.Fatalf("join c: %v", err)
	}
	if _, err := s.JoinRoom("d", roomID); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("4th join: got %v", err)
	}
	// A failed join leaves membership untouched.
	if _, _, _, ok := s.RelayTargets("d"); ok {
		t.Fatalf("failed joiner acquired a room")
	}
	checkInvariant(t, s)

	// Already-a-member is checked before capacity.
	if _, err := s.JoinRoom("a", roomID); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("rejoin full room as member: got %v", err)
	}
}

func TestJoinRoomSwitchesRooms(t *testing.T) {
	s := NewState(sequentialIDs())
	s.Connect("a")
	s.Connect("b")
	roomA, _ := s.CreateRoom("a")
	roomB, _ := s.CreateRoom("b")

	res, err := s.JoinRoom("a", roomB)
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if res.RoomID != roomB {
		t.Fatalf("RoomID: got %q, want %q", res.RoomID, roomB)
	}
	// The abandoned room emptied and must be gone immediately.
	if _, err := s.JoinRoom("b", roomA); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("old room still joinable: %v", err)
	}
	checkInvariant(t, s)
}

func TestDisconnectNotifiesRemainingMembers(t *testing.T) {
	s := NewState(sequentialIDs())
	s.Connect("a")
	s.Connect("b")
	roomID, _ := s.CreateRoom("a")
	if _, err := s.JoinRoom("b", roomID); err != nil {
		t.Fatalf("join: %v", err)
	}

	userB := s.UserID("b")
	gone, dep := s.Disconnect("b")
	if gone != userB {
		t.Fatalf("Disconnect user id: got %q, want %q", gone, userB)
	}
	if dep == nil || dep.RoomID != roomID {
		t.Fatalf("departure: got %+v", dep)
	}
	if dep.UserID != userB {
		t.Fatalf("departure user id: got %q, want %q", dep.UserID, userB)
	}
	if len(dep.Remaining) != 1 || dep.Remaining[0] != "a" {
		t.Fatalf("remaining: got %v", dep.Remaining)
	}
	checkInvariant(t, s)

	// Last member leaving deletes the room with nobody to notify.
	_, dep = s.Disconnect("a")
	if dep == nil || dep.RoomID != roomID || len(dep.Remaining) != 0 {
		t.Fatalf("final departure: got %+v", dep)
	}
	if rooms, conns := s.Counts(); rooms != 0 || conns != 0 {
		t.Fatalf("Counts after teardown: rooms=%d conns=%d", rooms, conns)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	s := NewState(sequentialIDs())
	s.Connect("a")
	roomID, _ := s.CreateRoom("a")
	_ = roomID

	if userID, _ := s.Disconnect("a"); userID == "" {
		t.Fatalf("first disconnect lost the user id")
	}
	userID, dep := s.Disconnect("a")
	if userID != "" || dep != nil {
		t.Fatalf("second disconnect observable: userID=%q dep=%+v", userID, dep)
	}
	if _, dep := s.Disconnect("never-connected"); dep != nil {
		t.Fatalf("disconnecting unknown conn affected a room: %+v", dep)
	}
}

func TestRelayTargetsExcludesSender(t *testing.T) {
	s := NewState(sequentialIDs())
	s.Connect("a")
	s.Connect("b")
	s.Connect("c")
	roomID, _ := s.CreateRoom("a")
	if _, err := s.JoinRoom("b", roomID); err != nil {
		t.Fatalf("join b: %v", err)
	}
	if _, err := s.JoinRoom("c", roomID); err != nil {
		t.Fatalf("join c: %v", err)
	}

	gotRoom, userID, targets, ok := s.RelayTargets("b")
	if !ok {
		t.Fatalf("RelayTargets: not ok")
	}
	if gotRoom != roomID || userID != "user-2" {
		t.Fatalf("got room=%q user=%q", gotRoom, userID)
	}
	if len(targets) != 2 || targets[0] != "a" || targets[1] != "c" {
		t.Fatalf("targets: got %v", targets)
	}

	if _, _, _, ok := s.RelayTargets("roomless"); ok {
		t.Fatalf("roomless sender resolved targets")
	}
}

func TestInvariantHoldsAcrossOperationSequences(t *testing.T) {
	s := NewState(sequentialIDs())

	conns := []ConnID{"c1", "c2", "c3", "c4", "c5"}
	for _, c := range conns {
		s.Connect(c)
		checkInvariant(t, s)
	}

	r1, _ := s.CreateRoom("c1")
	checkInvariant(t, s)
	_, _ = s.JoinRoom("c2", r1)
	checkInvariant(t, s)
	_, _ = s.JoinRoom("c3", r1)
	checkInvariant(t, s)
	_, _ = s.JoinRoom("c4", r1) // full
	checkInvariant(t, s)

	r2, _ := s.CreateRoom("c4")
	checkInvariant(t, s)
	_, _ = s.JoinRoom("c2", r2) // switch out of r1
	checkInvariant(t, s)

	s.Disconnect("c1")
	checkInvariant(t, s)
	s.Disconnect("c3") // r1 empties here
	checkInvariant(t, s)
	s.Disconnect("c3") // double cleanup
	checkInvariant(t, s)
	_, _ = s.CreateRoom("c5")
	checkInvariant(t, s)
	s.Disconnect("c2")
	s.Disconnect("c4")
	s.Disconnect("c5")
	checkInvariant(t, s)

	if rooms, conns := s.Counts(); rooms != 0 || conns != 0 {
		t.Fatalf("leftover state: rooms=%d conns=%d", rooms, conns)
	}
}

func TestSnapshotReportsRooms(t *testing.T) {
	s := NewState(sequentialIDs())
	s.Connect("a")
	s.Connect("b")
	roomID, _ := s.CreateRoom("a")
	if _, err := s.JoinRoom("b", roomID); err != nil {
		t.Fatalf("join: %v", err)
	}

	rooms, conns := s.Snapshot()
	if conns != 2 {
		t.Fatalf("connections: got %d", conns)
	}
	info, ok := rooms[roomID]
	if !ok {
		t.Fatalf("room %q missing from snapshot", roomID)
	}
	if info.UserCount != 2 || len(info.UserIDs) != 2 {
		t.Fatalf("info: got %+v", info)
	}
	if info.UserIDs[0] != "user-1" || info.UserIDs[1] != "user-2" {
		t.Fatalf("user ids: got %v", info.UserIDs)
	}
}

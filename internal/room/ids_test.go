package room

import (
	"strings"
	"testing"
)

func TestNewRoomIDShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := newRoomID()
		if err != nil {
			t.Fatalf("newRoomID: %v", err)
		}
		if len(id) != roomIDLength {
			t.Fatalf("length: got %d (%q)", len(id), id)
		}
		for _, r := range id {
			if !strings.ContainsRune(roomIDAlphabet, r) {
				t.Fatalf("unexpected character %q in %q", r, id)
			}
		}
		seen[id] = true
	}
	if len(seen) < 99 {
		t.Fatalf("suspicious collision rate: %d distinct ids out of 100", len(seen))
	}
}

func TestNewUserIDIsOpaqueAndUnique(t *testing.T) {
	a := newUserID()
	b := newUserID()
	if a == "" || a == b {
		t.Fatalf("got %q and %q", a, b)
	}
}

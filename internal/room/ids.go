package room

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// Room IDs are short and human-typeable: clients read them out loud or paste
// them into a join box.
const (
	roomIDLength   = 8
	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

func newRoomID() (string, error) {
	var buf [roomIDLength]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate room id: %w", err)
	}
	for i, b := range buf {
		buf[i] = roomIDAlphabet[int(b)%len(roomIDAlphabet)]
	}
	return string(buf[:]), nil
}

// newUserID returns the identifier pushed to clients on connect. It is
// cosmetic metadata, not a credential, but must be unguessable enough that
// collisions are never observed.
func newUserID() string {
	return uuid.NewString()
}

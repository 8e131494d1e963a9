package signaling

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/watchparty/signaling-relay/internal/room"
)

const (
	wsWriteWait = 1 * time.Second

	// sendQueueSize bounds per-connection outbound buffering. Emits are
	// fire-and-forget: a full queue drops the message rather than blocking
	// the rest of the fan-out on one slow client.
	sendQueueSize = 64
)

// peer owns the write side of one WebSocket connection. All writes go
// through the out queue and a single writer goroutine.
type peer struct {
	id   room.ConnID
	conn *websocket.Conn

	out  chan []byte
	done chan struct{}

	closeOnce sync.Once
}

func newPeer(id room.ConnID, conn *websocket.Conn) *peer {
	return &peer{
		id:   id,
		conn: conn,
		out:  make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

// enqueue hands a pre-marshaled frame to the writer. It never blocks;
// false means the frame was dropped (queue full or peer closed).
func (p *peer) enqueue(frame []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.out <- frame:
		return true
	default:
		return false
	}
}

// writeLoop drains the out queue and sends keepalive pings. It exits when
// the peer is closed or a write fails, and always closes the underlying
// connection on the way out so the read loop unblocks.
func (p *peer) writeLoop(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer p.conn.Close()

	for {
		select {
		case <-p.done:
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case frame := <-p.out:
			_ = p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

// newConnID generates the transport-assigned handle for a connection. It is
// opaque and never leaves the server.
func newConnID() (room.ConnID, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return room.ConnID(hex.EncodeToString(buf[:])), nil
}

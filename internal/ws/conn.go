package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"lanchat/internal/protocol"
)

// Conn wraps one websocket connection with a write mutex so concurrent
// fan-outs never interleave frames.
type Conn struct {
	sock     *websocket.Conn
	loopback bool
	mu       sync.Mutex
}

func newConn(sock *websocket.Conn, loopback bool) *Conn {
	return &Conn{sock: sock, loopback: loopback}
}

// Send encodes and writes one server event.
func (c *Conn) Send(msgType string, payload any) error {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock.WriteMessage(websocket.TextMessage, data)
}

// Close tears the socket down. The read loop observes the error and runs
// its cleanup path.
func (c *Conn) Close() {
	_ = c.sock.Close()
}

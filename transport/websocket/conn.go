package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum command size accepted by the replay server.
	maxCommandSize = 512
)

// ErrConnClosed is returned by writes after Close.
var ErrConnClosed = errors.New("connection closed")

// Conn is a client connection to the simulation server
type Conn struct {
	ws        *websocket.Conn
	writeWait time.Duration

	mu     sync.Mutex // serializes writers
	closed bool
}

// Dial opens a connection to uri. The context bounds the handshake only.
// A zero writeTimeout uses the package default.
func Dial(ctx context.Context, uri string, writeTimeout time.Duration) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", uri, err)
	}
	return NewConn(ws, writeTimeout), nil
}

// NewConn wraps an established gorilla connection.
func NewConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = writeWait
	}
	return &Conn{ws: ws, writeWait: writeTimeout}
}

// ReadMessage blocks until the next data frame arrives and returns its
// payload. Control frames are handled internally.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// WriteText sends msg as a single text frame.
func (c *Conn) WriteText(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

// Close performs the close handshake and releases the connection. It is safe
// to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	deadline := time.Now().Add(c.writeWait)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	// the peer may already be gone, the close frame is best effort
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
	return c.ws.Close()
}

// RemoteAddr returns the server address as a string.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// IsNormalClose reports whether err is a clean close by the peer.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

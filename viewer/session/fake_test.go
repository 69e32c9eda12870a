package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/wricardo/gridworld-viewer/transport/websocket"
	"go.uber.org/zap/zaptest"
)

var errFakeClosed = errors.New("use of closed network connection")

// fakeConn is an in-memory Conn. The test plays the server by pushing into
// inbox and closes the connection from the server side with hangUp.
type fakeConn struct {
	inbox    chan []byte
	closedCh chan struct{}
	hangup   chan error

	mu       sync.Mutex
	sent     []string
	closed   bool
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbox:    make(chan []byte, 16),
		closedCh: make(chan struct{}),
		hangup:   make(chan error, 1),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case err := <-c.hangup:
		return nil, err
	case <-c.closedCh:
		return nil, errFakeClosed
	}
}

func (c *fakeConn) WriteText(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrConnClosed
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closedCh)
	}
	return nil
}

func (c *fakeConn) push(data string) {
	c.inbox <- []byte(data)
}

// hangUp simulates the server closing the connection normally.
func (c *fakeConn) hangUp() {
	c.hangup <- &gorilla.CloseError{Code: gorilla.CloseNormalClosure}
}

func (c *fakeConn) sentCommands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) count(cmd string) int {
	n := 0
	for _, s := range c.sentCommands() {
		if s == cmd {
			n++
		}
	}
	return n
}

func fakeDialer(conn *fakeConn) Dialer {
	return func(ctx context.Context, uri string) (Conn, error) {
		return conn, nil
	}
}

func newTestSession(t *testing.T, conn *fakeConn, interval time.Duration) *Session {
	t.Helper()
	s := New(Options{
		URI:          "ws://test/websocket",
		StepInterval: interval,
		Dialer:       fakeDialer(conn),
		Logger:       zaptest.NewLogger(t),
	})
	t.Cleanup(func() { s.Close() })
	return s
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func panelTexts(p *Panel) []string {
	var out []string
	for _, l := range p.Lines() {
		out = append(out, l.Text)
	}
	return out
}

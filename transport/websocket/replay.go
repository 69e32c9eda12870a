package websocket

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/wricardo/gridworld-viewer/viewer/world"
	"go.uber.org/zap"
)

// Outgoing queue length per peer
const sendBufferSize = 16

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// replay is a local development fixture
		return true
	},
}

// peer is one viewer connected to the replay server
type peer struct {
	server *ReplayServer
	conn   *websocket.Conn
	send   chan []byte
	cursor int
}

type peerCommand struct {
	peer    *peer
	command string
}

// ReplayServer plays recorded snapshots back to connected viewers
type ReplayServer struct {
	frames [][]byte
	loop   bool
	logger *zap.Logger

	// Registered peers, owned by the Run loop
	peers map[*peer]bool

	register   chan *peer
	unregister chan *peer
	commands   chan peerCommand
	done       chan struct{}

	connected atomic.Int64
	steps     atomic.Int64
	stops     atomic.Int64
}

// LoadFrames reads snapshots from a JSON-lines stream, one snapshot per line.
// Blank lines are skipped and every snapshot must pass world.Decode.
func LoadFrames(r io.Reader) ([][]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var frames [][]byte
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		if _, err := world.Decode(data); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		frames = append(frames, append([]byte(nil), data...))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no snapshots found")
	}
	return frames, nil
}

// LoadFramesFile reads a JSON-lines snapshot file.
func LoadFramesFile(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay file: %w", err)
	}
	defer f.Close()
	return LoadFrames(f)
}

// NewReplayServer creates a server for frames. With loop set the playback
// wraps around, otherwise the last frame is repeated.
func NewReplayServer(frames [][]byte, loop bool, logger *zap.Logger) *ReplayServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayServer{
		frames:     frames,
		loop:       loop,
		logger:     logger,
		peers:      make(map[*peer]bool),
		register:   make(chan *peer),
		unregister: make(chan *peer),
		commands:   make(chan peerCommand),
		done:       make(chan struct{}),
	}
}

// Run owns the peer set until ctx is cancelled.
func (s *ReplayServer) Run(ctx context.Context) {
	defer func() {
		close(s.done)
		for p := range s.peers {
			s.removePeer(p)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case p := <-s.register:
			s.peers[p] = true
			s.connected.Add(1)
			s.logger.Info("viewer connected",
				zap.String("remote", p.conn.RemoteAddr().String()),
				zap.Int("peers", len(s.peers)))
			s.deliver(p)

		case p := <-s.unregister:
			s.removePeer(p)

		case cmd := <-s.commands:
			s.handleCommand(cmd)
		}
	}
}

// Routes returns the HTTP handler serving the WebSocket endpoint at path and
// a health check at /healthz.
func (s *ReplayServer) Routes(path string) http.Handler {
	r := chi.NewRouter()
	r.Get(path, s.ServeWS)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "ok frames=%d peers=%d\n", len(s.frames), s.connected.Load())
	})
	return r
}

// ServeWS upgrades the request and attaches a new peer.
func (s *ReplayServer) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	p := &peer{
		server: s,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}

	select {
	case s.register <- p:
	case <-s.done:
		conn.Close()
		return
	}

	go p.writePump()
	go p.readPump()
}

// Connected returns the number of peers currently attached.
func (s *ReplayServer) Connected() int {
	return int(s.connected.Load())
}

// Steps returns how many step commands have been received.
func (s *ReplayServer) Steps() int {
	return int(s.steps.Load())
}

// Stops returns how many stop commands have been received.
func (s *ReplayServer) Stops() int {
	return int(s.stops.Load())
}

func (s *ReplayServer) handleCommand(cmd peerCommand) {
	if !s.peers[cmd.peer] {
		return
	}

	switch cmd.command {
	case "step":
		s.steps.Add(1)
		s.advance(cmd.peer)
		s.deliver(cmd.peer)
	case "stop":
		s.stops.Add(1)
		s.logger.Info("viewer stopped stepping", zap.Int("frame", cmd.peer.cursor))
	default:
		s.logger.Warn("unknown command", zap.String("command", cmd.command))
	}
}

func (s *ReplayServer) advance(p *peer) {
	if len(s.frames) == 0 {
		return
	}
	next := p.cursor + 1
	if next >= len(s.frames) {
		if s.loop {
			next = 0
		} else {
			next = len(s.frames) - 1
		}
	}
	p.cursor = next
}

// deliver queues the peer's current frame
func (s *ReplayServer) deliver(p *peer) {
	if len(s.frames) == 0 {
		return
	}
	select {
	case p.send <- s.frames[p.cursor]:
	default:
		// Peer is not draining its queue, drop it
		s.removePeer(p)
	}
}

func (s *ReplayServer) removePeer(p *peer) {
	if _, ok := s.peers[p]; !ok {
		return
	}
	delete(s.peers, p)
	close(p.send)
	s.connected.Add(-1)
	s.logger.Info("viewer disconnected", zap.Int("peers", len(s.peers)))
}

// readPump turns incoming text frames into commands for the Run loop
func (p *peer) readPump() {
	s := p.server
	defer func() {
		select {
		case s.unregister <- p:
		case <-s.done:
		}
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxCommandSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		p.conn.SetReadDeadline(time.Now().Add(pongWait))

		select {
		case s.commands <- peerCommand{peer: p, command: strings.TrimSpace(string(data))}:
		case <-s.done:
			return
		}
	}
}

// writePump sends queued frames and keeps the connection alive with pings
func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				p.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			// one snapshot per frame, the viewer decodes frames independently
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wricardo/gridworld-viewer/transport/websocket"
	"github.com/wricardo/gridworld-viewer/viewer/config"
	"github.com/wricardo/gridworld-viewer/viewer/render"
	"github.com/wricardo/gridworld-viewer/viewer/world"
	"go.uber.org/zap"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("session already connected")
	ErrSessionClosed    = errors.New("session closed")
)

// Command is an outbound instruction to the simulation server
type Command string

const (
	CommandStep Command = "step"
	CommandStop Command = "stop"
)

// Status is the connection state of a session
type Status int

const (
	Unconnected Status = iota
	Connecting
	Open
	Closed
)

func (s Status) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Conn is the transport a session reads snapshots from and writes commands to
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteText(msg string) error
	Close() error
}

// Dialer opens a Conn to uri
type Dialer func(ctx context.Context, uri string) (Conn, error)

// WebSocketDialer returns a Dialer backed by the websocket transport.
func WebSocketDialer(writeWait time.Duration) Dialer {
	return func(ctx context.Context, uri string) (Conn, error) {
		conn, err := websocket.Dial(ctx, uri, writeWait)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Options configures a Session. Zero fields get defaults.
type Options struct {
	URI          string
	StepInterval time.Duration
	Dialer       Dialer
	Renderer     *render.Renderer
	Surface      render.Surface
	Logger       *zap.Logger
}

// OptionsFromConfig fills Options from a viewer configuration. Sprites are
// loaded from the configured asset directory.
func OptionsFromConfig(cfg config.Config, logger *zap.Logger) (Options, error) {
	sprites, err := render.LoadSprites(cfg.AssetDir, cfg.TileSize, logger)
	if err != nil {
		return Options{}, err
	}
	return Options{
		URI:          cfg.URI,
		StepInterval: cfg.StepInterval,
		Dialer:       WebSocketDialer(cfg.WriteWait),
		Renderer:     render.NewRenderer(sprites),
		Surface:      render.NewImageSurface(cfg.Width(), cfg.Height()),
		Logger:       logger,
	}, nil
}

// Stats summarizes what a session has seen so far
type Stats struct {
	Status       string `json:"status"`
	Received     int    `json:"received"`
	DecodeErrors int    `json:"decode_errors"`
	Entities     int    `json:"entities"`
	Drawn        int    `json:"drawn"`
	Stepping     bool   `json:"stepping"`
}

// Session owns one connection, one drawing surface and one step timer
type Session struct {
	id       string
	uri      string
	dial     Dialer
	renderer *render.Renderer
	surface  render.Surface
	panel    *Panel
	stepper  *Stepper
	logger   *zap.Logger

	mu           sync.Mutex // serializes handlers and guards the fields below
	status       Status
	conn         Conn
	closing      bool
	disconnected bool
	snapshot     world.Snapshot
	hasSnapshot  bool
	received     int
	decodeErrors int
	drawn        int
	pumpDone     chan struct{}
}

// New creates an unconnected session.
func New(opts Options) *Session {
	id := uuid.NewString()

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session", id))

	if opts.URI == "" {
		opts.URI = config.DefaultURI
	}
	if opts.StepInterval <= 0 {
		opts.StepInterval = config.DefaultStepInterval
	}
	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer(config.DefaultWriteWait)
	}
	if opts.Renderer == nil {
		opts.Renderer = render.NewRenderer(render.FallbackSprites(world.DefaultTileSize))
	}
	if opts.Surface == nil {
		tile := opts.Renderer.TileSize()
		opts.Surface = render.NewImageSurface(world.DefaultColumns*tile, world.DefaultRows*tile)
	}

	s := &Session{
		id:       id,
		uri:      opts.URI,
		dial:     opts.Dialer,
		renderer: opts.Renderer,
		surface:  opts.Surface,
		panel:    NewPanel(logger),
		logger:   logger,
	}
	s.stepper = NewStepper(opts.StepInterval, s.Send, logger)
	return s
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// URI returns the server address.
func (s *Session) URI() string { return s.uri }

// Panel returns the session log panel.
func (s *Session) Panel() *Panel { return s.panel }

// Surface returns the drawing surface snapshots are rendered onto.
func (s *Session) Surface() render.Surface { return s.surface }

// Status returns the current connection state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Snapshot returns the last rendered snapshot, if any.
func (s *Session) Snapshot() (world.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, s.hasSnapshot
}

// Stats returns counters describing the session.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Status:       s.status.String(),
		Received:     s.received,
		DecodeErrors: s.decodeErrors,
		Entities:     s.snapshot.Len(),
		Drawn:        s.drawn,
		Stepping:     s.stepper.Active(),
	}
}

// Connect opens the connection. It is the only dial attempt of the session:
// no retry, no backoff, bounded only by ctx.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.status {
	case Closed:
		s.mu.Unlock()
		return ErrSessionClosed
	case Connecting, Open:
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.status = Connecting
	s.mu.Unlock()

	s.logger.Info("connecting", zap.String("uri", s.uri))
	conn, err := s.dial(ctx, s.uri)
	if err != nil {
		s.onError(err)
		s.onClose()
		return fmt.Errorf("connect: %w", err)
	}

	s.mu.Lock()
	if s.closing {
		// Close won the race with the dial
		s.mu.Unlock()
		conn.Close()
		return ErrSessionClosed
	}
	s.conn = conn
	s.status = Open
	s.pumpDone = make(chan struct{})
	done := s.pumpDone
	s.mu.Unlock()

	s.onOpen()
	go s.readPump(conn, done)
	return nil
}

// Send logs cmd and writes it to the server. It fails with ErrNotConnected
// when the connection is not open; transport failures are returned wrapped.
// Rendering state is never affected by a failed send.
func (s *Session) Send(cmd Command) error {
	s.panel.Appendf(LineSent, "Sent: %s", cmd)

	s.mu.Lock()
	conn, status := s.conn, s.status
	s.mu.Unlock()

	if status != Open || conn == nil {
		err := fmt.Errorf("send %s: %w", cmd, ErrNotConnected)
		s.panel.Appendf(LineError, "Error: %v", err)
		return err
	}
	if err := conn.WriteText(string(cmd)); err != nil {
		err = fmt.Errorf("send %s: %w", cmd, err)
		s.panel.Appendf(LineError, "Error: %v", err)
		return err
	}
	return nil
}

// Step sends a single step command.
func (s *Session) Step() error {
	return s.Send(CommandStep)
}

// StartStepping sends a step command every step interval until stopped.
// Calling it while already stepping is a no-op. It fails when the
// connection is not open.
func (s *Session) StartStepping() error {
	if s.Status() != Open {
		return s.notStepping()
	}
	// onClose seals the stepper before the session reports Closed, so a close
	// racing with this call either cancels the new timer or refuses it.
	if s.stepper.Start() {
		s.logger.Info("stepping started", zap.Duration("interval", s.stepper.Interval()))
		return nil
	}
	if s.stepper.Sealed() {
		return s.notStepping()
	}
	return nil
}

func (s *Session) notStepping() error {
	err := fmt.Errorf("start stepping: %w", ErrNotConnected)
	s.panel.Appendf(LineError, "Error: %v", err)
	return err
}

// StopStepping cancels the step timer, if any, then sends one stop command.
// No step is sent after it returns.
func (s *Session) StopStepping() error {
	if s.stepper.Cancel() {
		s.logger.Info("stepping stopped")
	}
	return s.Send(CommandStop)
}

// Stepping reports whether the step timer is running.
func (s *Session) Stepping() bool {
	return s.stepper.Active()
}

// Close cancels stepping, closes the connection and waits for the read pump
// to finish. The session cannot be reused.
func (s *Session) Close() error {
	s.stepper.Seal()

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	conn, done := s.conn, s.pumpDone
	if conn == nil {
		s.status = Closed
	}
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	<-done
	return err
}

func (s *Session) readPump(conn Conn, done chan struct{}) {
	defer close(done)

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if !closing && !websocket.IsNormalClose(err) {
				s.onError(err)
			}
			s.onClose()
			return
		}
		s.onMessage(data)
	}
}

func (s *Session) onOpen() {
	s.logger.Info("connected", zap.String("uri", s.uri))
	s.panel.Append(LineInfo, "Connected.")
}

// onClose cancels stepping without sending stop. It runs once per session.
func (s *Session) onClose() {
	s.stepper.Seal()

	s.mu.Lock()
	s.status = Closed
	conn := s.conn
	already := s.disconnected
	s.disconnected = true
	s.mu.Unlock()

	if already {
		return
	}
	if conn != nil {
		conn.Close()
	}
	s.logger.Info("disconnected")
	s.panel.Append(LineInfo, "Disconnected.")
}

// onMessage decodes and renders one snapshot. A malformed message is
// reported and dropped; the last frame stays on the surface.
func (s *Session) onMessage(data []byte) {
	snap, err := world.Decode(data)
	if err != nil {
		s.mu.Lock()
		s.decodeErrors++
		s.mu.Unlock()
		s.panel.Appendf(LineError, "Error: %v", err)
		return
	}

	s.mu.Lock()
	drawn := s.renderer.Render(s.surface, snap)
	s.snapshot = snap
	s.hasSnapshot = true
	s.received++
	s.drawn = drawn
	s.mu.Unlock()

	s.logger.Debug("snapshot rendered", zap.Int("entities", snap.Len()), zap.Int("drawn", drawn))
	for _, e := range snap.EnvState {
		s.panel.Appendf(LineReply, "Reply: %s", e.Type)
	}
}

func (s *Session) onError(err error) {
	s.panel.Appendf(LineError, "Error: %v", err)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/wricardo/gridworld-viewer/api"
	"github.com/wricardo/gridworld-viewer/logging"
	"github.com/wricardo/gridworld-viewer/transport/mcp"
	"github.com/wricardo/gridworld-viewer/transport/websocket"
	"github.com/wricardo/gridworld-viewer/validate"
	"github.com/wricardo/gridworld-viewer/viewer/config"
	"github.com/wricardo/gridworld-viewer/viewer/render"
	"github.com/wricardo/gridworld-viewer/viewer/session"
	"github.com/wricardo/gridworld-viewer/viewer/window"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

const (
	framePollInterval = 50 * time.Millisecond
	shutdownTimeout   = 10 * time.Second
)

// newApp builds the command tree. Root flags are shared by every mode.
func newApp() *cli.Command {
	return &cli.Command{
		Name:    "gridworld-viewer",
		Usage:   "view and drive a grid-world simulation over WebSocket",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				Sources: cli.EnvVars("VIEWER_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "uri",
				Usage: "simulation server WebSocket URI (default " + config.DefaultURI + ")",
			},
			&cli.StringFlag{
				Name:  "assets",
				Usage: "directory holding rabbit.png, wolf.png and carrot.png",
			},
			&cli.DurationFlag{
				Name:  "step-interval",
				Usage: "delay between step commands while stepping",
			},
			&cli.BoolFlag{
				Name:  "step",
				Usage: "start stepping as soon as the connection opens",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "enable debug logging",
				Sources: cli.EnvVars("VIEWER_DEBUG"),
			},
		},
		Action: runWindow,
		Commands: []*cli.Command{
			{
				Name:   "window",
				Usage:  "open a desktop window (build with -tags ebiten)",
				Action: runWindow,
			},
			{
				Name:  "headless",
				Usage: "render in memory and print the log panel",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "frames",
						Usage: "directory to write every rendered frame to as PNG",
					},
					&cli.DurationFlag{
						Name:  "duration",
						Usage: "stop after this long (0 runs until interrupted or disconnected)",
					},
					&cli.StringFlag{
						Name:  "http",
						Usage: "serve the control API on this address, e.g. localhost:8090",
					},
				},
				Action: runHeadless,
			},
			{
				Name:  "mcp",
				Usage: "serve the session as MCP tools over stdio",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "connect",
						Usage: "connect before serving instead of waiting for the connect tool",
					},
				},
				Action: runMCP,
			},
			{
				Name:      "validate",
				Usage:     "check snapshot recordings before replaying them",
				ArgsUsage: "FILE...",
				Action:    runValidate,
			},
			{
				Name:  "replay",
				Usage: "serve recorded snapshots over the viewer protocol",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "JSON-lines file with one snapshot per line",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "addr",
						Value: "localhost:8080",
						Usage: "listen address",
					},
					&cli.StringFlag{
						Name:  "path",
						Value: "/websocket",
						Usage: "WebSocket endpoint path",
					},
					&cli.BoolFlag{
						Name:  "loop",
						Usage: "wrap around after the last snapshot instead of repeating it",
					},
					&cli.BoolFlag{
						Name:    "ngrok",
						Usage:   "expose the replay server through an ngrok tunnel",
						Sources: cli.EnvVars("NGROK_ENABLED"),
					},
					&cli.StringFlag{
						Name:    "ngrok-auth",
						Usage:   "ngrok auth token",
						Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
					},
					&cli.StringFlag{
						Name:    "ngrok-domain",
						Usage:   "custom ngrok domain",
						Sources: cli.EnvVars("NGROK_DOMAIN"),
					},
				},
				Action: runReplay,
			},
		},
	}
}

// loadConfig layers defaults, the config file, the environment and flags.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	if cmd.IsSet("uri") {
		cfg.URI = cmd.String("uri")
	}
	if cmd.IsSet("assets") {
		cfg.AssetDir = cmd.String("assets")
	}
	if cmd.IsSet("step-interval") {
		cfg.StepInterval = cmd.Duration("step-interval")
	}

	return cfg, cfg.Validate()
}

func setup(cmd *cli.Command, mode string) (config.Config, *zap.Logger, error) {
	logger, err := logging.New(cmd.Bool("debug"))
	if err != nil {
		return config.Config{}, nil, err
	}
	logger.Info(fmt.Sprintf("Starting %s v%s (mode: %s)", AppName, Version, mode))

	cfg, err := loadConfig(cmd)
	if err != nil {
		return cfg, logger, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Debug("config loaded",
		zap.String("uri", cfg.URI),
		zap.String("assets", cfg.AssetDir),
		zap.Duration("step_interval", cfg.StepInterval),
		zap.Int("tile_size", cfg.TileSize))
	return cfg, logger, nil
}

func newSession(cfg config.Config, logger *zap.Logger) (*session.Session, error) {
	opts, err := session.OptionsFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load sprites: %w", err)
	}
	return session.New(opts), nil
}

// connect dials and, with --step, starts stepping.
func connect(ctx context.Context, cmd *cli.Command, sess *session.Session) error {
	if err := sess.Connect(ctx); err != nil {
		return err
	}
	if cmd.Bool("step") {
		return sess.StartStepping()
	}
	return nil
}

func runWindow(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd, "window")
	if err != nil {
		return err
	}
	defer logger.Sync()

	sess, err := newSession(cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	// connection failures are shown on the panel, the window still opens
	if err := connect(ctx, cmd, sess); err != nil {
		logger.Warn("connect failed", zap.Error(err))
	}

	return window.Run(sess, cfg, logger)
}

func runHeadless(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd, "headless")
	if err != nil {
		return err
	}
	defer logger.Sync()

	sess, err := newSession(cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()
	sess.Panel().SetSink(os.Stdout)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := cmd.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	framesDir := cmd.String("frames")
	if framesDir != "" {
		if err := os.MkdirAll(framesDir, 0o755); err != nil {
			return fmt.Errorf("failed to create frames directory: %w", err)
		}
	}

	if err := connect(ctx, cmd, sess); err != nil {
		return err
	}

	if addr := cmd.String("http"); addr != "" {
		shutdown, err := serveAPI(addr, sess, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	err = watchFrames(ctx, sess, framesDir, logger)

	if sess.Stepping() {
		sess.StopStepping()
	}
	stats := sess.Stats()
	logger.Info("headless session finished",
		zap.Int("received", stats.Received),
		zap.Int("decode_errors", stats.DecodeErrors))
	return err
}

// serveAPI starts the control API and returns a function that shuts it down.
func serveAPI(addr string, sess *session.Session, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	httpServer := &http.Server{Handler: api.NewServer(sess, logger)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("control API listening", zap.String("url", fmt.Sprintf("http://%s/api", ln.Addr())))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("control API failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warn("control API shutdown error", zap.Error(err))
		}
		<-done
	}, nil
}

// watchFrames polls the surface until ctx ends or the connection closes,
// writing each new frame to dir when dir is set.
func watchFrames(ctx context.Context, sess *session.Session, dir string, logger *zap.Logger) error {
	surface, _ := sess.Surface().(*render.ImageSurface)

	ticker := time.NewTicker(framePollInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if surface != nil && dir != "" && surface.Version() != last {
			var frame *image.RGBA
			frame, last = surface.Frame()
			if err := writeFrame(frame, filepath.Join(dir, fmt.Sprintf("frame-%05d.png", last))); err != nil {
				return err
			}
			logger.Debug("frame written", zap.Uint64("version", last))
		}

		if sess.Status() == session.Closed {
			return nil
		}
	}
}

func writeFrame(frame image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create frame file: %w", err)
	}
	if err := png.Encode(f, frame); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return f.Close()
}

func runValidate(ctx context.Context, cmd *cli.Command) error {
	files := cmd.Args().Slice()
	if len(files) == 0 {
		return errors.New("validate needs at least one recording file")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	grid := validate.Grid{Columns: cfg.Columns, Rows: cfg.Rows}

	results := make([]validate.Result, 0, len(files))
	for _, file := range files {
		results = append(results, validate.File(file, grid))
	}
	if !validate.Report(os.Stdout, results) {
		return errors.New("some recordings have errors")
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd, "mcp")
	if err != nil {
		return err
	}
	defer logger.Sync()

	sess, err := newSession(cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	if cmd.Bool("connect") {
		if err := connect(ctx, cmd, sess); err != nil {
			logger.Warn("connect failed", zap.Error(err))
		}
	}

	return mcp.NewController(sess, logger).ServeStdio()
}

func runReplay(ctx context.Context, cmd *cli.Command) error {
	logger, err := logging.New(cmd.Bool("debug"))
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger.Info(fmt.Sprintf("Starting %s v%s (mode: %s)", AppName, Version, "replay"))

	frames, err := websocket.LoadFramesFile(cmd.String("file"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	replay := websocket.NewReplayServer(frames, cmd.Bool("loop"), logger)
	go replay.Run(ctx)

	path := cmd.String("path")
	router := replay.Routes(path)
	addr := cmd.String("addr")
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		logger.Info("replay server listening",
			zap.String("websocket", fmt.Sprintf("ws://%s%s", ln.Addr(), path)),
			zap.Int("frames", len(frames)),
			zap.Bool("loop", cmd.Bool("loop")))

		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if cmd.Bool("ngrok") {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveNgrok(ctx, cmd, router, path, logger)
		}()
	}

	select {
	case sig := <-stop:
		logger.Info("shutting down", zap.Stringer("signal", sig))
	case err = <-serveErr:
		logger.Error("replay server failed", zap.Error(err))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", zap.Error(err))
	}

	wg.Wait()
	logger.Info("replay server stopped")
	return err
}

// serveNgrok serves router through an ngrok tunnel until ctx is cancelled.
func serveNgrok(ctx context.Context, cmd *cli.Command, router http.Handler, path string, logger *zap.Logger) {
	authToken := cmd.String("ngrok-auth")
	if authToken == "" {
		logger.Warn("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN or NGROK_AUTH_TOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if domain := cmd.String("ngrok-domain"); domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		logger.Info("using custom ngrok domain", zap.String("domain", domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", zap.Error(err))
		return
	}

	ngrokServer := &http.Server{Handler: router}
	go func() {
		<-ctx.Done()
		ngrokServer.Close()
	}()

	logger.Info("ngrok tunnel established",
		zap.String("url", tun.URL()),
		zap.String("websocket", "wss://"+trimScheme(tun.URL())+path))

	if err := ngrokServer.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("ngrok server error", zap.Error(err))
	}
	logger.Info("ngrok tunnel closed")
}

func trimScheme(url string) string {
	return strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
}

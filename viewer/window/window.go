//go:build ebiten

package window

import (
	"errors"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/wricardo/gridworld-viewer/logging"
	"github.com/wricardo/gridworld-viewer/viewer/config"
	"github.com/wricardo/gridworld-viewer/viewer/render"
	"github.com/wricardo/gridworld-viewer/viewer/session"
	"go.uber.org/zap"
)

var (
	background = color.RGBA{20, 20, 30, 255}
	gridColor  = color.RGBA{34, 34, 48, 255}
	panelColor = color.RGBA{12, 12, 18, 255}
)

// Game adapts a viewer session to the ebiten.Game interface.
type Game struct {
	session *session.Session
	surface *render.ImageSurface
	logger  *zap.Logger

	width, height int
	tileSize      int
	logTail       int

	frame        *ebiten.Image
	frameVersion uint64
}

// New creates a window game for sess. The session must render onto an
// ImageSurface.
func New(sess *session.Session, cfg config.Config, logger *zap.Logger) (*Game, error) {
	surface, ok := sess.Surface().(*render.ImageSurface)
	if !ok {
		return nil, errors.New("window: session surface is not an image surface")
	}
	b := surface.Bounds()
	return &Game{
		session:  sess,
		surface:  surface,
		logger:   logging.OrNop(logger).Named("window"),
		width:    b.Dx(),
		height:   b.Dy(),
		tileSize: cfg.TileSize,
		logTail:  cfg.LogTail,
		frame:    ebiten.NewImage(b.Dx(), b.Dy()),
	}, nil
}

// Run opens the window and blocks until it is closed.
func Run(sess *session.Session, cfg config.Config, logger *zap.Logger) error {
	g, err := New(sess, cfg, logger)
	if err != nil {
		return err
	}

	w, h := g.Layout(0, 0)
	ebiten.SetWindowTitle("Grid World Viewer - " + sess.URI())
	ebiten.SetWindowSize(w, h)

	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}
	return nil
}

func (g *Game) pressedAction() Action {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyEscape), inpututil.IsKeyJustPressed(ebiten.KeyQ):
		return ActionQuit
	case inpututil.IsKeyJustPressed(ebiten.KeyS):
		return ActionStartStepping
	case inpututil.IsKeyJustPressed(ebiten.KeySpace), inpututil.IsKeyJustPressed(ebiten.KeyX):
		return ActionStopStepping
	case inpututil.IsKeyJustPressed(ebiten.KeyN):
		return ActionStep
	}
	return ActionNone
}

// Update handles keyboard input.
func (g *Game) Update() error {
	action := g.pressedAction()
	if action == ActionQuit {
		return ebiten.Termination
	}
	if err := Apply(g.session, action); err != nil {
		g.logger.Debug("key action failed", zap.Stringer("action", action), zap.Error(err))
	}
	return nil
}

// Draw renders the grid, the status bar and the log panel.
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(background)
	g.drawGrid(screen)

	if g.surface.Version() != g.frameVersion {
		pix, version := g.surface.Frame()
		g.frame.WritePixels(pix.Pix)
		g.frameVersion = version
	}
	screen.DrawImage(g.frame, nil)

	g.drawPanel(screen)
}

func (g *Game) drawGrid(screen *ebiten.Image) {
	if g.tileSize <= 0 {
		return
	}
	for x := g.tileSize; x < g.width; x += g.tileSize {
		vector.StrokeLine(screen, float32(x), 0, float32(x), float32(g.height), 1, gridColor, false)
	}
	for y := g.tileSize; y < g.height; y += g.tileSize {
		vector.StrokeLine(screen, 0, float32(y), float32(g.width), float32(y), 1, gridColor, false)
	}
}

func (g *Game) drawPanel(screen *ebiten.Image) {
	top := g.height
	vector.DrawFilledRect(screen, 0, float32(top), float32(g.width), float32(PanelHeight(g.logTail)), panelColor, false)

	stats := g.session.Stats()
	indicator := StatusColor(g.session.Status())
	vector.DrawFilledCircle(screen, float32(panelPadding+6), float32(top+statusHeight/2), 6, indicator, true)
	ebitenutil.DebugPrintAt(screen, StatusText(g.session.URI(), stats), panelPadding+18, top+4)

	y := top + statusHeight
	for _, text := range PanelText(g.session.Panel().Tail(g.logTail), g.width) {
		ebitenutil.DebugPrintAt(screen, text, panelPadding, y)
		y += lineHeight
	}
}

// Layout returns the fixed logical screen size.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.width, g.height + PanelHeight(g.logTail)
}

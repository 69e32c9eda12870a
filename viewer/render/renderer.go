package render

import (
	"github.com/wricardo/gridworld-viewer/viewer/world"
)

// Renderer redraws a whole snapshot onto a surface
type Renderer struct {
	sprites  *SpriteSet
	tileSize int
}

// NewRenderer creates a renderer drawing with the given sprites. The tile size
// is taken from the sprite set.
func NewRenderer(sprites *SpriteSet) *Renderer {
	tileSize := world.DefaultTileSize
	if sprites != nil && sprites.TileSize() > 0 {
		tileSize = sprites.TileSize()
	}
	return &Renderer{sprites: sprites, tileSize: tileSize}
}

// TileSize returns the pixel edge length of one grid cell.
func (r *Renderer) TileSize() int {
	return r.tileSize
}

// Render clears the surface and draws every entity of snap in order, later
// entities over earlier ones. Entities without a sprite are skipped. It
// returns the number of sprites drawn.
func (r *Renderer) Render(s Surface, snap world.Snapshot) int {
	s.Clear()

	drawn := 0
	for _, e := range snap.EnvState {
		img, ok := r.sprites.Sprite(e.Kind)
		if !ok {
			continue
		}
		x, y := e.Location.Pixel(r.tileSize)
		s.DrawSprite(img, x, y)
		drawn++
	}

	if p, ok := s.(Presenter); ok {
		p.Present()
	}
	return drawn
}

package render

import (
	"image"
	"sync"

	xdraw "golang.org/x/image/draw"
)

// Surface is a 2D drawing target for the renderer
type Surface interface {
	// Clear erases the whole surface to transparent.
	Clear()
	// DrawSprite draws img with its top-left corner at pixel (x, y).
	DrawSprite(img image.Image, x, y int)
	Bounds() image.Rectangle
}

// Presenter is implemented by surfaces that want to know when a full frame
// has been drawn.
type Presenter interface {
	Present()
}

// ImageSurface is an in-memory RGBA surface safe for concurrent use. Drawing
// goes to a back buffer; readers see a new frame only after Present.
type ImageSurface struct {
	mu      sync.RWMutex
	back    *image.RGBA
	front   *image.RGBA
	version uint64
}

// NewImageSurface creates a transparent surface of the given pixel size.
func NewImageSurface(width, height int) *ImageSurface {
	r := image.Rect(0, 0, width, height)
	return &ImageSurface{
		back:  image.NewRGBA(r),
		front: image.NewRGBA(r),
	}
}

// Clear resets every pixel of the back buffer to transparent black.
func (s *ImageSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	xdraw.Draw(s.back, s.back.Bounds(), image.Transparent, image.Point{}, xdraw.Src)
}

// DrawSprite composites img over the back buffer at (x, y). Parts outside the
// surface are clipped.
func (s *ImageSurface) DrawSprite(img image.Image, x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := img.Bounds()
	r := image.Rect(x, y, x+b.Dx(), y+b.Dy())
	xdraw.Draw(s.back, r, img, b.Min, xdraw.Over)
}

// Bounds returns the pixel rectangle of the surface.
func (s *ImageSurface) Bounds() image.Rectangle {
	return s.back.Bounds()
}

// Present publishes the back buffer as the next frame.
func (s *ImageSurface) Present() {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.front.Pix, s.back.Pix)
	s.version++
}

// Version returns the number of frames presented so far.
func (s *ImageSurface) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Frame returns a copy of the last presented frame and its version.
func (s *ImageSurface) Frame() (*image.RGBA, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := image.NewRGBA(s.front.Bounds())
	copy(cp.Pix, s.front.Pix)
	return cp, s.version
}

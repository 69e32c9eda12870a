package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/png" // sprite assets are PNG files
	"os"
	"path/filepath"

	"github.com/wricardo/gridworld-viewer/viewer/world"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
)

// spriteFiles lists candidate asset names per kind, first match wins.
var spriteFiles = map[world.Kind][]string{
	world.Rabbit: {"rabbit.png"},
	world.Wolf:   {"wolf.png", "tac-nayn.png"},
	world.Carrot: {"carrot.png"},
}

// Tile colors used when no asset is found for a kind
var fallbackColors = map[world.Kind]color.RGBA{
	world.Rabbit: {230, 230, 230, 255}, // White for rabbit
	world.Wolf:   {90, 90, 110, 255},   // Slate for wolf
	world.Carrot: {255, 140, 0, 255},   // Orange for carrot
}

// SpriteSet holds one tile-sized image per drawable kind. Images are loaded
// once and shared by every render pass.
type SpriteSet struct {
	tileSize int
	sprites  map[world.Kind]image.Image
}

// NewSpriteSet builds a sprite set from already decoded images, scaling any
// image that is not tile-sized. Unknown kinds are ignored.
func NewSpriteSet(tileSize int, images map[world.Kind]image.Image) *SpriteSet {
	s := &SpriteSet{
		tileSize: tileSize,
		sprites:  make(map[world.Kind]image.Image, len(images)),
	}
	for kind, img := range images {
		if !kind.Known() || img == nil {
			continue
		}
		s.sprites[kind] = fitTile(img, tileSize)
	}
	return s
}

// FallbackSprites returns solid colored tiles for every known kind.
func FallbackSprites(tileSize int) *SpriteSet {
	images := make(map[world.Kind]image.Image, len(world.Kinds))
	for _, kind := range world.Kinds {
		images[kind] = solidTile(tileSize, fallbackColors[kind])
	}
	return NewSpriteSet(tileSize, images)
}

// LoadSprites reads the sprite assets for every known kind from dir. A kind
// without an asset file gets a solid fallback tile; an asset that exists but
// cannot be decoded is an error.
func LoadSprites(dir string, tileSize int, logger *zap.Logger) (*SpriteSet, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	images := make(map[world.Kind]image.Image, len(world.Kinds))
	for _, kind := range world.Kinds {
		img, path, err := loadFirst(dir, spriteFiles[kind])
		if err != nil {
			return nil, fmt.Errorf("failed to load %s sprite: %w", kind, err)
		}
		if img == nil {
			logger.Debug("sprite asset not found, using fallback tile",
				zap.String("kind", string(kind)), zap.String("dir", dir))
			img = solidTile(tileSize, fallbackColors[kind])
		} else {
			logger.Debug("loaded sprite", zap.String("kind", string(kind)), zap.String("path", path))
		}
		images[kind] = img
	}

	return NewSpriteSet(tileSize, images), nil
}

// Sprite returns the image for kind. It reports false for kinds without a
// sprite, including Unknown.
func (s *SpriteSet) Sprite(kind world.Kind) (image.Image, bool) {
	if s == nil {
		return nil, false
	}
	img, ok := s.sprites[kind]
	return img, ok
}

// TileSize returns the edge length of every sprite in the set.
func (s *SpriteSet) TileSize() int {
	return s.tileSize
}

// loadFirst decodes the first existing file among names. It returns a nil
// image and no error when none of them exist.
func loadFirst(dir string, names []string) (image.Image, string, error) {
	for _, name := range names {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, path, err
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return nil, path, fmt.Errorf("decode %s: %w", path, err)
		}
		return img, path, nil
	}
	return nil, "", nil
}

func fitTile(img image.Image, tileSize int) image.Image {
	b := img.Bounds()
	if b.Dx() == tileSize && b.Dy() == tileSize && b.Min == (image.Point{}) {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

func solidTile(tileSize int, c color.RGBA) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
	// one pixel transparent border keeps neighbouring tiles distinguishable
	inner := image.Rect(1, 1, tileSize-1, tileSize-1)
	xdraw.Draw(dst, inner, image.NewUniform(c), image.Point{}, xdraw.Src)
	return dst
}

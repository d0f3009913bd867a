package site

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/image/draw"

	"lungdetect/internal/logger"
)

// ThumbnailSize is the side length of demo thumbnails.
const ThumbnailSize = 400

// Thumbnails renders demo radiographs as square PNGs and keeps them in memory.
type Thumbnails struct {
	size   int
	dir    string
	cache  map[int][]byte
	mu     sync.Mutex
	logger *logger.Logger
}

// NewThumbnails resolves relative demo image paths against dir, the
// static files directory.
func NewThumbnails(size int, dir string, logger *logger.Logger) *Thumbnails {
	return &Thumbnails{
		size:   size,
		dir:    dir,
		cache:  make(map[int][]byte),
		logger: logger,
	}
}

// Get returns the PNG thumbnail of d. A missing image file yields a plain
// placeholder so the page still renders.
func (t *Thumbnails) Get(d Demo) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if data, ok := t.cache[d.ID]; ok {
		return data, nil
	}

	path := d.Image
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.dir, path)
	}

	src, err := loadImage(path)
	if os.IsNotExist(err) {
		t.logger.Warning("Demo %d image %s not found - using placeholder", d.ID, path)
		src = placeholder(t.size)
	} else if err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, t.size, t.size))
	draw.CatmullRom.Scale(dst, dst.Rect, src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	t.cache[d.ID] = buf.Bytes()
	return buf.Bytes(), nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

func placeholder(size int) image.Image {
	img := image.NewGray(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Gray{Y: 32}}, image.Point{}, draw.Src)
	return img
}

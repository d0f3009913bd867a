package ai

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
)

// DefaultImageSize is the side length the classifier was trained on.
const DefaultImageSize = 256

// MaxImagePixels caps the declared size of an upload before its raster
// is allocated.
const MaxImagePixels = 50_000_000

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// DecodeImage decodes a JPEG or PNG upload. Other formats are rejected
// even if a decoder for them happens to be registered. The header is
// checked against MaxImagePixels before the pixels are decoded.
func DecodeImage(r io.ReadSeeker) (image.Image, string, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if format != "jpeg" && format != "png" {
		return nil, "", fmt.Errorf("%w: unsupported format %s", ErrInvalidImage, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, MaxImagePixels)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if format != "jpeg" && format != "png" {
		return nil, "", fmt.Errorf("%w: unsupported format %s", ErrInvalidImage, format)
	}
	if img.Bounds().Empty() {
		return nil, "", fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	return img, format, nil
}

// DecodeImageBytes is DecodeImage for an in-memory upload.
func DecodeImageBytes(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty upload", ErrInvalidImage)
	}
	return DecodeImage(bytes.NewReader(data))
}

// Preprocess converts an image of any resolution into the
// [1, size, size, 1] tensor the model expects: bicubic resize, 8-bit
// luma, values scaled to [0, 1].
func Preprocess(img image.Image, size int) (*Tensor, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid target size %d", size)
	}

	resized := resize.Resize(uint(size), uint(size), img, resize.Bicubic)

	bounds := resized.Bounds()
	if bounds.Dx() != size || bounds.Dy() != size {
		return nil, fmt.Errorf("%w: resize produced %dx%d", ErrInvalidImage, bounds.Dx(), bounds.Dy())
	}

	data := make([]float32, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			gray := color.GrayModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			data[y*size+x] = float32(gray.Y) / 255.0
		}
	}

	return &Tensor{
		Shape: []int64{1, int64(size), int64(size), 1},
		Data:  data,
	}, nil
}

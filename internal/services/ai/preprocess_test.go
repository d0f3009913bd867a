package ai

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========================================
// Helpers
// ========================================

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func gradientImage(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// ========================================
// Decoding
// ========================================

func TestDecodeImage_PNGAndJPEG(t *testing.T) {
	img := gradientImage(40, 30)

	decoded, format, err := DecodeImageBytes(encodePNG(t, img))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 40, decoded.Bounds().Dx())

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	decoded, format, err = DecodeImageBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 30, decoded.Bounds().Dy())
}

func TestDecodeImage_RejectsGarbage(t *testing.T) {
	inputs := map[string][]byte{
		"empty":     nil,
		"text":      []byte("definitely not an x-ray"),
		"truncated": encodePNG(t, gradientImage(10, 10))[:20],
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeImageBytes(in)
			assert.True(t, errors.Is(err, ErrInvalidImage), "got %v", err)
		})
	}
}

// pngWithHeaderSize rewrites the IHDR dimensions of an encoded PNG so it
// declares a raster much larger than its payload.
func pngWithHeaderSize(t *testing.T, width, height uint32) []byte {
	t.Helper()
	data := encodePNG(t, gradientImage(4, 4))
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc at 29
	binary.BigEndian.PutUint32(data[16:20], width)
	binary.BigEndian.PutUint32(data[20:24], height)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestDecodeImage_RejectsOversizedDimensions(t *testing.T) {
	_, _, err := DecodeImageBytes(pngWithHeaderSize(t, 16000, 16000))
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestDecodeImage_AcceptsPatchedHeaderWithinLimit(t *testing.T) {
	// the header check alone must not reject a declared size under the cap
	_, _, err := DecodeImageBytes(pngWithHeaderSize(t, 4, 4))
	assert.NoError(t, err)
}

func TestDecodeImage_RejectsUnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, gradientImage(8, 8), nil))

	_, _, err := DecodeImageBytes(buf.Bytes())
	assert.ErrorIs(t, err, ErrInvalidImage)
}

// ========================================
// Preprocessing
// ========================================

func TestPreprocess_AnyResolutionGivesFixedShape(t *testing.T) {
	sizes := []image.Point{{1, 1}, {17, 300}, {256, 256}, {1024, 768}, {3000, 10}}

	for _, sz := range sizes {
		tensor, err := Preprocess(gradientImage(sz.X, sz.Y), DefaultImageSize)
		require.NoError(t, err, "size %v", sz)
		assert.Equal(t, []int64{1, 256, 256, 1}, tensor.Shape)
		assert.Len(t, tensor.Data, 256*256)
	}
}

func TestPreprocess_ValuesNormalized(t *testing.T) {
	tensor, err := Preprocess(gradientImage(500, 400), DefaultImageSize)
	require.NoError(t, err)

	for i, v := range tensor.Data {
		if v < 0 || v > 1 {
			t.Fatalf("value %v at %d outside [0,1]", v, i)
		}
	}
}

func TestPreprocess_SolidColors(t *testing.T) {
	black, err := Preprocess(solidImage(64, 64, color.Black), DefaultImageSize)
	require.NoError(t, err)
	white, err := Preprocess(solidImage(64, 64, color.White), DefaultImageSize)
	require.NoError(t, err)

	for i := range black.Data {
		assert.InDelta(t, 0.0, black.Data[i], 0.01)
		assert.InDelta(t, 1.0, white.Data[i], 0.01)
	}
}

func TestPreprocess_ColorConvertedToLuma(t *testing.T) {
	tensor, err := Preprocess(solidImage(32, 32, color.RGBA{R: 255, A: 255}), 8)
	require.NoError(t, err)

	// Pure red has luma 0.299 * 255 ≈ 76.
	assert.InDelta(t, 76.0/255.0, tensor.Data[0], 0.01)
}

func TestPreprocess_Deterministic(t *testing.T) {
	img := gradientImage(333, 777)

	a, err := Preprocess(img, DefaultImageSize)
	require.NoError(t, err)
	b, err := Preprocess(img, DefaultImageSize)
	require.NoError(t, err)

	assert.Equal(t, a.Data, b.Data)
}

func TestPreprocess_RejectsEmpty(t *testing.T) {
	_, err := Preprocess(image.NewGray(image.Rect(0, 0, 0, 0)), DefaultImageSize)
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = Preprocess(nil, DefaultImageSize)
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = Preprocess(gradientImage(4, 4), 0)
	assert.Error(t, err)
}

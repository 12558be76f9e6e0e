package encode

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJPEG_EncodeDecodes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}

	enc := NewJPEG(80)
	assert.Equal(t, "image/jpeg", enc.ContentType())

	b, err := enc.Encode(img)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(b, []byte{0xff, 0xd8}), "JPEG SOI marker")

	decoded, err := jpeg.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
	r, _, _, _ := decoded.At(5, 5).RGBA()
	assert.InDelta(t, 0x80, r>>8, 4)
}

func TestJPEG_ResultsAreIndependent(t *testing.T) {
	enc := NewJPEG(90)
	black := image.NewGray(image.Rect(0, 0, 8, 8))
	white := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range white.Pix {
		white.Pix[i] = 0xff
	}

	a, err := enc.Encode(black)
	require.NoError(t, err)
	snapshot := bytes.Clone(a)
	_, err = enc.Encode(white)
	require.NoError(t, err)
	assert.Equal(t, snapshot, a, "buffer reuse must not touch earlier results")
}

func TestJPEG_Errors(t *testing.T) {
	enc := NewJPEG(0)
	assert.Equal(t, 1, enc.Quality)
	assert.Equal(t, 100, NewJPEG(500).Quality)

	_, err := enc.Encode(nil)
	assert.Error(t, err)
	_, err = enc.Encode(image.NewRGBA(image.Rectangle{}))
	assert.Error(t, err)
}

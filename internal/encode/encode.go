// Package encode turns annotated frames into the bytes served to viewers.
package encode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
)

// Encoder converts an image into a transmittable byte buffer.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
	ContentType() string
}

// JPEG encodes frames as baseline JPEG.
type JPEG struct {
	Quality int

	pool sync.Pool
}

// NewJPEG returns a JPEG encoder. Quality is clamped to 1..100.
func NewJPEG(quality int) *JPEG {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	return &JPEG{Quality: quality}
}

// ContentType implements Encoder.
func (e *JPEG) ContentType() string { return "image/jpeg" }

// Encode implements Encoder. The returned slice is owned by the caller.
func (e *JPEG) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("encode: nil image")
	}
	if img.Bounds().Empty() {
		return nil, errors.New("encode: empty image")
	}

	buf, _ := e.pool.Get().(*bytes.Buffer)
	if buf == nil {
		buf = new(bytes.Buffer)
	}
	buf.Reset()
	defer e.pool.Put(buf)

	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: e.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

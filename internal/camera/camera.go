// Package camera defines the frame source used by the pipeline and a
// synthetic source for development without hardware.
package camera

import (
	"errors"
	"fmt"
	"image"
)

// ErrNotStarted is returned by operations that need a started camera.
var ErrNotStarted = errors.New("camera not started")

// Source delivers frames. Capture never blocks for long; it returns false
// when no frame is available right now, which the caller treats as a
// transient miss.
type Source interface {
	// Start opens the device. A failure here is fatal to the caller.
	Start() error
	Stop()
	Capture() (image.Image, bool)
}

// RGBStride is the row length GStreamer uses for packed RGB video: width*3
// rounded up to a multiple of 4.
func RGBStride(width int) int {
	return (width*3 + 3) &^ 3
}

// RGBFromPacked builds an RGBA image from 8-bit RGB rows that are stride
// bytes apart. A stride of 0 means the rows are tightly packed.
func RGBFromPacked(data []byte, width, height, stride int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("invalid frame size")
	}
	if stride == 0 {
		stride = width * 3
	}
	if stride < width*3 {
		return nil, fmt.Errorf("stride %d is shorter than a %d pixel row", stride, width)
	}
	if len(data) < stride*(height-1)+width*3 {
		return nil, errors.New("short RGB buffer")
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		src := data[y*stride : y*stride+width*3]
		dst := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < width; x++ {
			dst[x*4] = src[x*3]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 0xff
		}
	}
	return img, nil
}

//go:build opencv
// +build opencv

// Package cvcam captures frames through OpenCV's VideoCapture.
package cvcam

import (
	"fmt"
	"image"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/banshee-data/tagview/internal/camera"
	"github.com/banshee-data/tagview/internal/monitoring"
)

var logf = monitoring.Prefixed("cvcam")

// Camera is a camera.Source backed by gocv.VideoCapture.
type Camera struct {
	device        string
	width, height int

	mu  sync.Mutex
	cap *gocv.VideoCapture
	mat gocv.Mat
}

var _ camera.Source = (*Camera)(nil)

// New returns a stopped camera. device is a numeric index or anything
// gocv.OpenVideoCapture accepts (file, URL, pipeline).
func New(device string, width, height int) *Camera {
	return &Camera{device: device, width: width, height: height}
}

// Start opens the capture device and requests the configured resolution.
func (c *Camera) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap != nil {
		return nil
	}

	var (
		vc  *gocv.VideoCapture
		err error
	)
	if id, convErr := strconv.Atoi(c.device); convErr == nil {
		vc, err = gocv.VideoCaptureDevice(id)
	} else {
		vc, err = gocv.OpenVideoCapture(c.device)
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", c.device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("failed to open %s", c.device)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.height))

	c.cap = vc
	c.mat = gocv.NewMat()
	logf("Capturing from %s at %.0fx%.0f", c.device,
		vc.Get(gocv.VideoCaptureFrameWidth), vc.Get(gocv.VideoCaptureFrameHeight))
	return nil
}

// Capture reads one frame. A failed read is a miss, not an error.
func (c *Camera) Capture() (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap == nil {
		return nil, false
	}
	if ok := c.cap.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, false
	}
	img, err := c.mat.ToImage()
	if err != nil {
		logf("Error converting frame: %v", err)
		return nil, false
	}
	return img, true
}

// Stop releases the device.
func (c *Camera) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap == nil {
		return
	}
	if err := c.cap.Close(); err != nil {
		logf("Error closing capture: %v", err)
	}
	c.mat.Close()
	c.cap = nil
}

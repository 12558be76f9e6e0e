//go:build !opencv
// +build !opencv

// Package cvcam captures frames through OpenCV. Build with -tags=opencv to
// enable it.
package cvcam

import (
	"fmt"
	"image"
)

// Camera is unavailable without the opencv build tag.
type Camera struct {
	device string
}

// New returns a camera whose Start always fails.
func New(device string, width, height int) *Camera {
	return &Camera{device: device}
}

// Start reports that OpenCV support is disabled.
func (c *Camera) Start() error {
	return fmt.Errorf("OpenCV support not enabled: rebuild with -tags=opencv to capture from %s", c.device)
}

// Capture never yields a frame.
func (c *Camera) Capture() (image.Image, bool) { return nil, false }

// Stop is a no-op.
func (c *Camera) Stop() {}

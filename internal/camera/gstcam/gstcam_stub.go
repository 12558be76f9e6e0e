//go:build !gst
// +build !gst

// Package gstcam captures frames from a GStreamer pipeline. Build with
// -tags=gst to enable it.
package gstcam

import (
	"fmt"
	"image"
)

// Camera is unavailable without the gst build tag.
type Camera struct {
	device string
}

// New returns a camera whose Start always fails.
func New(device string, width, height int) *Camera {
	return &Camera{device: device}
}

// Start reports that GStreamer support is disabled.
func (c *Camera) Start() error {
	return fmt.Errorf("GStreamer support not enabled: rebuild with -tags=gst to capture from %s", c.device)
}

// Capture never yields a frame.
func (c *Camera) Capture() (image.Image, bool) { return nil, false }

// Stop is a no-op.
func (c *Camera) Stop() {}

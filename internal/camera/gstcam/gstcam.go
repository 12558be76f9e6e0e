//go:build gst
// +build gst

// Package gstcam captures frames from a GStreamer pipeline through an
// appsink that keeps only the newest RGB frame.
package gstcam

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/banshee-data/tagview/internal/camera"
	"github.com/banshee-data/tagview/internal/monitoring"
)

var logf = monitoring.Prefixed("gstcam")

// Camera is a camera.Source backed by GStreamer.
type Camera struct {
	device        string
	width, height int

	mu       sync.Mutex
	pipeline *gst.Pipeline
	frame    *image.RGBA
	fresh    bool
}

var _ camera.Source = (*Camera)(nil)

// New returns a stopped camera. device is either a V4L2 device path such as
// /dev/video0, or a gst-launch description ending in a raw video source,
// e.g. "libcamerasrc".
func New(device string, width, height int) *Camera {
	return &Camera{device: device, width: width, height: height}
}

func (c *Camera) source() (*gst.Element, error) {
	if strings.HasPrefix(c.device, "/dev/") {
		src, err := gst.NewElement("v4l2src")
		if err != nil {
			return nil, fmt.Errorf("failed to create v4l2src: %w", err)
		}
		src.SetProperty("device", c.device)
		return src, nil
	}
	bin, err := gst.NewBinFromString(c.device, true)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source %q: %w", c.device, err)
	}
	return bin.Element, nil
}

// Start builds and plays source ! videoconvert ! videoscale ! capsfilter ! appsink.
func (c *Camera) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pipeline != nil {
		return nil
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("tagview-capture")
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	src, err := c.source()
	if err != nil {
		return err
	}
	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("failed to create videoconvert: %w", err)
	}
	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return fmt.Errorf("failed to create videoscale: %w", err)
	}
	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(
		fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d", c.width, c.height)))

	sink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	if err := pipeline.AddMany(src, convert, scale, capsfilter, sink.Element); err != nil {
		return fmt.Errorf("failed to add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, convert, scale, capsfilter, sink.Element); err != nil {
		return fmt.Errorf("failed to link pipeline: %w", err)
	}

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: c.onSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	c.pipeline = pipeline
	logf("Capturing %dx%d from %s", c.width, c.height, c.device)
	return nil
}

func (c *Camera) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	img, err := camera.RGBFromPacked(mapInfo.Bytes(), c.width, c.height, camera.RGBStride(c.width))
	buffer.Unmap()
	if err != nil {
		logf("Dropping sample: %v", err)
		return gst.FlowOK
	}

	c.mu.Lock()
	c.frame = img
	c.fresh = true
	c.mu.Unlock()
	return gst.FlowOK
}

// Capture returns the newest frame not yet handed out.
func (c *Camera) Capture() (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pipeline == nil || !c.fresh {
		return nil, false
	}
	c.fresh = false
	return c.frame, true
}

// Stop tears the pipeline down.
func (c *Camera) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pipeline == nil {
		return
	}
	if err := c.pipeline.SetState(gst.StateNull); err != nil {
		logf("Failed to stop pipeline: %v", err)
	}
	c.pipeline = nil
	c.frame = nil
	c.fresh = false
}

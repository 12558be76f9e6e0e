//go:build !opencv
// +build !opencv

// Package cvdetect is the OpenCV tag detector backend. Build with
// -tags=opencv to enable it.
package cvdetect

import (
	"fmt"
	"image"

	"github.com/banshee-data/tagview/internal/detect"
	"github.com/banshee-data/tagview/internal/tag"
)

// Detector is unavailable without the opencv build tag.
type Detector struct{}

// New always fails when OpenCV support is disabled.
func New(family string) (*Detector, error) {
	return nil, fmt.Errorf("OpenCV support not enabled: rebuild with -tags=opencv to detect %s tags", family)
}

// Family implements detect.Familier.
func (d *Detector) Family() string { return "" }

// Detect implements detect.Detector.
func (d *Detector) Detect(*image.Gray, detect.Request) ([]tag.Observation, error) {
	return nil, fmt.Errorf("OpenCV support not enabled")
}

// Close is a no-op.
func (d *Detector) Close() error { return nil }

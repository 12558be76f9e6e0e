//go:build opencv
// +build opencv

// Package cvdetect is the OpenCV tag detector backend. It uses the ArUco
// detector with the AprilTag dictionaries shipped with OpenCV.
package cvdetect

import (
	"fmt"
	"image"
	"sync"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"

	"github.com/banshee-data/tagview/internal/detect"
	"github.com/banshee-data/tagview/internal/tag"
)

// Detector wraps a gocv ArUco detector. The native detector is not safe for
// concurrent use, so calls are serialized.
type Detector struct {
	mu     sync.Mutex
	family string
	det    gocv.ArucoDetector
}

// New returns a detector for the given family (tag16h5, tag25h9, tag36h10 or
// tag36h11).
func New(family string) (*Detector, error) {
	code, err := dictionaryFor(family)
	if err != nil {
		return nil, err
	}
	params := gocv.NewArucoDetectorParameters()
	params.SetAprilTagQuadDecimate(2.0)
	params.SetAprilTagQuadSigma(0.0)

	dict := gocv.GetPredefinedDictionary(code)
	return &Detector{
		family: family,
		det:    gocv.NewArucoDetectorWithParams(dict, params),
	}, nil
}

func dictionaryFor(family string) (gocv.ArucoDictionaryCode, error) {
	switch family {
	case "tag16h5":
		return gocv.ArucoDictAprilTag_16h5, nil
	case "tag25h9":
		return gocv.ArucoDictAprilTag_25h9, nil
	case "tag36h10":
		return gocv.ArucoDictAprilTag_36h10, nil
	case "tag36h11":
		return gocv.ArucoDictAprilTag_36h11, nil
	}
	return 0, fmt.Errorf("unsupported tag family %q", family)
}

// Family implements detect.Familier.
func (d *Detector) Family() string { return d.family }

// Detect implements detect.Detector. Pose is left to the caller.
func (d *Detector) Detect(gray *image.Gray, _ detect.Request) ([]tag.Observation, error) {
	m, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer m.Close()

	d.mu.Lock()
	corners, ids, _ := d.det.DetectMarkers(m)
	d.mu.Unlock()

	if len(corners) != len(ids) {
		return nil, fmt.Errorf("detector returned %d corner sets for %d ids", len(corners), len(ids))
	}

	origin := gray.Bounds().Min
	out := make([]tag.Observation, 0, len(ids))
	for i, id := range ids {
		if len(corners[i]) != 4 {
			continue
		}
		var c [4]r2.Point
		for k, p := range corners[i] {
			c[k] = r2.Point{X: float64(p.X) + float64(origin.X), Y: float64(p.Y) + float64(origin.Y)}
		}
		out = append(out, tag.Observation{ID: id, Corners: c, Center: tag.CenterOf(c)})
	}
	return out, nil
}

// Close releases the native detector.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.det.Close()
}

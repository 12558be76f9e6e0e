package detect

import (
	"fmt"
	"image"
	"math"
	"runtime/debug"

	"golang.org/x/image/draw"

	"github.com/banshee-data/tagview/internal/geometry"
	"github.com/banshee-data/tagview/internal/monitoring"
	"github.com/banshee-data/tagview/internal/tag"
)

var logf = monitoring.Prefixed("detect")

// rotationTolerance bounds how far a backend rotation may drift from
// orthonormal before its pose is discarded.
const rotationTolerance = 1e-3

// Adapter wraps a Detector so that detection never fails: backend errors
// and panics degrade to "no tags this frame".
type Adapter struct {
	backend Detector
}

// NewAdapter returns an Adapter around d.
func NewAdapter(d Detector) *Adapter {
	return &Adapter{backend: d}
}

// Family returns the backend's tag family, or "unknown".
func (a *Adapter) Family() string {
	if f, ok := a.backend.(Familier); ok {
		return f.Family()
	}
	return "unknown"
}

// Close releases the backend's native resources, if any.
func (a *Adapter) Close() error {
	if c, ok := a.backend.(Closer); ok {
		return c.Close()
	}
	return nil
}

// Detect finds tags without estimating pose.
func (a *Adapter) Detect(img image.Image) []tag.Observation {
	return a.run(img, Request{})
}

// DetectPose finds tags and estimates each one's pose relative to the camera.
// Translations are in the unit of tagSize.
func (a *Adapter) DetectPose(img image.Image, intr tag.Intrinsics, tagSize float64) []tag.Observation {
	return a.run(img, Request{Pose: true, Intrinsics: intr, TagSize: tagSize})
}

func (a *Adapter) run(img image.Image, req Request) (out []tag.Observation) {
	if img == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			logf("Error detecting tags: panic: %v\n%s", r, debug.Stack())
			out = nil
		}
	}()

	obs, err := a.backend.Detect(Grayscale(img), req)
	if err != nil {
		logf("Error detecting tags: %v", err)
		return nil
	}

	out = make([]tag.Observation, 0, len(obs))
	for _, o := range obs {
		if o.ID < 0 {
			continue
		}
		if req.Pose && o.Pose == nil {
			if pose, err := SolvePose(o.Corners, req.Intrinsics, req.TagSize); err == nil {
				o.Pose = pose
			}
		}
		if o.Pose != nil {
			if err := checkPose(o.Pose); err != nil {
				logf("Discarding pose of tag %d: %v", o.ID, err)
				o.Pose = nil
			}
		}
		out = append(out, o)
	}
	return out
}

func checkPose(p *tag.Pose) error {
	if p.Rotation == nil || !geometry.IsRotation(p.Rotation, rotationTolerance) {
		return fmt.Errorf("rotation is not a proper rotation matrix")
	}
	t := p.Translation
	for _, v := range []float64{t.X, t.Y, t.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("translation %v is not finite", t)
		}
	}
	if t.Z < 0 {
		return fmt.Errorf("translation %v is behind the camera", t)
	}
	return nil
}

// Grayscale converts img to 8-bit luminance. A *image.Gray is returned as is.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray
}

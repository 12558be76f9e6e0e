// Package detect runs tag detector backends on captured frames and
// normalizes their output for the pipeline.
package detect

import (
	"image"

	"github.com/banshee-data/tagview/internal/tag"
)

// Request describes what the caller wants from one detection call.
type Request struct {
	// Pose asks the backend for rotation and translation per tag.
	Pose       bool
	Intrinsics tag.Intrinsics
	// TagSize is the physical edge length of the tag, which sets the unit of
	// the returned translations.
	TagSize float64
}

// Detector is a tag detection backend. Backends that cannot estimate pose
// may return observations without one; the Adapter fills it in from the
// corners.
type Detector interface {
	Detect(gray *image.Gray, req Request) ([]tag.Observation, error)
}

// Familier is implemented by backends that report their tag family.
type Familier interface {
	Family() string
}

// Closer is implemented by backends holding native resources.
type Closer interface {
	Close() error
}

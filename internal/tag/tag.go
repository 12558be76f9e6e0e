// Package tag holds the detection result types shared by the detector
// backends, the pipeline and the annotator.
package tag

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Observation is one detected tag. Values are not modified after the
// detector returns them.
type Observation struct {
	ID int
	// Corners in pixel space, clockwise in image coordinates starting at the
	// tag's top-left corner.
	Corners [4]r2.Point
	Center  r2.Point
	// Pose is nil unless pose estimation was requested and succeeded.
	Pose *Pose
}

// Pose is the tag's rotation and translation in the camera frame. The
// translation unit is the unit of the tag size given to the detector.
type Pose struct {
	Rotation    *mat.Dense
	Translation r3.Vector
}

// Intrinsics are the pinhole camera parameters in pixels.
type Intrinsics struct {
	Fx, Fy float64
	Cx, Cy float64
}

// Valid reports whether both focal lengths are positive.
func (in Intrinsics) Valid() bool {
	return in.Fx > 0 && in.Fy > 0
}

// Project maps a camera-frame point to pixel coordinates. ok is false for
// points at or behind the image plane.
func (in Intrinsics) Project(p r3.Vector) (px r2.Point, ok bool) {
	if p.Z <= 0 {
		return r2.Point{}, false
	}
	return r2.Point{
		X: in.Fx*p.X/p.Z + in.Cx,
		Y: in.Fy*p.Y/p.Z + in.Cy,
	}, true
}

// Normalize maps a pixel to normalized image coordinates (z = 1 plane).
func (in Intrinsics) Normalize(px r2.Point) r2.Point {
	return r2.Point{
		X: (px.X - in.Cx) / in.Fx,
		Y: (px.Y - in.Cy) / in.Fy,
	}
}

func (in Intrinsics) String() string {
	return fmt.Sprintf("fx=%.1f fy=%.1f cx=%.1f cy=%.1f", in.Fx, in.Fy, in.Cx, in.Cy)
}

// CenterOf returns the mean of four corners.
func CenterOf(c [4]r2.Point) r2.Point {
	return c[0].Add(c[1]).Add(c[2]).Add(c[3]).Mul(0.25)
}

// ObjectCorners returns the tag-frame corner coordinates for a tag of the
// given edge length, in the same order as Observation.Corners. The tag lies
// in the z = 0 plane with +x to the right and +y down, so a tag facing the
// camera squarely has the identity rotation.
func ObjectCorners(size float64) [4]r3.Vector {
	h := size / 2
	return [4]r3.Vector{
		{X: -h, Y: -h},
		{X: h, Y: -h},
		{X: h, Y: h},
		{X: -h, Y: h},
	}
}

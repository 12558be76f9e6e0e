// Package geometry turns a camera-frame rotation and translation into the
// distance, Euler angles and viewing direction shown to operators.
//
// Angles follow the intrinsic yaw-pitch-roll convention, R = Rz·Ry·Rx, and
// are reported in degrees. All functions are pure and safe for concurrent use.
package geometry

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// PoseMetrics is the human-readable form of one tag pose.
type PoseMetrics struct {
	Distance  float64   // Euclidean norm of Position, in tag-size units
	Roll      float64   // degrees, rotation about X
	Pitch     float64   // degrees, rotation about Y
	Yaw       float64   // degrees, rotation about Z
	Direction r3.Vector // unit vector towards the tag; zero iff Distance == 0
	Position  r3.Vector // raw translation
}

// ComputeMetrics derives PoseMetrics from a 3x3 rotation and a translation.
// Only the entries R00, R10, R20, R21 and R22 are read.
func ComputeMetrics(rotation mat.Matrix, translation r3.Vector) PoseMetrics {
	distance := translation.Norm()

	r21, r22 := rotation.At(2, 1), rotation.At(2, 2)
	roll := math.Atan2(r21, r22)
	pitch := math.Atan2(-rotation.At(2, 0), math.Hypot(r21, r22))
	yaw := math.Atan2(rotation.At(1, 0), rotation.At(0, 0))

	var direction r3.Vector
	if distance != 0 {
		direction = translation.Mul(1 / distance)
	}

	return PoseMetrics{
		Distance:  distance,
		Roll:      degrees(roll),
		Pitch:     degrees(pitch),
		Yaw:       degrees(yaw),
		Direction: direction,
		Position:  translation,
	}
}

// RotationFromEuler builds R = Rz(yaw)·Ry(pitch)·Rx(roll) from angles in degrees.
func RotationFromEuler(roll, pitch, yaw float64) *mat.Dense {
	r, p, y := radians(roll), radians(pitch), radians(yaw)
	sr, cr := math.Sincos(r)
	sp, cp := math.Sincos(p)
	sy, cy := math.Sincos(y)

	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cr, -sr,
		0, sr, cr,
	})
	ry := mat.NewDense(3, 3, []float64{
		cp, 0, sp,
		0, 1, 0,
		-sp, 0, cp,
	})
	rz := mat.NewDense(3, 3, []float64{
		cy, -sy, 0,
		sy, cy, 0,
		0, 0, 1,
	})

	var zy, out mat.Dense
	zy.Mul(rz, ry)
	out.Mul(&zy, rx)
	return &out
}

// IsRotation reports whether m is a proper 3x3 rotation: orthonormal columns
// and determinant +1, within tol.
func IsRotation(m mat.Matrix, tol float64) bool {
	rows, cols := m.Dims()
	if rows != 3 || cols != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.IsNaN(m.At(i, j)) || math.IsInf(m.At(i, j), 0) {
				return false
			}
		}
	}
	var mtm mat.Dense
	mtm.Mul(m.T(), m)
	if !mat.EqualApprox(&mtm, eye3(), tol) {
		return false
	}
	return math.Abs(mat.Det(m)-1) <= tol
}

// Apply rotates v by m.
func Apply(m mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
func radians(deg float64) float64 { return deg * math.Pi / 180 }

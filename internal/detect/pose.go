package detect

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/banshee-data/tagview/internal/geometry"
	"github.com/banshee-data/tagview/internal/tag"
)

// ErrDegenerate is returned when the corners do not define a usable plane.
var ErrDegenerate = errors.New("degenerate tag corners")

// SolvePose estimates a tag's rotation and translation from its four image
// corners.
//
// The initial estimate comes from the plane-to-image homography, solved by
// SVD on Hartley-normalized points and decomposed into [r1 r2 t]. It is then
// refined by minimizing the pixel reprojection error with Nelder-Mead over a
// rotation vector and translation. The solve runs on a tag of half-size 1 and
// the translation is scaled back to tagSize units at the end.
func SolvePose(corners [4]r2.Point, intr tag.Intrinsics, tagSize float64) (*tag.Pose, error) {
	if !intr.Valid() {
		return nil, fmt.Errorf("invalid intrinsics: %s", intr)
	}
	if !(tagSize > 0) {
		return nil, fmt.Errorf("tag size must be positive, got %v", tagSize)
	}
	for _, c := range corners {
		if math.IsNaN(c.X) || math.IsNaN(c.Y) || math.IsInf(c.X, 0) || math.IsInf(c.Y, 0) {
			return nil, ErrDegenerate
		}
	}

	object := tag.ObjectCorners(2)
	var normalized [4]r2.Point
	for i, c := range corners {
		normalized[i] = intr.Normalize(c)
	}

	h, err := homography(object, normalized)
	if err != nil {
		return nil, err
	}
	rot, t, err := decompose(h)
	if err != nil {
		return nil, err
	}

	rot, t = refine(rot, t, object, corners, intr)
	if !geometry.IsRotation(rot, 1e-6) || t.Z <= 0 {
		return nil, ErrDegenerate
	}

	return &tag.Pose{
		Rotation:    rot,
		Translation: t.Mul(tagSize / 2),
	}, nil
}

// ReprojectionError returns the RMS pixel distance between the corners of a
// tag at pose and the observed corners.
func ReprojectionError(pose *tag.Pose, corners [4]r2.Point, intr tag.Intrinsics, tagSize float64) float64 {
	return math.Sqrt(reprojection(pose.Rotation, pose.Translation, tag.ObjectCorners(tagSize), corners, intr) / 4)
}

func reprojection(rot mat.Matrix, t r3.Vector, object [4]r3.Vector, corners [4]r2.Point, intr tag.Intrinsics) float64 {
	var sum float64
	for i, p := range object {
		px, ok := intr.Project(geometry.Apply(rot, p).Add(t))
		if !ok {
			return math.Inf(1)
		}
		d := px.Sub(corners[i])
		sum += d.Dot(d)
	}
	return sum
}

// homography solves H with pts ~ H * (X, Y, 1) for the z = 0 plane.
func homography(object [4]r3.Vector, pts [4]r2.Point) (*mat.Dense, error) {
	// Hartley normalization of the image side.
	var centroid r2.Point
	for _, p := range pts {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(0.25)
	var spread float64
	for _, p := range pts {
		spread += p.Sub(centroid).Norm()
	}
	spread /= 4
	if spread < 1e-12 {
		return nil, ErrDegenerate
	}
	s := math.Sqrt2 / spread

	a := mat.NewDense(8, 9, nil)
	for i := range object {
		X, Y := object[i].X, object[i].Y
		u := (pts[i].X - centroid.X) * s
		v := (pts[i].Y - centroid.Y) * s
		a.SetRow(2*i, []float64{X, Y, 1, 0, 0, 0, -u * X, -u * Y, -u})
		a.SetRow(2*i+1, []float64{0, 0, 0, X, Y, 1, -v * X, -v * Y, -v})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return nil, fmt.Errorf("homography: SVD failed")
	}
	var v mat.Dense
	svd.VTo(&v)
	hn := mat.NewDense(3, 3, nil)
	for k := 0; k < 9; k++ {
		hn.Set(k/3, k%3, v.At(k, 8))
	}
	if math.Abs(mat.Det(hn)) < 1e-12 {
		return nil, ErrDegenerate
	}

	// Undo the normalization: H = T^-1 * Hn.
	tinv := mat.NewDense(3, 3, []float64{
		1 / s, 0, centroid.X,
		0, 1 / s, centroid.Y,
		0, 0, 1,
	})
	var h mat.Dense
	h.Mul(tinv, hn)
	return &h, nil
}

// decompose splits H = lambda * [r1 r2 t] and projects [r1 r2 r1xr2] onto
// the nearest rotation.
func decompose(h *mat.Dense) (*mat.Dense, r3.Vector, error) {
	h1 := r3.Vector{X: h.At(0, 0), Y: h.At(1, 0), Z: h.At(2, 0)}
	h2 := r3.Vector{X: h.At(0, 1), Y: h.At(1, 1), Z: h.At(2, 1)}
	h3 := r3.Vector{X: h.At(0, 2), Y: h.At(1, 2), Z: h.At(2, 2)}

	norm := (h1.Norm() + h2.Norm()) / 2
	if norm < 1e-12 {
		return nil, r3.Vector{}, ErrDegenerate
	}
	lambda := 1 / norm
	if h3.Z < 0 {
		lambda = -lambda
	}

	r1 := h1.Mul(lambda)
	r2v := h2.Mul(lambda)
	r3v := r1.Cross(r2v)
	t := h3.Mul(lambda)

	approx := mat.NewDense(3, 3, []float64{
		r1.X, r2v.X, r3v.X,
		r1.Y, r2v.Y, r3v.Y,
		r1.Z, r2v.Z, r3v.Z,
	})
	rot, err := nearestRotation(approx)
	if err != nil {
		return nil, r3.Vector{}, err
	}
	return rot, t, nil
}

// nearestRotation returns U*V^T from the SVD of m, with the sign fixed so
// the determinant is +1.
func nearestRotation(m mat.Matrix) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return nil, fmt.Errorf("rotation: SVD failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	return &r, nil
}

// refine minimizes the squared pixel reprojection error starting from the
// linear estimate. The linear estimate is kept if the search does not
// improve on it.
func refine(rot *mat.Dense, t r3.Vector, object [4]r3.Vector, corners [4]r2.Point, intr tag.Intrinsics) (*mat.Dense, r3.Vector) {
	w := rotationVector(rot)
	x0 := []float64{w.X, w.Y, w.Z, t.X, t.Y, t.Z}

	cost := func(x []float64) float64 {
		r := rodrigues(r3.Vector{X: x[0], Y: x[1], Z: x[2]})
		return reprojection(r, r3.Vector{X: x[3], Y: x[4], Z: x[5]}, object, corners, intr)
	}
	start := cost(x0)
	if start == 0 || math.IsInf(start, 1) {
		return rot, t
	}

	problem := optimize.Problem{Func: cost}
	settings := &optimize.Settings{
		FuncEvaluations: 4000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 50,
		},
	}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil || result == nil || !(result.F < start) {
		return rot, t
	}
	x := result.X
	return rodrigues(r3.Vector{X: x[0], Y: x[1], Z: x[2]}), r3.Vector{X: x[3], Y: x[4], Z: x[5]}
}

// rodrigues converts a rotation vector to a rotation matrix.
func rodrigues(w r3.Vector) *mat.Dense {
	theta := w.Norm()
	if theta < 1e-12 {
		return mat.NewDense(3, 3, []float64{
			1, -w.Z, w.Y,
			w.Z, 1, -w.X,
			-w.Y, w.X, 1,
		})
	}
	k := w.Mul(1 / theta)
	s, c := math.Sincos(theta)
	v := 1 - c
	return mat.NewDense(3, 3, []float64{
		c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s,
		k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s,
		k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v,
	})
}

// rotationVector is the inverse of rodrigues.
func rotationVector(r mat.Matrix) r3.Vector {
	tr := r.At(0, 0) + r.At(1, 1) + r.At(2, 2)
	cos := math.Max(-1, math.Min(1, (tr-1)/2))
	theta := math.Acos(cos)
	axis := r3.Vector{
		X: r.At(2, 1) - r.At(1, 2),
		Y: r.At(0, 2) - r.At(2, 0),
		Z: r.At(1, 0) - r.At(0, 1),
	}

	switch {
	case theta < 1e-9:
		return axis.Mul(0.5)
	case math.Pi-theta > 1e-6:
		return axis.Mul(theta / (2 * math.Sin(theta)))
	}

	// theta near pi: recover the axis from the symmetric part.
	k := r3.Vector{
		X: math.Sqrt(math.Max(0, (r.At(0, 0)+1)/2)),
		Y: math.Sqrt(math.Max(0, (r.At(1, 1)+1)/2)),
		Z: math.Sqrt(math.Max(0, (r.At(2, 2)+1)/2)),
	}
	switch {
	case k.X >= k.Y && k.X >= k.Z:
		k.Y = math.Copysign(k.Y, r.At(0, 1))
		k.Z = math.Copysign(k.Z, r.At(0, 2))
	case k.Y >= k.Z:
		k.X = math.Copysign(k.X, r.At(0, 1))
		k.Z = math.Copysign(k.Z, r.At(1, 2))
	default:
		k.X = math.Copysign(k.X, r.At(0, 2))
		k.Y = math.Copysign(k.Y, r.At(1, 2))
	}
	return k.Normalize().Mul(theta)
}

package detect

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/tagview/internal/geometry"
	"github.com/banshee-data/tagview/internal/monitoring"
	"github.com/banshee-data/tagview/internal/tag"
)

func init() {
	monitoring.SetLogger(nil)
}

type fakeDetector struct {
	obs   []tag.Observation
	err   error
	panic any

	gotGray *image.Gray
	gotReq  Request
	calls   int
}

func (f *fakeDetector) Detect(gray *image.Gray, req Request) ([]tag.Observation, error) {
	f.calls++
	f.gotGray = gray
	f.gotReq = req
	if f.panic != nil {
		panic(f.panic)
	}
	return f.obs, f.err
}

func (f *fakeDetector) Family() string { return "tag36h11" }

var testIntrinsics = tag.Intrinsics{Fx: 2800, Fy: 2800, Cx: 648, Cy: 486}

func rgbaFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func unitSquare(id int) tag.Observation {
	c := [4]r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	return tag.Observation{ID: id, Corners: c, Center: tag.CenterOf(c)}
}

func TestAdapter_ConvertsToGray(t *testing.T) {
	fake := &fakeDetector{}
	a := NewAdapter(fake)

	a.Detect(rgbaFrame(8, 4, color.RGBA{R: 255, G: 255, B: 255, A: 255}))
	require.NotNil(t, fake.gotGray)
	assert.Equal(t, image.Rect(0, 0, 8, 4), fake.gotGray.Bounds())
	assert.Equal(t, uint8(255), fake.gotGray.GrayAt(3, 2).Y)
	assert.False(t, fake.gotReq.Pose)

	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	a.Detect(gray)
	assert.Same(t, gray, fake.gotGray)
}

func TestAdapter_ErrorYieldsEmpty(t *testing.T) {
	a := NewAdapter(&fakeDetector{obs: []tag.Observation{unitSquare(1)}, err: errors.New("boom")})
	assert.Empty(t, a.Detect(rgbaFrame(4, 4, color.RGBA{A: 255})))
}

func TestAdapter_PanicYieldsEmpty(t *testing.T) {
	a := NewAdapter(&fakeDetector{panic: "native crash"})
	assert.NotPanics(t, func() {
		assert.Empty(t, a.Detect(rgbaFrame(4, 4, color.RGBA{A: 255})))
	})
}

func TestAdapter_NilImage(t *testing.T) {
	fake := &fakeDetector{obs: []tag.Observation{unitSquare(1)}}
	a := NewAdapter(fake)
	assert.Empty(t, a.Detect(nil))
	assert.Zero(t, fake.calls)
}

func TestAdapter_DropsNegativeIDs(t *testing.T) {
	a := NewAdapter(&fakeDetector{obs: []tag.Observation{unitSquare(-1), unitSquare(4)}})
	got := a.Detect(rgbaFrame(4, 4, color.RGBA{A: 255}))
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].ID)
}

func TestAdapter_PassesPoseRequest(t *testing.T) {
	o := unitSquare(7)
	o.Pose = &tag.Pose{Rotation: geometry.RotationFromEuler(0, 0, 0), Translation: r3.Vector{Z: 1}}
	fake := &fakeDetector{obs: []tag.Observation{o}}
	a := NewAdapter(fake)

	got := a.DetectPose(rgbaFrame(4, 4, color.RGBA{A: 255}), testIntrinsics, 0.02)
	require.Len(t, got, 1)
	assert.Equal(t, Request{Pose: true, Intrinsics: testIntrinsics, TagSize: 0.02}, fake.gotReq)
	assert.Same(t, o.Pose, got[0].Pose)
}

func TestAdapter_InvalidPosesKeepTag(t *testing.T) {
	bad := []*tag.Pose{
		{Rotation: mat.NewDense(3, 3, []float64{2, 0, 0, 0, 2, 0, 0, 0, 2}), Translation: r3.Vector{Z: 1}},
		{Rotation: geometry.RotationFromEuler(0, 0, 0), Translation: r3.Vector{Z: -1}},
		{Rotation: geometry.RotationFromEuler(0, 0, 0), Translation: r3.Vector{X: math.NaN(), Z: 1}},
		{Rotation: nil, Translation: r3.Vector{Z: 1}},
	}
	for _, p := range bad {
		o := unitSquare(1)
		o.Pose = p
		a := NewAdapter(&fakeDetector{obs: []tag.Observation{o}})
		got := a.DetectPose(rgbaFrame(4, 4, color.RGBA{A: 255}), testIntrinsics, 0.02)
		require.Len(t, got, 1)
		assert.Equal(t, 1, got[0].ID)
		assert.Equal(t, o.Corners, got[0].Corners)
		assert.Nil(t, got[0].Pose)
	}
}

func TestAdapter_ZeroTranslationKeepsPose(t *testing.T) {
	o := unitSquare(7)
	o.Pose = &tag.Pose{Rotation: geometry.RotationFromEuler(0, 0, 0)}
	a := NewAdapter(&fakeDetector{obs: []tag.Observation{o}})

	got := a.DetectPose(rgbaFrame(4, 4, color.RGBA{A: 255}), testIntrinsics, 0.02)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Pose)

	m := geometry.ComputeMetrics(got[0].Pose.Rotation, got[0].Pose.Translation)
	assert.Equal(t, 0.0, m.Distance)
	assert.Equal(t, r3.Vector{}, m.Direction)
}

func TestAdapter_SolvesPoseForCornerOnlyBackends(t *testing.T) {
	rot := geometry.RotationFromEuler(5, -10, 20)
	trans := r3.Vector{X: 0.01, Y: 0.005, Z: 0.4}
	corners := projectTag(t, rot, trans, 0.02)

	fake := &fakeDetector{obs: []tag.Observation{{ID: 2, Corners: corners, Center: tag.CenterOf(corners)}}}
	a := NewAdapter(fake)

	got := a.DetectPose(rgbaFrame(4, 4, color.RGBA{A: 255}), testIntrinsics, 0.02)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Pose)
	assert.InDelta(t, 0.4, got[0].Pose.Translation.Z, 1e-6)

	// Without pose requested nothing is solved.
	got = a.Detect(rgbaFrame(4, 4, color.RGBA{A: 255}))
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Pose)
}

func TestAdapter_Family(t *testing.T) {
	assert.Equal(t, "tag36h11", NewAdapter(&fakeDetector{}).Family())
	assert.Equal(t, "synthetic", NewAdapter(NewSynthetic()).Family())
	assert.NoError(t, NewAdapter(&fakeDetector{}).Close())
}

package annotate

import (
	"image"
	"image/color"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tagview/internal/geometry"
	"github.com/banshee-data/tagview/internal/tag"
)

var (
	orange = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	yellow = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	bg     = color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 255}
)

func grayFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, bg)
		}
	}
	return img
}

func squareObservation(id int, x0, y0, size float64) tag.Observation {
	c := [4]r2.Point{
		{X: x0, Y: y0},
		{X: x0 + size, Y: y0},
		{X: x0 + size, Y: y0 + size},
		{X: x0, Y: y0 + size},
	}
	return tag.Observation{ID: id, Corners: c, Center: tag.CenterOf(c)}
}

func near(t *testing.T, want color.RGBA, got color.Color, msg string) {
	t.Helper()
	r, g, b, _ := got.RGBA()
	diff := func(a uint8, b uint32) int {
		d := int(a) - int(b>>8)
		if d < 0 {
			d = -d
		}
		return d
	}
	if diff(want.R, r) > 2 || diff(want.G, g) > 2 || diff(want.B, b) > 2 {
		t.Errorf("%s: got %v, want %v", msg, got, want)
	}
}

func countColor(img *image.RGBA, rect image.Rectangle, c color.RGBA) int {
	n := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if img.RGBAAt(x, y) == c {
				n++
			}
		}
	}
	return n
}

func TestAnnotate_EmptyObservationsReturnsInput(t *testing.T) {
	a := New(orange, yellow)
	frame := grayFrame(64, 48)
	before := append([]uint8(nil), frame.Pix...)

	out := a.Annotate(frame, nil, nil)
	assert.Same(t, frame, out)
	assert.Empty(t, cmp.Diff(before, out.(*image.RGBA).Pix))

	out = a.Annotate(frame, []tag.Observation{}, []geometry.PoseMetrics{})
	assert.Same(t, frame, out)
}

func TestAnnotate_NilFrame(t *testing.T) {
	a := New(orange, yellow)
	assert.Nil(t, a.Annotate(nil, []tag.Observation{squareObservation(1, 0, 0, 10)}, nil))
	assert.Nil(t, a.OverlayFPS(nil, 1))
}

func TestAnnotate_SimpleLayout(t *testing.T) {
	a := New(orange, yellow)
	frame := grayFrame(320, 240)
	before := append([]uint8(nil), frame.Pix...)
	obs := []tag.Observation{squareObservation(3, 100, 100, 100)}

	got := a.Annotate(frame, obs, nil)
	require.NotNil(t, got)
	out, ok := got.(*image.RGBA)
	require.True(t, ok)
	assert.Equal(t, frame.Bounds(), out.Bounds())

	// Input untouched.
	assert.Empty(t, cmp.Diff(before, frame.Pix))

	// Outline on each edge.
	near(t, orange, out.At(150, 100), "top edge")
	near(t, orange, out.At(200, 150), "right edge")
	near(t, orange, out.At(150, 200), "bottom edge")
	near(t, orange, out.At(100, 150), "left edge")
	// Interior untouched.
	near(t, bg, out.At(150, 150), "interior")

	// Black label box left of the "ID: 3" text at (130, 180).
	near(t, color.RGBA{A: 255}, out.At(127, 178), "label box")
	assert.Positive(t, countColor(out, image.Rect(130, 165, 180, 185), orange), "label text")

	// Count in the top-left corner.
	assert.Positive(t, countColor(out, image.Rect(10, 15, 130, 35), yellow), "count label")
}

func TestAnnotate_PoseLayout(t *testing.T) {
	a := New(orange, yellow)
	frame := grayFrame(400, 400)
	o := squareObservation(7, 100, 100, 100)
	o.Pose = &tag.Pose{Rotation: geometry.RotationFromEuler(0, 0, 0), Translation: r3.Vector{Z: 1}}
	m := geometry.ComputeMetrics(o.Pose.Rotation, o.Pose.Translation)

	out := a.Annotate(frame, []tag.Observation{o}, []geometry.PoseMetrics{m}).(*image.RGBA)

	near(t, orange, out.At(150, 150), "center dot")
	near(t, orange, out.At(153, 150), "center dot radius")
	// No black label box in pose mode.
	near(t, bg, out.At(127, 178), "no label box")
	// "ID: 7 - 1.00m" above the center.
	assert.Positive(t, countColor(out, image.Rect(130, 118, 240, 133), orange))
	// Four pose lines below the center in the text color.
	for i := 0; i < 4; i++ {
		base := 170 + i*20
		assert.Positive(t, countColor(out, image.Rect(130, base-12, 300, base+3), yellow), "pose line %d", i)
	}
}

func TestAnnotate_MissingPoseFallsBackToLabel(t *testing.T) {
	a := New(orange, yellow)
	frame := grayFrame(320, 240)
	o := squareObservation(2, 100, 100, 100)

	out := a.Annotate(frame, []tag.Observation{o}, []geometry.PoseMetrics{{}}).(*image.RGBA)
	near(t, color.RGBA{A: 255}, out.At(127, 178), "label box")
	near(t, bg, out.At(150, 150), "no center dot")
}

func TestAnnotate_NonZeroOrigin(t *testing.T) {
	a := New(orange, yellow)
	frame := grayFrame(320, 240).SubImage(image.Rect(50, 50, 300, 220)).(*image.RGBA)
	out := a.Annotate(frame, []tag.Observation{squareObservation(1, 100, 100, 50)}, nil).(*image.RGBA)
	assert.Equal(t, frame.Bounds(), out.Bounds())
	near(t, orange, out.At(125, 100), "top edge in absolute coordinates")
}

func TestOverlayFPS(t *testing.T) {
	a := New(orange, yellow)
	frame := grayFrame(200, 100)
	before := append([]uint8(nil), frame.Pix...)

	out := a.OverlayFPS(frame, 12.3)
	assert.NotSame(t, frame, out)
	assert.Empty(t, cmp.Diff(before, frame.Pix))
	assert.Positive(t, countColor(out, image.Rect(10, 45, 90, 65), yellow))
	assert.Zero(t, countColor(out, image.Rect(0, 0, 200, 40), yellow))
}

package tag

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
)

func TestIntrinsicsProjectNormalize(t *testing.T) {
	in := Intrinsics{Fx: 2800, Fy: 2800, Cx: 648, Cy: 486}
	assert.True(t, in.Valid())

	px, ok := in.Project(r3.Vector{X: 0.01, Y: -0.02, Z: 1})
	assert.True(t, ok)
	assert.InDelta(t, 676, px.X, 1e-9)
	assert.InDelta(t, 430, px.Y, 1e-9)

	n := in.Normalize(px)
	assert.InDelta(t, 0.01, n.X, 1e-12)
	assert.InDelta(t, -0.02, n.Y, 1e-12)

	_, ok = in.Project(r3.Vector{Z: 0})
	assert.False(t, ok)
	_, ok = in.Project(r3.Vector{Z: -1})
	assert.False(t, ok)

	assert.False(t, Intrinsics{}.Valid())
	assert.Equal(t, "fx=2800.0 fy=2800.0 cx=648.0 cy=486.0", in.String())
}

func TestCenterOf(t *testing.T) {
	c := [4]r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	assert.Equal(t, r2.Point{X: 0.5, Y: 0.5}, CenterOf(c))
}

func TestObjectCorners(t *testing.T) {
	c := ObjectCorners(0.02)
	assert.Equal(t, r3.Vector{X: -0.01, Y: -0.01}, c[0])
	assert.Equal(t, r3.Vector{X: 0.01, Y: 0.01}, c[2])
	// Clockwise in image coordinates: top edge runs towards +x.
	assert.Greater(t, c[1].X, c[0].X)
	assert.Greater(t, c[3].Y, c[0].Y)
}

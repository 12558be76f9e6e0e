package annotate

import (
	"image"
	"image/color"
	"math"

	"github.com/golang/geo/r2"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// cloneRGBA copies src into a new RGBA image with the same bounds.
func cloneRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}

// canvas fills vector paths onto dst. Path coordinates are absolute pixel
// coordinates of dst.
type canvas struct {
	dst *image.RGBA
	z   *vector.Rasterizer
}

func newCanvas(dst *image.RGBA) *canvas {
	size := dst.Bounds().Size()
	return &canvas{dst: dst, z: vector.NewRasterizer(size.X, size.Y)}
}

func (c *canvas) local(p r2.Point) (float32, float32) {
	o := c.dst.Bounds().Min
	return float32(p.X - float64(o.X)), float32(p.Y - float64(o.Y))
}

func (c *canvas) moveTo(p r2.Point) {
	x, y := c.local(p)
	c.z.MoveTo(x, y)
}

func (c *canvas) lineTo(p r2.Point) {
	x, y := c.local(p)
	c.z.LineTo(x, y)
}

// fill paints the accumulated path and resets the rasterizer.
func (c *canvas) fill(col color.Color) {
	c.z.Draw(c.dst, c.dst.Bounds(), image.NewUniform(col), image.Point{})
	size := c.dst.Bounds().Size()
	c.z.Reset(size.X, size.Y)
}

// segment adds a rectangle of the given width around a..b with square caps.
func (c *canvas) segment(a, b r2.Point, width float64) {
	d := b.Sub(a)
	n := d.Norm()
	if n == 0 {
		d = r2.Point{X: 1}
	} else {
		d = d.Mul(1 / n)
	}
	h := width / 2
	d = d.Mul(h)
	perp := d.Ortho()
	a = a.Sub(d)
	b = b.Add(d)

	c.moveTo(a.Add(perp))
	c.lineTo(b.Add(perp))
	c.lineTo(b.Sub(perp))
	c.lineTo(a.Sub(perp))
	c.z.ClosePath()
}

// polygon strokes a closed polygon.
func (c *canvas) polygon(pts []r2.Point, width float64, col color.Color) {
	for i := range pts {
		c.segment(pts[i], pts[(i+1)%len(pts)], width)
	}
	c.fill(col)
}

// disc fills a circle approximated by a 32-gon.
func (c *canvas) disc(center r2.Point, radius float64, col color.Color) {
	const steps = 32
	for i := 0; i < steps; i++ {
		s, co := math.Sincos(2 * math.Pi * float64(i) / steps)
		p := r2.Point{X: center.X + radius*co, Y: center.Y + radius*s}
		if i == 0 {
			c.moveTo(p)
		} else {
			c.lineTo(p)
		}
	}
	c.z.ClosePath()
	c.fill(col)
}

// text draws s with its baseline starting at (x, y).
func text(dst *image.RGBA, face font.Face, x, y int, s string, col color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// boxedText draws s over a filled background box padded by pad pixels.
func boxedText(dst *image.RGBA, face font.Face, x, y int, s string, fg, bg color.Color, pad int) {
	bounds, _ := font.BoundString(face, s)
	box := image.Rect(
		x+bounds.Min.X.Floor()-pad,
		y+bounds.Min.Y.Floor()-pad,
		x+bounds.Max.X.Ceil()+pad,
		y+bounds.Max.Y.Ceil()+pad,
	)
	draw.Draw(dst, box.Intersect(dst.Bounds()), image.NewUniform(bg), image.Point{}, draw.Src)
	text(dst, face, x, y, s, fg)
}

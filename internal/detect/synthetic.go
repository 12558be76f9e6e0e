package detect

import (
	"fmt"
	"image"
	"math"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/tagview/internal/tag"
)

// Synthetic tags are solid quadrilaterals whose fill level encodes the ID:
// level = ID * ShadeStep. Anything at or above ShadeThreshold is background.
const (
	ShadeStep      = 4
	ShadeThreshold = 64
	MaxSyntheticID = ShadeThreshold/ShadeStep - 1
)

// ShadeForID returns the gray level used to render a synthetic tag.
func ShadeForID(id int) uint8 {
	if id < 0 || id > MaxSyntheticID {
		return 0
	}
	return uint8(id * ShadeStep)
}

// Synthetic detects the flat-shaded tags drawn by the synthetic camera. It
// finds dark connected regions, takes their extreme points along the two
// diagonals as corners, and reads the ID from the shade at the centroid.
// It returns corners only; the Adapter solves pose when asked.
type Synthetic struct {
	// MinArea discards regions smaller than this many pixels.
	MinArea int
}

// NewSynthetic returns a Synthetic detector with a 50 pixel minimum area.
func NewSynthetic() *Synthetic {
	return &Synthetic{MinArea: 50}
}

// Family implements Familier.
func (s *Synthetic) Family() string { return "synthetic" }

// Detect implements Detector.
func (s *Synthetic) Detect(gray *image.Gray, _ Request) ([]tag.Observation, error) {
	if gray == nil {
		return nil, fmt.Errorf("nil image")
	}
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, nil
	}

	seen := make([]bool, w*h)
	dark := func(x, y int) bool {
		return gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y < ShadeThreshold
	}

	var out []tag.Observation
	var stack []int
	for start := 0; start < w*h; start++ {
		if seen[start] || !dark(start%w, start/w) {
			continue
		}

		// Flood fill, tracking the extremes of x+y and x-y.
		var (
			area           int
			sumX, sumY     float64
			touchesBorder  bool
			tl, tr, br, bl = start, start, start, start
		)
		seen[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			area++
			sumX += float64(x)
			sumY += float64(y)
			if x == 0 || y == 0 || x == w-1 || y == h-1 {
				touchesBorder = true
			}
			tlx, tly := tl%w, tl/w
			if x+y < tlx+tly {
				tl = i
			}
			brx, bry := br%w, br/w
			if x+y > brx+bry {
				br = i
			}
			trx, try := tr%w, tr/w
			if x-y > trx-try {
				tr = i
			}
			blx, bly := bl%w, bl/w
			if y-x > bly-blx {
				bl = i
			}

			for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				nx, ny := n[0], n[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if !seen[j] && dark(nx, ny) {
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}

		if area < s.MinArea || touchesBorder {
			continue
		}

		cx, cy := int(math.Round(sumX/float64(area))), int(math.Round(sumY/float64(area)))
		shade := gray.GrayAt(b.Min.X+cx, b.Min.Y+cy).Y
		id := int(math.Round(float64(shade) / ShadeStep))

		// Use the outer pixel corner of each extreme pixel.
		point := func(i int, dx, dy float64) r2.Point {
			return r2.Point{X: float64(b.Min.X+i%w) + dx, Y: float64(b.Min.Y+i/w) + dy}
		}
		corners := [4]r2.Point{point(tl, 0, 0), point(tr, 1, 0), point(br, 1, 1), point(bl, 0, 1)}
		out = append(out, tag.Observation{
			ID:      id,
			Corners: corners,
			Center:  tag.CenterOf(corners),
		})
	}
	return out, nil
}

package camera

import (
	"errors"
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r2"
	"golang.org/x/image/vector"

	"github.com/banshee-data/tagview/internal/detect"
	"github.com/banshee-data/tagview/internal/geometry"
	"github.com/banshee-data/tagview/internal/tag"
	"github.com/banshee-data/tagview/internal/timeutil"
)

// SyntheticOptions configures a Synthetic camera.
type SyntheticOptions struct {
	Width, Height int
	Intrinsics    tag.Intrinsics
	TagSize       float64
	// IDs are the tag IDs placed across the frame, left to right.
	IDs []int
	// FrameInterval limits the frame rate; Capture misses until it elapses.
	FrameInterval time.Duration
	Clock         timeutil.Clock
}

// Synthetic renders flat-shaded tags that drift and rotate over time. The
// shading follows detect.ShadeForID so detect.Synthetic can read them back.
type Synthetic struct {
	opts SyntheticOptions

	mu      sync.Mutex
	started bool
	epoch   time.Time
	last    time.Time
}

// NewSynthetic returns a stopped synthetic camera.
func NewSynthetic(opts SyntheticOptions) *Synthetic {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if len(opts.IDs) == 0 {
		opts.IDs = []int{3, 7}
	}
	return &Synthetic{opts: opts}
}

// Start implements Source.
func (s *Synthetic) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.Width <= 0 || s.opts.Height <= 0 || !s.opts.Intrinsics.Valid() || s.opts.TagSize <= 0 {
		return errInvalidSynthetic
	}
	s.started = true
	s.epoch = s.opts.Clock.Now()
	s.last = time.Time{}
	return nil
}

var errInvalidSynthetic = errors.New("synthetic camera needs a frame size, intrinsics and tag size")

// Stop implements Source.
func (s *Synthetic) Stop() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
}

// Capture implements Source.
func (s *Synthetic) Capture() (image.Image, bool) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil, false
	}
	now := s.opts.Clock.Now()
	if !s.last.IsZero() && now.Sub(s.last) < s.opts.FrameInterval {
		s.mu.Unlock()
		return nil, false
	}
	s.last = now
	elapsed := now.Sub(s.epoch).Seconds()
	s.mu.Unlock()

	return s.Render(elapsed), true
}

// Scene returns the ground-truth tag poses at t seconds after start.
func (s *Synthetic) Scene(t float64) []tag.Observation {
	o := s.opts
	n := len(o.IDs)
	out := make([]tag.Observation, 0, n)
	for i, id := range o.IDs {
		phase := float64(i) * 1.3
		// Keep the apparent size independent of the configured tag size.
		z := (0.6 + 0.1*math.Sin(0.4*t+phase)) * o.TagSize / 0.02
		px := float64(o.Width) * float64(i+1) / float64(n+1)
		py := float64(o.Height)/2 + float64(o.Height)/10*math.Sin(0.25*t+phase)
		ray := o.Intrinsics.Normalize(r2.Point{X: px, Y: py})
		rot := geometry.RotationFromEuler(
			15*math.Sin(0.3*t+phase),
			15*math.Cos(0.2*t+phase),
			30*math.Sin(0.5*t+phase),
		)
		p := &tag.Pose{Rotation: rot}
		p.Translation.X, p.Translation.Y, p.Translation.Z = ray.X*z, ray.Y*z, z

		var corners [4]r2.Point
		ok := true
		for k, c := range tag.ObjectCorners(o.TagSize) {
			pix, front := o.Intrinsics.Project(geometry.Apply(rot, c).Add(p.Translation))
			if !front {
				ok = false
				break
			}
			corners[k] = pix
		}
		if !ok {
			continue
		}
		out = append(out, tag.Observation{ID: id, Corners: corners, Center: tag.CenterOf(corners), Pose: p})
	}
	return out
}

// Render draws the scene at t seconds after start.
func (s *Synthetic) Render(t float64) *image.RGBA {
	w, h := s.opts.Width, s.opts.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	// Light vertical gradient, always above the detector threshold.
	for y := 0; y < h; y++ {
		v := uint8(170 + 60*y/h)
		c := color.RGBA{R: v - 20, G: v - 10, B: v, A: 0xff}
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			row[x*4], row[x*4+1], row[x*4+2], row[x*4+3] = c.R, c.G, c.B, c.A
		}
	}

	z := vector.NewRasterizer(w, h)
	for _, o := range s.Scene(t) {
		z.Reset(w, h)
		z.MoveTo(float32(o.Corners[0].X), float32(o.Corners[0].Y))
		for _, c := range o.Corners[1:] {
			z.LineTo(float32(c.X), float32(c.Y))
		}
		z.ClosePath()
		shade := detect.ShadeForID(o.ID)
		z.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: shade, G: shade, B: shade, A: 0xff}), image.Point{})
	}
	return img
}

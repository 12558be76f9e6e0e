// Package pipeline runs the capture, detect, annotate and encode loop and
// publishes its results to the latest-frame and latest-stats stores.
package pipeline

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/banshee-data/tagview/internal/annotate"
	"github.com/banshee-data/tagview/internal/camera"
	"github.com/banshee-data/tagview/internal/encode"
	"github.com/banshee-data/tagview/internal/geometry"
	"github.com/banshee-data/tagview/internal/latest"
	"github.com/banshee-data/tagview/internal/monitoring"
	"github.com/banshee-data/tagview/internal/tag"
	"github.com/banshee-data/tagview/internal/timeutil"
)

var logf = monitoring.Prefixed("pipeline")

// Detector finds tags in a frame. It must not fail: errors are reported as
// no detections. detect.Adapter implements it.
type Detector interface {
	Detect(img image.Image) []tag.Observation
	DetectPose(img image.Image, intr tag.Intrinsics, tagSize float64) []tag.Observation
}

// Options configures a Processor. Camera, Detector and Encoder are required.
type Options struct {
	Camera    camera.Source
	Detector  Detector
	Annotator *annotate.Annotator
	Encoder   encode.Encoder

	// Pose enables per-tag pose estimation and the pose statistics.
	Pose       bool
	Intrinsics tag.Intrinsics
	TagSize    float64

	// IdleDelay is the pause after the camera yields no frame.
	IdleDelay time.Duration
	// CycleDelay is the pause after each processed frame. Defaults to 10ms.
	CycleDelay time.Duration

	// Frames and Stats receive the results. New stores are created when nil.
	Frames *latest.Store[EncodedFrame]
	Stats  *latest.Store[Stats]

	Clock timeutil.Clock
}

// Processor owns the processing goroutine. It is either stopped or running;
// Start and Stop move between the two.
type Processor struct {
	opts   Options
	frames *latest.Store[EncodedFrame]
	stats  *latest.Store[Stats]
	clock  timeutil.Clock
	meter  *Meter

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	observers []func(Stats)

	// Loop-owned state; only touched by the processing goroutine or by Step
	// while stopped.
	frameSeq      uint64
	lastDetection time.Time
}

// New returns a stopped Processor.
func New(opts Options) *Processor {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Frames == nil {
		opts.Frames = latest.New[EncodedFrame]()
	}
	if opts.Stats == nil {
		opts.Stats = latest.New[Stats]()
	}
	if opts.IdleDelay <= 0 {
		opts.IdleDelay = 100 * time.Millisecond
	}
	if opts.CycleDelay <= 0 {
		opts.CycleDelay = 10 * time.Millisecond
	}
	return &Processor{
		opts:   opts,
		frames: opts.Frames,
		stats:  opts.Stats,
		clock:  opts.Clock,
		meter:  NewMeter(opts.Clock),
	}
}

// Frames returns the store holding the latest encoded frame.
func (p *Processor) Frames() *latest.Store[EncodedFrame] { return p.frames }

// Stats returns the store holding the latest statistics.
func (p *Processor) Stats() *latest.Store[Stats] { return p.stats }

// PoseMode reports whether pose estimation is enabled.
func (p *Processor) PoseMode() bool { return p.opts.Pose }

// OnStats registers f to be called with every published Stats value, from
// the processing goroutine and outside any lock. f must return quickly.
func (p *Processor) OnStats(f func(Stats)) {
	p.mu.Lock()
	p.observers = append(p.observers, f)
	p.mu.Unlock()
}

// Start launches the processing goroutine. It is a no-op while running.
// The loop stops on Stop or when ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	p.meter.Reset()

	go p.loop(ctx, p.done)
	logf("Processing started (pose=%v)", p.opts.Pose)
}

// Stop cancels the loop and waits for the current cycle to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the processing goroutine is active.
func (p *Processor) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Done returns a channel closed when the current run ends, or nil if the
// processor was never started.
func (p *Processor) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *Processor) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		p.mu.Lock()
		p.running = false
		p.cancel = nil
		p.mu.Unlock()
		close(done)
		logf("Processing stopped")
	}()

	for ctx.Err() == nil {
		delay := p.opts.CycleDelay
		if !p.Step() {
			delay = p.opts.IdleDelay
		}
		if err := timeutil.Sleep(ctx, p.clock, delay); err != nil {
			return
		}
	}
}

// Step runs one cycle and reports whether a frame was captured. The loop
// calls it repeatedly; tests call it directly on a stopped processor.
func (p *Processor) Step() bool {
	img, ok := p.opts.Camera.Capture()
	if !ok || img == nil {
		return false
	}
	captured := p.clock.Now()

	var obs []tag.Observation
	if p.opts.Pose {
		obs = p.opts.Detector.DetectPose(img, p.opts.Intrinsics, p.opts.TagSize)
	} else {
		obs = p.opts.Detector.Detect(img)
	}

	var (
		metrics []geometry.PoseMetrics
		poses   []TagPose
	)
	if p.opts.Pose {
		metrics = make([]geometry.PoseMetrics, len(obs))
		poses = make([]TagPose, 0, len(obs))
		for i, o := range obs {
			if o.Pose == nil {
				continue
			}
			metrics[i] = geometry.ComputeMetrics(o.Pose.Rotation, o.Pose.Translation)
			poses = append(poses, TagPose{TagID: o.ID, Metrics: metrics[i]})
		}
	}

	p.frameSeq++
	if len(obs) > 0 {
		p.lastDetection = captured
	}
	fps := p.meter.Tick()
	stats := Stats{
		TagsDetected:  len(obs),
		ProcessingFPS: fps,
		LastDetection: p.lastDetection,
		PoseMode:      p.opts.Pose,
		Poses:         poses,
		Frame:         p.frameSeq,
		UpdatedAt:     captured,
	}
	p.stats.Publish(stats)
	p.notify(stats)

	annotated := img
	if p.opts.Annotator != nil {
		annotated = p.opts.Annotator.Annotate(img, obs, metrics)
		annotated = p.opts.Annotator.OverlayFPS(annotated, fps)
	}

	data, err := p.opts.Encoder.Encode(annotated)
	if err != nil {
		logf("Error encoding frame %d: %v", p.frameSeq, err)
		return true
	}
	p.frames.Publish(EncodedFrame{
		Data:     data,
		Seq:      p.frameSeq,
		Captured: captured,
		Tags:     len(obs),
	})
	return true
}

func (p *Processor) notify(s Stats) {
	p.mu.Lock()
	observers := p.observers
	p.mu.Unlock()
	for _, f := range observers {
		f(s)
	}
}

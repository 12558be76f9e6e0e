// Package stream turns the latest-frame store into per-client MJPEG chunk
// sequences.
package stream

import (
	"context"
	"iter"
	"time"

	"github.com/banshee-data/tagview/internal/latest"
	"github.com/banshee-data/tagview/internal/pipeline"
	"github.com/banshee-data/tagview/internal/timeutil"
)

// Boundary separates parts of the multipart response.
const Boundary = "frame"

// ContentType is the response content type for an MJPEG stream.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// Chunk frames one JPEG as a multipart part.
func Chunk(jpeg []byte) []byte {
	const header = "--" + Boundary + "\r\nContent-Type: image/jpeg\r\n\r\n"
	out := make([]byte, 0, len(header)+len(jpeg)+2)
	out = append(out, header...)
	out = append(out, jpeg...)
	return append(out, '\r', '\n')
}

// Options controls generator pacing.
type Options struct {
	// Wait is the poll interval while no frame has been published.
	Wait time.Duration
	// Interval is the pause after each yielded chunk. Defaults to 50ms.
	Interval time.Duration
	Clock    timeutil.Clock
}

// Generator produces MJPEG chunks from a frame store. One Generator may
// serve any number of clients; each call to Frames is independent.
type Generator struct {
	frames  *latest.Store[pipeline.EncodedFrame]
	running func() bool
	opts    Options
}

// NewGenerator returns a generator over frames. running reports whether the
// processing loop is still producing frames.
func NewGenerator(frames *latest.Store[pipeline.EncodedFrame], running func() bool, opts Options) *Generator {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Wait <= 0 {
		opts.Wait = 100 * time.Millisecond
	}
	if opts.Interval <= 0 {
		opts.Interval = 50 * time.Millisecond
	}
	return &Generator{frames: frames, running: running, opts: opts}
}

// Frames returns the chunk sequence for one client. It waits while no frame
// exists, yields the newest frame each round, then pauses for the minimum
// interval. A slow consumer simply sees fewer, newer frames. The sequence
// ends when the processing loop stops, ctx is done, or the consumer stops
// pulling.
func (g *Generator) Frames(ctx context.Context) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			frame, ok := g.next(ctx)
			if !ok {
				return
			}
			if !yield(Chunk(frame.Data)) {
				return
			}
			if timeutil.Sleep(ctx, g.opts.Clock, g.opts.Interval) != nil {
				return
			}
		}
	}
}

// next blocks until a frame is available, or reports false when the stream
// should end.
func (g *Generator) next(ctx context.Context) (pipeline.EncodedFrame, bool) {
	for {
		if ctx.Err() != nil || !g.running() {
			return pipeline.EncodedFrame{}, false
		}
		if frame, ok := g.frames.Latest(); ok {
			return frame, true
		}
		if timeutil.Sleep(ctx, g.opts.Clock, g.opts.Wait) != nil {
			return pipeline.EncodedFrame{}, false
		}
	}
}

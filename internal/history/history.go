// Package history keeps a short ring of per-second pipeline samples and
// renders them as charts.
package history

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/tagview/internal/pipeline"
)

// Sample is one second of pipeline activity.
type Sample struct {
	Time time.Time `json:"time"`
	FPS  float64   `json:"fps"`
	Tags int       `json:"tags"`
}

// Summary describes the samples currently in the ring.
type Summary struct {
	Samples  int     `json:"samples"`
	MeanFPS  float64 `json:"mean_fps"`
	StdFPS   float64 `json:"std_fps"`
	MeanTags float64 `json:"mean_tags"`
	MaxTags  int     `json:"max_tags"`
}

// Ring holds the most recent samples, one per wall-clock second.
type Ring struct {
	mu    sync.Mutex
	buf   []Sample
	next  int
	count int
}

// NewRing returns a ring holding up to size samples. A non-positive size
// falls back to 300.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 300
	}
	return &Ring{buf: make([]Sample, size)}
}

// Observe records s. Several observations within the same second collapse
// into the latest one. It has the signature of a pipeline stats observer.
func (r *Ring) Observe(s pipeline.Stats) {
	at := s.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	r.Add(Sample{Time: at.Truncate(time.Second), FPS: s.ProcessingFPS, Tags: s.TagsDetected})
}

// Add appends a sample, replacing the newest one if it falls in the same
// second.
func (r *Ring) Add(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count > 0 {
		last := (r.next - 1 + len(r.buf)) % len(r.buf)
		if r.buf[last].Time.Equal(s.Time) {
			r.buf[last] = s
			return
		}
	}
	r.buf[r.next] = s
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Samples returns a copy of the ring contents, oldest first.
func (r *Ring) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Sample, 0, r.count)
	start := (r.next - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// Len returns the number of samples held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Summarize computes FPS and tag count statistics over the ring.
func (r *Ring) Summarize() Summary {
	samples := r.Samples()
	if len(samples) == 0 {
		return Summary{}
	}
	fps := make([]float64, len(samples))
	tags := make([]float64, len(samples))
	maxTags := 0
	for i, s := range samples {
		fps[i] = s.FPS
		tags[i] = float64(s.Tags)
		if s.Tags > maxTags {
			maxTags = s.Tags
		}
	}
	sum := Summary{Samples: len(samples), MaxTags: maxTags, MeanTags: stat.Mean(tags, nil)}
	if len(samples) > 1 {
		sum.MeanFPS, sum.StdFPS = stat.MeanStdDev(fps, nil)
	} else {
		sum.MeanFPS = fps[0]
	}
	return sum
}

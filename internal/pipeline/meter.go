package pipeline

import (
	"math"
	"time"

	"github.com/banshee-data/tagview/internal/timeutil"
)

// Meter estimates processing throughput. The rate is recomputed only once at
// least a second has elapsed since the previous recomputation, and is held
// constant in between.
type Meter struct {
	clock  timeutil.Clock
	window time.Duration
	start  time.Time
	count  int
	fps    float64
}

// NewMeter returns a meter with a one second window starting now.
func NewMeter(clock timeutil.Clock) *Meter {
	m := &Meter{clock: clock, window: time.Second}
	m.Reset()
	return m
}

// Reset starts a new window and clears the frame count. The last computed
// rate is kept.
func (m *Meter) Reset() {
	m.start = m.clock.Now()
	m.count = 0
}

// Tick records one processed frame and returns the current rate, rounded to
// one decimal place.
func (m *Meter) Tick() float64 {
	m.count++
	elapsed := m.clock.Since(m.start)
	if elapsed >= m.window {
		m.fps = math.Round(float64(m.count)/elapsed.Seconds()*10) / 10
		m.Reset()
	}
	return m.fps
}

// FPS returns the last computed rate.
func (m *Meter) FPS() float64 {
	return m.fps
}

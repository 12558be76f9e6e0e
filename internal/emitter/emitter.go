// Package emitter publishes pipeline statistics to an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/banshee-data/tagview/internal/latest"
	"github.com/banshee-data/tagview/internal/monitoring"
	"github.com/banshee-data/tagview/internal/pipeline"
	"github.com/banshee-data/tagview/internal/timeutil"
)

var logf = monitoring.Prefixed("emitter")

// Payload encodings.
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// Publisher sends one payload to a topic. MQTTPublisher implements it.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Encode renders stats in the given format using the /stats wire shape.
func Encode(st pipeline.Stats, format string) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return json.Marshal(st.Report())
	case FormatMsgpack:
		return msgpack.Marshal(st.Report())
	default:
		return nil, fmt.Errorf("unknown payload format %q", format)
	}
}

// Options configures an Emitter.
type Options struct {
	Topic    string
	Format   string
	Interval time.Duration
	Clock    timeutil.Clock
}

// Counters reports emitter activity.
type Counters struct {
	Published uint64 `json:"published"`
	Skipped   uint64 `json:"skipped"`
	Errors    uint64 `json:"errors"`
}

// Emitter publishes the latest statistics once per interval. Intervals
// without a new statistics value are skipped.
type Emitter struct {
	pub   Publisher
	stats *latest.Store[pipeline.Stats]
	opts  Options

	mu       sync.Mutex
	counters Counters
	lastSeq  uint64
}

func New(pub Publisher, stats *latest.Store[pipeline.Stats], opts Options) (*Emitter, error) {
	if opts.Topic == "" {
		return nil, fmt.Errorf("emitter topic is required")
	}
	if _, err := Encode(pipeline.Stats{}, opts.Format); err != nil {
		return nil, err
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Emitter{pub: pub, stats: stats, opts: opts}, nil
}

// Run publishes until ctx is done.
func (e *Emitter) Run(ctx context.Context) {
	for timeutil.Sleep(ctx, e.opts.Clock, e.opts.Interval) == nil {
		if err := e.Emit(); err != nil {
			logf("publish to %s failed: %v", e.opts.Topic, err)
		}
	}
}

// Emit publishes the current statistics if they changed since the last
// successful publish.
func (e *Emitter) Emit() error {
	st, seq, ok := e.stats.Snapshot()

	e.mu.Lock()
	if !ok || seq == e.lastSeq {
		e.counters.Skipped++
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	payload, err := Encode(st, e.opts.Format)
	if err == nil {
		err = e.pub.Publish(e.opts.Topic, payload)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.counters.Errors++
		return err
	}
	e.counters.Published++
	e.lastSeq = seq
	return nil
}

// Counters returns a copy of the activity counters.
func (e *Emitter) Counters() Counters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters
}

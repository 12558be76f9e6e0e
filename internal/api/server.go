// Package api serves the index page, the MJPEG feed, statistics and charts.
package api

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"image/jpeg"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/nfnt/resize"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/tagview/internal/encode"
	"github.com/banshee-data/tagview/internal/history"
	"github.com/banshee-data/tagview/internal/httputil"
	"github.com/banshee-data/tagview/internal/latest"
	"github.com/banshee-data/tagview/internal/monitoring"
	"github.com/banshee-data/tagview/internal/pipeline"
	"github.com/banshee-data/tagview/internal/stream"
	"github.com/banshee-data/tagview/internal/timeutil"
	"github.com/banshee-data/tagview/internal/version"
)

//go:embed static
var staticFiles embed.FS

var logf = monitoring.Prefixed("api")

// Pipeline is the part of *pipeline.Processor the server uses.
type Pipeline interface {
	Start(ctx context.Context)
	Stop()
	Running() bool
	PoseMode() bool
	Frames() *latest.Store[pipeline.EncodedFrame]
	Stats() *latest.Store[pipeline.Stats]
}

// Options configures a Server. Pipeline is required.
type Options struct {
	Pipeline Pipeline
	History  *history.Ring
	Hub      *stream.Hub
	Stream   stream.Options
	// Encoder re-encodes resized snapshots.
	Encoder encode.Encoder
	// Family is the tag family reported by /healthz.
	Family string
	// EventInterval is the minimum gap between /stats/events messages.
	EventInterval time.Duration
	Clock         timeutil.Clock
}

type Server struct {
	opts Options
	p    Pipeline
	gen  *stream.Generator
	hub  *stream.Hub
}

func NewServer(opts Options) *Server {
	if opts.Hub == nil {
		opts.Hub = stream.NewHub()
	}
	if opts.Encoder == nil {
		opts.Encoder = encode.NewJPEG(80)
	}
	if opts.EventInterval <= 0 {
		opts.EventInterval = 250 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Stream.Clock == nil {
		opts.Stream.Clock = opts.Clock
	}
	return &Server{
		opts: opts,
		p:    opts.Pipeline,
		gen:  stream.NewGenerator(opts.Pipeline.Frames(), opts.Pipeline.Running, opts.Stream),
		hub:  opts.Hub,
	}
}

// Hub returns the viewer registry shared with other transports.
func (s *Server) Hub() *stream.Hub { return s.hub }

func (s *Server) ServeMux() *http.ServeMux {
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.index)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	mux.HandleFunc("/video_feed", s.videoFeed)
	mux.HandleFunc("/stats", s.showStats)
	mux.HandleFunc("/stats/events", s.statsEvents)
	mux.HandleFunc("/stats/history", s.showHistory)
	mux.HandleFunc("/snapshot.jpg", s.snapshot)
	mux.HandleFunc("/charts", s.chartsPage)
	mux.HandleFunc("/charts/fps.png", s.fpsPNG)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// videoFeed streams the latest annotated frame until the client goes away
// or the processing loop stops.
func (s *Server) videoFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	viewer, leave := s.hub.Join(r.RemoteAddr, "mjpeg")
	defer leave()

	w.Header().Set("Content-Type", stream.ContentType)
	httputil.NoCache(w)
	flusher, _ := w.(http.Flusher)

	for chunk := range s.gen.Frames(r.Context()) {
		if _, err := w.Write(chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		viewer.Sent()
	}
}

// currentStats returns the latest statistics, or an empty value shaped for
// the pipeline's mode before the first cycle.
func (s *Server) currentStats() pipeline.Stats {
	if st, ok := s.p.Stats().Latest(); ok {
		return st
	}
	return pipeline.Stats{PoseMode: s.p.PoseMode()}
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.currentStats())
}

// statsEvents pushes the statistics as server-sent events whenever they
// change, at most once per EventInterval.
func (s *Server) statsEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	store := s.p.Stats()
	for {
		changed := store.Changed()
		body, err := s.currentStats().MarshalJSON()
		if err != nil {
			logf("stats event encode: %v", err)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", body); err != nil {
			return
		}
		flusher.Flush()

		if timeutil.Sleep(ctx, s.opts.Clock, s.opts.EventInterval) != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
	}
}

func (s *Server) showHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		httputil.ServiceUnavailable(w, "history disabled")
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"summary": s.opts.History.Summarize(),
		"samples": s.opts.History.Samples(),
	})
}

const (
	minSnapshotWidth = 16
	maxSnapshotWidth = 4096
)

// snapshot serves the latest encoded frame, optionally downscaled to ?width=N.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	frame, ok := s.p.Frames().Latest()
	if !ok {
		httputil.ServiceUnavailable(w, "no frame captured yet")
		return
	}

	body := frame.Data
	if ws := r.URL.Query().Get("width"); ws != "" {
		width, err := strconv.Atoi(ws)
		if err != nil || width < minSnapshotWidth || width > maxSnapshotWidth {
			httputil.BadRequest(w, fmt.Sprintf("width must be between %d and %d", minSnapshotWidth, maxSnapshotWidth))
			return
		}
		body, err = s.resized(frame.Data, width)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
	}

	w.Header().Set("Content-Type", s.opts.Encoder.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	httputil.NoCache(w)
	_, _ = w.Write(body)
}

func (s *Server) resized(data []byte, width int) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if width >= img.Bounds().Dx() {
		return data, nil
	}
	small := resize.Resize(uint(width), 0, img, resize.Bilinear)
	return s.opts.Encoder.Encode(small)
}

func (s *Server) chartsPage(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		httputil.ServiceUnavailable(w, "history disabled")
		return
	}
	var buf bytes.Buffer
	if err := history.RenderPage(&buf, s.opts.History.Samples(), s.opts.History.Summarize()); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) fpsPNG(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		httputil.ServiceUnavailable(w, "history disabled")
		return
	}
	var buf bytes.Buffer
	err := history.RenderPNG(&buf, s.opts.History.Samples(), 8*vg.Inch, 3*vg.Inch)
	if errors.Is(err, history.ErrNoSamples) {
		httputil.ServiceUnavailable(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	httputil.NoCache(w)
	_, _ = w.Write(buf.Bytes())
}

type health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha"`
	Running bool   `json:"running"`
	Pose    bool   `json:"pose"`
	Family  string `json:"family,omitempty"`
	Viewers int    `json:"viewers"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	h := health{
		Status:  "ok",
		Version: version.Version,
		GitSHA:  version.GitSHA,
		Running: s.p.Running(),
		Pose:    s.p.PoseMode(),
		Family:  s.opts.Family,
		Viewers: s.hub.Count(),
	}
	status := http.StatusOK
	if !h.Running {
		h.Status = "stopped"
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, h)
}

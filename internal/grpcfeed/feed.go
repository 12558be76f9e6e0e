// Package grpcfeed serves annotated frames and statistics over gRPC
// server streams. The service is described by hand with well-known
// protobuf types, so no generated code is needed:
//
//	service Feed {
//	  rpc StreamFrames(google.protobuf.Empty) returns (stream google.protobuf.BytesValue);
//	  rpc StreamStats(google.protobuf.Empty) returns (stream google.protobuf.Struct);
//	}
package grpcfeed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/tagview/internal/latest"
	"github.com/banshee-data/tagview/internal/monitoring"
	"github.com/banshee-data/tagview/internal/pipeline"
	"github.com/banshee-data/tagview/internal/stream"
	"github.com/banshee-data/tagview/internal/timeutil"
)

var logf = monitoring.Prefixed("grpcfeed")

const (
	ServiceName        = "tagview.Feed"
	StreamFramesMethod = "/" + ServiceName + "/StreamFrames"
	StreamStatsMethod  = "/" + ServiceName + "/StreamStats"
)

// FeedServer is the server side of the Feed service.
type FeedServer interface {
	StreamFrames(*emptypb.Empty, grpc.ServerStream) error
	StreamStats(*emptypb.Empty, grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FeedServer)(nil),
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamFrames", Handler: streamFramesHandler, ServerStreams: true},
		{StreamName: "StreamStats", Handler: streamStatsHandler, ServerStreams: true},
	},
	Metadata: "tagview/feed.proto",
}

func streamFramesHandler(srv any, ss grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := ss.RecvMsg(in); err != nil {
		return err
	}
	return srv.(FeedServer).StreamFrames(in, ss)
}

func streamStatsHandler(srv any, ss grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := ss.RecvMsg(in); err != nil {
		return err
	}
	return srv.(FeedServer).StreamStats(in, ss)
}

// Source is the part of *pipeline.Processor the feed reads from.
type Source interface {
	Running() bool
	PoseMode() bool
	Frames() *latest.Store[pipeline.EncodedFrame]
	Stats() *latest.Store[pipeline.Stats]
}

// Config controls the feed server.
type Config struct {
	ListenAddr string
	// MaxClients caps concurrent streams; zero means no limit.
	MaxClients int
	// Interval is the minimum gap between messages on one stream.
	Interval time.Duration
	// Poll bounds how long a stream waits before re-checking that the
	// processing loop is still running.
	Poll  time.Duration
	Clock timeutil.Clock
}

// DefaultConfig returns the feed defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr: "localhost:50051",
		MaxClients: 8,
		Interval:   50 * time.Millisecond,
		Poll:       100 * time.Millisecond,
	}
}

// Server implements FeedServer over a pipeline's stores.
type Server struct {
	cfg     Config
	src     Source
	hub     *stream.Hub
	clients atomic.Int32

	server   *grpc.Server
	listener net.Listener
	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer returns a feed over src. hub may be shared with the HTTP
// server so /debug/streams lists both kinds of viewer.
func NewServer(cfg Config, src Source, hub *stream.Hub) *Server {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 100 * time.Millisecond
	}
	if hub == nil {
		hub = stream.NewHub()
	}
	return &Server{cfg: cfg, src: src, hub: hub, stopCh: make(chan struct{})}
}

// Register adds the Feed service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// Start listens on cfg.ListenAddr and serves in the background.
func (s *Server) Start() error {
	if s.running.Load() {
		return errors.New("feed already running")
	}
	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = lis
	s.server = grpc.NewServer()
	s.Register(s.server)
	s.running.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logf("gRPC feed listening on %s", lis.Addr())
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			logf("gRPC server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop ends all streams and shuts the server down.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if !s.running.Swap(false) {
		return
	}
	s.server.GracefulStop()
	s.wg.Wait()
	logf("gRPC feed stopped")
}

func (s *Server) join(ctx context.Context, kind string) (*stream.Viewer, func(), error) {
	n := s.clients.Add(1)
	if max := s.cfg.MaxClients; max > 0 && int(n) > max {
		s.clients.Add(-1)
		return nil, nil, status.Errorf(codes.ResourceExhausted, "feed is limited to %d clients", max)
	}
	remote := "unknown"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		remote = p.Addr.String()
	}
	v, leave := s.hub.Join(remote, kind)
	return v, func() {
		leave()
		s.clients.Add(-1)
	}, nil
}

// follow calls send for every new value published to a store, at most once
// per Interval, until the client leaves, the server stops or the processing
// loop stops.
func follow[T any](s *Server, ctx context.Context, store *latest.Store[T], send func(T) error) error {
	var last uint64
	for {
		if !s.src.Running() {
			return nil
		}
		changed := store.Changed()
		if v, seq, ok := store.Snapshot(); ok && seq != last {
			if err := send(v); err != nil {
				return err
			}
			last = seq
			if err := timeutil.Sleep(ctx, s.cfg.Clock, s.cfg.Interval); err != nil {
				return nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-changed:
		case <-s.cfg.Clock.After(s.cfg.Poll):
		}
	}
}

// StreamFrames sends each newly encoded frame as a BytesValue.
func (s *Server) StreamFrames(_ *emptypb.Empty, ss grpc.ServerStream) error {
	ctx := ss.Context()
	viewer, leave, err := s.join(ctx, "grpc")
	if err != nil {
		return err
	}
	defer leave()

	return follow(s, ctx, s.src.Frames(), func(f pipeline.EncodedFrame) error {
		if err := ss.SendMsg(wrapperspb.Bytes(f.Data)); err != nil {
			return err
		}
		viewer.Sent()
		return nil
	})
}

// StreamStats sends each statistics update as a Struct shaped like the
// /stats JSON.
func (s *Server) StreamStats(_ *emptypb.Empty, ss grpc.ServerStream) error {
	ctx := ss.Context()
	viewer, leave, err := s.join(ctx, "grpc-stats")
	if err != nil {
		return err
	}
	defer leave()

	return follow(s, ctx, s.src.Stats(), func(st pipeline.Stats) error {
		msg, err := StatsStruct(st)
		if err != nil {
			return status.Errorf(codes.Internal, "encode stats: %v", err)
		}
		if err := ss.SendMsg(msg); err != nil {
			return err
		}
		viewer.Sent()
		return nil
	})
}

// StatsStruct converts statistics to the Struct sent on StreamStats.
func StatsStruct(st pipeline.Stats) (*structpb.Struct, error) {
	body, err := st.MarshalJSON()
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(body, out); err != nil {
		return nil, err
	}
	return out, nil
}

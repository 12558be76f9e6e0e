package grpcfeed

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls the Feed service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// FrameStream receives encoded frames.
type FrameStream struct {
	cs grpc.ClientStream
}

// Recv blocks for the next frame. It returns io.EOF when the server ends
// the stream.
func (f *FrameStream) Recv() ([]byte, error) {
	msg := new(wrapperspb.BytesValue)
	if err := f.cs.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg.GetValue(), nil
}

// StatsStream receives statistics updates.
type StatsStream struct {
	cs grpc.ClientStream
}

// Recv blocks for the next statistics update.
func (s *StatsStream) Recv() (*structpb.Struct, error) {
	msg := new(structpb.Struct)
	if err := s.cs.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *Client) open(ctx context.Context, idx int, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	cs, err := c.cc.NewStream(ctx, &serviceDesc.Streams[idx], method, opts...)
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return cs, nil
}

// StreamFrames opens a frame stream.
func (c *Client) StreamFrames(ctx context.Context, opts ...grpc.CallOption) (*FrameStream, error) {
	cs, err := c.open(ctx, 0, StreamFramesMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &FrameStream{cs: cs}, nil
}

// StreamStats opens a statistics stream.
func (c *Client) StreamStats(ctx context.Context, opts ...grpc.CallOption) (*StatsStream, error) {
	cs, err := c.open(ctx, 1, StreamStatsMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &StatsStream{cs: cs}, nil
}

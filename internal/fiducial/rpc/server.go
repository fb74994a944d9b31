package rpc

import (
	"context"
	"errors"
	"net"

	"github.com/banshee-data/fiducial-tracker/internal/fiducial"
	"github.com/banshee-data/fiducial-tracker/internal/monitoring"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Ensure Server implements the gRPC interface.
var _ MarkerServiceServer = (*Server)(nil)

// Server implements MarkerService over a tracker.
type Server struct {
	tracker *fiducial.Tracker
}

// NewServer creates a new gRPC service for tracker.
func NewServer(tracker *fiducial.Tracker) *Server {
	return &Server{tracker: tracker}
}

// ListMarkers implements MarkerServiceServer.
func (s *Server) ListMarkers(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := toStruct(struct {
		Markers []fiducial.MarkerSnapshot `json:"markers"`
	}{Markers: s.tracker.Markers()})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list markers: %v", err)
	}
	return out, nil
}

// GetMarker implements MarkerServiceServer.
func (s *Server) GetMarker(ctx context.Context, in *wrapperspb.UInt32Value) (*structpb.Struct, error) {
	snap, ok := s.tracker.Marker(fiducial.MarkerID(in.GetValue()))
	if !ok {
		return nil, status.Errorf(codes.NotFound, "marker %d not tracked", in.GetValue())
	}
	out, err := toStruct(snap)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get marker: %v", err)
	}
	return out, nil
}

// ConsumeUpdated implements MarkerServiceServer.
func (s *Server) ConsumeUpdated(ctx context.Context, in *wrapperspb.UInt32Value) (*wrapperspb.BoolValue, error) {
	updated, ok := s.tracker.ConsumeUpdated(fiducial.MarkerID(in.GetValue()))
	if !ok {
		return nil, status.Errorf(codes.NotFound, "marker %d not tracked", in.GetValue())
	}
	return wrapperspb.Bool(updated), nil
}

// GetStats implements MarkerServiceServer.
func (s *Server) GetStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := toStruct(s.tracker.Stats())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get stats: %v", err)
	}
	return out, nil
}

// Serve registers s on a new grpc.Server and serves lis until ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener, opts ...grpc.ServerOption) error {
	gs := grpc.NewServer(opts...)
	RegisterMarkerServiceServer(gs, s)

	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("[gRPC] serving %s on %s", ServiceName, lis.Addr())
		errCh <- gs.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	case <-ctx.Done():
		monitoring.Logf("[gRPC] stopping")
		gs.GracefulStop()
		<-errCh
		return nil
	}
}

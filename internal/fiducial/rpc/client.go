package rpc

import (
	"context"

	"github.com/banshee-data/fiducial-tracker/internal/fiducial"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls MarkerService on an established connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// ListMarkers returns all live markers ordered by id.
func (c *Client) ListMarkers(ctx context.Context, opts ...grpc.CallOption) ([]fiducial.MarkerSnapshot, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("ListMarkers"), &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	var resp struct {
		Markers []fiducial.MarkerSnapshot `json:"markers"`
	}
	if err := fromStruct(out, &resp); err != nil {
		return nil, err
	}
	return resp.Markers, nil
}

// GetMarker returns one marker snapshot.
func (c *Client) GetMarker(ctx context.Context, id fiducial.MarkerID, opts ...grpc.CallOption) (fiducial.MarkerSnapshot, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("GetMarker"), wrapperspb.UInt32(uint32(id)), out, opts...); err != nil {
		return fiducial.MarkerSnapshot{}, err
	}
	var snap fiducial.MarkerSnapshot
	err := fromStruct(out, &snap)
	return snap, err
}

// ConsumeUpdated polls and clears a marker's updated flag.
func (c *Client) ConsumeUpdated(ctx context.Context, id fiducial.MarkerID, opts ...grpc.CallOption) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, fullMethod("ConsumeUpdated"), wrapperspb.UInt32(uint32(id)), out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// GetStats returns the tracker's running totals.
func (c *Client) GetStats(ctx context.Context, opts ...grpc.CallOption) (fiducial.TrackerStats, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("GetStats"), &emptypb.Empty{}, out, opts...); err != nil {
		return fiducial.TrackerStats{}, err
	}
	var stats fiducial.TrackerStats
	err := fromStruct(out, &stats)
	return stats, err
}

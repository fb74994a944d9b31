// Package rpc exposes tracker snapshots over gRPC as the
// fiducial.v1.MarkerService. Messages are protobuf well-known types, so no
// generated code is required: markers and stats travel as
// google.protobuf.Struct values with the same field names as the HTTP
// monitor's JSON.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "fiducial.v1.MarkerService"

// MarkerServiceServer is the server API for MarkerService.
type MarkerServiceServer interface {
	// ListMarkers returns {"markers": [snapshot, ...]} ordered by id.
	ListMarkers(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// GetMarker returns one snapshot, or NotFound.
	GetMarker(context.Context, *wrapperspb.UInt32Value) (*structpb.Struct, error)
	// ConsumeUpdated polls and clears a marker's updated flag.
	ConsumeUpdated(context.Context, *wrapperspb.UInt32Value) (*wrapperspb.BoolValue, error)
	// GetStats returns the tracker's running totals.
	GetStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// MarkerServiceDesc describes MarkerService for grpc.Server.RegisterService.
var MarkerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MarkerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("ListMarkers", func(s MarkerServiceServer, ctx context.Context, in *emptypb.Empty) (interface{}, error) {
			return s.ListMarkers(ctx, in)
		}),
		unaryMethod("GetMarker", func(s MarkerServiceServer, ctx context.Context, in *wrapperspb.UInt32Value) (interface{}, error) {
			return s.GetMarker(ctx, in)
		}),
		unaryMethod("ConsumeUpdated", func(s MarkerServiceServer, ctx context.Context, in *wrapperspb.UInt32Value) (interface{}, error) {
			return s.ConsumeUpdated(ctx, in)
		}),
		unaryMethod("GetStats", func(s MarkerServiceServer, ctx context.Context, in *emptypb.Empty) (interface{}, error) {
			return s.GetStats(ctx, in)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fiducial/v1/marker_service.proto",
}

// RegisterMarkerServiceServer registers srv on s.
func RegisterMarkerServiceServer(s grpc.ServiceRegistrar, srv MarkerServiceServer) {
	s.RegisterService(&MarkerServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unaryMethod builds a MethodDesc that decodes a Req and dispatches through
// any configured interceptor.
func unaryMethod[Req any](name string, call func(MarkerServiceServer, context.Context, *Req) (interface{}, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MarkerServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(MarkerServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// toStruct converts a JSON-tagged value to a Struct via its JSON form.
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return structpb.NewStruct(m)
}

// fromStruct is the inverse of toStruct.
func fromStruct(s *structpb.Struct, v interface{}) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("encode struct: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

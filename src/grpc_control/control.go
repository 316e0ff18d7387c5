package grpc_control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Messages are google.protobuf.Struct on both sides, so the service needs no
// generated code. The field layout of every method is documented on
// ControlService.

const (
	ServiceName = "seriesobserver.SeriesControl"

	MethodListSessions  = "/" + ServiceName + "/ListSessions"
	MethodListSources   = "/" + ServiceName + "/ListSources"
	MethodReloadSource  = "/" + ServiceName + "/ReloadSource"
	MethodSummarize     = "/" + ServiceName + "/Summarize"
	MethodTransform     = "/" + ServiceName + "/Transform"
	MethodDeleteSession = "/" + ServiceName + "/DeleteSession"
)

// SeriesControlServer is the server API of the control service.
type SeriesControlServer interface {
	ListSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSources(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReloadSource(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Summarize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transform(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// -----------------------------------------------------------------------------

type unaryMethod func(SeriesControlServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SeriesControlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(SeriesControlServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// SeriesControlServiceDesc describes the service for grpc.Server.RegisterService.
var SeriesControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SeriesControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListSessions", Handler: unaryHandler(MethodListSessions, SeriesControlServer.ListSessions)},
		{MethodName: "ListSources", Handler: unaryHandler(MethodListSources, SeriesControlServer.ListSources)},
		{MethodName: "ReloadSource", Handler: unaryHandler(MethodReloadSource, SeriesControlServer.ReloadSource)},
		{MethodName: "Summarize", Handler: unaryHandler(MethodSummarize, SeriesControlServer.Summarize)},
		{MethodName: "Transform", Handler: unaryHandler(MethodTransform, SeriesControlServer.Transform)},
		{MethodName: "DeleteSession", Handler: unaryHandler(MethodDeleteSession, SeriesControlServer.DeleteSession)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "series_control.proto",
}

// RegisterSeriesControlServer attaches srv to s.
func RegisterSeriesControlServer(s grpc.ServiceRegistrar, srv SeriesControlServer) {
	s.RegisterService(&SeriesControlServiceDesc, srv)
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// SeriesControlClient is a thin caller for the control service.
type SeriesControlClient struct {
	cc grpc.ClientConnInterface
}

func NewSeriesControlClient(cc grpc.ClientConnInterface) *SeriesControlClient {
	return &SeriesControlClient{cc: cc}
}

// Call invokes one of the Method* endpoints with a plain map request.
func (c *SeriesControlClient) Call(ctx context.Context, method string, req map[string]interface{}, opts ...grpc.CallOption) (map[string]interface{}, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

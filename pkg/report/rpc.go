package report

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Wire names of the report delivery RPC. Reports travel as the payload of a
// BytesValue so the server can decode them with Decode.
const (
	ServiceName      = "valuemetric.v1.ReportService"
	SendReportMethod = "/" + ServiceName + "/SendReport"
)

// Server is implemented by the gRPC receiver.
type Server interface {
	SendReport(ctx context.Context, payload *wrapperspb.BytesValue) (*emptypb.Empty, error)
}

// RegisterServer registers srv on s under ServiceName.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

// Send delivers one encoded report over conn.
func Send(ctx context.Context, conn grpc.ClientConnInterface, payload []byte, opts ...grpc.CallOption) error {
	return conn.Invoke(ctx, SendReportMethod, wrapperspb.Bytes(payload), new(emptypb.Empty), opts...)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendReport", Handler: sendReportHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "valuemetric/v1/report.proto",
}

func sendReportHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).SendReport(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SendReportMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).SendReport(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

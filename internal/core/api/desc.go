package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "cratedigger.v1.ReportService"

// Full method names, as seen by interceptors.
const (
	GenerateReportMethod       = "/" + ServiceName + "/GenerateReport"
	GenerateStoredReportMethod = "/" + ServiceName + "/GenerateStoredReport"
	GetReportMethod            = "/" + ServiceName + "/GetReport"
)

// ReportServiceServer is the server API for ReportService.
// Requests and responses are google.protobuf.Struct carrying the same JSON
// shapes the CLI reads and writes.
type ReportServiceServer interface {
	GenerateReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GenerateStoredReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterReportServiceServer registers srv on s.
func RegisterReportServiceServer(s grpc.ServiceRegistrar, srv ReportServiceServer) {
	s.RegisterService(&ReportServiceDesc, srv)
}

// ReportServiceDesc describes ReportService for grpc.Server registration.
var ReportServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReportServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GenerateReport", Handler: unaryHandler(GenerateReportMethod, ReportServiceServer.GenerateReport)},
		{MethodName: "GenerateStoredReport", Handler: unaryHandler(GenerateStoredReportMethod, ReportServiceServer.GenerateStoredReport)},
		{MethodName: "GetReport", Handler: unaryHandler(GetReportMethod, ReportServiceServer.GetReport)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cratedigger/v1/report_service.proto",
}

type unaryMethod func(ReportServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts a Struct-to-Struct method to grpc.MethodDesc.Handler,
// running it through the server's interceptor chain when one is installed.
func unaryHandler(fullMethod string, method unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(ReportServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv.(ReportServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

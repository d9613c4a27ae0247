package revsentryrpc

import (
	"context"

	"google.golang.org/grpc"
)

// ReviewServiceServer is the hand-written equivalent of a
// protoc-gen-go-grpc server interface for the two RPCs spec section 6
// names.
type ReviewServiceServer interface {
	StartReview(ctx context.Context, req *StartReviewRequest) (*StartReviewResponse, error)
	StreamProgress(req *StreamProgressRequest, stream ReviewService_StreamProgressServer) error
}

// ReviewService_StreamProgressServer is the server-side handle for
// the StreamProgress server-streaming RPC.
type ReviewService_StreamProgressServer interface {
	Send(*ProgressEvent) error
	grpc.ServerStream
}

type reviewServiceStreamProgressServer struct {
	grpc.ServerStream
}

func (x *reviewServiceStreamProgressServer) Send(m *ProgressEvent) error {
	return x.ServerStream.SendMsg(m)
}

func _ReviewService_StartReview_Handler(
	srv interface{}, ctx context.Context,
	dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(StartReviewRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReviewServiceServer).StartReview(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/revsentry.ReviewService/StartReview",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReviewServiceServer).StartReview(ctx, req.(*StartReviewRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ReviewService_StreamProgress_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(StreamProgressRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ReviewServiceServer).StreamProgress(
		m, &reviewServiceStreamProgressServer{stream},
	)
}

// ReviewService_ServiceDesc is the grpc.ServiceDesc a generated
// <service>_grpc.pb.go file would define; written by hand here since
// no protoc run produced one for this exercise.
var ReviewService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "revsentry.ReviewService",
	HandlerType: (*ReviewServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StartReview",
			Handler:    _ReviewService_StartReview_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamProgress",
			Handler:       _ReviewService_StreamProgress_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "revsentry.proto",
}

// RegisterReviewServiceServer registers srv with s, the same call
// shape a generated RegisterReviewServiceServer function would have.
func RegisterReviewServiceServer(s grpc.ServiceRegistrar, srv ReviewServiceServer) {
	s.RegisterService(&ReviewService_ServiceDesc, srv)
}

// Package grpc exposes a bucket store over gRPC and provides the matching
// store.Client. Requests and responses are protobuf well-known types so no
// generated code is needed.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "reindexbench.v1.BucketStore"

const (
	methodCreateBucket   = "/" + ServiceName + "/CreateBucket"
	methodUpdateBucket   = "/" + ServiceName + "/UpdateBucket"
	methodPutRecord      = "/" + ServiceName + "/PutRecord"
	methodReindexRecords = "/" + ServiceName + "/ReindexRecords"
)

// BucketStoreServer is the server API for the BucketStore service.
type BucketStoreServer interface {
	CreateBucket(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	UpdateBucket(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	PutRecord(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	ReindexRecords(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterBucketStoreServer registers srv with s.
func RegisterBucketStoreServer(s grpc.ServiceRegistrar, srv BucketStoreServer) {
	s.RegisterService(&BucketStoreServiceDesc, srv)
}

// BucketStoreServiceDesc describes the BucketStore service.
var BucketStoreServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BucketStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateBucket",
			Handler:    unaryHandler(methodCreateBucket, BucketStoreServer.CreateBucket),
		},
		{
			MethodName: "UpdateBucket",
			Handler:    unaryHandler(methodUpdateBucket, BucketStoreServer.UpdateBucket),
		},
		{
			MethodName: "PutRecord",
			Handler:    unaryHandler(methodPutRecord, BucketStoreServer.PutRecord),
		},
		{
			MethodName: "ReindexRecords",
			Handler:    unaryHandler(methodReindexRecords, BucketStoreServer.ReindexRecords),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "reindexbench/v1/bucket_store.proto",
}

func unaryHandler[Resp any](fullMethod string, call func(BucketStoreServer, context.Context, *structpb.Struct) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BucketStoreServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BucketStoreServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

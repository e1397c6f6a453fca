package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	rberrors "github.com/arkilian/reindexbench/internal/errors"
	"github.com/arkilian/reindexbench/internal/store"
)

// Error detail field names.
const (
	detailCategory  = "category"
	detailCode      = "code"
	detailRetryable = "retryable"
)

// Server serves a store.Client over the BucketStore service.
type Server struct {
	store  store.Client
	logger *slog.Logger
}

var _ BucketStoreServer = (*Server)(nil)

// NewServer creates a server backed by st.
func NewServer(st store.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{store: st, logger: logger}
}

// CreateBucket handles bucket creation.
func (s *Server) CreateBucket(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	m := req.AsMap()
	name, err := stringField(m, fieldName)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	schemaMap, _ := m[fieldSchema].(map[string]interface{})
	schema, err := schemaFromMap(schemaMap)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid schema: %v", err)
	}

	if err := s.store.CreateBucket(ctx, name, schema); err != nil {
		return nil, s.statusError(ctx, "CreateBucket", err)
	}
	return &emptypb.Empty{}, nil
}

// UpdateBucket handles schema upgrades.
func (s *Server) UpdateBucket(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	m := req.AsMap()
	name, err := stringField(m, fieldName)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	schemaMap, _ := m[fieldSchema].(map[string]interface{})
	schema, err := schemaFromMap(schemaMap)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid schema: %v", err)
	}

	if err := s.store.UpdateBucket(ctx, name, schema); err != nil {
		return nil, s.statusError(ctx, "UpdateBucket", err)
	}
	return &emptypb.Empty{}, nil
}

// PutRecord handles record writes.
func (s *Server) PutRecord(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	m := req.AsMap()
	bucket, err := stringField(m, fieldBucket)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	key, err := stringField(m, fieldKey)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	value, ok := m[fieldValue].(map[string]interface{})
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "field %q must be an object", fieldValue)
	}

	if err := s.store.PutRecord(ctx, bucket, key, value); err != nil {
		return nil, s.statusError(ctx, "PutRecord", err)
	}
	return &emptypb.Empty{}, nil
}

// ReindexRecords handles one reindex chunk.
func (s *Server) ReindexRecords(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	m := req.AsMap()
	bucket, err := stringField(m, fieldBucket)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	count, err := intField(m, fieldCount)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.store.ReindexRecords(ctx, bucket, count)
	if err != nil {
		return nil, s.statusError(ctx, "ReindexRecords", err)
	}
	out, err := reindexResponse(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

func (s *Server) statusError(ctx context.Context, method string, err error) error {
	st := toStatus(err)
	if st.Code() == codes.Internal {
		s.logger.Error("store call failed", "method", method, "request_id", requestID(ctx), "error", err)
	} else {
		s.logger.Debug("store call rejected", "method", method, "code", st.Code().String(), "error", err)
	}
	return st.Err()
}

// toStatus converts a store error into a gRPC status carrying the error
// category, code and retryable flag as details.
func toStatus(err error) *status.Status {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return status.FromContextError(err)
	}

	var se *rberrors.StoreError
	if !errors.As(err, &se) {
		return status.New(codes.Internal, err.Error())
	}

	msg := se.Message
	if se.Cause != nil {
		msg = fmt.Sprintf("%s: %v", se.Message, se.Cause)
	}
	st := status.New(grpcCode(se), msg)
	detail, derr := structpb.NewStruct(map[string]interface{}{
		detailCategory:  string(se.Category),
		detailCode:      se.Code,
		detailRetryable: se.Retryable,
	})
	if derr != nil {
		return st
	}
	if withDetails, derr := st.WithDetails(detail); derr == nil {
		return withDetails
	}
	return st
}

func grpcCode(se *rberrors.StoreError) codes.Code {
	switch se.Code {
	case rberrors.CodeBucketExists, rberrors.CodeUniqueAttribute:
		return codes.AlreadyExists
	case rberrors.CodeBucketNotFound:
		return codes.NotFound
	case rberrors.CodeBucketVersion:
		return codes.FailedPrecondition
	case rberrors.CodeInvalidSchema, rberrors.CodeInvalidArgument, rberrors.CodeInvalidIndexType:
		return codes.InvalidArgument
	case rberrors.CodeTimeout:
		return codes.DeadlineExceeded
	case rberrors.CodeOverloaded:
		return codes.ResourceExhausted
	case rberrors.CodeUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// requestID extracts or generates a request ID from the gRPC context.
func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}

package grpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	rberrors "github.com/arkilian/reindexbench/internal/errors"
	"github.com/arkilian/reindexbench/internal/store"
	"github.com/arkilian/reindexbench/pkg/types"
)

// DefaultRequestTimeout bounds each store call when no timeout is configured.
const DefaultRequestTimeout = 30 * time.Second

// Client is a store.Client talking to a BucketStore server.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

var _ store.Client = (*Client)(nil)

// NewClient connects to target. A non-positive timeout selects
// DefaultRequestTimeout. Extra dial options are applied after the default
// insecure transport credentials.
func NewClient(target string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, rberrors.NewTransportError(rberrors.CodeUnavailable,
			fmt.Sprintf("failed to create client for %s", target), err)
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// CreateBucket creates a bucket on the server.
func (c *Client) CreateBucket(ctx context.Context, name string, schema types.BucketSchema) error {
	req, err := bucketRequest(name, schema)
	if err != nil {
		return rberrors.NewValidationError(rberrors.CodeInvalidSchema, "failed to encode schema", err)
	}
	return c.invoke(ctx, methodCreateBucket, req, new(emptypb.Empty))
}

// UpdateBucket upgrades a bucket schema on the server.
func (c *Client) UpdateBucket(ctx context.Context, name string, schema types.BucketSchema) error {
	req, err := bucketRequest(name, schema)
	if err != nil {
		return rberrors.NewValidationError(rberrors.CodeInvalidSchema, "failed to encode schema", err)
	}
	return c.invoke(ctx, methodUpdateBucket, req, new(emptypb.Empty))
}

// PutRecord writes a record on the server.
func (c *Client) PutRecord(ctx context.Context, bucket, key string, value map[string]interface{}) error {
	req, err := putRequest(bucket, key, value)
	if err != nil {
		return rberrors.NewValidationError(rberrors.CodeInvalidArgument, "failed to encode record value", err)
	}
	return c.invoke(ctx, methodPutRecord, req, new(emptypb.Empty))
}

// ReindexRecords asks the server to reindex up to count pending records.
func (c *Client) ReindexRecords(ctx context.Context, bucket string, count int) (types.ReindexResult, error) {
	req, err := reindexRequest(bucket, count)
	if err != nil {
		return types.ReindexResult{}, rberrors.NewValidationError(rberrors.CodeInvalidArgument, "failed to encode request", err)
	}
	resp := new(structpb.Struct)
	if err := c.invoke(ctx, methodReindexRecords, req, resp); err != nil {
		return types.ReindexResult{}, err
	}
	res, err := parseReindexResponse(resp)
	if err != nil {
		return types.ReindexResult{}, rberrors.NewReindexError(rberrors.CodeReindexFailed, "malformed reindex response", err)
	}
	return res, nil
}

// Close closes the connection. Later calls return the first result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", types.NewRecordKey())

	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return fromStatus(err)
	}
	return nil
}

// fromStatus rebuilds a store error from a gRPC status so that error
// classification survives the wire.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return rberrors.NewTransportError(rberrors.CodeUnavailable, "store call failed", err)
	}

	for _, d := range st.Details() {
		detail, ok := d.(*structpb.Struct)
		if !ok {
			continue
		}
		m := detail.AsMap()
		category, _ := m[detailCategory].(string)
		code, _ := m[detailCode].(string)
		if category == "" || code == "" {
			continue
		}
		se := rberrors.New(rberrors.ErrorCategory(category), code, st.Message())
		if retryable, ok := m[detailRetryable].(bool); ok {
			se.Retryable = retryable
		}
		return se
	}

	switch st.Code() {
	case codes.DeadlineExceeded:
		return rberrors.NewTransportError(rberrors.CodeTimeout, st.Message(), err)
	case codes.Unavailable, codes.Canceled:
		return rberrors.NewTransportError(rberrors.CodeUnavailable, st.Message(), err)
	case codes.ResourceExhausted:
		return rberrors.NewTransportError(rberrors.CodeOverloaded, st.Message(), err)
	case codes.InvalidArgument:
		return rberrors.NewValidationError(rberrors.CodeInvalidArgument, st.Message(), err)
	case codes.NotFound:
		return rberrors.NewBucketError(rberrors.CodeBucketNotFound, st.Message(), err)
	default:
		return rberrors.NewInternalError(st.Message(), err)
	}
}

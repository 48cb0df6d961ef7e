// Package s3store is the S3 implementation of media.ObjectStore. Clients upload and
// download directly against the bucket through presigned URLs; the service only
// inspects and deletes objects.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/mediahub/pkg/media"
	"github.com/platinummonkey/mediahub/pkg/observability"
)

var _ media.ObjectStore = (*ObjectStore)(nil)

// Config locates the bucket. AccessKey and SecretKey are optional; without them the
// default AWS credential chain is used.
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	// MaxAttempts bounds SDK retries; zero keeps the SDK default
	MaxAttempts int
}

// ObjectStore presigns and inspects objects in a single bucket
type ObjectStore struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// New loads AWS configuration and builds the store
func New(ctx context.Context, cfg Config) (*ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.MaxAttempts))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewFromClient(client, cfg.Bucket), nil
}

// NewFromClient wraps an existing S3 client
func NewFromClient(client *s3.Client, bucket string) *ObjectStore {
	return &ObjectStore{client: client, presign: s3.NewPresignClient(client), bucket: bucket}
}

func (o *ObjectStore) startSpan(ctx context.Context, operation, key string) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, "S3."+operation,
		trace.WithAttributes(
			attribute.String("s3.operation", operation),
			attribute.String("s3.bucket", o.bucket),
			attribute.String("s3.key", key),
		),
	)
}

// PresignPut signs a PUT of exactly size bytes with AES256 server-side encryption and the
// admitted size as object metadata. The SDK strips Content-Type from presigned PUTs, so
// the content type is not signed and is checked on completion instead. The client must
// send every returned header unchanged.
func (o *ObjectStore) PresignPut(ctx context.Context, key, contentType string, size int64, ttl time.Duration) (*media.PresignedRequest, error) {
	ctx, span := o.startSpan(ctx, "PresignPutObject", key)
	defer span.End()
	span.SetAttributes(attribute.Int64("content.size", size))

	req, err := o.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(o.bucket),
		Key:                  aws.String(key),
		ContentType:          aws.String(contentType),
		ContentLength:        aws.Int64(size),
		Metadata:             map[string]string{media.AdmittedBytesKey: strconv.FormatInt(size, 10)},
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to presign put")
		return nil, fmt.Errorf("failed to presign put: %w", err)
	}

	return &media.PresignedRequest{
		URL:     req.URL,
		Method:  req.Method,
		Headers: signedHeaders(req.SignedHeader),
	}, nil
}

// PresignGet signs a GET for key
func (o *ObjectStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	ctx, span := o.startSpan(ctx, "PresignGetObject", key)
	defer span.End()

	req, err := o.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to presign get")
		return "", fmt.Errorf("failed to presign get: %w", err)
	}
	return req.URL, nil
}

// Head returns media.ErrObjectNotFound when the object does not exist or is not yet visible
func (o *ObjectStore) Head(ctx context.Context, key string) (*media.ObjectInfo, error) {
	ctx, span := o.startSpan(ctx, "HeadObject", key)
	defer span.End()

	out, err := o.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			span.SetStatus(codes.Ok, "object not found")
			return nil, media.ErrObjectNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to head object")
		return nil, fmt.Errorf("failed to head object: %w", err)
	}

	info := &media.ObjectInfo{
		Key:           key,
		ContentLength: aws.ToInt64(out.ContentLength),
		ContentType:   aws.ToString(out.ContentType),
	}
	if v, ok := out.Metadata[media.AdmittedBytesKey]; ok {
		if admitted, err := strconv.ParseInt(v, 10, 64); err == nil {
			info.AdmittedBytes = admitted
		}
	}
	span.SetAttributes(attribute.Int64("content.size", info.ContentLength))
	return info, nil
}

// Delete removes key. Deleting a missing object succeeds.
func (o *ObjectStore) Delete(ctx context.Context, key string) error {
	ctx, span := o.startSpan(ctx, "DeleteObject", key)
	defer span.End()

	_, err := o.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete object")
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// HealthCheck verifies the bucket is reachable
func (o *ObjectStore) HealthCheck(ctx context.Context) error {
	_, err := o.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(o.bucket)})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

func signedHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		lower := strings.ToLower(name)
		// clients set these from the connection and body
		if lower == "host" || lower == "content-length" || len(values) == 0 {
			continue
		}
		out[lower] = values[0]
	}
	return out
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

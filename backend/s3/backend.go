// Package s3 provides an S3-compatible object store for omniarchive.
//
// This backend works with:
//   - AWS S3
//   - Cloudflare R2
//   - MinIO
//   - Any S3-compatible object storage
//
// Basic usage:
//
//	store, err := s3.New(s3.Config{
//	    Region: "us-east-1",
//	})
//
// For S3-compatible services:
//
//	store, err := s3.New(s3.Config{
//	    Endpoint:     "http://localhost:9000",
//	    UsePathStyle: true,
//	})
//
// Objects are uploaded with a single PutObject call, which S3 accepts up
// to omniarchive.MaxObjectSize. Listings use ListObjects (v1) so that
// pagination follows markers.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/grokify/omniarchive"
)

func init() {
	omniarchive.Register("s3", NewFromConfig)
}

// API is the subset of the S3 client used by Backend.
// *s3.Client satisfies it.
type API interface {
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	ListObjects(ctx context.Context, in *s3.ListObjectsInput, optFns ...func(*s3.Options)) (*s3.ListObjectsOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteBucket(ctx context.Context, in *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
}

// Backend implements omniarchive.ObjectStore for S3-compatible storage.
type Backend struct {
	client API
	region string
	closed bool
	mu     sync.RWMutex
}

// New creates a new S3 store with the given configuration.
func New(cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Build AWS config options
	var optFns []func(*config.LoadOptions) error

	if cfg.Region != "" {
		optFns = append(optFns, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)
		optFns = append(optFns, config.WithCredentialsProvider(creds))
	}

	if cfg.Timeout > 0 {
		optFns = append(optFns, config.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(cfg.Timeout)))
	}

	if cfg.MaxAttempts > 0 {
		optFns = append(optFns, config.WithRetryMaxAttempts(cfg.MaxAttempts))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), optFns...)
	if err != nil {
		return nil, fmt.Errorf("s3: loading AWS config: %w", err)
	}

	// Build S3 client options
	var s3OptFns []func(*s3.Options)

	if endpoint := cfg.EndpointURL(); endpoint != "" {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	if cfg.UsePathStyle {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewWithClient(s3.NewFromConfig(awsCfg, s3OptFns...), awsCfg.Region), nil
}

// NewWithClient creates a store around an existing client. region is used
// as the location constraint when creating buckets.
func NewWithClient(client API, region string) *Backend {
	return &Backend{client: client, region: region}
}

// NewFromConfig creates a new S3 store from a config map.
// This is used by the omniarchive registry.
func NewFromConfig(configMap map[string]string) (omniarchive.ObjectStore, error) {
	return New(ConfigFromMap(configMap))
}

// CreateBucket creates a bucket. A bucket already owned by the caller is
// not an error.
func (b *Backend) CreateBucket(ctx context.Context, bucket string) error {
	if err := b.checkClosed(); err != nil {
		return err
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if b.region != "" && b.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.region),
		}
	}

	_, err := b.client.CreateBucket(ctx, input)
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return translateError(err, "create bucket", bucket, "")
	}
	return nil
}

// ListBucket returns one page of keys.
func (b *Backend) ListBucket(ctx context.Context, bucket string, opts omniarchive.ListOptions) (*omniarchive.ListResult, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	input := &s3.ListObjectsInput{Bucket: aws.String(bucket)}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.Marker != "" {
		input.Marker = aws.String(opts.Marker)
	}
	if opts.MaxKeys > 0 {
		input.MaxKeys = aws.Int32(int32(min(opts.MaxKeys, omniarchive.DefaultMaxKeys)))
	}

	out, err := b.client.ListObjects(ctx, input)
	if err != nil {
		return nil, translateError(err, "list", bucket, "")
	}

	res := &omniarchive.ListResult{
		Entries:     make([]omniarchive.ListEntry, 0, len(out.Contents)),
		IsTruncated: aws.ToBool(out.IsTruncated),
		NextMarker:  aws.ToString(out.NextMarker),
	}
	for _, obj := range out.Contents {
		res.Entries = append(res.Entries, omniarchive.ListEntry{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
			ETag:         aws.ToString(obj.ETag),
		})
	}
	return res, nil
}

// GetObject downloads an object's content and user metadata.
func (b *Backend) GetObject(ctx context.Context, bucket, key string) (*omniarchive.Object, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, translateError(err, "get", bucket, key)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, omniarchive.NewTransportError("get", bucket, key, 0, "", fmt.Errorf("reading body: %w", err))
	}

	meta := make(map[string]string, len(out.Metadata))
	for k, v := range out.Metadata {
		meta[k] = v
	}
	return &omniarchive.Object{Data: data, Metadata: meta}, nil
}

// PutObject uploads data in a single request, overwriting any existing object.
func (b *Backend) PutObject(ctx context.Context, bucket, key string, data []byte, metadata map[string]string) error {
	if err := b.checkClosed(); err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if len(metadata) > 0 {
		input.Metadata = metadata
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return translateError(err, "put", bucket, key)
	}
	return nil
}

// DeleteObject removes an object. S3 reports success for missing keys.
func (b *Backend) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := b.checkClosed(); err != nil {
		return err
	}

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return translateError(err, "delete", bucket, key)
	}
	return nil
}

// DeleteBucket removes an empty bucket.
func (b *Backend) DeleteBucket(ctx context.Context, bucket string) error {
	if err := b.checkClosed(); err != nil {
		return err
	}

	if _, err := b.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return translateError(err, "delete bucket", bucket, "")
	}
	return nil
}

// Close marks the store closed. The AWS client holds no resources that
// need releasing.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	return nil
}

// checkClosed returns an error if the store is closed.
func (b *Backend) checkClosed() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return &omniarchive.Error{Kind: omniarchive.KindTransport, Op: "s3", Msg: "store is closed"}
	}
	return nil
}

// translateError converts S3 errors to omniarchive errors. A missing key
// on get becomes KindNotFound; everything else is KindTransport carrying
// the HTTP status and S3 error code.
func translateError(err error, op, bucket, key string) error {
	if err == nil {
		return nil
	}

	status := 0
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		status = re.HTTPStatusCode()
	}

	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return omniarchive.NewTransportError(op, bucket, key, http.StatusNotFound, omniarchive.CodeNoSuchBucket, err)
	}

	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return &omniarchive.Error{Kind: omniarchive.KindNotFound, Op: op, Bucket: bucket, Key: key, StatusCode: http.StatusNotFound, Code: omniarchive.CodeNoSuchKey, Err: err}
	}

	code := ""
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}

	switch code {
	case omniarchive.CodeNoSuchBucket:
		if status == 0 {
			status = http.StatusNotFound
		}
	case omniarchive.CodeNoSuchKey, "NotFound":
		return &omniarchive.Error{Kind: omniarchive.KindNotFound, Op: op, Bucket: bucket, Key: key, StatusCode: http.StatusNotFound, Code: omniarchive.CodeNoSuchKey, Err: err}
	case "":
		if status == http.StatusNotFound && key != "" && op == "get" {
			return &omniarchive.Error{Kind: omniarchive.KindNotFound, Op: op, Bucket: bucket, Key: key, StatusCode: status, Err: err}
		}
	}

	return omniarchive.NewTransportError(op, bucket, key, status, code, err)
}

// Ensure Backend implements omniarchive.ObjectStore
var _ omniarchive.ObjectStore = (*Backend)(nil)

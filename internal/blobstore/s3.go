package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"reimagine/internal/models"
)

// deleteObjectsBatch is the S3 limit for one DeleteObjects call.
const deleteObjectsBatch = 1000

// S3Config holds configuration for an S3-compatible blob store.
type S3Config struct {
	// Bucket is the target bucket name.
	Bucket string
	// Region is the AWS region. Required even for S3-compatible endpoints.
	Region string
	// Endpoint overrides the service endpoint (MinIO, LocalStack).
	Endpoint string
	// Prefix is prepended to every object key.
	Prefix string
	// UsePathStyle forces path-style addressing.
	UsePathStyle bool
	// AccessKeyID and SecretAccessKey select static credentials. When empty
	// the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps blobs as objects under <prefix>/<namespace>/<key>.
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

var _ BlobStore = (*S3Store)(nil)

// NewS3Store builds an AWS client from cfg and returns a store bound to its bucket.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	awsCfg, err := buildAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3Store(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Store(client s3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
	}
}

func buildAWSConfig(ctx context.Context, cfg S3Config) (aws.Config, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		return aws.Config{}, fmt.Errorf("region is required for S3 client")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// Put buffers the payload so the request carries a content length.
func (s *S3Store) Put(ctx context.Context, ns models.Namespace, key string, r io.Reader) (BlobPutResult, error) {
	return s.put(ctx, ns, key, r, nil)
}

// Create is a conditional put: If-None-Match "*" makes the bucket refuse a key
// that already exists.
func (s *S3Store) Create(ctx context.Context, ns models.Namespace, key string, r io.Reader) (BlobPutResult, error) {
	res, err := s.put(ctx, ns, key, r, aws.String("*"))
	if err != nil && isS3PreconditionFailed(err) {
		return BlobPutResult{}, ErrExists
	}
	return res, err
}

func (s *S3Store) put(ctx context.Context, ns models.Namespace, key string, r io.Reader, ifNoneMatch *string) (BlobPutResult, error) {
	var zero BlobPutResult
	if s == nil || s.client == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := validateTarget(ns, key); err != nil {
		return zero, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return zero, err
	}
	sum := sha256.Sum256(data)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(ns, key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		IfNoneMatch:   ifNoneMatch,
	})
	if err != nil {
		return zero, fmt.Errorf("put object: %w", err)
	}
	return BlobPutResult{SHA256: hex.EncodeToString(sum[:]), SizeBytes: int64(len(data)), Key: key}, nil
}

// Open streams the object body. The caller closes it.
func (s *S3Store) Open(ctx context.Context, ns models.Namespace, key string) (io.ReadCloser, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := validateTarget(ns, key); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ns, key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return out.Body, nil
}

// Stat issues a HEAD request for the object.
func (s *S3Store) Stat(ctx context.Context, ns models.Namespace, key string) (models.BlobInfo, error) {
	var info models.BlobInfo
	if s == nil || s.client == nil {
		return info, fmt.Errorf("blob store is not configured")
	}
	if err := validateTarget(ns, key); err != nil {
		return info, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ns, key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return info, ErrNotFound
		}
		return info, fmt.Errorf("head object: %w", err)
	}
	return models.BlobInfo{
		Namespace:  ns,
		Key:        key,
		SizeBytes:  aws.ToInt64(out.ContentLength),
		ModifiedAt: aws.ToTime(out.LastModified).UTC(),
	}, nil
}

// Delete removes the object. S3 already treats missing keys as success.
func (s *S3Store) Delete(ctx context.Context, ns models.Namespace, key string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := validateTarget(ns, key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ns, key)),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// List pages through every object under the namespace prefix.
func (s *S3Store) List(ctx context.Context, ns models.Namespace) ([]models.BlobInfo, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := validateNamespace(ns); err != nil {
		return nil, err
	}

	prefix := s.namespacePrefix(ns)
	out := []models.BlobInfo{}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if key == "" || strings.Contains(key, "/") {
				continue
			}
			out = append(out, models.BlobInfo{
				Namespace:  ns,
				Key:        key,
				SizeBytes:  aws.ToInt64(obj.Size),
				ModifiedAt: aws.ToTime(obj.LastModified).UTC(),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Purge deletes every object in the namespace in batches.
func (s *S3Store) Purge(ctx context.Context, ns models.Namespace) (int, error) {
	blobs, err := s.List(ctx, ns)
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for start := 0; start < len(blobs); start += deleteObjectsBatch {
		end := min(start+deleteObjectsBatch, len(blobs))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, blob := range blobs[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(s.objectKey(ns, blob.Key))})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("delete objects: %w", err))
			continue
		}
		removed += len(ids) - len(out.Errors)
		for _, failure := range out.Errors {
			errs = append(errs, fmt.Errorf("delete %s: %s", aws.ToString(failure.Key), aws.ToString(failure.Message)))
		}
	}
	return removed, errors.Join(errs...)
}

// Close is a no-op; the AWS client holds no closable resources.
func (s *S3Store) Close() error {
	return nil
}

func (s *S3Store) namespacePrefix(ns models.Namespace) string {
	if s.prefix == "" {
		return string(ns) + "/"
	}
	return s.prefix + "/" + string(ns) + "/"
}

func (s *S3Store) objectKey(ns models.Namespace, key string) string {
	return s.namespacePrefix(ns) + key
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
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

// isS3PreconditionFailed matches a refused conditional write. A concurrent
// conditional write to the same key reports ConditionalRequestConflict.
func isS3PreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}

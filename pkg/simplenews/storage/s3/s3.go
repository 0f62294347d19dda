package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tendant/simple-news/pkg/simplenews"
)

// ErrObjectNotFound is returned by Download for unknown keys
var ErrObjectNotFound = simplenews.ErrBlobNotFound

const (
	defaultRegion       = "us-east-1"
	defaultPresignTTL   = time.Hour
	defaultCacheControl = "public, max-age=86400"
)

// Config options for the S3 backend
type Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string // static credentials; the default AWS chain is used when empty
	SecretAccessKey string

	// Endpoint and UsePathStyle target MinIO and other S3-compatible services
	Endpoint     string
	UsePathStyle bool

	// KeyPrefix places every image under a folder of the bucket, e.g. "news/"
	KeyPrefix string

	// PresignTTL bounds the lifetime of preview URLs (default: 1h)
	PresignTTL time.Duration

	// PublicBaseURL serves images from a public bucket or CDN instead of
	// presigned URLs when set, e.g. https://cdn.example.com/news
	PublicBaseURL string

	// CacheControl is stored with each image (default: one day, public)
	CacheControl string

	CreateBucketIfNotExist bool
}

// Backend stores news images in an S3 bucket
type Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	cfg      Config
}

var _ simplenews.BlobStore = (*Backend)(nil)

// New connects to the bucket described by cfg
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = defaultPresignTTL
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = defaultCacheControl
	}
	cfg.KeyPrefix = strings.Trim(cfg.KeyPrefix, "/")

	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		presign:  s3.NewPresignClient(client),
		cfg:      cfg,
	}

	if cfg.CreateBucketIfNotExist {
		if err := b.ensureBucket(ctx); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func newClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// ensureBucket creates the bucket unless HeadBucket finds it
func (b *Backend) ensureBucket(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.cfg.Bucket)})
	if err == nil {
		return nil
	}
	if !isMissing(err) && !hasErrorCode(err, "NoSuchBucket", "BadRequest") {
		return fmt.Errorf("failed to check bucket %s: %w", b.cfg.Bucket, err)
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(b.cfg.Bucket)}
	if b.cfg.Region != defaultRegion {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.cfg.Region),
		}
	}
	if _, err := b.client.CreateBucket(ctx, in); err != nil && !hasErrorCode(err, "BucketAlreadyExists", "BucketAlreadyOwnedByYou") {
		return fmt.Errorf("failed to create bucket %s: %w", b.cfg.Bucket, err)
	}
	return nil
}

// objectKey maps a storage key onto the bucket layout
func (b *Backend) objectKey(key string) string {
	if b.cfg.KeyPrefix == "" {
		return key
	}
	return path.Join(b.cfg.KeyPrefix, key)
}

// Upload streams an image with the multipart upload manager
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params simplenews.UploadParams) error {
	in := &s3.PutObjectInput{
		Bucket:       aws.String(b.cfg.Bucket),
		Key:          aws.String(b.objectKey(params.ObjectKey)),
		Body:         reader,
		CacheControl: aws.String(b.cfg.CacheControl),
	}
	if params.MimeType != "" {
		in.ContentType = aws.String(params.MimeType)
	}

	if _, err := b.uploader.Upload(ctx, in); err != nil {
		return fmt.Errorf("failed to upload image %s: %w", params.ObjectKey, err)
	}
	return nil
}

// GetPreviewURL returns the public URL when configured, otherwise a presigned
// URL that renders inline
func (b *Backend) GetPreviewURL(ctx context.Context, key string) (string, error) {
	if b.cfg.PublicBaseURL != "" {
		return strings.TrimSuffix(b.cfg.PublicBaseURL, "/") + "/" + b.objectKey(key), nil
	}

	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(b.cfg.Bucket),
		Key:                        aws.String(b.objectKey(key)),
		ResponseContentDisposition: aws.String("inline"),
	}, s3.WithPresignExpires(b.cfg.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign image %s: %w", key, err)
	}
	return req.URL, nil
}

// Download opens the image body. The caller closes it.
func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if isMissing(err) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download image %s: %w", key, err)
	}
	return out.Body, nil
}

// Delete removes the image. A missing key is not an error.
func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil && !isMissing(err) {
		return fmt.Errorf("failed to delete image %s: %w", key, err)
	}
	return nil
}

// isMissing reports whether err says the key or bucket does not exist
func isMissing(err error) bool {
	if err == nil {
		return false
	}
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound) || errors.As(err, &noSuchBucket) ||
		hasErrorCode(err, "NoSuchKey", "NotFound")
}

// hasErrorCode reports whether err carries one of the given service error codes
func hasErrorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}

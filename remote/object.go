package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	cverrors "github.com/tamirms/compactvec/errors"
)

// MinioFetcher reads objects from MinIO or any S3-compatible endpoint.
type MinioFetcher struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioFetcher returns a fetcher for bucket. prefix is prepended to every
// object name.
func NewMinioFetcher(client *minio.Client, bucket, prefix string) *MinioFetcher {
	return &MinioFetcher{client: client, bucket: bucket, prefix: prefix}
}

func (f *MinioFetcher) Fetch(ctx context.Context, name string) (io.ReadCloser, error) {
	key := path.Join(f.prefix, name)
	obj, err := f.client.GetObject(ctx, f.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, minioError(err, key)
	}
	// GetObject is lazy; Stat surfaces a missing key before the first read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, minioError(err, key)
	}
	return obj, nil
}

func minioError(err error, key string) error {
	code := minio.ToErrorResponse(err).Code
	if code == "NoSuchKey" || code == "NotFound" || code == "NoSuchBucket" {
		return fmt.Errorf("%w: %s", cverrors.ErrNotFound, key)
	}
	return err
}

// S3API is the part of the S3 client the fetcher uses. *s3.Client
// implements it.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher reads objects from Amazon S3.
type S3Fetcher struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Fetcher returns a fetcher for bucket.
func NewS3Fetcher(client S3API, bucket, prefix string) *S3Fetcher {
	return &S3Fetcher{client: client, bucket: bucket, prefix: prefix}
}

// NewDefaultS3Fetcher builds the S3 client from the default AWS
// configuration chain (environment, shared config, instance role).
func NewDefaultS3Fetcher(ctx context.Context, bucket, prefix string, optFns ...func(*config.LoadOptions) error) (*S3Fetcher, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3Fetcher(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, name string) (io.ReadCloser, error) {
	key := path.Join(f.prefix, name)
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var nf *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &nf) {
			return nil, fmt.Errorf("%w: s3://%s/%s", cverrors.ErrNotFound, f.bucket, key)
		}
		return nil, err
	}
	return out.Body, nil
}

// ParseURL maps a location to a fetcher and an object name:
//
//	s3://bucket/key               Amazon S3, default AWS configuration
//	minio://host:port/bucket/key  MinIO over HTTP, credentials from MINIO_* env
//	minios://host:port/bucket/key MinIO over HTTPS
//	anything else                 a local file path
func ParseURL(ctx context.Context, location string) (Fetcher, string, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain paths, including Windows drive letters.
		dir, file := filepath.Split(location)
		return LocalFetcher{Root: dir}, file, nil
	}
	switch u.Scheme {
	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, "", fmt.Errorf("invalid s3 location %q", location)
		}
		f, err := NewDefaultS3Fetcher(ctx, u.Host, "")
		if err != nil {
			return nil, "", err
		}
		return f, key, nil
	case "minio", "minios":
		bucket, key, ok := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		if u.Host == "" || !ok || bucket == "" || key == "" {
			return nil, "", fmt.Errorf("invalid minio location %q", location)
		}
		client, err := minio.New(u.Host, &minio.Options{
			Creds:  credentials.NewEnvMinio(),
			Secure: u.Scheme == "minios",
		})
		if err != nil {
			return nil, "", fmt.Errorf("minio client: %w", err)
		}
		return NewMinioFetcher(client, bucket, ""), key, nil
	case "file":
		dir, file := filepath.Split(u.Path)
		return LocalFetcher{Root: dir}, file, nil
	default:
		return nil, "", fmt.Errorf("unsupported location scheme %q", u.Scheme)
	}
}

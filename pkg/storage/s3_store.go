package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"bookportal/pkg/domain"
)

// S3Options configures an S3Store. Endpoint is optional and only needed for
// S3-compatible hosted storage that is not AWS itself.
type S3Options struct {
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UsePathStyle bool
}

// S3Store implements BlobStore using the AWS SDK.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewS3Store builds an S3 client, with static credentials when AccessKey is set.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	// Without static keys the SDK's default chain (env, shared config, IMDS) applies.
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  opts.Bucket,
	}, nil
}

// List pages through ListObjectsV2 until ListPageLimit objects are collected.
func (s *S3Store) List(ctx context.Context, prefix string) ([]domain.StorageObject, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(ListPageLimit),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	out := make([]domain.StorageObject, 0, 64)
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() && len(out) < ListPageLimit {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &domain.StoreError{Op: "list", Key: prefix, Err: err}
		}
		for _, obj := range page.Contents {
			out = append(out, domain.StorageObject{
				Name:         aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
			if len(out) >= ListPageLimit {
				break
			}
		}
	}
	sortObjects(out)
	return out, nil
}

// Get streams an object body. The caller closes it.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			err = domain.ErrFileNotFound
		}
		return nil, &domain.StoreError{Op: "get", Key: key, Err: err}
	}
	return obj.Body, nil
}

// Put uploads an object.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return &domain.StoreError{Op: "put", Key: key, Err: err}
	}
	return nil
}

// Delete removes an object.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return &domain.StoreError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// PresignGet generates a pre-signed GET URL.
func (s *S3Store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", &domain.StoreError{Op: "presign", Key: key, Err: err}
	}
	return req.URL, nil
}

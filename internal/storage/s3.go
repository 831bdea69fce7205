package storage

import (
	"PanShare/config"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store implements Store on AWS S3 or an S3-compatible endpoint such as R2.
type S3Store struct {
	client *s3.Client
}

// NewS3 builds an S3 client from static credentials and checks the bucket.
func NewS3(ctx context.Context, cfg config.Config) (*S3Store, error) {
	awsCfg := aws.Config{
		Credentials: credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Region:      cfg.S3Region,
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.BucketName)}); err != nil {
		return nil, fmt.Errorf("access bucket %q: %w", cfg.BucketName, err)
	}
	slog.Info("s3 ready", "bucket", cfg.BucketName, "endpoint", cfg.S3Endpoint, "region", cfg.S3Region)
	return &S3Store{client: client}, nil
}

func (s *S3Store) PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts PutOptions) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(object),
		Body:          reader,
		ContentLength: aws.Int64(size),
	}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}
	_, err := s.client.PutObject(ctx, in)
	return err
}

func (s *S3Store) GetObject(ctx context.Context, bucket, object string) (io.ReadCloser, ObjectInfo, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	})
	if err != nil {
		return nil, ObjectInfo{}, s3Err(err)
	}
	return out.Body, ObjectInfo{
		ObjectName:  object,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

func (s *S3Store) StatObject(ctx context.Context, bucket, object string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	})
	if err != nil {
		return ObjectInfo{}, s3Err(err)
	}
	return ObjectInfo{
		ObjectName:  object,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

func (s *S3Store) RemoveObject(ctx context.Context, bucket, object string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	})
	return err
}

func (s *S3Store) PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration) (string, error) {
	req, err := s3.NewPresignClient(s.client).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func s3Err(err error) error {
	var noKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrObjectNotFound, err)
	}
	return err
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aifans/aifans/app/models"
	"github.com/aifans/aifans/internal/pkg/env"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"
)

// OSSConfig holds bucket credentials for the S3-compatible OSS endpoint.
type OSSConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	AccessKeySecret string
}

func OSSConfigFromEnv() OSSConfig {
	return OSSConfig{
		Endpoint:        env.GetEnv("OSS_ENDPOINT", ""),
		Region:          env.GetEnv("OSS_REGION", "oss-cn-hangzhou"),
		Bucket:          env.GetEnv("OSS_BUCKET", ""),
		AccessKeyID:     env.GetEnv("OSS_ACCESS_KEY_ID", ""),
		AccessKeySecret: env.GetEnv("OSS_ACCESS_KEY_SECRET", ""),
	}
}

func (c OSSConfig) Validate() error {
	if c.Endpoint == "" || c.Bucket == "" || c.AccessKeyID == "" || c.AccessKeySecret == "" {
		return errors.New("storage: OSS_ENDPOINT, OSS_BUCKET, OSS_ACCESS_KEY_ID and OSS_ACCESS_KEY_SECRET are required")
	}
	return nil
}

type OSSBackend struct {
	client *s3.Client
	bucket string
}

func NewOSSBackend(ctx context.Context, cfg OSSConfig) (*OSSBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load OSS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = false
	})
	log.Infof("[Storage] OSS backend ready for bucket %s", cfg.Bucket)
	return &OSSBackend{client: client, bucket: cfg.Bucket}, nil
}

func (b *OSSBackend) Name() string { return models.STORAGE_BACKEND_OSS }

func (b *OSSBackend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := b.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	return nil
}

func (b *OSSBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("storage: get %s: %w", key, err)
	}
	return out.Body, nil
}

func (b *OSSBackend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"quackscribe/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// S3Storage archives raw downloaded audio. Purely optional; every call is
// best-effort and never blocks request handling.
type S3Storage struct {
	client *s3.Client
	bucket string
}

func NewS3Storage(endpoint, accessKey, secretKey, bucket string) (*S3Storage, error) {
	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:           endpoint,
				SigningRegion: "us-east-1",
			}, nil
		})

	cfg, err := config.LoadDefaultConfig(
		context.TODO(),
		config.WithEndpointResolverWithOptions(customResolver),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
		config.WithRegion("us-east-1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	logger.Info("S3 archive initialized", zap.String("bucket", bucket))

	return &S3Storage{
		client: client,
		bucket: bucket,
	}, nil
}

// Archive uploads the audio bytes under a date-partitioned key.
func (s *S3Storage) Archive(ctx context.Context, contentID, extension string, data []byte, contentType string) error {
	key := s.archiveKey(contentID, extension)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to archive audio: %w", err)
	}

	logger.Debug("Audio archived",
		zap.String("key", key),
		zap.Int("size", len(data)))

	return nil
}

func (s *S3Storage) archiveKey(contentID, extension string) string {
	date := time.Now().Format("2006/01/02")
	return filepath.Join("audio", date, contentID+extension)
}

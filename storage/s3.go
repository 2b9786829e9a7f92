package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"ktm-timetables/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// ObjectPutter is the part of the S3 API the mirror needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client creates an S3 client for an S3-compatible endpoint.
func NewS3Client(cfg *config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3Key, cfg.S3Secret, "")),
	}
	if cfg.S3URL != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               cfg.S3URL,
					SigningRegion:     cfg.S3Region,
					HostnameImmutable: true,
				}, nil
			},
		)
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), opts...)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// Mirror copies persisted files to a bucket under a key prefix.
type Mirror struct {
	Client ObjectPutter
	Bucket string
	Prefix string
	Logger *zap.Logger
}

// NewMirror creates a Mirror.
func NewMirror(client ObjectPutter, bucket, prefix string, logger *zap.Logger) *Mirror {
	return &Mirror{Client: client, Bucket: bucket, Prefix: prefix, Logger: logger}
}

// Key returns the object key of a local file.
func (m *Mirror) Key(file string) string {
	return path.Join(m.Prefix, filepath.Base(file))
}

// Upload puts every file into the bucket. A failed upload is logged and the
// remaining files are still tried; the number of uploaded files is returned.
func (m *Mirror) Upload(ctx context.Context, files []string) (int, error) {
	uploaded := 0
	var firstErr error
	for _, file := range files {
		if err := m.UploadFile(ctx, file); err != nil {
			m.Logger.Warn("S3 upload failed", zap.String("file", file), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		uploaded++
	}
	return uploaded, firstErr
}

// UploadFile puts a single file into the bucket.
func (m *Mirror) UploadFile(ctx context.Context, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	key := m.Key(file)
	_, err = m.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/vnd.apache.parquet"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", m.Bucket, key, err)
	}
	m.Logger.Debug("File mirrored", zap.String("key", key))
	return nil
}

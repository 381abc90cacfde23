package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/parleyhq/parley/internal/pkg/env"
)

// S3Writer implements Writer against an S3-compatible bucket.
type S3Writer struct {
	client *s3.Client
	bucket string
}

// NewS3WriterFromEnv builds the writer from S3_* configuration.
func NewS3WriterFromEnv(ctx context.Context) (*S3Writer, error) {
	accessKey := env.GetEnv("S3_ACCESS_KEY_ID", "")
	secretKey := env.GetEnv("S3_SECRET_ACCESS_KEY", "")
	bucket := env.GetEnv("S3_BUCKET_NAME", "")
	region := env.GetEnv("S3_REGION", "us-east-1")
	endpoint := env.GetEnv("S3_ENDPOINT_URL", "")

	if accessKey == "" || secretKey == "" || bucket == "" {
		return nil, errors.New("S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY and S3_BUCKET_NAME are required when transcript archiving is enabled")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			// S3-compatible services generally need path-style URLs.
			o.UsePathStyle = true
		}
	})

	return &S3Writer{client: client, bucket: bucket}, nil
}

func (w *S3Writer) Write(ctx context.Context, key string, body []byte) error {
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	return err
}

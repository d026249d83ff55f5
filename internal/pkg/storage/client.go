package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/proshotai/proshot/internal/pkg/env"
)

// Client wraps the S3 client for image uploads and presigned downloads.
type Client struct {
	s3Client *s3.Client
	presign  *s3.PresignClient
	config   *Config
}

// NewClient creates a new S3 storage client
func NewClient(cfg *Config) (*Client, error) {
	awsConfig, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible services (Backblaze B2, MinIO) need path style
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	client := &Client{
		s3Client: s3Client,
		presign:  s3.NewPresignClient(s3Client),
		config:   cfg,
	}

	if err := client.testConnection(); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[Storage] S3 client initialisiert (Region: %s)", cfg.Region)
	return client, nil
}

// NewClientFromEnv loads the configuration from the environment and connects.
func NewClientFromEnv() (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return NewClient(cfg)
}

// testConnection checks that the primary upload bucket is reachable.
func (c *Client) testConnection() error {
	ctx := context.Background()
	bucketName := c.config.BucketName(BucketProductImages)

	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		if env.IsProduction() {
			return fmt.Errorf("bucket %s not accessible: %w", bucketName, err)
		}
		log.Warnf("[Storage] Bucket %s nicht gefunden, wird angelegt", bucketName)
		return c.createBuckets(ctx)
	}
	return nil
}

// createBuckets provisions all purpose buckets (dev/staging only).
func (c *Client) createBuckets(ctx context.Context) error {
	for _, purpose := range []string{BucketProductImages, BucketReferenceImages, BucketGeneratedImages} {
		bucketName := c.config.BucketName(purpose)
		_, err := c.s3Client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(bucketName),
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
		}
		log.Infof("[Storage] Bucket %s angelegt", bucketName)
	}
	return nil
}

// Upload streams one object into the bucket of the given purpose and returns
// its object key.
func (c *Client) Upload(ctx context.Context, purpose, objectKey string, body io.Reader, contentType string) (string, error) {
	bucketName := c.config.BucketName(purpose)

	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucketName),
		Key:         aws.String(objectKey),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to s3://%s/%s: %w", bucketName, objectKey, err)
	}

	log.Debugf("[Storage] Upload abgeschlossen: s3://%s/%s", bucketName, objectKey)
	return objectKey, nil
}

// PresignGet returns a temporary download URL for an object.
func (c *Client) PresignGet(ctx context.Context, purpose, objectKey string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	bucketName := c.config.BucketName(purpose)

	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign s3://%s/%s: %w", bucketName, objectKey, err)
	}
	return req.URL, nil
}

// Download fetches an object, used to pull generated output from the model's
// delivery URL mirror into our own bucket.
func (c *Client) Download(ctx context.Context, purpose, objectKey string) (io.ReadCloser, error) {
	bucketName := c.config.BucketName(purpose)

	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download s3://%s/%s: %w", bucketName, objectKey, err)
	}
	return out.Body, nil
}

// Delete removes an object, used when an account is removed.
func (c *Client) Delete(ctx context.Context, purpose, objectKey string) error {
	bucketName := c.config.BucketName(purpose)

	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete s3://%s/%s: %w", bucketName, objectKey, err)
	}
	return nil
}

package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/proshotai/proshot/internal/pkg/env"
)

// Bucket purposes. Each purpose maps to its own bucket so lifecycle rules
// and access policies can differ between user uploads and generated output.
const (
	BucketProductImages   = "product-images"
	BucketReferenceImages = "reference-images"
	BucketGeneratedImages = "generated-images"
)

// DefaultPresignTTL is how long presigned GET URLs stay valid. It has to
// outlive a full generation round trip, the model fetches inputs by URL.
const DefaultPresignTTL = 30 * time.Minute

// Config holds S3 configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	EndpointURL     string // Optional for S3-compatible services
	BucketPrefix    string // Optional per-environment bucket prefix
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-west-001"),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		BucketPrefix:    env.GetEnv("S3_BUCKET_PREFIX", ""),
	}

	if config.AccessKeyID == "" {
		return nil, errors.New("S3_ACCESS_KEY_ID is required")
	}
	if config.SecretAccessKey == "" {
		return nil, errors.New("S3_SECRET_ACCESS_KEY is required")
	}

	return config, nil
}

// BucketName resolves a bucket purpose to its concrete bucket name,
// including the optional per-environment prefix.
func (c *Config) BucketName(purpose string) string {
	if c.BucketPrefix == "" {
		return purpose
	}
	return fmt.Sprintf("%s-%s", c.BucketPrefix, purpose)
}

// ObjectKey generates a standardized S3 object key for an image.
// Format: YYYY/MM/UUID.ext
func (c *Config) ObjectKey(imageUUID, fileExtension string, year, month int) string {
	return fmt.Sprintf("%04d/%02d/%s%s", year, month, imageUUID, fileExtension)
}

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucketName(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, "product-images", cfg.BucketName(BucketProductImages))

	cfg.BucketPrefix = "staging"
	assert.Equal(t, "staging-generated-images", cfg.BucketName(BucketGeneratedImages))
}

func TestObjectKey(t *testing.T) {
	cfg := &Config{}
	key := cfg.ObjectKey("0198a3df-7c2b-7e11-b3aa-111111111111", ".webp", 2026, 3)
	assert.Equal(t, "2026/03/0198a3df-7c2b-7e11-b3aa-111111111111.webp", key)
}

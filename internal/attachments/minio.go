package attachments

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Presigned URLs are valid between one second and seven days.
const (
	minExpiry = time.Second
	maxExpiry = 7 * 24 * time.Hour
)

// MinioConfig locates the attachment bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
}

// MinioSigner presigns GET requests against an S3 compatible bucket.
type MinioSigner struct {
	client *minio.Client
	bucket string
}

// NewMinioSigner creates a signer. Setting Region avoids a bucket location
// lookup on first use.
func NewMinioSigner(cfg MinioConfig) (*MinioSigner, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object client: %w", err)
	}
	return &MinioSigner{client: client, bucket: cfg.Bucket}, nil
}

// SignURL implements URLSigner.
func (s *MinioSigner) SignURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	expiry = min(max(expiry, minExpiry), maxExpiry)
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

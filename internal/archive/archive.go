// Package archive uploads finished scan reports to object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archiver stores report objects under a key.
type Archiver interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Config describes an S3-compatible bucket. An empty Endpoint disables
// archiving.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Prefix is prepended to every object key.
	Prefix string
}

// Enabled reports whether an endpoint and bucket are configured.
func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// New returns a MinioArchiver when cfg is enabled and a NopArchiver otherwise.
func New(cfg Config) (Archiver, error) {
	if !cfg.Enabled() {
		return NopArchiver{}, nil
	}
	return NewMinioArchiver(cfg)
}

// MinioArchiver writes objects with minio-go.
type MinioArchiver struct {
	mc     *minio.Client
	bucket string
	prefix string
}

func NewMinioArchiver(cfg Config) (*MinioArchiver, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioArchiver{mc: mc, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Key returns the full object key for key.
func (a *MinioArchiver) Key(key string) string { return a.prefix + key }

func (a *MinioArchiver) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := a.mc.PutObject(ctx, a.bucket, a.Key(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", a.bucket, a.Key(key), err)
	}
	return nil
}

// NopArchiver discards everything.
type NopArchiver struct{}

func (NopArchiver) Put(context.Context, string, []byte, string) error { return nil }

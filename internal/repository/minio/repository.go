// Package minio stores message attachments in a MinIO bucket.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/leesangbok1/vkc-sub001/internal/domain/repository"
	"github.com/leesangbok1/vkc-sub001/pkg/logger"
)

// Config represents MinIO repository configuration
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
}

// Repository implements repository.AttachmentRepository using MinIO
type Repository struct {
	client *minio.Client
	config *Config
	logger *logger.Logger

	mu          sync.Mutex
	bucketReady bool
}

var _ repository.AttachmentRepository = (*Repository)(nil)

// NewRepository creates a new MinIO repository
func NewRepository(cfg *Config, log *logger.Logger) (*Repository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}
	if log == nil {
		log = logger.NewNop()
	}

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Repository{
		client: minioClient,
		config: cfg,
		logger: log,
	}, nil
}

// objectKey cleans a caller-supplied object name: no leading slash, no empty or dot segments
func objectKey(name string) string {
	parts := strings.Split(name, "/")
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || p == "." || p == ".." {
			continue
		}
		clean = append(clean, p)
	}
	return strings.Join(clean, "/")
}

// EnsureBucket creates the bucket if it doesn't exist
func (r *Repository) EnsureBucket(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bucketReady {
		return nil
	}

	bucketName := r.config.BucketName
	exists, err := r.client.BucketExists(ctx, bucketName)
	if err != nil {
		r.logger.Error("Failed to check bucket existence",
			logger.String("bucket", bucketName),
			logger.Error(err),
		)
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		r.logger.Info("Creating bucket", logger.String("bucket", bucketName))
		if err := r.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	r.bucketReady = true
	return nil
}

// Upload stores an attachment and returns its size
func (r *Repository) Upload(ctx context.Context, objectName string, data []byte, contentType string) (int64, error) {
	key := objectKey(objectName)
	if key == "" {
		return 0, fmt.Errorf("object name cannot be empty")
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("attachment %s is empty", key)
	}

	if err := r.EnsureBucket(ctx); err != nil {
		return 0, err
	}

	r.logger.Debug("Uploading attachment",
		logger.String("bucket", r.config.BucketName),
		logger.String("object", key),
		logger.Int("size", len(data)),
		logger.String("content_type", contentType),
	)

	info, err := r.client.PutObject(ctx, r.config.BucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		r.logger.Error("Failed to upload attachment",
			logger.String("object", key),
			logger.Error(err),
		)
		return 0, fmt.Errorf("failed to upload object: %w", err)
	}

	return info.Size, nil
}

// GetObject downloads an attachment
func (r *Repository) GetObject(ctx context.Context, objectName string) ([]byte, error) {
	key := objectKey(objectName)

	obj, err := r.client.GetObject(ctx, r.config.BucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object data: %w", err)
	}

	r.logger.Debug("Attachment retrieved",
		logger.String("object", key),
		logger.Int("size", len(data)),
	)
	return data, nil
}

// GetObjectURL returns the URL for accessing an attachment
func (r *Repository) GetObjectURL(objectName string) string {
	protocol := "http"
	if r.config.UseSSL {
		protocol = "https"
	}

	segs := strings.Split(objectKey(objectName), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, r.config.Endpoint, r.config.BucketName, strings.Join(segs, "/"))
}

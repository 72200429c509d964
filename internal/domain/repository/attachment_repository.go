package repository

import "context"

// AttachmentRepository stores binary payloads of IMAGE and FILE messages
type AttachmentRepository interface {
	// Upload stores data under objectName and returns its size
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (int64, error)

	// GetObject downloads an attachment
	GetObject(ctx context.Context, objectName string) ([]byte, error)

	// GetObjectURL returns the URL for accessing an attachment
	GetObjectURL(objectName string) string
}

package minio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, useSSL bool) *Repository {
	t.Helper()
	repo, err := NewRepository(&Config{
		Endpoint:        "localhost:9000",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		UseSSL:          useSSL,
		BucketName:      "attachments",
	}, nil)
	require.NoError(t, err)
	return repo
}

func TestNewRepository_NilConfig(t *testing.T) {
	_, err := NewRepository(nil, nil)
	assert.EqualError(t, err, "config cannot be nil")

	_, err = NewRepository(&Config{Endpoint: "localhost:9000"}, nil)
	assert.EqualError(t, err, "bucket name cannot be empty")
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "r1/k1/photo.png", want: "r1/k1/photo.png"},
		{name: "leading slash", in: "/r1/photo.png", want: "r1/photo.png"},
		{name: "dot segments", in: "r1/../k1/./a.txt", want: "r1/k1/a.txt"},
		{name: "double slash", in: "r1//a.txt", want: "r1/a.txt"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, objectKey(tt.in))
		})
	}
}

func TestGetObjectURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9000/attachments/r1/k1/photo.png",
		newTestRepository(t, false).GetObjectURL("r1/k1/photo.png"))
	assert.Equal(t, "https://localhost:9000/attachments/r1/my%20file.pdf",
		newTestRepository(t, true).GetObjectURL("r1/my file.pdf"))
}

func TestUpload_Validation(t *testing.T) {
	repo := newTestRepository(t, false)

	_, err := repo.Upload(context.Background(), "", []byte("x"), "text/plain")
	assert.EqualError(t, err, "object name cannot be empty")

	_, err = repo.Upload(context.Background(), "r1/a.txt", nil, "text/plain")
	assert.EqualError(t, err, "attachment r1/a.txt is empty")
}

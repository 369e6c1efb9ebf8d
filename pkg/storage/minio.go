package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore keeps complaint attachments in a MinIO bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

func Connect(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*ObjectStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to minio: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &ObjectStore{client: client, bucket: bucket}, nil
}

// Put streams one attachment into the bucket and returns the stored object
// name. Object names never reuse the client-supplied filename.
func (s *ObjectStore) Put(ctx context.Context, originalName, contentType string, size int64, r io.Reader) (string, error) {
	objectName := UniqueObjectName(originalName)

	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store object: %w", err)
	}

	return objectName, nil
}

// UniqueObjectName builds "<unix-ms>-<16 hex>.<ext>" from the original
// filename, keeping only its extension.
func UniqueObjectName(originalName string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// rand.Read on a healthy system does not fail; timestamp still
		// keeps names unique enough to not overwrite.
		copy(buf, []byte("00000000"))
	}

	ext := strings.TrimPrefix(path.Ext(originalName), ".")
	name := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
	if ext != "" {
		name = name + "." + ext
	}
	return name
}

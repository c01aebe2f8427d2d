package storage

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/paperhub/backend-go/internal/config"
)

// ObjectStore 封装MinIO，存放用户上传的原始文件
type ObjectStore struct {
	client *minio.Client
	bucket string
	useSSL bool
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.\-]`)

// NewObjectStore 创建MinIO对象存储
func NewObjectStore(cfg config.ObjectStorageConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &ObjectStore{
		client: client,
		bucket: cfg.Bucket,
		useSSL: cfg.UseSSL,
	}, nil
}

// EnsureBucket 确保bucket存在
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// ObjectKey 生成对象键：{userID}/{时间戳}-{净化后的文件名}
func (s *ObjectStore) ObjectKey(userID uint, filename string) string {
	sanitized := unsafeNameChars.ReplaceAllString(filename, "_")
	return fmt.Sprintf("%d/%d-%s", userID, time.Now().UnixMilli(), sanitized)
}

// Upload 上传文件，返回对象URL
func (s *ObjectStore) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("minio upload failed: %w", err)
	}

	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.client.EndpointURL().Host, s.bucket, key), nil
}

// Remove 删除对象
func (s *ObjectStore) Remove(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// Ready 检查客户端是否可用
func (s *ObjectStore) Ready() bool {
	return s != nil && s.client != nil
}

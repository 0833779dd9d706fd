package service

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"path/filepath"
	"time"

	"ComicGen-server/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore 对象存储能力
type ObjectStore interface {
	Configured() bool
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, localPath, key string) (string, error)
	SignForDisplay(ctx context.Context, key string) (string, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// MinioStore 基于 MinIO 的实现。endpoint 未配置时降级为不可用，
// 调用方回落到本地文件直出。
type MinioStore struct {
	client      *minio.Client
	bucket      string
	signTTL     time.Duration
	signTimeout time.Duration
}

func NewMinioStore(cfg *config.Config) *MinioStore {
	mc := cfg.MinIO
	if mc.Endpoint == "" || mc.Bucket == "" {
		log.Println("MinIO 未配置，产物仅存本地")
		return nil
	}
	client, err := minio.New(mc.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(mc.AccessKey, mc.SecretKey, ""),
		Secure: mc.UseSSL,
	})
	if err != nil {
		log.Printf("MinIO 初始化失败，降级为本地存储: %v", err)
		return nil
	}
	log.Println("MinIO 连接成功")
	return &MinioStore{
		client:      client,
		bucket:      mc.Bucket,
		signTTL:     cfg.SignTTL(),
		signTimeout: cfg.SignTimeoutDuration(),
	}
}

func (s *MinioStore) Configured() bool {
	return s != nil && s.client != nil
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("检查 Bucket 失败: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("创建 Bucket 失败: %w", err)
		}
		log.Printf("Bucket '%s' 已创建", s.bucket)
	}
	return nil
}

func (s *MinioStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Put 上传本地文件，返回对象 key（不是签名 URL）
func (s *MinioStore) Put(ctx context.Context, localPath, key string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}
	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentTypeFor(key),
	})
	if err != nil {
		return "", fmt.Errorf("上传 MinIO 失败: %w", err)
	}
	log.Printf("文件已上传: %s", key)
	return key, nil
}

// SignForDisplay 生成短时效签名 URL。签名调用带客户端超时，
// 超时以错误上抛而不是无限阻塞。
func (s *MinioStore) SignForDisplay(ctx context.Context, key string) (string, error) {
	signCtx, cancel := context.WithTimeout(ctx, s.signTimeout)
	defer cancel()

	exists, err := s.Exists(signCtx, key)
	if err != nil {
		return "", fmt.Errorf("检查对象失败: %w", err)
	}
	if !exists {
		return "", fmt.Errorf("对象不存在: %s", key)
	}
	presigned, err := s.client.PresignedGetObject(signCtx, s.bucket, key, s.signTTL, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("生成签名 URL 失败: %w", err)
	}
	return presigned.String(), nil
}

func (s *MinioStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return keys, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func contentTypeFor(name string) string {
	switch filepath.Ext(name) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	}
	return "application/octet-stream"
}

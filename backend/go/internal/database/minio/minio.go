package minio

import (
	"DocRAG/backend/go/internal/config"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Connect 创建 MinIO 客户端，并确保归档所需的存储桶存在。
func Connect(ctx context.Context, cfg config.MinIOConfig) (*minio.Client, error) {
	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""), // 静态凭证。
		Secure: cfg.Secure,                                                // 是否使用 HTTPS。
	})
	if err != nil {
		return nil, fmt.Errorf("无法创建 MinIO 客户端: %w", err)
	}

	exists, err := c.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("MinIO 初始化健康检查失败: %w", err)
	}
	if !exists {
		if err := c.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建存储桶 '%s' 失败: %w", cfg.Bucket, err)
		}
	}
	return c, nil
}

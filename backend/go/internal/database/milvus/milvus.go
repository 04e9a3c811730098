package milvus

import (
	"DocRAG/backend/go/internal/config"
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// 分块集合的字段名。
const (
	FieldID        = "id"
	FieldContent   = "content"
	FieldFilename  = "filename"
	FieldChunkSize = "chunk_size"
	FieldEmbedding = "embedding"
)

// Milvus VarChar 字段的最大长度。
const (
	maxIDLength       = 64
	maxContentLength  = 65535
	maxFilenameLength = 1024
)

// Connect 使用配置中的地址创建 Milvus 客户端。返回的客户端由调用方负责关闭。
func Connect(ctx context.Context, cfg config.MilvusConfig) (client.Client, error) {
	c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("无法连接到 Milvus: %w", err)
	}
	return c, nil
}

// ChunkSchema 返回分块集合的 Schema。
func ChunkSchema(collection string, dim int) *entity.Schema {
	return entity.NewSchema().
		WithName(collection).
		WithDescription("document chunks with embeddings").
		WithField(entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxIDLength).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(FieldContent).WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxContentLength)).
		WithField(entity.NewField().WithName(FieldFilename).WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxFilenameLength)).
		WithField(entity.NewField().WithName(FieldChunkSize).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(FieldEmbedding).WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dim)))
}

// EnsureCollection 确保分块集合存在、带有 IP 度量的 FLAT 索引，并已加载到内存。
func EnsureCollection(ctx context.Context, c client.Client, cfg config.MilvusConfig) error {
	exists, err := c.HasCollection(ctx, cfg.Collection)
	if err != nil {
		return fmt.Errorf("检查集合是否存在时出错: %w", err)
	}
	if !exists {
		if err := c.CreateCollection(ctx, ChunkSchema(cfg.Collection, cfg.Dim), entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("创建集合失败: %w", err)
		}
		// 向量均已归一化，内积即余弦相似度
		idx, err := entity.NewIndexFlat(entity.IP)
		if err != nil {
			return fmt.Errorf("构建索引失败: %w", err)
		}
		if err := c.CreateIndex(ctx, cfg.Collection, FieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("为字段 '%s' 创建索引失败: %w", FieldEmbedding, err)
		}
	}

	if err := c.LoadCollection(ctx, cfg.Collection, false); err != nil {
		return fmt.Errorf("加载 Milvus 集合 '%s' 失败: %w", cfg.Collection, err)
	}
	return nil
}

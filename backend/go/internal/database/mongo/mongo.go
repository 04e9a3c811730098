package mongo

import (
	"DocRAG/backend/go/internal/config"
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// serverSelectionTimeout 限制在连接池耗尽或服务不可达时等待可用连接的时间。
const serverSelectionTimeout = 5 * time.Second

// ClientOptions 根据配置构建 MongoDB 客户端选项。
func ClientOptions(cfg config.MongoConfig) *options.ClientOptions {
	// 应用连接URI。
	opts := options.Client().
		ApplyURI(cfg.Address).
		SetServerSelectionTimeout(serverSelectionTimeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	// 如果配置了用户名和密码，则设置认证信息。
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}
	return opts
}

// Connect 建立到 MongoDB 的连接并立即 Ping 一次，失败时断开连接并返回错误。
// 返回的客户端由调用方持有，并在退出时调用 Disconnect。
func Connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, ClientOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("无法连接到 MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("无法 Ping MongoDB: %w", err)
	}
	return client, nil
}

// Collection 返回配置中存放分块记录的集合。
func Collection(client *mongo.Client, cfg config.MongoConfig) *mongo.Collection {
	return client.Database(cfg.Database).Collection(cfg.Collection)
}

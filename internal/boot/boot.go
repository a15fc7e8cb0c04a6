// Package boot wires configuration into the long-lived collaborators shared by
// the worker and the operator API.
package boot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Slade66/media-dedup-fetcher/internal/catalog"
	"github.com/Slade66/media-dedup-fetcher/internal/client"
	"github.com/Slade66/media-dedup-fetcher/internal/config"
	"github.com/Slade66/media-dedup-fetcher/internal/downloader"
	"github.com/Slade66/media-dedup-fetcher/internal/fetcher"
	"github.com/Slade66/media-dedup-fetcher/internal/fingerprint"
	"github.com/Slade66/media-dedup-fetcher/internal/observer"
	"github.com/Slade66/media-dedup-fetcher/internal/queue"
	"github.com/Slade66/media-dedup-fetcher/internal/storage"
	"github.com/Slade66/media-dedup-fetcher/internal/uploader"
)

const pingTimeout = 5 * time.Second

// StartupError 表示进程启动时某个外部依赖不可用，进程无法继续
type StartupError struct {
	Component string
	Err       error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup: %s unavailable: %v", e.Component, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// OpenRedis 连接 Redis 并 Ping 一次
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, &StartupError{Component: "redis", Err: err}
	}
	return rdb, nil
}

// OpenCatalog 按配置打开目录存储并检查连通性，返回的 closer 用于退出时释放连接
func OpenCatalog(ctx context.Context, cfg config.CatalogConfig) (catalog.Catalog, func(), error) {
	var (
		cat    catalog.Catalog
		closer func()
	)
	switch cfg.Driver {
	case "sqlite":
		c, err := catalog.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, &StartupError{Component: "catalog", Err: err}
		}
		cat, closer = c, func() { c.Close() }
	default:
		c, err := catalog.OpenPostgres(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, nil, &StartupError{Component: "catalog", Err: err}
		}
		cat, closer = c, c.Close
	}

	if err := checkCatalog(ctx, cat); err != nil {
		closer()
		return nil, nil, err
	}
	return cat, closer, nil
}

// checkCatalog 在启动时检查连通性和表结构，避免之后每个任务都以目录错误失败
func checkCatalog(ctx context.Context, cat catalog.Catalog) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if p, ok := cat.(catalog.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return &StartupError{Component: "catalog", Err: err}
		}
	}
	if sc, ok := cat.(catalog.SchemaChecker); ok {
		if err := sc.CheckSchema(ctx); err != nil {
			return &StartupError{Component: "catalog", Err: err}
		}
	}
	return nil
}

// NewQueue 根据配置创建列表队列或 Stream 消费者组队列
func NewQueue(ctx context.Context, rdb *redis.Client, cfg config.RedisConfig) (queue.TaskQueue, error) {
	if cfg.QueueKind != "stream" {
		return queue.NewRedisList(rdb, cfg.QueueKey), nil
	}
	q := queue.NewRedisStream(rdb, cfg.Stream, cfg.Group, ConsumerName())
	if err := q.EnsureGroup(ctx); err != nil {
		return nil, &StartupError{Component: "redis", Err: err}
	}
	return q, nil
}

// ConsumerName 使用主机名作为消费者名称，获取失败时随机生成
func ConsumerName() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "worker-" + uuid.NewString()[:8]
	}
	return name
}

// Pipeline 是处理任务所需的全部本地组件
type Pipeline struct {
	Processor   *fetcher.Processor
	Layout      *storage.Layout
	Fingerprint *fingerprint.Computer
	Mirror      *uploader.ObsUploader
}

// Close 释放可选的上传客户端
func (p *Pipeline) Close() {
	if p.Mirror != nil {
		p.Mirror.Close()
	}
}

// NewPipeline 构建 FetchAndStore 及其依赖
func NewPipeline(cfg config.Config, cat catalog.Catalog, logger *slog.Logger) (*Pipeline, error) {
	fp, err := fingerprint.New(fingerprint.Algorithm(cfg.Worker.Fingerprint))
	if err != nil {
		return nil, err
	}
	layout := storage.NewLayout(cfg.Worker.DownloadRoot)

	dl := downloader.New(client.New(cfg.Worker.FetchTimeout()))
	dl.AddObserver(observer.NewProgressLogObserver(logger))

	p := &Pipeline{Layout: layout, Fingerprint: fp}
	opts := fetcher.Options{
		Platform:   cfg.Worker.Platform,
		DefaultExt: cfg.Worker.DefaultExt,
	}
	if cfg.OBS.Enabled() {
		p.Mirror, err = uploader.NewObsUploader(cfg.OBS.Endpoint, cfg.OBS.AK, cfg.OBS.SK, cfg.OBS.Bucket, cfg.OBS.Prefix, logger)
		if err != nil {
			return nil, err
		}
		opts.Mirror = p.Mirror
	}
	p.Processor = fetcher.New(cat, dl, fp, layout, opts)
	return p, nil
}

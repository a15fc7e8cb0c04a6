// Package config loads the worker and API configuration from TOML and the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultDownloadRoot = "/root/douyin/"
	DefaultQueueKey     = "douyinTask"
	DefaultStream       = "download_tasks"
	DefaultGroup        = "download-group"
	DefaultRedisAddr    = "localhost:6379"
	DefaultAPIAddr      = ":8080"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "root"
	DefaultPGDatabase   = "video"
	DefaultPGSSLMode    = "disable"
)

type Config struct {
	Log     LogConfig     `toml:"log"`
	Worker  WorkerConfig  `toml:"worker"`
	Redis   RedisConfig   `toml:"redis"`
	Catalog CatalogConfig `toml:"catalog"`
	OBS     OBSConfig     `toml:"obs"`
	API     APIConfig     `toml:"api"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// WorkerConfig 控制下载目录和单个任务的处理方式
type WorkerConfig struct {
	DownloadRoot        string `toml:"download_root"`
	Platform            int    `toml:"platform"`
	DefaultExt          string `toml:"default_ext"`
	Fingerprint         string `toml:"fingerprint"`
	IdlePollSeconds     int    `toml:"idle_poll_seconds"`
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds"`
}

func (w WorkerConfig) IdlePoll() time.Duration {
	return time.Duration(w.IdlePollSeconds) * time.Second
}

func (w WorkerConfig) FetchTimeout() time.Duration {
	return time.Duration(w.FetchTimeoutSeconds) * time.Second
}

// RedisConfig 配置任务队列和状态记录。QueueKind 为 "list"（RPOP）或 "stream"（消费者组）。
type RedisConfig struct {
	Addr             string `toml:"addr"`
	Password         string `toml:"password"`
	DB               int    `toml:"db"`
	QueueKind        string `toml:"queue_kind"`
	QueueKey         string `toml:"queue_key"`
	Stream           string `toml:"stream"`
	Group            string `toml:"group"`
	StatusTTLSeconds int    `toml:"status_ttl_seconds"`
	DisableStatus    bool   `toml:"disable_status"`
}

// CatalogConfig 选择目录存储：Driver 为 "postgres" 或 "sqlite"
type CatalogConfig struct {
	Driver     string         `toml:"driver"`
	SQLitePath string         `toml:"sqlite_path"`
	Postgres   PostgresConfig `toml:"postgres"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN 返回 postgres:// 形式的连接串
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// OBSConfig 全部字段都配置时，新入库的文件会同步上传到 OBS
type OBSConfig struct {
	Endpoint string `toml:"endpoint"`
	AK       string `toml:"ak"`
	SK       string `toml:"sk"`
	Bucket   string `toml:"bucket"`
	Prefix   string `toml:"prefix"`
}

func (o OBSConfig) Enabled() bool {
	return o.Endpoint != "" && o.AK != "" && o.SK != "" && o.Bucket != ""
}

type APIConfig struct {
	Addr string `toml:"addr"`
}

// Default 返回所有字段都取默认值的配置
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Worker: WorkerConfig{
			DownloadRoot:        DefaultDownloadRoot,
			Platform:            1,
			DefaultExt:          ".mp4",
			Fingerprint:         "md5",
			IdlePollSeconds:     1,
			FetchTimeoutSeconds: 30,
		},
		Redis: RedisConfig{
			Addr:      DefaultRedisAddr,
			QueueKind: "list",
			QueueKey:  DefaultQueueKey,
			Stream:    DefaultStream,
			Group:     DefaultGroup,
		},
		Catalog: CatalogConfig{
			Driver:     "postgres",
			SQLitePath: "catalog.db",
			Postgres: PostgresConfig{
				Host:     DefaultPGHost,
				Port:     DefaultPGPort,
				User:     DefaultPGUser,
				Database: DefaultPGDatabase,
				SSLMode:  DefaultPGSSLMode,
			},
		},
		API: APIConfig{Addr: DefaultAPIAddr},
	}
}

// Load 读取 TOML 配置文件（不存在时使用默认值），然后应用环境变量覆盖。
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	setString := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Worker.DownloadRoot, "DOWNLOAD_ROOT")
	setString(&cfg.OBS.Endpoint, "OBS_ENDPOINT")
	setString(&cfg.OBS.AK, "OBS_AK")
	setString(&cfg.OBS.SK, "OBS_SK")
	setString(&cfg.OBS.Bucket, "OBS_BUCKET")
	setString(&cfg.Catalog.Driver, "CATALOG_DRIVER")
	setString(&cfg.Catalog.Postgres.Host, "PG_HOST")
	setString(&cfg.Catalog.Postgres.User, "PG_USER")
	setString(&cfg.Catalog.Postgres.Password, "PG_PASSWORD")
	setString(&cfg.Catalog.Postgres.Database, "PG_DATABASE")
	if v := getenv("PG_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PG_PORT: %w", err)
		}
		cfg.Catalog.Postgres.Port = port
	}
	return nil
}

// Validate 检查枚举类字段
func (c Config) Validate() error {
	switch c.Redis.QueueKind {
	case "list", "stream":
	default:
		return fmt.Errorf("redis.queue_kind must be list or stream, got %q", c.Redis.QueueKind)
	}
	switch c.Catalog.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("catalog.driver must be postgres or sqlite, got %q", c.Catalog.Driver)
	}
	if c.Worker.DownloadRoot == "" {
		return fmt.Errorf("worker.download_root is required")
	}
	return nil
}

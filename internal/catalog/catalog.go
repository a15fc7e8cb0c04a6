// Package catalog persists the records of stored media files and answers the
// two dedup questions of the fetch pipeline: has this URL been stored, and is
// this content already stored.
package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound 表示没有匹配的记录
	ErrNotFound = errors.New("catalog: record not found")
	// ErrDuplicateContent 表示已有记录使用了相同的内容指纹
	ErrDuplicateContent = errors.New("catalog: content fingerprint already recorded")
	// ErrDuplicateSource 表示已有记录使用了相同的 URL 指纹
	ErrDuplicateSource = errors.New("catalog: source fingerprint already recorded")
	// ErrSchemaMissing 表示数据库里还没有 videos 表，需要先执行 migrate up
	ErrSchemaMissing = errors.New("catalog: videos table missing, run migrations first")
)

// Record 对应 videos 表中的一行。记录创建后在本服务内不再修改。
type Record struct {
	ID                 int64     `json:"id"`
	Platform           int       `json:"platform"`
	Status             int       `json:"status"`
	Title              string    `json:"title"`
	SourceURL          string    `json:"url"`
	ContentFingerprint string    `json:"md5"`
	SourceFingerprint  string    `json:"urlmd5"`
	StoragePath        string    `json:"storepath"`
	CreatedAt          time.Time `json:"created_at"`
}

// Catalog 是 FetchAndStore 依赖的全部存储能力。
//
// Insert 必须在存储层保证内容指纹和 URL 指纹的唯一性，
// 多个 worker 并发处理同一份新内容时只有一个能插入成功。
type Catalog interface {
	FindBySourceFingerprint(ctx context.Context, fp string) (Record, error)
	FindByContentFingerprint(ctx context.Context, fp string) (Record, error)
	Insert(ctx context.Context, rec Record) (Record, error)
}

// Pinger 由可以检测连通性的后端实现，启动时用来区分"连不上"和单个任务的失败。
type Pinger interface {
	Ping(ctx context.Context) error
}

// SchemaChecker 由需要预先建表的后端实现，表不存在时返回 ErrSchemaMissing
type SchemaChecker interface {
	CheckSchema(ctx context.Context) error
}

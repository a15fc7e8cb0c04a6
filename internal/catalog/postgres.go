package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

const selectColumns = `id, platform, status, title, url, md5, urlmd5, storepath, created_at`

// Postgres 是基于 pgx 连接池的 Catalog 实现。表结构见 migrations/。
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres 连接数据库并返回 Catalog。连接池是懒连接的，调用方应随后 Ping。
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// CheckSchema 确认 videos 表已经由迁移创建
func (p *Postgres) CheckSchema(ctx context.Context) error {
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT to_regclass('videos') IS NOT NULL`).Scan(&exists); err != nil {
		return fmt.Errorf("check schema: %w", err)
	}
	if !exists {
		return ErrSchemaMissing
	}
	return nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) FindBySourceFingerprint(ctx context.Context, fp string) (Record, error) {
	return p.findOne(ctx, `SELECT `+selectColumns+` FROM videos WHERE urlmd5 = $1`, fp)
}

func (p *Postgres) FindByContentFingerprint(ctx context.Context, fp string) (Record, error) {
	return p.findOne(ctx, `SELECT `+selectColumns+` FROM videos WHERE md5 = $1`, fp)
}

func (p *Postgres) findOne(ctx context.Context, query, fp string) (Record, error) {
	var rec Record
	err := p.pool.QueryRow(ctx, query, fp).Scan(
		&rec.ID, &rec.Platform, &rec.Status, &rec.Title, &rec.SourceURL,
		&rec.ContentFingerprint, &rec.SourceFingerprint, &rec.StoragePath, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (p *Postgres) Insert(ctx context.Context, rec Record) (Record, error) {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO videos (platform, status, title, url, md5, urlmd5, storepath)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		rec.Platform, rec.Status, rec.Title, rec.SourceURL,
		rec.ContentFingerprint, rec.SourceFingerprint, rec.StoragePath,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if pgErr.ConstraintName == "videos_urlmd5_key" {
				return Record{}, ErrDuplicateSource
			}
			return Record{}, ErrDuplicateContent
		}
		return Record{}, fmt.Errorf("insert video: %w", err)
	}
	return rec, nil
}

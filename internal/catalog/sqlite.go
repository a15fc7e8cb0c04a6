package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS videos (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    platform    INTEGER NOT NULL DEFAULT 0,
    status      INTEGER NOT NULL DEFAULT 0,
    title       TEXT    NOT NULL DEFAULT '',
    url         TEXT    NOT NULL,
    md5         TEXT    NOT NULL UNIQUE,
    urlmd5      TEXT    NOT NULL UNIQUE,
    storepath   TEXT    NOT NULL,
    created_at  TEXT    NOT NULL
);`

// SQLite 是单机部署用的 Catalog，和 Postgres 使用相同的表结构。
type SQLite struct {
	db *sql.DB
}

// OpenSQLite 打开（必要时创建）数据库文件并建表。path 为 ":memory:" 时使用内存库。
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// 单连接，保证内存库在所有查询间共享，也避免写锁竞争
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) CheckSchema(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'videos'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}
	if n == 0 {
		return ErrSchemaMissing
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) FindBySourceFingerprint(ctx context.Context, fp string) (Record, error) {
	return s.findOne(ctx, `SELECT `+selectColumns+` FROM videos WHERE urlmd5 = ?`, fp)
}

func (s *SQLite) FindByContentFingerprint(ctx context.Context, fp string) (Record, error) {
	return s.findOne(ctx, `SELECT `+selectColumns+` FROM videos WHERE md5 = ?`, fp)
}

func (s *SQLite) findOne(ctx context.Context, query, fp string) (Record, error) {
	var (
		rec     Record
		created string
	)
	err := s.db.QueryRowContext(ctx, query, fp).Scan(
		&rec.ID, &rec.Platform, &rec.Status, &rec.Title, &rec.SourceURL,
		&rec.ContentFingerprint, &rec.SourceFingerprint, &rec.StoragePath, &created,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return rec, nil
}

func (s *SQLite) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO videos (platform, status, title, url, md5, urlmd5, storepath, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Platform, rec.Status, rec.Title, rec.SourceURL,
		rec.ContentFingerprint, rec.SourceFingerprint, rec.StoragePath,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && isUniqueViolation(sqliteErr) {
			if strings.Contains(sqliteErr.Error(), "videos.urlmd5") {
				return Record{}, ErrDuplicateSource
			}
			return Record{}, ErrDuplicateContent
		}
		return Record{}, fmt.Errorf("insert video: %w", err)
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("insert video: %w", err)
	}
	return rec, nil
}

// isUniqueViolation 同时兼容扩展错误码和基础错误码
func isUniqueViolation(err *sqlite.Error) bool {
	if err.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return err.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "UNIQUE")
}

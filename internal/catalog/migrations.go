package catalog

import "embed"

// MigrationsFS 包含 Postgres 的建表迁移脚本
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS

package notification

import "embed"

// migrations は通知サービスのマイグレーションファイル。
//
//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

package restaurant

import "embed"

// migrations はレストランサービスのマイグレーションファイル。
//
//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

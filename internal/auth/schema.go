package auth

import "embed"

// migrations は認証サービスのマイグレーションファイル。
//
//go:embed migrations/*.sql
var migrations embed.FS

// migrationsDir はmigrations内のディレクトリ名。
const migrationsDir = "migrations"

package order

import "embed"

// migrations は注文サービスのマイグレーションファイル。
//
//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

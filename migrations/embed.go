// Package migrations встраивает SQL-миграции Postgres-хранилища.
package migrations

import "embed"

// FS содержит миграции в формате goose.
//
//go:embed *.sql
var FS embed.FS

// Package migrations embeds the outbox schema for each supported dialect.
package migrations

import "embed"

// FS holds one directory of goose migrations per dialect.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

const (
	SQLiteDir   = "sqlite"
	PostgresDir = "postgres"
)

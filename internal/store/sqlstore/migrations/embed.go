package migrations

import "embed"

// FS contains the schema migrations shared by the Postgres and SQLite dialects.
//
//go:embed *.sql
var FS embed.FS
